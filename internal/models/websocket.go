package models

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// Run event frame types pushed to WebSocket subscribers.
const (
	RunEventLog    = "log"
	RunEventStatus = "status"
	RunEventError  = "error"
)

// RunEvent is one frame of a run's live stream: a log line, a status
// change, or an error. The same shape travels over Redis pub/sub so every
// server instance can fan out to its own subscribers.
type RunEvent struct {
	Type   string    `json:"type"`
	RunID  string    `json:"runId"`
	At     time.Time `json:"at,omitempty"`
	Text   string    `json:"text,omitempty"`
	Status string    `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// RunConnection is one WebSocket subscriber watching a run's live log.
type RunConnection struct {
	ConnID    string
	UserID    string
	RunID     string
	Conn      *websocket.Conn
	CreatedAt time.Time
	WriteChan chan RunEvent
	StopChan  chan bool
	Mutex     sync.Mutex
	closed    bool
}

// SafeSend queues an event for the connection's write pump, returning false
// if the connection is closed or its buffer is full. A slow subscriber drops
// frames rather than stalling the broadcaster; the durable log lives in the
// run document.
func (rc *RunConnection) SafeSend(evt RunEvent) bool {
	rc.Mutex.Lock()
	if rc.closed {
		rc.Mutex.Unlock()
		return false
	}
	rc.Mutex.Unlock()

	// Recover from a send on a channel closed by the writer teardown.
	defer func() {
		if r := recover(); r != nil {
			rc.Mutex.Lock()
			rc.closed = true
			rc.Mutex.Unlock()
		}
	}()

	select {
	case rc.WriteChan <- evt:
		return true
	default:
		return false
	}
}

// MarkClosed marks the connection as closed
func (rc *RunConnection) MarkClosed() {
	rc.Mutex.Lock()
	rc.closed = true
	rc.Mutex.Unlock()
}

// IsClosed returns true if the connection has been marked as closed
func (rc *RunConnection) IsClosed() bool {
	rc.Mutex.Lock()
	defer rc.Mutex.Unlock()
	return rc.closed
}
