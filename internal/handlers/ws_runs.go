package handlers

import (
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"neuro/internal/models"
	"neuro/internal/services"
)

const (
	// Wait blocks keep runs quiet for long stretches, so the read deadline
	// is generous and refreshed by pongs.
	runSocketPongWait     = 360 * time.Second
	runSocketPingInterval = 30 * time.Second
)

// RunSocketHandler streams a run's live events to WebSocket subscribers.
type RunSocketHandler struct {
	conns *services.ConnectionManager
	runs  *services.RunService
}

// NewRunSocketHandler creates a new run socket handler.
func NewRunSocketHandler(conns *services.ConnectionManager, runs *services.RunService) *RunSocketHandler {
	return &RunSocketHandler{conns: conns, runs: runs}
}

// Handle serves one subscriber
// GET /ws/runs/:id (token via query parameter)
func (h *RunSocketHandler) Handle(c *websocket.Conn) {
	runID := c.Params("id")
	userID, _ := c.Locals("user_id").(string)

	run, err := h.runs.Meta(userID, runID)
	if err != nil {
		c.WriteJSON(models.RunEvent{
			Type:  models.RunEventError,
			RunID: runID,
			At:    time.Now(),
			Error: "Run not found",
		})
		c.Close()
		return
	}

	conn := &models.RunConnection{
		ConnID:    uuid.New().String(),
		UserID:    userID,
		RunID:     runID,
		Conn:      c,
		CreatedAt: time.Now(),
		WriteChan: make(chan models.RunEvent, 100),
		StopChan:  make(chan bool, 1),
	}

	h.conns.Add(conn)
	defer h.conns.Remove(conn.ConnID)

	done := make(chan struct{})
	defer close(done)

	go h.writeLoop(conn)
	go h.pingLoop(conn, done)

	// Hand late subscribers the current status right away; the backlog is
	// one GET /api/runs/:id away.
	conn.SafeSend(models.RunEvent{
		Type:   models.RunEventStatus,
		RunID:  runID,
		At:     time.Now(),
		Status: run.Status,
	})

	c.SetReadDeadline(time.Now().Add(runSocketPongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(runSocketPongWait))
	})

	// Subscribers never send anything meaningful; the read loop just
	// notices when they leave.
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
		c.SetReadDeadline(time.Now().Add(runSocketPongWait))
	}
}

func (h *RunSocketHandler) writeLoop(conn *models.RunConnection) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Panic in run socket write loop: %v", r)
		}
	}()

	for evt := range conn.WriteChan {
		if err := conn.Conn.WriteJSON(evt); err != nil {
			return
		}
	}
}

func (h *RunSocketHandler) pingLoop(conn *models.RunConnection, done <-chan struct{}) {
	ticker := time.NewTicker(runSocketPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}
