package services

import (
	"log"
	"sync"

	"neuro/internal/models"
)

// ConnectionManager tracks the WebSocket subscribers of each run so live
// log lines can be fanned out to everyone watching.
type ConnectionManager struct {
	connections map[string]*models.RunConnection            // connID -> connection
	byRun       map[string]map[string]*models.RunConnection // runID -> connID -> connection
	mutex       sync.RWMutex
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*models.RunConnection),
		byRun:       make(map[string]map[string]*models.RunConnection),
	}
}

// Add registers a new subscriber.
func (cm *ConnectionManager) Add(conn *models.RunConnection) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.connections[conn.ConnID] = conn
	if cm.byRun[conn.RunID] == nil {
		cm.byRun[conn.RunID] = make(map[string]*models.RunConnection)
	}
	cm.byRun[conn.RunID][conn.ConnID] = conn
	log.Printf("✅ Run subscriber added: %s run=%s (Total: %d)", conn.ConnID, conn.RunID, len(cm.connections))
}

// Remove drops a subscriber and closes its channels.
func (cm *ConnectionManager) Remove(connID string) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	conn, exists := cm.connections[connID]
	if !exists {
		return
	}
	conn.MarkClosed()
	close(conn.WriteChan)
	close(conn.StopChan)
	delete(cm.connections, connID)
	if subs := cm.byRun[conn.RunID]; subs != nil {
		delete(subs, connID)
		if len(subs) == 0 {
			delete(cm.byRun, conn.RunID)
		}
	}
	log.Printf("❌ Run subscriber removed: %s run=%s (Total: %d)", connID, conn.RunID, len(cm.connections))
}

// Get retrieves a connection by ID
func (cm *ConnectionManager) Get(connID string) (*models.RunConnection, bool) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	conn, exists := cm.connections[connID]
	return conn, exists
}

// Broadcast delivers an event to every subscriber of its run.
func (cm *ConnectionManager) Broadcast(evt models.RunEvent) {
	cm.mutex.RLock()
	subs := make([]*models.RunConnection, 0, len(cm.byRun[evt.RunID]))
	for _, conn := range cm.byRun[evt.RunID] {
		subs = append(subs, conn)
	}
	cm.mutex.RUnlock()

	for _, conn := range subs {
		conn.SafeSend(evt)
	}
}

// Count returns the number of active connections
func (cm *ConnectionManager) Count() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return len(cm.connections)
}

// CountForRun returns the number of subscribers watching one run.
func (cm *ConnectionManager) CountForRun(runID string) int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return len(cm.byRun[runID])
}
