package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"neuro/internal/models"
)

// PubSubService relays run events between server instances over Redis, so a
// WebSocket subscriber connected to one instance still sees lines from a run
// executing on another.
type PubSubService struct {
	redis      *RedisService
	pubsub     *redis.PubSub
	handlers   []RunEventHandler
	mu         sync.RWMutex
	instanceID string
	ctx        context.Context
	cancel     context.CancelFunc
}

// RunEventHandler is a callback invoked for run events published by other
// instances.
type RunEventHandler func(evt models.RunEvent)

// runEventFrame is the wire envelope: the event plus its source instance.
type runEventFrame struct {
	InstanceID string          `json:"instanceId"`
	Event      models.RunEvent `json:"event"`
}

// NewPubSubService creates a new pub/sub service
func NewPubSubService(redisService *RedisService, instanceID string) *PubSubService {
	ctx, cancel := context.WithCancel(context.Background())
	return &PubSubService{
		redis:      redisService,
		instanceID: instanceID,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// OnRunEvent registers a handler for relayed run events.
func (s *PubSubService) OnRunEvent(handler RunEventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Start begins listening for run events from other instances.
func (s *PubSubService) Start() error {
	s.pubsub = s.redis.Client().PSubscribe(s.ctx, "runs:*:events")

	// Wait for subscription confirmation
	if _, err := s.pubsub.Receive(s.ctx); err != nil {
		return err
	}

	go s.processMessages()

	log.Printf("✅ [PUBSUB] Listening for run events (instance: %s)", s.instanceID)
	return nil
}

// processMessages handles incoming pub/sub messages
func (s *PubSubService) processMessages() {
	ch := s.pubsub.Channel()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.handleMessage(msg)
		}
	}
}

// handleMessage dispatches one relayed run event to the registered handlers.
func (s *PubSubService) handleMessage(msg *redis.Message) {
	var frame runEventFrame
	if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
		log.Printf("⚠️ [PUBSUB] Failed to unmarshal run event: %v", err)
		return
	}

	// Skip events from this instance, they were already broadcast locally.
	if frame.InstanceID == s.instanceID {
		return
	}

	s.mu.RLock()
	handlers := make([]RunEventHandler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.RUnlock()

	for _, handler := range handlers {
		go handler(frame.Event)
	}
}

// PublishRunEvent publishes a run event to the run's channel.
func (s *PubSubService) PublishRunEvent(ctx context.Context, evt models.RunEvent) error {
	data, err := json.Marshal(runEventFrame{InstanceID: s.instanceID, Event: evt})
	if err != nil {
		return err
	}
	channel := fmt.Sprintf("runs:%s:events", evt.RunID)
	return s.redis.Client().Publish(ctx, channel, data).Err()
}

// Stop stops the pub/sub service
func (s *PubSubService) Stop() error {
	s.cancel()
	if s.pubsub != nil {
		return s.pubsub.Close()
	}
	return nil
}
