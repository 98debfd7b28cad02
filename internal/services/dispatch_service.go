package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"neuro/internal/database"
	"neuro/internal/models"
)

// AgentTaskRecord is the MongoDB representation of a dispatched agent task.
type AgentTaskRecord struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	TaskID    string             `bson:"taskId"`
	Agent     string             `bson:"agent"`
	OwnerUID  string             `bson:"ownerUid,omitempty"`
	Payload   map[string]any     `bson:"payload,omitempty"`
	Status    string             `bson:"status"`
	CreatedAt time.Time          `bson:"createdAt"`
}

// ToModel converts AgentTaskRecord to models.AgentTask
func (r *AgentTaskRecord) ToModel() *models.AgentTask {
	return &models.AgentTask{
		ID:        r.TaskID,
		Agent:     r.Agent,
		OwnerUID:  r.OwnerUID,
		Payload:   r.Payload,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
	}
}

// DispatchService accepts agent dispatches and queues them as tasks. There
// is no agent runtime behind it yet, so tasks park in "accepted" until one
// picks them up.
type DispatchService struct {
	mongoDB *database.MongoDB
}

// NewDispatchService creates a new dispatch service
func NewDispatchService(mongoDB *database.MongoDB) *DispatchService {
	return &DispatchService{mongoDB: mongoDB}
}

func (s *DispatchService) tasksCollection() *mongo.Collection {
	return s.mongoDB.Collection(database.CollectionAgentTasks)
}

// Dispatch queues one task for the named agent and returns the accepted task.
func (s *DispatchService) Dispatch(agent, ownerUID string, payload map[string]any) (*models.AgentTask, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if agent == "" {
		agent = "outreach-assistant"
	}

	record := &AgentTaskRecord{
		TaskID:    uuid.New().String(),
		Agent:     agent,
		OwnerUID:  ownerUID,
		Payload:   payload,
		Status:    "accepted",
		CreatedAt: time.Now(),
	}

	if _, err := s.tasksCollection().InsertOne(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to queue agent task: %w", err)
	}

	log.Printf("📬 [DISPATCH] Queued task %s for agent %s", record.TaskID, agent)
	return record.ToModel(), nil
}

// ListTasks returns the most recent tasks for a user, newest first.
func (s *DispatchService) ListTasks(ownerUID string, limit int) ([]*models.AgentTask, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if limit <= 0 || limit > 100 {
		limit = 50
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.tasksCollection().Find(ctx, bson.M{"ownerUid": ownerUID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent tasks: %w", err)
	}
	defer cursor.Close(ctx)

	var records []AgentTaskRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode agent tasks: %w", err)
	}

	tasks := make([]*models.AgentTask, 0, len(records))
	for i := range records {
		tasks = append(tasks, records[i].ToModel())
	}
	return tasks, nil
}
