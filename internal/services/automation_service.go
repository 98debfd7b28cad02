package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"neuro/internal/database"
	"neuro/internal/models"
)

var (
	ErrAutomationNotFound  = errors.New("automation not found")
	ErrEmptyAutomationName = errors.New("automation name is required")
)

// AutomationRecord is the automation document as stored in MongoDB.
type AutomationRecord struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	AutomationID string             `bson:"automationId"`
	OwnerUID     string             `bson:"ownerUid"`
	Name         string             `bson:"name"`
	Description  string             `bson:"description,omitempty"`
	Graph        models.FlowGraph   `bson:"graph"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
}

// ToModel converts the record to the API model.
func (r *AutomationRecord) ToModel() *models.Automation {
	return &models.Automation{
		ID:          r.AutomationID,
		OwnerUID:    r.OwnerUID,
		Name:        r.Name,
		Description: r.Description,
		Graph:       r.Graph,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// AutomationService stores saved workflow graphs per owner.
type AutomationService struct {
	mongoDB *database.MongoDB
}

// NewAutomationService creates a new automation service
func NewAutomationService(mongoDB *database.MongoDB) *AutomationService {
	return &AutomationService{mongoDB: mongoDB}
}

func (s *AutomationService) automations() *mongo.Collection {
	return s.mongoDB.Collection(database.CollectionAutomations)
}

// Create saves a new automation. Empty graphs are allowed, the editor saves
// drafts long before they are runnable.
func (s *AutomationService) Create(ownerUID string, req models.CreateAutomationRequest) (*models.Automation, error) {
	if strings.TrimSpace(ownerUID) == "" {
		return nil, ErrUnauthorized
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrEmptyAutomationName
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now()
	record := &AutomationRecord{
		AutomationID: uuid.New().String(),
		OwnerUID:     ownerUID,
		Name:         name,
		Description:  strings.TrimSpace(req.Description),
		Graph:        req.Graph,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := s.automations().InsertOne(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create automation: %w", err)
	}

	log.Printf("📝 [AUTOMATION] Created %s (%q) for %s", record.AutomationID, name, ownerUID)
	return record.ToModel(), nil
}

// Get returns one automation owned by ownerUID.
func (s *AutomationService) Get(ownerUID, automationID string) (*models.Automation, error) {
	record, err := s.getRecord(ownerUID, automationID)
	if err != nil {
		return nil, err
	}
	return record.ToModel(), nil
}

func (s *AutomationService) getRecord(ownerUID, automationID string) (*AutomationRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var record AutomationRecord
	err := s.automations().FindOne(ctx, bson.M{
		"automationId": automationID,
		"ownerUid":     ownerUID,
	}).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, ErrAutomationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get automation: %w", err)
	}
	return &record, nil
}

// List returns the owner's automations, most recently edited first.
func (s *AutomationService) List(ownerUID string, limit int) ([]*models.Automation, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.automations().Find(ctx, bson.M{"ownerUid": ownerUID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list automations: %w", err)
	}
	defer cursor.Close(ctx)

	var records []AutomationRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode automations: %w", err)
	}

	automations := make([]*models.Automation, len(records))
	for i := range records {
		automations[i] = records[i].ToModel()
	}
	return automations, nil
}

// Update applies partial edits to an automation the caller owns.
func (s *AutomationService) Update(ownerUID, automationID string, req models.UpdateAutomationRequest) (*models.Automation, error) {
	update := bson.M{"updatedAt": time.Now()}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, ErrEmptyAutomationName
		}
		update["name"] = name
	}
	if req.Description != nil {
		update["description"] = strings.TrimSpace(*req.Description)
	}
	if req.Graph != nil {
		update["graph"] = *req.Graph
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var record AutomationRecord
	err := s.automations().FindOneAndUpdate(ctx,
		bson.M{"automationId": automationID, "ownerUid": ownerUID},
		bson.M{"$set": update},
		opts,
	).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, ErrAutomationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update automation: %w", err)
	}
	return record.ToModel(), nil
}

// Delete removes an automation the caller owns.
func (s *AutomationService) Delete(ownerUID, automationID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := s.automations().DeleteOne(ctx, bson.M{
		"automationId": automationID,
		"ownerUid":     ownerUID,
	})
	if err != nil {
		return fmt.Errorf("failed to delete automation: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrAutomationNotFound
	}
	log.Printf("🗑️ [AUTOMATION] Deleted %s for %s", automationID, ownerUID)
	return nil
}
