package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
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

// Validation errors surfaced to handlers for status mapping.
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrMissingRecipient = errors.New("missing recipient uid")
	ErrSelfMessage      = errors.New("cannot message yourself")
	ErrEmptyMessage     = errors.New("empty message")
	ErrBadSeedPair      = errors.New("need two different uids 'a' and 'b'")
)

const maxMessageLen = 5000

// ConversationIDFor returns the deterministic two-party conversation id:
// both uids sorted and joined with "__".
func ConversationIDFor(a, b string) string {
	x, y := strings.TrimSpace(a), strings.TrimSpace(b)
	if x > y {
		x, y = y, x
	}
	return x + "__" + y
}

func cleanText(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxMessageLen {
		s = s[:maxMessageLen]
	}
	return s
}

// MessageRecord is the MongoDB representation of one chat message.
type MessageRecord struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	MessageID      string             `bson:"messageId"`
	ConversationID string             `bson:"conversationId"`
	From           string             `bson:"from"`
	To             string             `bson:"to"`
	Text           string             `bson:"text"`
	CreatedAt      time.Time          `bson:"createdAt"`
}

// ToView converts MessageRecord to the API shape, with the markdown body
// rendered to HTML and the timestamp serialized both ways.
func (r *MessageRecord) ToView() models.MessageView {
	return models.MessageView{
		ID:          r.MessageID,
		From:        r.From,
		To:          r.To,
		Text:        r.Text,
		HTML:        RenderMarkdown(r.Text),
		CreatedAt:   r.CreatedAt.UTC().Format(time.RFC3339Nano),
		CreatedAtMs: r.CreatedAt.UnixMilli(),
	}
}

// ConversationRecord is the MongoDB representation of a two-party
// conversation. The _id is the deterministic pair id.
type ConversationRecord struct {
	ID            string    `bson:"_id"`
	Participants  []string  `bson:"participants"`
	LastMessage   string    `bson:"lastMessage,omitempty"`
	LastMessageAt time.Time `bson:"lastMessageAt,omitempty"`
	UpdatedAt     time.Time `bson:"updatedAt"`
}

// MessageService handles direct messages between two users.
type MessageService struct {
	mongoDB *database.MongoDB
}

// NewMessageService creates a new message service
func NewMessageService(mongoDB *database.MongoDB) *MessageService {
	return &MessageService{mongoDB: mongoDB}
}

func (s *MessageService) conversationsCollection() *mongo.Collection {
	return s.mongoDB.Collection(database.CollectionConversations)
}

func (s *MessageService) messagesCollection() *mongo.Collection {
	return s.mongoDB.Collection(database.CollectionMessages)
}

// Send appends a message to the (from, to) conversation, creating the
// conversation on first contact. Returns the conversation and message ids.
func (s *MessageService) Send(fromUID, toUID, text string) (string, string, error) {
	fromUID = strings.TrimSpace(fromUID)
	toUID = strings.TrimSpace(toUID)
	text = cleanText(text)

	if fromUID == "" {
		return "", "", ErrUnauthorized
	}
	if toUID == "" {
		return "", "", ErrMissingRecipient
	}
	if fromUID == toUID {
		return "", "", ErrSelfMessage
	}
	if text == "" {
		return "", "", ErrEmptyMessage
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	convID := ConversationIDFor(fromUID, toUID)
	now := time.Now()

	if err := s.touchConversation(ctx, convID, fromUID, toUID, text, now); err != nil {
		return "", "", err
	}

	record := &MessageRecord{
		MessageID:      uuid.New().String(),
		ConversationID: convID,
		From:           fromUID,
		To:             toUID,
		Text:           text,
		CreatedAt:      now,
	}
	if _, err := s.messagesCollection().InsertOne(ctx, record); err != nil {
		return "", "", fmt.Errorf("failed to store message: %w", err)
	}

	return convID, record.MessageID, nil
}

// touchConversation upserts the conversation doc and refreshes its preview.
func (s *MessageService) touchConversation(ctx context.Context, convID, a, b, lastText string, now time.Time) error {
	participants := []string{a, b}
	sort.Strings(participants)

	_, err := s.conversationsCollection().UpdateOne(ctx,
		bson.M{"_id": convID},
		bson.M{"$set": bson.M{
			"participants":  participants,
			"lastMessage":   lastText,
			"lastMessageAt": now,
			"updatedAt":     now,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert conversation: %w", err)
	}
	return nil
}

// Thread returns the messages between uid and otherUID in chronological
// order, up to limit (default 100).
func (s *MessageService) Thread(uid, otherUID string, limit int) (string, []models.MessageView, error) {
	uid = strings.TrimSpace(uid)
	otherUID = strings.TrimSpace(otherUID)
	if uid == "" {
		return "", nil, ErrUnauthorized
	}
	if otherUID == "" {
		return "", nil, ErrMissingRecipient
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	convID := ConversationIDFor(uid, otherUID)

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}}).
		SetLimit(int64(limit))
	cursor, err := s.messagesCollection().Find(ctx, bson.M{"conversationId": convID}, opts)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load thread: %w", err)
	}
	defer cursor.Close(ctx)

	var records []MessageRecord
	if err := cursor.All(ctx, &records); err != nil {
		return "", nil, fmt.Errorf("failed to decode thread: %w", err)
	}

	views := make([]models.MessageView, 0, len(records))
	for i := range records {
		views = append(views, records[i].ToView())
	}
	return convID, views, nil
}

// Partners returns the unique uids the user has conversations with, most
// recently active first.
func (s *MessageService) Partners(uid string, maxConversations int) ([]string, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, ErrUnauthorized
	}
	if maxConversations <= 0 || maxConversations > 200 {
		maxConversations = 50
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetLimit(int64(maxConversations))
	cursor, err := s.conversationsCollection().Find(ctx, bson.M{"participants": uid}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer cursor.Close(ctx)

	var convs []ConversationRecord
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}

	partners := []string{}
	seen := map[string]bool{}
	for _, c := range convs {
		for _, p := range c.Participants {
			if p != uid && !seen[p] {
				seen[p] = true
				partners = append(partners, p)
			}
		}
	}
	return partners, nil
}

// SeedDemo writes a tiny scripted back-and-forth between a and b. Dev
// utility, the requester only has to be authenticated.
func (s *MessageService) SeedDemo(requesterUID, a, b string) (string, int, error) {
	requesterUID = strings.TrimSpace(requesterUID)
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)

	if requesterUID == "" {
		return "", 0, ErrUnauthorized
	}
	if a == "" || b == "" || a == b {
		return "", 0, ErrBadSeedPair
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	convID := ConversationIDFor(a, b)
	now := time.Now()

	seed := []struct {
		from, to, text string
	}{
		{a, b, "Hey there!"},
		{b, a, "Yo! All good?"},
		{a, b, "Building the messenger 👨‍💻"},
	}

	docs := make([]interface{}, 0, len(seed))
	for i, m := range seed {
		docs = append(docs, &MessageRecord{
			MessageID:      uuid.New().String(),
			ConversationID: convID,
			From:           m.from,
			To:             m.to,
			Text:           m.text,
			CreatedAt:      now.Add(time.Duration(i) * time.Millisecond),
		})
	}

	last := seed[len(seed)-1]
	if err := s.touchConversation(ctx, convID, a, b, last.text, now.Add(time.Duration(len(seed)-1)*time.Millisecond)); err != nil {
		return "", 0, err
	}
	if _, err := s.messagesCollection().InsertMany(ctx, docs); err != nil {
		return "", 0, fmt.Errorf("failed to seed messages: %w", err)
	}

	log.Printf("💬 [SEED] Seeded %d messages between %s and %s", len(seed), a, b)
	return convID, len(seed), nil
}
