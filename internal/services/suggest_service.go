package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"neuro/internal/database"
	"neuro/internal/models"
)

// suggestContextSize is how many trailing messages the model sees.
const suggestContextSize = 5

// SuggestService drafts the next chat reply for a user, from the model
// when one is configured and from canned rules otherwise.
type SuggestService struct {
	mongoDB *database.MongoDB
	llm     *LLMService
	analyze *AnalyzeService
	limiter *aiCallLimiter
}

// NewSuggestService creates a new suggest service
func NewSuggestService(mongoDB *database.MongoDB, llm *LLMService, analyze *AnalyzeService) *SuggestService {
	return &SuggestService{
		mongoDB: mongoDB,
		llm:     llm,
		analyze: analyze,
		limiter: newAICallLimiter(800 * time.Millisecond),
	}
}

func (s *SuggestService) suggestMessages() *mongo.Collection {
	return s.mongoDB.Collection(database.CollectionMessages)
}

// Suggest drafts the next reply uid should send to withUID.
func (s *SuggestService) Suggest(uid, withUID string) (*models.SuggestReplyResponse, error) {
	uid = strings.TrimSpace(uid)
	withUID = strings.TrimSpace(withUID)
	if uid == "" {
		return nil, ErrUnauthorized
	}
	if withUID == "" {
		return nil, ErrMissingRecipient
	}
	if err := s.limiter.Allow(uid); err != nil {
		return nil, err
	}

	recent, err := s.lastMessages(ConversationIDFor(uid, withUID), suggestContextSize)
	if err != nil {
		return nil, err
	}

	if s.llm != nil && s.llm.Configured() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		reply, err := s.llm.Complete(ctx, buildSuggestPrompt(recent, uid))
		if err == nil {
			return &models.SuggestReplyResponse{Reply: strings.TrimSpace(reply), Source: "llm"}, nil
		}
		log.Printf("⚠️ [SUGGEST] Model call failed, using rules: %v", err)
	}

	return &models.SuggestReplyResponse{Reply: s.ruleReply(recent, uid), Source: "rules"}, nil
}

// lastMessages returns up to n messages of a conversation, newest first.
func (s *SuggestService) lastMessages(convID string, n int) ([]MessageRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(n))
	cursor, err := s.suggestMessages().Find(ctx, bson.M{"conversationId": convID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent messages: %w", err)
	}
	defer cursor.Close(ctx)

	var records []MessageRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode recent messages: %w", err)
	}
	return records, nil
}

// buildSuggestPrompt renders the conversation oldest to newest with
// ME/THEM role tags and wraps it in the drafting instructions.
func buildSuggestPrompt(newestFirst []MessageRecord, meUID string) string {
	var lines []string
	for i := len(newestFirst) - 1; i >= 0; i-- {
		m := newestFirst[i]
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		role := "THEM"
		if m.From == meUID {
			role = "ME"
		}
		lines = append(lines, role+": "+text)
	}
	history := "(No prior messages)"
	if len(lines) > 0 {
		history = strings.Join(lines, "\n")
	}

	return fmt.Sprintf(`You are assisting a user in a chat. Read the last few messages and craft the NEXT single reply the user (ME) should send.

Goals:
- Mirror the existing tone but keep it professional, clear, and friendly.
- Be concise (1–3 sentences). No greetings unless context calls for it.
- If there's a question to answer, answer directly. If next step is needed, propose one.
- Avoid emojis unless prior tone clearly uses them.
- Output only the reply text, with no quotes or role tags.

Conversation (oldest → newest):
%s

Return ONLY the reply text for ME to send next.
`, history)
}

// ruleReply keys a canned response off the intent of their last message.
func (s *SuggestService) ruleReply(newestFirst []MessageRecord, meUID string) string {
	theirLast := ""
	for _, m := range newestFirst {
		if m.From != meUID {
			theirLast = m.Text
			break
		}
	}

	switch s.analyze.Analyze(theirLast).Intent {
	case "yes":
		return "Sounds good. Does Tuesday or Wednesday afternoon work for a quick call?"
	case "later":
		return "No problem at all. I'll check back in a couple of weeks."
	case "no":
		return "Understood, thanks for letting me know. I'll stop here."
	default:
		return "Thanks for the note! Happy to share more details or set up a quick chat if useful."
	}
}
