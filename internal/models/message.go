package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message is one direct message between two members.
type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	MessageID      string             `bson:"messageId" json:"id"`
	ConversationID string             `bson:"conversationId" json:"-"`
	From           string             `bson:"from" json:"from"`
	To             string             `bson:"to" json:"to"`
	Text           string             `bson:"text" json:"text"`
	CreatedAt      time.Time          `bson:"createdAt" json:"-"`
}

// MessageView is a message shaped for API reads: ISO timestamp for display,
// epoch millis for client-side ordering, HTML rendered from the markdown
// source.
type MessageView struct {
	ID          string `json:"id"`
	From        string `json:"from"`
	To          string `json:"to"`
	Text        string `json:"text"`
	HTML        string `json:"html,omitempty"`
	CreatedAt   string `json:"createdAt"`
	CreatedAtMs int64  `json:"createdAtMs"`
}

// Conversation tracks one pair of members. Its id is the sorted member uids
// joined with "__", so the same pair always lands in the same document.
type Conversation struct {
	ID            string    `bson:"_id" json:"id"`
	Participants  []string  `bson:"participants" json:"participants"`
	LastMessage   string    `bson:"lastMessage,omitempty" json:"lastMessage,omitempty"`
	LastMessageAt time.Time `bson:"lastMessageAt,omitempty" json:"lastMessageAt,omitempty"`
	UpdatedAt     time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Partner is one row of the conversation list: the other member plus the
// conversation's latest state.
type Partner struct {
	UID           string    `json:"uid"`
	FullName      string    `json:"fullName,omitempty"`
	Slug          string    `json:"slug,omitempty"`
	AvatarURL     string    `json:"avatarUrl,omitempty"`
	LastMessage   string    `json:"lastMessage,omitempty"`
	LastMessageAt time.Time `json:"lastMessageAt,omitempty"`
}

// SendMessageRequest is the POST body for sending a direct message.
type SendMessageRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// SuggestReplyRequest asks for a drafted reply to a conversation.
type SuggestReplyRequest struct {
	With string `json:"with"`
}

// SuggestReplyResponse carries the drafted reply text.
type SuggestReplyResponse struct {
	Reply  string `json:"reply"`
	Source string `json:"source"` // "llm" or "rules"
}
