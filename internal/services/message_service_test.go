package services

import (
	"errors"
	"strings"
	"testing"
)

func TestConversationIDFor(t *testing.T) {
	if got := ConversationIDFor("bob", "alice"); got != "alice__bob" {
		t.Errorf("ConversationIDFor(bob, alice) = %q, want alice__bob", got)
	}
	if ConversationIDFor("a", "b") != ConversationIDFor("b", "a") {
		t.Error("conversation id should not depend on argument order")
	}
	if got := ConversationIDFor("  alice ", "bob"); got != "alice__bob" {
		t.Errorf("uids should be trimmed, got %q", got)
	}
}

func TestCleanTextTruncates(t *testing.T) {
	long := strings.Repeat("x", maxMessageLen+100)
	if got := cleanText(long); len(got) != maxMessageLen {
		t.Errorf("cleanText kept %d chars, want %d", len(got), maxMessageLen)
	}
	if got := cleanText("  hello  "); got != "hello" {
		t.Errorf("cleanText(%q) = %q", "  hello  ", got)
	}
}

func TestSendValidation(t *testing.T) {
	// Validation runs before any database access, so a nil-backed service
	// is enough here.
	svc := NewMessageService(nil)

	tests := []struct {
		name string
		from string
		to   string
		text string
		want error
	}{
		{"missing sender", "", "bob", "hi", ErrUnauthorized},
		{"missing recipient", "alice", "", "hi", ErrMissingRecipient},
		{"self message", "alice", "alice", "hi", ErrSelfMessage},
		{"blank text", "alice", "bob", "   ", ErrEmptyMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Send(tt.from, tt.to, tt.text)
			if !errors.Is(err, tt.want) {
				t.Errorf("Send() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSeedDemoValidation(t *testing.T) {
	svc := NewMessageService(nil)

	if _, _, err := svc.SeedDemo("", "a", "b"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("SeedDemo without requester = %v, want ErrUnauthorized", err)
	}
	if _, _, err := svc.SeedDemo("me", "a", "a"); !errors.Is(err, ErrBadSeedPair) {
		t.Errorf("SeedDemo with same uids = %v, want ErrBadSeedPair", err)
	}
	if _, _, err := svc.SeedDemo("me", "", "b"); !errors.Is(err, ErrBadSeedPair) {
		t.Errorf("SeedDemo with empty uid = %v, want ErrBadSeedPair", err)
	}
}
