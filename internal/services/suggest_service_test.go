package services

import (
	"strings"
	"testing"
)

func TestBuildSuggestPromptOrdersOldestFirst(t *testing.T) {
	// Records arrive newest first, the prompt must read top to bottom.
	newestFirst := []MessageRecord{
		{From: "u2", Text: "Sure, when works for you?"},
		{From: "u1", Text: "Want to grab 20 minutes this week?"},
		{From: "u2", Text: "Hey, saw your profile"},
	}

	prompt := buildSuggestPrompt(newestFirst, "u1")

	first := strings.Index(prompt, "THEM: Hey, saw your profile")
	second := strings.Index(prompt, "ME: Want to grab 20 minutes this week?")
	third := strings.Index(prompt, "THEM: Sure, when works for you?")
	if first < 0 || second < 0 || third < 0 {
		t.Fatalf("prompt missing conversation lines:\n%s", prompt)
	}
	if !(first < second && second < third) {
		t.Errorf("conversation lines out of order: %d %d %d", first, second, third)
	}
	if !strings.Contains(prompt, "Return ONLY the reply text for ME to send next.") {
		t.Error("prompt missing trailing instruction")
	}
}

func TestBuildSuggestPromptEmptyHistory(t *testing.T) {
	prompt := buildSuggestPrompt(nil, "u1")
	if !strings.Contains(prompt, "(No prior messages)") {
		t.Errorf("expected empty-history placeholder, got:\n%s", prompt)
	}
}

func TestRuleReplyFollowsIntent(t *testing.T) {
	svc := NewSuggestService(nil, nil, NewAnalyzeService())

	tests := []struct {
		name     string
		theirs   string
		fragment string
	}{
		{"yes intent proposes a slot", "yes, sounds good!", "Tuesday or Wednesday"},
		{"later intent defers", "pretty busy, maybe next week", "check back"},
		{"no intent closes out", "not interested, please stop", "stop here"},
		{"unknown intent stays generic", "what does your product do?", "share more details"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			newestFirst := []MessageRecord{{From: "u2", Text: tt.theirs}}
			got := svc.ruleReply(newestFirst, "u1")
			if !strings.Contains(got, tt.fragment) {
				t.Errorf("ruleReply(%q) = %q, want fragment %q", tt.theirs, got, tt.fragment)
			}
		})
	}
}

func TestRuleReplySkipsOwnMessages(t *testing.T) {
	svc := NewSuggestService(nil, nil, NewAnalyzeService())

	// Their last message is buried under two of mine.
	newestFirst := []MessageRecord{
		{From: "u1", Text: "Following up on the above"},
		{From: "u1", Text: "Circling back"},
		{From: "u2", Text: "yes let's do it"},
	}
	got := svc.ruleReply(newestFirst, "u1")
	if !strings.Contains(got, "Tuesday or Wednesday") {
		t.Errorf("expected yes-intent reply, got %q", got)
	}
}
