package services

import (
	"context"
	"regexp"
	"testing"

	"neuro/internal/config"
)

func TestSafeEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ana@example.com", "ana@example.com"},
		{"  ana@example.com  ", "ana@example.com"},
		{"", ""},
		{"not-an-email", ""},
		{"missing@dot", ""},
		{"double@@example.com", "double@@example.com"},
	}
	for _, tt := range tests {
		if got := safeEmail(tt.in); got != tt.want {
			t.Errorf("safeEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFallbackMeetURLShape(t *testing.T) {
	pattern := regexp.MustCompile(`^https://meet\.google\.com/[0-9a-f]{3}-[0-9a-f]{3}-[0-9a-f]{4}$`)
	for i := 0; i < 5; i++ {
		if url := fallbackMeetURL(); !pattern.MatchString(url) {
			t.Fatalf("fallback URL %q does not look like a meet link", url)
		}
	}
}

func TestScheduleUnconfiguredFallsBack(t *testing.T) {
	svc := NewMeetService(&config.Config{})
	if svc.Configured() {
		t.Fatal("service without credentials should not report configured")
	}

	ev := svc.Schedule(context.Background(), "Catch up", "2026-03-01T15:00:00Z", 30, []string{"a@b.co"})
	if !ev.OK {
		t.Error("unconfigured fallback should still report ok")
	}
	if ev.MeetURL == "" {
		t.Error("fallback should carry a placeholder meet URL")
	}
	if ev.Note == "" {
		t.Error("fallback should note that the API is not configured")
	}
	if ev.EventID != "" || ev.CalendarID != "" {
		t.Errorf("fallback should not invent event ids, got %q/%q", ev.EventID, ev.CalendarID)
	}
}
