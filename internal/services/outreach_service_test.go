package services

import (
	"context"
	"errors"
	"testing"

	"neuro/internal/models"
)

func TestOutreachSendValidation(t *testing.T) {
	svc := NewOutreachService(nil)

	_, err := svc.Send(context.Background(), "", models.OutreachSendRequest{ToUID: "u2", Body: "hi"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("missing sender: got %v, want ErrUnauthorized", err)
	}

	_, err = svc.Send(context.Background(), "u1", models.OutreachSendRequest{Body: "hi"})
	if !errors.Is(err, ErrMissingRecipient) {
		t.Errorf("missing recipient: got %v, want ErrMissingRecipient", err)
	}
}

func TestOutreachSendUnknownChannel(t *testing.T) {
	svc := NewOutreachService(nil)

	res, err := svc.Send(context.Background(), "u1", models.OutreachSendRequest{
		Channel: "carrier-pigeon",
		ToUID:   "u2",
		Body:    "hello",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OK {
		t.Error("unsupported channel must report ok=false")
	}
}

func TestOutreachPaceHonorsContext(t *testing.T) {
	svc := NewOutreachService(nil)

	// First slot is free, a second immediate send must wait; a cancelled
	// context turns that wait into an error instead of a hang.
	if err := svc.pace(context.Background(), "u1"); err != nil {
		t.Fatalf("first pace: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.pace(ctx, "u1"); err == nil {
		t.Error("expected pace to fail under a cancelled context")
	}
}
