package services

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"neuro/internal/models"
)

// outreachSendGap spaces deliveries from one sender so an audience fan-out
// drips out instead of bursting.
const outreachSendGap = 250 * time.Millisecond

// OutreachService delivers campaign messages over a named channel. Only the
// in-app "dm" channel is wired up; anything else reports a failed send.
type OutreachService struct {
	messages *MessageService
	pacers   sync.Map // sender uid -> *rate.Limiter
}

// NewOutreachService creates a new outreach service
func NewOutreachService(messages *MessageService) *OutreachService {
	return &OutreachService{messages: messages}
}

// Send delivers one outreach message from fromUID. Unknown channels come back
// as ok=false rather than an error so campaign fan-outs keep going.
func (s *OutreachService) Send(ctx context.Context, fromUID string, req models.OutreachSendRequest) (*models.OutreachSendResult, error) {
	fromUID = strings.TrimSpace(fromUID)
	if fromUID == "" {
		return nil, ErrUnauthorized
	}
	if strings.TrimSpace(req.ToUID) == "" {
		return nil, ErrMissingRecipient
	}

	channel := strings.ToLower(strings.TrimSpace(req.Channel))
	if channel == "" {
		channel = "dm"
	}
	if channel != "dm" {
		log.Printf("⚠️ [OUTREACH] Unsupported channel %q requested by %s", channel, fromUID)
		return &models.OutreachSendResult{OK: false}, nil
	}

	if err := s.pace(ctx, fromUID); err != nil {
		return nil, err
	}

	text := req.Body
	if subject := strings.TrimSpace(req.Subject); subject != "" {
		// Messages are stored as markdown, a bold line reads as the subject.
		text = "**" + subject + "**\n\n" + req.Body
	}

	if _, _, err := s.messages.Send(fromUID, req.ToUID, text); err != nil {
		return nil, err
	}
	log.Printf("📨 [OUTREACH] %s -> %s via %s", fromUID, req.ToUID, channel)
	return &models.OutreachSendResult{OK: true}, nil
}

// pace blocks until the sender's next delivery slot, or the context ends.
func (s *OutreachService) pace(ctx context.Context, uid string) error {
	limiter, _ := s.pacers.LoadOrStore(uid, rate.NewLimiter(rate.Every(outreachSendGap), 1))
	return limiter.(*rate.Limiter).Wait(ctx)
}
