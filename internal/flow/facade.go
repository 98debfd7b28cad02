package flow

import (
	"context"
	"encoding/json"
)

// AnalyzeResult classifies one reply text.
type AnalyzeResult struct {
	Sentiment string `json:"sentiment"`
	Intent    string `json:"intent"`
}

// DispatchResult is whatever the agent runtime returned, untouched.
type DispatchResult struct {
	Result json.RawMessage `json:"result"`
}

// MeetRequest asks for one calendar event with a video call link.
type MeetRequest struct {
	Title        string   `json:"title"`
	StartAtISO   string   `json:"startAtISO"`
	DurationMins int      `json:"durationMins"`
	Attendees    []string `json:"attendees"`
}

// MeetResult reports the scheduled meeting, if any.
type MeetResult struct {
	OK         bool   `json:"ok"`
	MeetURL    string `json:"meetUrl"`
	CalendarID string `json:"calendarId,omitempty"`
	EventID    string `json:"eventId,omitempty"`
	Note       string `json:"note,omitempty"`
}

// SendRequest delivers one outreach message to one person.
type SendRequest struct {
	Channel string `json:"channel"`
	ToUID   string `json:"toUid"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

// SendResult reports whether the message went out.
type SendResult struct {
	OK bool `json:"ok"`
}

// ActionFacade is the engine's only gateway to the outside world. Methods do
// not return errors: a failure is logged to the run and collapses to the
// kind's fallback value, so a misbehaving backend can never crash a run.
type ActionFacade interface {
	AnalyzeReply(ctx context.Context, text string) AnalyzeResult
	DispatchAgent(ctx context.Context, agent string, payload map[string]any) DispatchResult
	ScheduleMeet(ctx context.Context, req MeetRequest) MeetResult
	SendOutreach(ctx context.Context, req SendRequest) SendResult
}

func fallbackAnalyze() AnalyzeResult {
	return AnalyzeResult{Sentiment: "neutral", Intent: "unknown"}
}

func fallbackDispatch() DispatchResult {
	return DispatchResult{}
}

func fallbackMeet() MeetResult {
	return MeetResult{}
}

func fallbackSend() SendResult {
	return SendResult{}
}
