package models

import "encoding/json"

// AnalyzeTextRequest is the POST body of the reply-analysis endpoint.
type AnalyzeTextRequest struct {
	Text string `json:"text"`
}

// AnalyzeTextResponse classifies one reply text.
type AnalyzeTextResponse struct {
	Sentiment string `json:"sentiment"`
	Intent    string `json:"intent"`
}

// DispatchAgentRequest hands a task to a named agent.
type DispatchAgentRequest struct {
	Agent   string         `json:"agent"`
	Payload map[string]any `json:"payload,omitempty"`
}

// DispatchAgentResponse wraps whatever the dispatcher returned.
type DispatchAgentResponse struct {
	Result json.RawMessage `json:"result"`
}

// MeetScheduleRequest asks for one calendar event with a video call link.
type MeetScheduleRequest struct {
	Title        string   `json:"title"`
	StartAtISO   string   `json:"startAtISO"`
	DurationMins int      `json:"durationMins"`
	Attendees    []string `json:"attendees,omitempty"`
}

// OutreachSendRequest delivers one outreach message to one member.
type OutreachSendRequest struct {
	Channel string `json:"channel"`
	ToUID   string `json:"toUid"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

// OutreachSendResult reports whether the message went out.
type OutreachSendResult struct {
	OK bool `json:"ok"`
}
