package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// TokenSource supplies the bearer token for facade calls. It is read once per
// call; returning "" sends the request unauthenticated.
type TokenSource func() string

// HTTPFacade talks to a running backend over its public API. The underlying
// client has no timeout: a hung call stalls only the goroutine that made it,
// and cancelling a run never aborts calls already in flight.
type HTTPFacade struct {
	baseURL string
	tokens  TokenSource
	client  *http.Client
	log     *RunLog
}

// NewHTTPFacade builds a facade against baseURL. tokens may be nil for
// unauthenticated use; log receives a line for every failed call.
func NewHTTPFacade(baseURL string, tokens TokenSource, log *RunLog) *HTTPFacade {
	return &HTTPFacade{
		baseURL: baseURL,
		tokens:  tokens,
		client:  &http.Client{},
		log:     log,
	}
}

// AnalyzeReply classifies a reply text, falling back to neutral/unknown.
func (f *HTTPFacade) AnalyzeReply(ctx context.Context, text string) AnalyzeResult {
	var out AnalyzeResult
	if err := f.postJSON(ctx, "/api/agents/adk/analyze", map[string]string{"text": text}, &out); err != nil {
		f.log.Logf("Analyze call failed, treating reply as neutral/unknown: %v", err)
		return fallbackAnalyze()
	}
	if out.Sentiment == "" {
		out.Sentiment = "neutral"
	}
	if out.Intent == "" {
		out.Intent = "unknown"
	}
	return out
}

// DispatchAgent hands a task to the agent runtime, falling back to an empty
// result.
func (f *HTTPFacade) DispatchAgent(ctx context.Context, agent string, payload map[string]any) DispatchResult {
	var out DispatchResult
	body := map[string]any{"agent": agent, "payload": payload}
	if err := f.postJSON(ctx, "/api/agents/a2a/dispatch", body, &out); err != nil {
		f.log.Logf("Agent dispatch failed for %q: %v", agent, err)
		return fallbackDispatch()
	}
	return out
}

// ScheduleMeet books one meeting, falling back to an empty URL.
func (f *HTTPFacade) ScheduleMeet(ctx context.Context, req MeetRequest) MeetResult {
	var out MeetResult
	if err := f.postJSON(ctx, "/api/google/meet", req, &out); err != nil {
		f.log.Logf("Meet call failed: %v", err)
		return fallbackMeet()
	}
	return out
}

// SendOutreach delivers one message, falling back to ok=false.
func (f *HTTPFacade) SendOutreach(ctx context.Context, req SendRequest) SendResult {
	var out SendResult
	if err := f.postJSON(ctx, "/api/agents/outreach/send", req, &out); err != nil {
		f.log.Logf("Send call failed for %s: %v", req.ToUID, err)
		return fallbackSend()
	}
	return out
}

func (f *HTTPFacade) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.tokens != nil {
		if tok := f.tokens(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}
