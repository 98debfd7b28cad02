package flow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPFacadeAttachesBearerAndDecodes(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(AnalyzeResult{Sentiment: "positive", Intent: "yes"})
	}))
	defer srv.Close()

	log := NewRunLog(nil)
	f := NewHTTPFacade(srv.URL, func() string { return "tok123" }, log)
	res := f.AnalyzeReply(context.Background(), "sounds good")

	if gotAuth != "Bearer tok123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotPath != "/api/agents/adk/analyze" {
		t.Errorf("path = %q", gotPath)
	}
	if res.Sentiment != "positive" || res.Intent != "yes" {
		t.Errorf("result = %+v", res)
	}
	if log.Len() != 0 {
		t.Errorf("successful call should not log, got %+v", log.Lines())
	}
}

func TestHTTPFacadeOmitsAuthWhenTokenEmpty(t *testing.T) {
	var sawAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization") != ""
		json.NewEncoder(w).Encode(SendResult{OK: true})
	}))
	defer srv.Close()

	f := NewHTTPFacade(srv.URL, func() string { return "" }, NewRunLog(nil))
	res := f.SendOutreach(context.Background(), SendRequest{ToUID: "u1", Body: "hi"})

	if sawAuth {
		t.Error("empty token must send the request unauthenticated")
	}
	if !res.OK {
		t.Errorf("result = %+v", res)
	}
}

func TestHTTPFacadeFallsBackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	log := NewRunLog(nil)
	f := NewHTTPFacade(srv.URL, nil, log)

	tests := []struct {
		name  string
		check func() bool
	}{
		{"analyze", func() bool {
			r := f.AnalyzeReply(context.Background(), "x")
			return r.Sentiment == "neutral" && r.Intent == "unknown"
		}},
		{"dispatch", func() bool {
			return f.DispatchAgent(context.Background(), "a", nil).Result == nil
		}},
		{"meet", func() bool {
			r := f.ScheduleMeet(context.Background(), MeetRequest{})
			return !r.OK && r.MeetURL == ""
		}},
		{"send", func() bool {
			return !f.SendOutreach(context.Background(), SendRequest{}).OK
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check() {
				t.Errorf("%s did not fall back on a 500", tt.name)
			}
		})
	}
	if log.Len() != len(tests) {
		t.Errorf("each failed call should log once, got %d lines", log.Len())
	}
}

func TestHTTPFacadeFallsBackOnUnreachableServer(t *testing.T) {
	log := NewRunLog(nil)
	// Port 1 is never listening.
	f := NewHTTPFacade("http://127.0.0.1:1", nil, log)
	res := f.SendOutreach(context.Background(), SendRequest{ToUID: "u", Body: "x"})

	if res.OK {
		t.Error("unreachable server must yield ok=false")
	}
	if log.Len() != 1 || !strings.Contains(log.Lines()[0].Text, "Send call failed") {
		t.Errorf("expected one failure line, got %+v", log.Lines())
	}
}
