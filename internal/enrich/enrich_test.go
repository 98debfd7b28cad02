package enrich

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/temoto/robotstxt"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>Building Data Pipelines</title></head>
<body>
<main>
<article>
<h1>Building Data Pipelines</h1>
<p>Over the last year our team moved every batch job onto Kubernetes and
rewrote the ingestion layer from scratch. The orchestration story got much
simpler once we stopped pretending cron was a scheduler.</p>
<p>The pipeline pulls events from Postgres replicas, normalizes them with a
small set of pure functions, and lands them in object storage partitioned
by day. Nothing exotic about any of it, which is exactly the point.</p>
<p>We also spent a quarter on observability. Structured logs and a handful
of well chosen metrics caught more regressions than any dashboard we had
built in the years before.</p>
<p>If you are starting from zero, resist the urge to adopt a workflow
engine on day one. A queue, a worker pool, and boring retries will carry
you surprisingly far.</p>
</article>
</main>
</body>
</html>`

func newTestService() *Service {
	s := New("TestBot/1.0")
	s.allowLoopback = true
	s.log.SetOutput(io.Discard)
	return s
}

func TestVetRejectsNonPublicTargets(t *testing.T) {
	s := New("TestBot/1.0")
	s.log.SetOutput(io.Discard)

	bad := []string{
		"ftp://example.com/file",
		"https://localhost/admin",
		"https://db.localhost/",
		"http://127.0.0.1/secrets",
		"http://[::1]:8080/",
		"http://10.0.0.8/",
		"http://192.168.1.5/router",
		"http://169.254.169.254/latest/meta-data",
		"http://",
	}
	for _, u := range bad {
		if _, err := s.vet(u); err == nil {
			t.Errorf("vet(%q) accepted a non-public target", u)
		}
	}

	if _, err := s.vet(" https://example.com/about "); err != nil {
		t.Errorf("vet rejected a public URL: %v", err)
	}
}

func TestPageTextExtractsAndCaches(t *testing.T) {
	var pageHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		pageHits.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, samplePage)
	}))
	defer srv.Close()

	s := newTestService()
	text, err := s.PageText(context.Background(), "u1", srv.URL+"/post")
	if err != nil {
		t.Fatalf("PageText: %v", err)
	}
	low := strings.ToLower(text)
	for _, want := range []string{"kubernetes", "postgres", "pipeline"} {
		if !strings.Contains(low, want) {
			t.Errorf("extracted text missing %q", want)
		}
	}
	if strings.Contains(low, "<p>") {
		t.Error("extracted text still contains markup")
	}

	again, err := s.PageText(context.Background(), "u1", srv.URL+"/post")
	if err != nil {
		t.Fatalf("PageText (cached): %v", err)
	}
	if again != text {
		t.Error("cached result differs from the first fetch")
	}
	if got := pageHits.Load(); got != 1 {
		t.Errorf("page fetched %d times, second call should come from cache", got)
	}
}

func TestPageTextHonorsRobots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fmt.Fprint(w, "User-agent: *\nDisallow: /private/\n")
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, samplePage)
	}))
	defer srv.Close()

	s := newTestService()
	if _, err := s.PageText(context.Background(), "u1", srv.URL+"/private/notes"); !errors.Is(err, ErrDisallowed) {
		t.Fatalf("err = %v, want ErrDisallowed", err)
	}
	if _, err := s.PageText(context.Background(), "u1", srv.URL+"/blog"); err != nil {
		t.Fatalf("allowed path failed: %v", err)
	}
}

func TestPageTextRejectsEmptyPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body></body></html>")
	}))
	defer srv.Close()

	s := newTestService()
	if _, err := s.PageText(context.Background(), "u1", srv.URL+"/empty"); err == nil {
		t.Fatal("expected an error for a page with no content")
	}
}

func TestFetchEnforcesCapsAndContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/big":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, strings.Repeat("x", 256))
		case "/pdf":
			w.Header().Set("Content-Type", "application/pdf")
			fmt.Fprint(w, "%PDF-1.4")
		default:
			w.Header().Set("Content-Type", "text/plain")
			fmt.Fprint(w, "hello")
		}
	}))
	defer srv.Close()

	c := NewClient("TestBot/1.0", 1, 64)

	if _, err := c.Fetch(context.Background(), srv.URL+"/big"); err == nil {
		t.Error("oversized body should be rejected")
	}
	if _, err := c.Fetch(context.Background(), srv.URL+"/pdf"); err == nil {
		t.Error("non-text content type should be rejected")
	}
	body, err := c.Fetch(context.Background(), srv.URL+"/ok")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(body) != "hello" {
		t.Errorf("body = %q", body)
	}
}

func TestPacerClampsHostRates(t *testing.T) {
	p := NewPacer(10, 5)

	slow := p.hostLimiter("slow.example.com", 30*time.Second)
	if got := float64(slow.Limit()); got != 0.2 {
		t.Errorf("slow host rate = %v, want 0.2", got)
	}
	fast := p.hostLimiter("fast.example.com", 50*time.Millisecond)
	if got := float64(fast.Limit()); got != 5.0 {
		t.Errorf("fast host rate = %v, want 5.0", got)
	}
	if p.hostLimiter("slow.example.com", 1*time.Second) != slow {
		t.Error("host limiter must be reused across calls")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Wait(ctx, "u1", "slow.example.com", 0); err == nil {
		t.Error("Wait must respect context cancellation")
	}
}

func TestPauseForClampsCrawlDelay(t *testing.T) {
	tests := []struct {
		name   string
		robots string
		want   time.Duration
	}{
		{"unset", "User-agent: *\nDisallow:\n", defaultPause},
		{"three seconds", "User-agent: *\nCrawl-delay: 3\n", 3 * time.Second},
		{"absurd", "User-agent: *\nCrawl-delay: 900\n", maxPause},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := robotstxt.FromBytes([]byte(tt.robots))
			if err != nil {
				t.Fatalf("FromBytes: %v", err)
			}
			if got := pauseFor(data.FindGroup("TestBot/1.0")); got != tt.want {
				t.Errorf("pauseFor = %v, want %v", got, tt.want)
			}
		})
	}
}
