package flow

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"neuro/internal/models"
)

// fakeFacade records every call and lets tests inject per-call outcomes.
type fakeFacade struct {
	mu         sync.Mutex
	sends      []SendRequest
	meets      []MeetRequest
	dispatches []string
	analyzed   []string

	sendOK    func(req SendRequest) bool
	analyzeFn func(text string) AnalyzeResult
	meetFn    func(req MeetRequest) MeetResult
}

func (f *fakeFacade) AnalyzeReply(ctx context.Context, text string) AnalyzeResult {
	f.mu.Lock()
	f.analyzed = append(f.analyzed, text)
	fn := f.analyzeFn
	f.mu.Unlock()
	if fn != nil {
		return fn(text)
	}
	return AnalyzeResult{Sentiment: "neutral", Intent: "unknown"}
}

func (f *fakeFacade) DispatchAgent(ctx context.Context, agent string, payload map[string]any) DispatchResult {
	f.mu.Lock()
	f.dispatches = append(f.dispatches, agent)
	f.mu.Unlock()
	return DispatchResult{Result: []byte(`{"status":"accepted"}`)}
}

func (f *fakeFacade) ScheduleMeet(ctx context.Context, req MeetRequest) MeetResult {
	f.mu.Lock()
	f.meets = append(f.meets, req)
	fn := f.meetFn
	f.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return MeetResult{OK: true, MeetURL: "https://meet.google.com/abc-defg-hij"}
}

func (f *fakeFacade) SendOutreach(ctx context.Context, req SendRequest) SendResult {
	f.mu.Lock()
	f.sends = append(f.sends, req)
	ok := true
	if f.sendOK != nil {
		ok = f.sendOK(req)
	}
	f.mu.Unlock()
	return SendResult{OK: ok}
}

func (f *fakeFacade) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func (f *fakeFacade) sendsCopy() []SendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SendRequest, len(f.sends))
	copy(out, f.sends)
	return out
}

func people(n int) []models.AudiencePerson {
	out := make([]models.AudiencePerson, 0, n)
	for i := 0; i < n; i++ {
		id := strconv.Itoa(i + 1)
		out = append(out, models.AudiencePerson{
			UID:      "p" + id,
			FullName: "Person " + id,
			Email:    "p" + id + "@example.com",
		})
	}
	return out
}

// waitFor polls cond until it holds or the timeout expires. Used for
// fire-and-forget branches that outlive the run.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestAudienceSampleLimitsDownstream(t *testing.T) {
	g := models.FlowGraph{
		Blocks: []models.Block{
			{ID: "a", Kind: models.BlockKindAudience, Config: map[string]any{"sample": 3}},
			{ID: "m", Kind: models.BlockKindMessage, Config: map[string]any{"body": "hello"}},
		},
		Edges: []models.Edge{{From: "a", To: "m"}},
	}
	facade := &fakeFacade{}
	NewRunner(g, facade).Run(context.Background(), people(10), NewRunLog(nil))

	if got := facade.sendCount(); got != 3 {
		t.Fatalf("expected 3 sends after sampling, got %d", got)
	}
}

func TestWaitMinutesConversion(t *testing.T) {
	tests := []struct {
		name string
		cfg  WaitConfig
		want float64
	}{
		{name: "two hours", cfg: WaitConfig{Amount: 2, Unit: "hours"}, want: 120},
		{name: "one day", cfg: WaitConfig{Amount: 1, Unit: "days"}, want: 1440},
		{name: "unknown unit counts as hours", cfg: WaitConfig{Amount: 3, Unit: "weeks"}, want: 180},
		{name: "fractional hours", cfg: WaitConfig{Amount: 0.5, Unit: "hours"}, want: 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := waitMinutes(tt.cfg); got != tt.want {
				t.Errorf("waitMinutes(%+v) = %v, want %v", tt.cfg, got, tt.want)
			}
		})
	}
}

func TestMessageSubstitutesAllNameMarkers(t *testing.T) {
	g := models.FlowGraph{
		Blocks: []models.Block{
			{ID: "m", Kind: models.BlockKindMessage, Config: map[string]any{
				"subject": "For {{name}}",
				"body":    "Hi {{name}}, great to meet you {{name}}!",
			}},
		},
	}
	audience := []models.AudiencePerson{
		{UID: "u1", FullName: "Ada Lovelace"},
		{UID: "u2"}, // no name on file
	}
	facade := &fakeFacade{}
	NewRunner(g, facade).Run(context.Background(), audience, NewRunLog(nil))

	sends := facade.sendsCopy()
	if len(sends) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(sends))
	}
	for _, s := range sends {
		if strings.Contains(s.Subject, "{{name}}") || strings.Contains(s.Body, "{{name}}") {
			t.Errorf("unsubstituted marker left in send to %s: %q / %q", s.ToUID, s.Subject, s.Body)
		}
		switch s.ToUID {
		case "u1":
			if s.Body != "Hi Ada Lovelace, great to meet you Ada Lovelace!" {
				t.Errorf("u1 body = %q", s.Body)
			}
		case "u2":
			if s.Body != "Hi there, great to meet you there!" {
				t.Errorf("u2 body = %q, want the 'there' fallback", s.Body)
			}
		}
	}
}

func TestSendFailureDoesNotStopOthersOrRecursion(t *testing.T) {
	g := models.FlowGraph{
		Blocks: []models.Block{
			{ID: "m1", Kind: models.BlockKindMessage, Config: map[string]any{"body": "first"}},
			{ID: "m2", Kind: models.BlockKindMessage, Config: map[string]any{"body": "second"}},
		},
		Edges: []models.Edge{{From: "m1", To: "m2"}},
	}
	facade := &fakeFacade{
		sendOK: func(req SendRequest) bool {
			return !(req.Body == "first" && req.ToUID == "p2")
		},
	}
	NewRunner(g, facade).Run(context.Background(), people(5), NewRunLog(nil))

	var first, second int
	for _, s := range facade.sendsCopy() {
		switch s.Body {
		case "first":
			first++
		case "second":
			second++
		}
	}
	if first != 5 {
		t.Errorf("first block attempted %d sends, want all 5", first)
	}
	if second != 5 {
		t.Errorf("second block saw %d sends, want 5 (one recursion with the full audience)", second)
	}
}

func TestBranchYesNoRoutesEveryoneToDefault(t *testing.T) {
	g := models.FlowGraph{
		Blocks: []models.Block{
			{ID: "b", Kind: models.BlockKindBranch, Config: map[string]any{"mode": "yesno"}},
			{ID: "yes", Kind: models.BlockKindMessage, Config: map[string]any{"body": "yes"}},
			{ID: "no", Kind: models.BlockKindMessage, Config: map[string]any{"body": "no"}},
		},
		Edges: []models.Edge{
			{From: "b", To: "yes", Label: "yes"},
			{From: "b", To: "no", Label: "no"},
		},
	}
	facade := &fakeFacade{}
	log := NewRunLog(nil)
	NewRunner(g, facade).Run(context.Background(), people(4), log)

	if got := facade.sendCount(); got != 0 {
		t.Fatalf("no successor should run without a default edge, got %d sends", got)
	}
	var sawDefault bool
	for _, line := range log.Lines() {
		if strings.Contains(line.Text, "default=4") {
			sawDefault = true
		}
	}
	if !sawDefault {
		t.Errorf("expected the branch log to show all 4 people in the default group: %+v", log.Lines())
	}
}

func TestBranchKeywordFirstMatchingCaseWins(t *testing.T) {
	g := models.FlowGraph{
		Blocks: []models.Block{
			{ID: "b", Kind: models.BlockKindBranch, Config: map[string]any{
				"mode": "keyword",
				"cases": []any{
					map[string]any{"label": "always", "pattern": ".*"},
					map[string]any{"label": "never", "pattern": "xyzzy"},
				},
			}},
			{ID: "m1", Kind: models.BlockKindMessage, Config: map[string]any{"body": "always"}},
			{ID: "m2", Kind: models.BlockKindMessage, Config: map[string]any{"body": "never"}},
		},
		Edges: []models.Edge{
			{From: "b", To: "m1", Label: "always"},
			{From: "b", To: "m2", Label: "never"},
		},
	}
	facade := &fakeFacade{}
	NewRunner(g, facade).Run(context.Background(), people(3), NewRunLog(nil))

	var always, never int
	for _, s := range facade.sendsCopy() {
		switch s.Body {
		case "always":
			always++
		case "never":
			never++
		}
	}
	if always != 3 || never != 0 {
		t.Errorf("got always=%d never=%d, want 3/0", always, never)
	}
}

func TestBranchLLMRoutesByIntent(t *testing.T) {
	g := models.FlowGraph{
		Blocks: []models.Block{
			{ID: "b", Kind: models.BlockKindBranch, Config: map[string]any{"mode": "llm"}},
			{ID: "m", Kind: models.BlockKindMessage, Config: map[string]any{"body": "followup"}},
		},
		Edges: []models.Edge{{From: "b", To: "m", Label: "yes"}},
	}
	facade := &fakeFacade{
		analyzeFn: func(string) AnalyzeResult {
			return AnalyzeResult{Sentiment: "positive", Intent: "yes"}
		},
	}
	NewRunner(g, facade).Run(context.Background(), people(4), NewRunLog(nil))

	facade.mu.Lock()
	analyzed := len(facade.analyzed)
	facade.mu.Unlock()
	if analyzed != 4 {
		t.Errorf("analyze called %d times, want once per member", analyzed)
	}
	if got := facade.sendCount(); got != 4 {
		t.Errorf("yes edge should carry all 4 members, got %d sends", got)
	}
}

func TestMeetManualStartSkipsBlankEmailsAndRecurses(t *testing.T) {
	g := models.FlowGraph{
		Blocks: []models.Block{
			{ID: "meet", Kind: models.BlockKindMeet, Config: map[string]any{
				"title":      "Kickoff",
				"when":       "manual",
				"startAtISO": "2031-01-02T10:00:00Z",
			}},
			{ID: "m", Kind: models.BlockKindMessage, Config: map[string]any{"body": "after"}},
		},
		Edges: []models.Edge{{From: "meet", To: "m"}},
	}
	audience := []models.AudiencePerson{
		{UID: "u1", FullName: "One", Email: "one@example.com"},
		{UID: "u2", FullName: "Two"},
		{UID: "u3", FullName: "Three", Email: "three@example.com"},
	}
	facade := &fakeFacade{
		meetFn: func(MeetRequest) MeetResult { return MeetResult{} }, // scheduling fails
	}
	NewRunner(g, facade).Run(context.Background(), audience, NewRunLog(nil))

	facade.mu.Lock()
	meets := append([]MeetRequest(nil), facade.meets...)
	facade.mu.Unlock()
	if len(meets) != 1 {
		t.Fatalf("expected exactly one meet call, got %d", len(meets))
	}
	if meets[0].StartAtISO != "2031-01-02T10:00:00Z" {
		t.Errorf("manual start not honored: %q", meets[0].StartAtISO)
	}
	if len(meets[0].Attendees) != 2 {
		t.Errorf("blank emails should be dropped, got attendees %v", meets[0].Attendees)
	}
	if got := facade.sendCount(); got != 3 {
		t.Errorf("flow must continue past a failed meet with the full audience, got %d sends", got)
	}
}

func TestMeetAutoStartLandsADayOut(t *testing.T) {
	g := models.FlowGraph{
		Blocks: []models.Block{
			{ID: "meet", Kind: models.BlockKindMeet, Config: map[string]any{}},
		},
	}
	facade := &fakeFacade{}
	NewRunner(g, facade).Run(context.Background(), people(1), NewRunLog(nil))

	facade.mu.Lock()
	defer facade.mu.Unlock()
	if len(facade.meets) != 1 {
		t.Fatalf("expected one meet call, got %d", len(facade.meets))
	}
	start, err := time.Parse(time.RFC3339, facade.meets[0].StartAtISO)
	if err != nil {
		t.Fatalf("auto start is not RFC3339: %v", err)
	}
	until := time.Until(start)
	if until < 23*time.Hour || until > 25*time.Hour {
		t.Errorf("auto start should be ~24h out, got %v", until)
	}
	if facade.meets[0].Title != "Intro chat" {
		t.Errorf("default title = %q", facade.meets[0].Title)
	}
}

func TestParallelFansOutWithoutBarrier(t *testing.T) {
	g := models.FlowGraph{
		Blocks: []models.Block{
			{ID: "p", Kind: models.BlockKindParallel},
			{ID: "m1", Kind: models.BlockKindMessage, Config: map[string]any{"body": "left"}},
			{ID: "m2", Kind: models.BlockKindMessage, Config: map[string]any{"body": "right"}},
		},
		Edges: []models.Edge{
			{From: "p", To: "m1"},
			{From: "p", To: "m2"},
		},
	}
	facade := &fakeFacade{}
	NewRunner(g, facade).Run(context.Background(), people(2), NewRunLog(nil))

	// The run may return before the branches land; they finish on their own.
	waitFor(t, 2*time.Second, func() bool { return facade.sendCount() == 4 })
}

func TestAgentDispatchesPerMemberThenRecursesOnce(t *testing.T) {
	g := models.FlowGraph{
		Blocks: []models.Block{
			{ID: "ag", Kind: models.BlockKindAgent, Config: map[string]any{"agent": "closer", "goal": "book a call"}},
			{ID: "m", Kind: models.BlockKindMessage, Config: map[string]any{"body": "after"}},
		},
		Edges: []models.Edge{{From: "ag", To: "m"}},
	}
	facade := &fakeFacade{}
	NewRunner(g, facade).Run(context.Background(), people(3), NewRunLog(nil))

	facade.mu.Lock()
	dispatched := len(facade.dispatches)
	agent := ""
	if dispatched > 0 {
		agent = facade.dispatches[0]
	}
	facade.mu.Unlock()
	if dispatched != 3 {
		t.Errorf("dispatched %d tasks, want one per member", dispatched)
	}
	if agent != "closer" {
		t.Errorf("agent name = %q", agent)
	}
	if got := facade.sendCount(); got != 3 {
		t.Errorf("successor ran with %d sends, want 3 from a single recursion", got)
	}
}

func TestDanglingEdgesAreSkippedSilently(t *testing.T) {
	g := models.FlowGraph{
		Blocks: []models.Block{
			{ID: "m", Kind: models.BlockKindMessage, Config: map[string]any{"body": "x"}},
		},
		Edges: []models.Edge{
			{From: "m", To: "ghost"},
			{From: "ghost", To: "m"},
		},
	}
	facade := &fakeFacade{}
	NewRunner(g, facade).Run(context.Background(), people(1), NewRunLog(nil))

	if got := facade.sendCount(); got != 1 {
		t.Fatalf("expected the one real block to run once, got %d sends", got)
	}
}

func TestCompileAppliesDefaultsAndClamps(t *testing.T) {
	if got := decodeAudience(nil).Sample; got != 50 {
		t.Errorf("audience sample default = %d, want 50", got)
	}
	if got := decodeAudience(map[string]any{"sample": 0}).Sample; got != 1 {
		t.Errorf("audience sample floor = %d, want 1", got)
	}
	if got := decodeWait(nil); got.Amount != 1 || got.Unit != "hours" {
		t.Errorf("wait defaults = %+v", got)
	}
	if got := decodeLoop(nil); got.EveryMins != 10 || got.MaxIterations != 100 {
		t.Errorf("loop defaults = %+v", got)
	}
	if got := decodeLoop(map[string]any{"maxIterations": 5000}).MaxIterations; got != 100 {
		t.Errorf("loop ceiling = %d, want 100", got)
	}
	if got := decodeMessage(nil).Channel; got != "dm" {
		t.Errorf("message channel default = %q, want dm", got)
	}
	if got := decodeBranch(nil).Mode; got != "yesno" {
		t.Errorf("branch mode default = %q, want yesno", got)
	}
	if got := decodeMeet(nil); got.Title != "Intro chat" || got.DurationMins != 30 {
		t.Errorf("meet defaults = %+v", got)
	}
	if got := decodeAgent(nil).Agent; got != "outreach-assistant" {
		t.Errorf("agent default = %q", got)
	}
}

func TestCompileSnapshotsTheGraph(t *testing.T) {
	cfg := map[string]any{"sample": 2}
	g := models.FlowGraph{
		Blocks: []models.Block{
			{ID: "a", Kind: models.BlockKindAudience, Config: cfg},
			{ID: "m", Kind: models.BlockKindMessage, Config: map[string]any{"body": "x"}},
		},
		Edges: []models.Edge{{From: "a", To: "m"}},
	}
	facade := &fakeFacade{}
	r := NewRunner(g, facade)

	// Mutate the source after compilation; the run must not notice.
	cfg["sample"] = 5
	g.Edges[0].To = "ghost"
	g.Blocks = g.Blocks[:0]

	r.Run(context.Background(), people(5), NewRunLog(nil))
	if got := facade.sendCount(); got != 2 {
		t.Fatalf("post-compile edits leaked into the run: %d sends, want 2", got)
	}
}
