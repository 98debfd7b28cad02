package flow

import (
	"context"
	"testing"
	"time"

	"neuro/internal/models"
)

func TestRunnerEmptyGraphLogsAndReturns(t *testing.T) {
	facade := &fakeFacade{}
	log := NewRunLog(nil)
	passes := NewRunner(models.FlowGraph{}, facade).Run(context.Background(), people(3), log)

	if passes != 0 {
		t.Errorf("empty graph completed %d passes, want 0", passes)
	}
	lines := log.Lines()
	if len(lines) != 1 || lines[0].Text != "No blocks to run." {
		t.Fatalf("expected exactly one 'No blocks to run.' line, got %+v", lines)
	}
	if facade.sendCount() != 0 {
		t.Errorf("empty graph must not touch the facade")
	}
}

func TestRunnerLoopHonorsMaxIterations(t *testing.T) {
	g := models.FlowGraph{
		Blocks: []models.Block{
			{ID: "a", Kind: models.BlockKindAudience, Config: map[string]any{"sample": 1}},
			{ID: "m", Kind: models.BlockKindMessage, Config: map[string]any{"body": "ping"}},
			{ID: "l", Kind: models.BlockKindLoop, Config: map[string]any{
				"maxIterations": 3,
				"everyMins":     0.001, // keep the between-pass sleep negligible
			}},
		},
		Edges: []models.Edge{
			{From: "a", To: "m"},
			{From: "m", To: "l"},
		},
	}
	facade := &fakeFacade{}
	passes := NewRunner(g, facade).Run(context.Background(), people(2), NewRunLog(nil))

	if passes != 3 {
		t.Errorf("completed %d passes, want exactly 3", passes)
	}
	if got := facade.sendCount(); got != 3 {
		t.Errorf("one send per pass expected, got %d", got)
	}
}

func TestRunnerStopDuringWaitReturnsQuickly(t *testing.T) {
	g := models.FlowGraph{
		Blocks: []models.Block{
			{ID: "w", Kind: models.BlockKindWait, Config: map[string]any{"amount": 1, "unit": "hours"}},
			{ID: "m", Kind: models.BlockKindMessage, Config: map[string]any{"body": "never"}},
		},
		Edges: []models.Edge{{From: "w", To: "m"}},
	}
	facade := &fakeFacade{}
	r := NewRunner(g, facade)

	done := make(chan struct{})
	started := time.Now()
	go func() {
		r.Run(context.Background(), people(1), NewRunLog(nil))
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	r.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop within one sleep increment")
	}
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Errorf("run took %v to notice Stop", elapsed)
	}
	if facade.sendCount() != 0 {
		t.Errorf("successor ran after cancellation")
	}
}

func TestRunnerFreshTokenPerRun(t *testing.T) {
	g := models.FlowGraph{
		Blocks: []models.Block{
			{ID: "m", Kind: models.BlockKindMessage, Config: map[string]any{"body": "x"}},
		},
	}
	facade := &fakeFacade{}
	r := NewRunner(g, facade)

	// A Stop before (or between) runs must not poison the next run.
	r.Stop()
	r.Run(context.Background(), people(2), NewRunLog(nil))
	r.Stop()
	r.Run(context.Background(), people(2), NewRunLog(nil))

	if got := facade.sendCount(); got != 4 {
		t.Fatalf("expected both runs to execute fully (4 sends), got %d", got)
	}
}

func TestRunnerStartBlockSelection(t *testing.T) {
	tests := []struct {
		name   string
		graph  models.FlowGraph
		wantID string
	}{
		{
			name: "audience block wins even when not first",
			graph: models.FlowGraph{
				Blocks: []models.Block{
					{ID: "m", Kind: models.BlockKindMessage},
					{ID: "a", Kind: models.BlockKindAudience},
				},
			},
			wantID: "a",
		},
		{
			name: "zero-incoming block is next choice",
			graph: models.FlowGraph{
				Blocks: []models.Block{
					{ID: "m2", Kind: models.BlockKindMessage},
					{ID: "m1", Kind: models.BlockKindMessage},
				},
				Edges: []models.Edge{{From: "m2", To: "m1"}},
			},
			wantID: "m2",
		},
		{
			name: "cycles fall back to the first block",
			graph: models.FlowGraph{
				Blocks: []models.Block{
					{ID: "x", Kind: models.BlockKindMessage},
					{ID: "y", Kind: models.BlockKindMessage},
				},
				Edges: []models.Edge{
					{From: "x", To: "y"},
					{From: "y", To: "x"},
				},
			},
			wantID: "x",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := Compile(tt.graph).StartBlock()
			if start == nil {
				t.Fatal("no start block found")
			}
			if start.ID != tt.wantID {
				t.Errorf("start = %q, want %q", start.ID, tt.wantID)
			}
		})
	}
}

func TestRunnerWithoutLoopRunsExactlyOnce(t *testing.T) {
	g := models.FlowGraph{
		Blocks: []models.Block{
			{ID: "m", Kind: models.BlockKindMessage, Config: map[string]any{"body": "once"}},
		},
	}
	facade := &fakeFacade{}
	passes := NewRunner(g, facade).Run(context.Background(), people(1), NewRunLog(nil))

	if passes != 1 {
		t.Errorf("passes = %d, want 1", passes)
	}
	if got := facade.sendCount(); got != 1 {
		t.Errorf("sends = %d, want 1", got)
	}
}
