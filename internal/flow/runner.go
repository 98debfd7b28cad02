package flow

import (
	"context"
	"sync"

	"neuro/internal/models"
)

// Runner executes one flow graph. The graph is compiled to a frozen snapshot
// at construction, so edits to the authored graph never bleed into an active
// run. A Runner is not reentrant: callers serialize Run themselves.
type Runner struct {
	graph  *CompiledGraph
	facade ActionFacade

	mu    sync.Mutex
	token *CancelToken
}

// NewRunner compiles the graph and binds it to a facade.
func NewRunner(g models.FlowGraph, facade ActionFacade) *Runner {
	return &Runner{graph: Compile(g), facade: facade}
}

// Graph exposes the compiled snapshot, mainly for callers that want to
// inspect the start block or loop settings.
func (r *Runner) Graph() *CompiledGraph {
	return r.graph
}

// Run executes the flow against the audience, logging to log, and returns the
// number of completed passes. A fresh cancel token is installed at the start
// of every run, so an earlier Stop never poisons the next Run.
//
// If the graph contains a loop block anywhere, the whole flow repeats up to
// the loop's MaxIterations, sleeping its EveryMins between passes. The ctx is
// handed through to facade calls untouched; Stop never cancels it.
func (r *Runner) Run(ctx context.Context, audience []models.AudiencePerson, log *RunLog) int {
	tok := NewCancelToken()
	r.mu.Lock()
	r.token = tok
	r.mu.Unlock()

	if len(r.graph.Blocks) == 0 {
		log.Logf("No blocks to run.")
		return 0
	}

	start := r.graph.StartBlock()
	exec := NewExecutor(r.facade, log)

	loopCfg, looping := r.graph.FirstLoop()
	if !looping {
		exec.ExecuteFrom(ctx, r.graph, start.ID, audience, tok)
		if tok.IsCancelled() {
			log.Logf("Run cancelled.")
		} else {
			log.Logf("Run finished.")
		}
		return 1
	}

	passes := 0
	for i := 1; i <= loopCfg.MaxIterations; i++ {
		if tok.IsCancelled() {
			log.Logf("Run cancelled.")
			return passes
		}
		log.Logf("Loop pass %d of %d.", i, loopCfg.MaxIterations)
		exec.ExecuteFrom(ctx, r.graph, start.ID, audience, tok)
		passes++

		if i < loopCfg.MaxIterations {
			if !sleepMinutes(tok, loopCfg.EveryMins) {
				log.Logf("Run cancelled.")
				return passes
			}
		}
	}
	log.Logf("Run finished after %d passes.", passes)
	return passes
}

// Stop cancels the active run, if any. Blocks mid-sleep notice within half a
// second; calls already on the wire are left to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.token != nil {
		r.token.Cancel()
	}
}
