package flow

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"neuro/internal/models"
)

var (
	yesPattern = regexp.MustCompile(`(?i)yes|interested`)
	noPattern  = regexp.MustCompile(`(?i)no|not`)
)

// Executor walks a compiled flow graph. Each block acts on the audience it
// was handed, then recurses into its successors; parallel blocks leave their
// subtrees running with no fan-in barrier.
type Executor struct {
	facade ActionFacade
	log    *RunLog
}

// NewExecutor wires an executor to its facade and run log.
func NewExecutor(facade ActionFacade, log *RunLog) *Executor {
	return &Executor{facade: facade, log: log}
}

// ExecuteFrom runs the block with the given id against audience, then its
// subtree. Unknown ids (dangling edges) are skipped silently; a cancelled
// token returns before the block does anything.
func (e *Executor) ExecuteFrom(ctx context.Context, g *CompiledGraph, id string, audience []models.AudiencePerson, tok *CancelToken) {
	if tok.IsCancelled() {
		return
	}
	b := g.ByID[id]
	if b == nil {
		return
	}

	switch b.Kind {
	case models.BlockKindAudience:
		e.runAudience(ctx, g, b, audience, tok)
	case models.BlockKindMessage:
		e.runMessage(ctx, g, b, audience, tok)
	case models.BlockKindWait:
		e.runWait(ctx, g, b, audience, tok)
	case models.BlockKindBranch:
		e.runBranch(ctx, g, b, audience, tok)
	case models.BlockKindMeet:
		e.runMeet(ctx, g, b, audience, tok)
	case models.BlockKindParallel:
		e.runParallel(ctx, g, b, audience, tok)
	case models.BlockKindLoop:
		e.log.Logf("Loop checkpoint passed.")
		e.recurseAll(ctx, g, b, audience, tok)
	case models.BlockKindAgent:
		e.runAgent(ctx, g, b, audience, tok)
	case models.BlockKindEnd:
		e.log.Logf("Flow reached its end block.")
	default:
		e.log.Logf("Skipping block %q: unsupported kind %q.", b.ID, b.Kind)
	}
}

// recurseAll visits every successor in edge declaration order, each subtree
// completing before the next starts.
func (e *Executor) recurseAll(ctx context.Context, g *CompiledGraph, b *CompiledBlock, audience []models.AudiencePerson, tok *CancelToken) {
	for _, edge := range g.Out[b.ID] {
		e.ExecuteFrom(ctx, g, edge.To, audience, tok)
	}
}

func (e *Executor) runAudience(ctx context.Context, g *CompiledGraph, b *CompiledBlock, audience []models.AudiencePerson, tok *CancelToken) {
	n := b.Audience.Sample
	if n > len(audience) {
		n = len(audience)
	}
	selected := audience[:n]
	e.log.Logf("Audience: %d of %d people selected.", len(selected), len(audience))
	e.recurseAll(ctx, g, b, selected, tok)
}

func (e *Executor) runMessage(ctx context.Context, g *CompiledGraph, b *CompiledBlock, audience []models.AudiencePerson, tok *CancelToken) {
	cfg := b.Message
	e.log.Logf("Message: sending to %d people via %s.", len(audience), cfg.Channel)

	var sent, failed atomic.Int32
	var wg sync.WaitGroup
	for _, person := range audience {
		wg.Add(1)
		go func(p models.AudiencePerson) {
			defer wg.Done()
			name := p.FullName
			if name == "" {
				name = "there"
			}
			res := e.facade.SendOutreach(ctx, SendRequest{
				Channel: cfg.Channel,
				ToUID:   p.UID,
				Subject: substituteName(cfg.Subject, name),
				Body:    substituteName(cfg.Body, name),
			})
			if res.OK {
				sent.Add(1)
				e.log.Logf("Message sent to %s.", name)
			} else {
				failed.Add(1)
				e.log.Logf("Message to %s failed.", name)
			}
		}(person)
	}
	wg.Wait()

	e.log.Logf("Message: %d sent, %d failed.", sent.Load(), failed.Load())
	// The full audience continues regardless of individual send outcomes.
	e.recurseAll(ctx, g, b, audience, tok)
}

func (e *Executor) runWait(ctx context.Context, g *CompiledGraph, b *CompiledBlock, audience []models.AudiencePerson, tok *CancelToken) {
	mins := waitMinutes(b.Wait)
	e.log.Logf("Wait: pausing for %s.", formatMinutes(mins))
	if !sleepMinutes(tok, mins) {
		e.log.Logf("Wait cancelled.")
		return
	}
	e.recurseAll(ctx, g, b, audience, tok)
}

// waitMinutes converts a wait config to minutes. Only "days" changes the
// multiplier; every other unit counts as hours.
func waitMinutes(cfg WaitConfig) float64 {
	if strings.EqualFold(cfg.Unit, "days") {
		return cfg.Amount * 24 * 60
	}
	return cfg.Amount * 60
}

func (e *Executor) runBranch(ctx context.Context, g *CompiledGraph, b *CompiledBlock, audience []models.AudiencePerson, tok *CancelToken) {
	groups := e.partition(ctx, b.Branch, audience)

	parts := make([]string, 0, len(groups))
	for label, members := range groups {
		parts = append(parts, fmt.Sprintf("%s=%d", label, len(members)))
	}
	sort.Strings(parts)
	e.log.Logf("Branch (%s): %s.", b.Branch.Mode, strings.Join(parts, " "))

	for _, edge := range g.Out[b.ID] {
		group := groups[edge.Label]
		if len(group) == 0 {
			continue
		}
		e.log.Logf("Branch: following %q with %d people.", edge.Label, len(group))
		e.ExecuteFrom(ctx, g, edge.To, group, tok)
	}
}

// partition splits the audience into labeled groups according to the branch
// mode.
//
// TODO: classify against the member's latest captured reply once reply
// capture lands; until then every member is classified against an empty
// string, so keyword and yesno modes route everyone to "default".
func (e *Executor) partition(ctx context.Context, cfg BranchConfig, audience []models.AudiencePerson) map[string][]models.AudiencePerson {
	groups := make(map[string][]models.AudiencePerson)
	const reply = ""

	switch cfg.Mode {
	case "keyword":
		for _, p := range audience {
			label := "default"
			for _, c := range cfg.Cases {
				if c.re != nil && c.re.MatchString(reply) {
					label = c.Label
					break
				}
			}
			groups[label] = append(groups[label], p)
		}
	case "llm":
		for _, p := range audience {
			res := e.facade.AnalyzeReply(ctx, reply)
			label := res.Intent
			if label == "" {
				label = "unknown"
			}
			groups[label] = append(groups[label], p)
		}
	default: // yesno
		label := "default"
		if yesPattern.MatchString(reply) {
			label = "yes"
		} else if noPattern.MatchString(reply) {
			label = "no"
		}
		for _, p := range audience {
			groups[label] = append(groups[label], p)
		}
	}
	return groups
}

func (e *Executor) runMeet(ctx context.Context, g *CompiledGraph, b *CompiledBlock, audience []models.AudiencePerson, tok *CancelToken) {
	cfg := b.Meet

	start := cfg.StartAtISO
	if cfg.When != "manual" || start == "" {
		start = time.Now().Add(24 * time.Hour).Format(time.RFC3339)
	}

	emails := make([]string, 0, len(audience))
	for _, p := range audience {
		if p.Email != "" {
			emails = append(emails, p.Email)
		}
	}

	res := e.facade.ScheduleMeet(ctx, MeetRequest{
		Title:        cfg.Title,
		StartAtISO:   start,
		DurationMins: cfg.DurationMins,
		Attendees:    emails,
	})
	if res.MeetURL != "" {
		e.log.Logf("Meet %q scheduled for %s: %s", cfg.Title, start, res.MeetURL)
	} else {
		e.log.Logf("Meet %q could not be scheduled.", cfg.Title)
	}

	// Scheduling failures do not stop the flow.
	e.recurseAll(ctx, g, b, audience, tok)
}

func (e *Executor) runParallel(ctx context.Context, g *CompiledGraph, b *CompiledBlock, audience []models.AudiencePerson, tok *CancelToken) {
	edges := g.Out[b.ID]
	e.log.Logf("Parallel: fanning out into %d branches.", len(edges))
	for _, edge := range edges {
		go e.ExecuteFrom(ctx, g, edge.To, audience, tok)
	}
	// No barrier: the branches finish on their own time.
}

func (e *Executor) runAgent(ctx context.Context, g *CompiledGraph, b *CompiledBlock, audience []models.AudiencePerson, tok *CancelToken) {
	cfg := b.Agent
	e.log.Logf("Agent %q: dispatching %d tasks.", cfg.Agent, len(audience))

	var done atomic.Int32
	var wg sync.WaitGroup
	for _, person := range audience {
		wg.Add(1)
		go func(p models.AudiencePerson) {
			defer wg.Done()
			res := e.facade.DispatchAgent(ctx, cfg.Agent, map[string]any{
				"goal":   cfg.Goal,
				"person": p,
			})
			if res.Result != nil {
				done.Add(1)
			}
		}(person)
	}
	wg.Wait()

	e.log.Logf("Agent %q: %d of %d tasks returned a result.", cfg.Agent, done.Load(), len(audience))
	e.recurseAll(ctx, g, b, audience, tok)
}

// substituteName replaces every {{name}} marker in the template.
func substituteName(template, name string) string {
	return strings.ReplaceAll(template, "{{name}}", name)
}

func formatMinutes(mins float64) string {
	d := time.Duration(mins * float64(time.Minute))
	return d.Round(time.Second).String()
}
