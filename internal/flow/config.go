package flow

import (
	"regexp"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"neuro/internal/models"
)

// AudienceConfig controls how many people continue past an audience block.
type AudienceConfig struct {
	Sample int
}

// MessageConfig is the template for an outreach message. Subject and Body may
// contain {{name}} markers that are replaced per recipient at send time.
type MessageConfig struct {
	Channel string
	Subject string
	Body    string
}

// WaitConfig pauses the flow. "days" counts as days; every other unit counts
// as hours.
type WaitConfig struct {
	Amount float64
	Unit   string
}

// BranchCase is one labeled route of a keyword branch. The pattern is
// compiled case-insensitively at graph compile time; a pattern that fails to
// compile never matches.
type BranchCase struct {
	Label   string
	Pattern string
	re      *regexp.Regexp
}

// BranchConfig partitions the audience by reply intent.
// Modes: "keyword", "yesno" (default), "llm".
type BranchConfig struct {
	Mode  string
	Cases []BranchCase
}

// MeetConfig schedules one meeting for the whole audience. StartAtISO is
// honored only when When is "manual"; otherwise the meeting lands 24 hours
// from execution time.
type MeetConfig struct {
	Title        string
	When         string
	StartAtISO   string
	DurationMins int
}

// LoopConfig makes the whole flow repeat. MaxIterations is a hard ceiling on
// passes no matter what the author typed.
type LoopConfig struct {
	EveryMins     float64
	MaxIterations int
}

// AgentConfig dispatches an agent task per audience member.
type AgentConfig struct {
	Agent string
	Goal  string
}

// CompiledBlock is a block with its config bag decoded into the typed struct
// matching its kind. Only the field for Kind is meaningful.
type CompiledBlock struct {
	ID    string
	Kind  models.BlockKind
	Title string

	Audience AudienceConfig
	Message  MessageConfig
	Wait     WaitConfig
	Branch   BranchConfig
	Meet     MeetConfig
	Loop     LoopConfig
	Agent    AgentConfig
}

// CompiledGraph is an immutable snapshot of an authored flow, taken at run
// start. Editing the source graph after compilation has no effect on a run
// already holding the snapshot.
type CompiledGraph struct {
	Blocks []*CompiledBlock
	ByID   map[string]*CompiledBlock
	Out    map[string][]models.Edge

	inCount map[string]int
}

// Compile decodes every block config once and indexes the edges. Duplicate
// block IDs keep the first definition; edges referencing unknown blocks are
// kept and skipped at execution time.
func Compile(g models.FlowGraph) *CompiledGraph {
	cg := &CompiledGraph{
		ByID:    make(map[string]*CompiledBlock, len(g.Blocks)),
		Out:     make(map[string][]models.Edge, len(g.Blocks)),
		inCount: make(map[string]int),
	}

	for _, b := range g.Blocks {
		if _, dup := cg.ByID[b.ID]; dup {
			continue
		}
		cb := &CompiledBlock{ID: b.ID, Kind: b.Kind, Title: b.Title}
		switch b.Kind {
		case models.BlockKindAudience:
			cb.Audience = decodeAudience(b.Config)
		case models.BlockKindMessage:
			cb.Message = decodeMessage(b.Config)
		case models.BlockKindWait:
			cb.Wait = decodeWait(b.Config)
		case models.BlockKindBranch:
			cb.Branch = decodeBranch(b.Config)
		case models.BlockKindMeet:
			cb.Meet = decodeMeet(b.Config)
		case models.BlockKindLoop:
			cb.Loop = decodeLoop(b.Config)
		case models.BlockKindAgent:
			cb.Agent = decodeAgent(b.Config)
		}
		cg.Blocks = append(cg.Blocks, cb)
		cg.ByID[b.ID] = cb
	}

	for _, e := range g.Edges {
		edge := e
		if edge.Label == "" {
			edge.Label = "next"
		}
		cg.Out[edge.From] = append(cg.Out[edge.From], edge)
		cg.inCount[edge.To]++
	}

	return cg
}

// StartBlock picks where a run begins: the first audience block, else the
// first block nothing points at, else the first block. Nil for an empty
// graph.
func (cg *CompiledGraph) StartBlock() *CompiledBlock {
	for _, b := range cg.Blocks {
		if b.Kind == models.BlockKindAudience {
			return b
		}
	}
	for _, b := range cg.Blocks {
		if cg.inCount[b.ID] == 0 {
			return b
		}
	}
	if len(cg.Blocks) > 0 {
		return cg.Blocks[0]
	}
	return nil
}

// FirstLoop returns the config of the first loop block, if any. A single loop
// block anywhere in the graph makes the whole flow repeat.
func (cg *CompiledGraph) FirstLoop() (LoopConfig, bool) {
	for _, b := range cg.Blocks {
		if b.Kind == models.BlockKindLoop {
			return b.Loop, true
		}
	}
	return LoopConfig{}, false
}

func decodeAudience(cfg map[string]any) AudienceConfig {
	sample := getInt(cfg, "sample", 50)
	if sample < 1 {
		sample = 1
	}
	return AudienceConfig{Sample: sample}
}

func decodeMessage(cfg map[string]any) MessageConfig {
	return MessageConfig{
		Channel: getString(cfg, "channel", "dm"),
		Subject: getString(cfg, "subject", ""),
		Body:    getString(cfg, "body", ""),
	}
}

func decodeWait(cfg map[string]any) WaitConfig {
	amount := getFloat(cfg, "amount", 1)
	if amount < 0 {
		amount = 0
	}
	return WaitConfig{
		Amount: amount,
		Unit:   getString(cfg, "unit", "hours"),
	}
}

func decodeBranch(cfg map[string]any) BranchConfig {
	out := BranchConfig{Mode: getString(cfg, "mode", "yesno")}
	for _, rc := range asSlice(cfg["cases"]) {
		m := asMap(rc)
		if m == nil {
			continue
		}
		c := BranchCase{
			Label:   getString(m, "label", ""),
			Pattern: getString(m, "pattern", ""),
		}
		if c.Label == "" {
			continue
		}
		if re, err := regexp.Compile("(?i)" + c.Pattern); err == nil {
			c.re = re
		}
		out.Cases = append(out.Cases, c)
	}
	return out
}

func decodeMeet(cfg map[string]any) MeetConfig {
	mins := getInt(cfg, "durationMins", 30)
	if mins < 1 {
		mins = 30
	}
	return MeetConfig{
		Title:        getString(cfg, "title", "Intro chat"),
		When:         getString(cfg, "when", "auto"),
		StartAtISO:   getString(cfg, "startAtISO", ""),
		DurationMins: mins,
	}
}

func decodeLoop(cfg map[string]any) LoopConfig {
	every := getFloat(cfg, "everyMins", 10)
	if every < 0 {
		every = 0
	}
	max := getInt(cfg, "maxIterations", 100)
	if max < 1 {
		max = 1
	}
	if max > 100 {
		max = 100
	}
	return LoopConfig{EveryMins: every, MaxIterations: max}
}

func decodeAgent(cfg map[string]any) AgentConfig {
	return AgentConfig{
		Agent: getString(cfg, "agent", "outreach-assistant"),
		Goal:  getString(cfg, "goal", ""),
	}
}

func getString(config map[string]any, key, defaultVal string) string {
	if v, ok := config[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return defaultVal
}

func getInt(config map[string]any, key string, defaultVal int) int {
	if v, ok := config[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		case int32:
			return int(n)
		case int64:
			return int(n)
		}
	}
	return defaultVal
}

func getFloat(config map[string]any, key string, defaultVal float64) float64 {
	if v, ok := config[key]; ok {
		switch f := v.(type) {
		case float64:
			return f
		case int:
			return float64(f)
		case int32:
			return float64(f)
		case int64:
			return float64(f)
		}
	}
	return defaultVal
}

// asSlice unwraps both JSON and BSON array shapes; saved flows come back from
// Mongo with primitive.A in the config bags.
func asSlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case primitive.A:
		return s
	}
	return nil
}

// asMap unwraps both JSON and BSON object shapes.
func asMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case primitive.M:
		return m
	}
	return nil
}
