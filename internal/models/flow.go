package models

// BlockKind identifies what a workflow block does when executed
type BlockKind string

const (
	BlockKindAudience BlockKind = "audience" // select who the flow runs over
	BlockKindMessage  BlockKind = "message"  // send a templated message to each member
	BlockKindWait     BlockKind = "wait"     // pause the flow for a duration
	BlockKindBranch   BlockKind = "branch"   // partition the audience by reply intent
	BlockKindMeet     BlockKind = "meet"     // schedule a meeting with the audience
	BlockKindParallel BlockKind = "parallel" // fan out into all successors at once
	BlockKindLoop     BlockKind = "loop"     // marks the flow as repeating
	BlockKindAgent    BlockKind = "agent"    // dispatch an agent task per member
	BlockKindEnd      BlockKind = "end"      // terminal marker
)

// Position is the block's canvas coordinate, kept only so saved flows
// round-trip through the editor unchanged.
type Position struct {
	X float64 `bson:"x" json:"x"`
	Y float64 `bson:"y" json:"y"`
}

// Block is one node of an authored flow. Config is a free-form bag whose
// meaning depends on Kind; missing keys fall back to per-kind defaults.
type Block struct {
	ID     string                 `bson:"id" json:"id"`
	Kind   BlockKind              `bson:"kind" json:"kind"`
	Title  string                 `bson:"title,omitempty" json:"title,omitempty"`
	Pos    Position               `bson:"pos" json:"pos"`
	Config map[string]interface{} `bson:"config,omitempty" json:"config,omitempty"`
}

// Edge is a directed connection between two blocks. Label defaults to "next";
// branch blocks use it to route subgroups ("yes", "no", "default", or a
// keyword case label).
type Edge struct {
	From  string `bson:"from" json:"from"`
	To    string `bson:"to" json:"to"`
	Label string `bson:"label,omitempty" json:"label,omitempty"`
}

// FlowGraph is a complete authored workflow as stored and sent over the wire.
type FlowGraph struct {
	Blocks []Block `bson:"blocks" json:"blocks"`
	Edges  []Edge  `bson:"edges" json:"edges"`
}

// AudiencePerson is one member of a flow's audience. The engine passes these
// by value and never mutates them.
type AudiencePerson struct {
	UID        string `bson:"uid" json:"uid"`
	FullName   string `bson:"fullName" json:"fullName"`
	Slug       string `bson:"slug,omitempty" json:"slug,omitempty"`
	AvatarURL  string `bson:"avatarUrl,omitempty" json:"avatarUrl,omitempty"`
	Occupation string `bson:"occupation,omitempty" json:"occupation,omitempty"`
	Email      string `bson:"email,omitempty" json:"email,omitempty"`
}
