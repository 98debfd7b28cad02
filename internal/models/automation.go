package models

import "time"

// Run lifecycle states
const (
	RunStatusRunning   = "running"
	RunStatusFinished  = "finished"
	RunStatusCancelled = "cancelled"
	RunStatusFailed    = "failed"
)

// Automation is a saved flow graph plus its metadata.
type Automation struct {
	ID          string    `json:"id"`
	OwnerUID    string    `json:"ownerUid"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Graph       FlowGraph `json:"graph"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// RunLogEntry is one timestamped line of a run's log, as persisted and as
// streamed over the run WebSocket.
type RunLogEntry struct {
	At   time.Time `bson:"at" json:"at"`
	Text string    `bson:"text" json:"text"`
}

// Run is one execution of an automation.
type Run struct {
	ID           string        `json:"id"`
	AutomationID string        `json:"automationId"`
	OwnerUID     string        `json:"ownerUid"`
	Status       string        `json:"status"`
	AudienceSize int           `json:"audienceSize"`
	Iterations   int           `json:"iterations"`
	StartedAt    time.Time     `json:"startedAt"`
	FinishedAt   *time.Time    `json:"finishedAt,omitempty"`
	Log          []RunLogEntry `json:"log,omitempty"`
}

// Schedule triggers an automation on a cron cadence.
type Schedule struct {
	ID           string     `json:"id"`
	AutomationID string     `json:"automationId"`
	OwnerUID     string     `json:"ownerUid"`
	CronExpr     string     `json:"cronExpr"`
	Timezone     string     `json:"timezone"`
	Enabled      bool       `json:"enabled"`
	LastRunAt    *time.Time `json:"lastRunAt,omitempty"`
	NextRunAt    *time.Time `json:"nextRunAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// AgentTask is one accepted agent dispatch, queued for the agent runtime.
type AgentTask struct {
	ID        string         `json:"taskId"`
	Agent     string         `json:"agent"`
	OwnerUID  string         `json:"ownerUid,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Status    string         `json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
}

// CreateAutomationRequest is the POST body for saving an automation.
type CreateAutomationRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Graph       FlowGraph `json:"graph"`
}

// UpdateAutomationRequest carries partial automation edits.
type UpdateAutomationRequest struct {
	Name        *string    `json:"name,omitempty"`
	Description *string    `json:"description,omitempty"`
	Graph       *FlowGraph `json:"graph,omitempty"`
}

// CreateScheduleRequest is the POST body for scheduling an automation.
type CreateScheduleRequest struct {
	AutomationID string `json:"automationId"`
	CronExpr     string `json:"cronExpr"`
	Timezone     string `json:"timezone,omitempty"`
	Enabled      *bool  `json:"enabled,omitempty"`
}

// UpdateScheduleRequest carries partial schedule edits.
type UpdateScheduleRequest struct {
	CronExpr *string `json:"cronExpr,omitempty"`
	Timezone *string `json:"timezone,omitempty"`
	Enabled  *bool   `json:"enabled,omitempty"`
}
