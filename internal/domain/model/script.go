package model

import (
	"time"
)

type ScriptStatus string

const (
	ScriptStatusIdle    ScriptStatus = "idle"
	ScriptStatusRunning ScriptStatus = "running"
	ScriptStatusSuccess ScriptStatus = "success"
	ScriptStatusFailed  ScriptStatus = "failed"
	ScriptStatusStopped ScriptStatus = "stopped"
)

// Terminal reports whether no further transition is possible without a new run.
func (s ScriptStatus) Terminal() bool {
	return s == ScriptStatusSuccess || s == ScriptStatusFailed || s == ScriptStatusStopped
}

type Script struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Slug        string        `json:"slug"`
	Description string        `json:"description"`
	Type        ScriptType    `json:"type"`
	Content     string        `json:"content"`
	Category    string        `json:"category"`
	Status      ScriptStatus  `json:"status"`
	Progress    int           `json:"progress"`
	Output      string        `json:"output"`
	Inputs      []ScriptInput `json:"inputs,omitempty"`
	LastRun     *time.Time    `json:"lastRun,omitempty"`
	StartedAt   *time.Time    `json:"startedAt,omitempty"`
	FinishedAt  *time.Time    `json:"finishedAt,omitempty"`
	CreatedByID *string       `json:"createdBy,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

type ScriptInput struct {
	Name        string `json:"name"`
	Label       string `json:"label,omitempty"`
	Type        string `json:"type,omitempty"` // text | password
	Required    bool   `json:"required,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Description string `json:"description,omitempty"`
}

// ExecutionState is the slice of a Script written by the execution controller.
type ExecutionState struct {
	Status     ScriptStatus
	Progress   int
	Output     string
	LastRun    *time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

type ScriptFilter struct {
	Category string
	Type     ScriptType
	Status   ScriptStatus
	Search   string
	Limit    int
	Offset   int
}
