package model

import "time"

type ActivityAction string
type ActivityLevel string

const (
	ActionAuth         ActivityAction = "auth"
	ActionScript       ActivityAction = "script"
	ActionUser         ActivityAction = "user"
	ActionSecurity     ActivityAction = "security"
	ActionStorage      ActivityAction = "storage"
	ActionScriptUpload ActivityAction = "script_upload"
	ActionScriptDelete ActivityAction = "script_delete"
	ActionScriptRun    ActivityAction = "script_run"
	ActionScriptStop   ActivityAction = "script_stop"

	LevelInfo    ActivityLevel = "info"
	LevelWarning ActivityLevel = "warning"
	LevelError   ActivityLevel = "error"
)

// ActivityLog is one append-only audit entry.
type ActivityLog struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	UserID    string         `json:"userId"`
	UserName  string         `json:"userName"`
	UserRole  string         `json:"userRole"`
	Action    ActivityAction `json:"action"`
	Level     ActivityLevel  `json:"level"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

type ActivityFilter struct {
	Action ActivityAction
	Level  ActivityLevel
	UserID string
	Limit  int
}
