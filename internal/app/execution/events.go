package execution

import "script_console/internal/domain/model"

// StatusEvent is one observable transition or output update of a job.
// Output always carries the full text accumulated so far.
type StatusEvent struct {
	JobID    string             `json:"jobId"`
	Status   model.ScriptStatus `json:"status"`
	Progress int                `json:"progress"`
	Output   string             `json:"output"`

	// Origin is the instance that produced the event. Empty for events
	// produced by this process.
	Origin string `json:"-"`
}

type Publisher interface {
	Publish(ev StatusEvent)
}
