package execution

import (
	"math/rand/v2"
	"sync"
)

const (
	// RunningProgressCap is the ceiling while a job has not reached a
	// terminal state. Only finalization reports 100.
	RunningProgressCap = 90
	outputPerFullBar   = 1000
	heartbeatMaxStep   = 10
)

// ProgressEstimator proposes a progress value for a running job. The handle
// clamps proposals so reported progress never decreases and stays below the
// running cap.
type ProgressEstimator interface {
	// OnOutput is called with the accumulated output length after each chunk.
	OnOutput(total int) int
	// OnTick is called on every heartbeat tick.
	OnTick() int
}

// NewEstimatorFunc returns the estimator constructor for a configured kind.
// Unknown kinds fall back to the volume estimator.
func NewEstimatorFunc(kind string) func() ProgressEstimator {
	if kind == "heartbeat" {
		return func() ProgressEstimator { return &HeartbeatEstimator{} }
	}
	return func() ProgressEstimator { return VolumeEstimator{} }
}

// VolumeEstimator derives progress from output volume: every 1000 bytes of
// output is a full bar.
type VolumeEstimator struct{}

func (VolumeEstimator) OnOutput(total int) int {
	return min(total*100/outputPerFullBar, RunningProgressCap)
}

func (VolumeEstimator) OnTick() int { return 0 }

// HeartbeatEstimator advances by a random step of 0..10 on every tick.
type HeartbeatEstimator struct {
	mu      sync.Mutex
	current int
}

func (e *HeartbeatEstimator) OnOutput(int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *HeartbeatEstimator) OnTick() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = min(e.current+rand.IntN(heartbeatMaxStep+1), RunningProgressCap)
	return e.current
}

func clampProgress(current, proposed int) int {
	proposed = min(proposed, RunningProgressCap)
	return max(current, proposed)
}
