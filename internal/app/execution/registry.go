package execution

import (
	"sort"
	"strings"
	"sync"
	"time"

	"script_console/internal/common"
	"script_console/internal/common/security"
	"script_console/internal/domain/model"
)

// Handle is the live state of one execution. It is created by TryAcquire
// and never reused after release.
type Handle struct {
	JobID      string
	Name       string
	ScriptType model.ScriptType
	Actor      security.Identity
	StartedAt  time.Time

	seed *model.Script

	mu            sync.Mutex
	output        strings.Builder
	progress      int
	estimator     ProgressEstimator
	process       *Process
	stopRequested bool
	terminal      bool
	exitCode      int
	result        *RunResult
	// final is the terminal state written to the job store.
	final *model.ExecutionState

	exitOnce     sync.Once
	exited       chan struct{}
	finalizeOnce sync.Once
	done         chan struct{}
}

func newHandle(jobID string) *Handle {
	return &Handle{
		JobID:     jobID,
		StartedAt: time.Now().UTC(),
		estimator: VolumeEstimator{},
		exitCode:  -1,
		exited:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Done is closed after the handle has been finalized.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Result is nil until Done is closed.
func (h *Handle) Result() *RunResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

func (h *Handle) Progress() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.progress
}

func (h *Handle) Output() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.output.String()
}

func (h *Handle) finalState() *model.ExecutionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.final
}

func (h *Handle) markExited() {
	h.exitOnce.Do(func() { close(h.exited) })
}

// Registry maps job ids to their live handle. At most one handle exists per
// job id at any time.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*Handle
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

// TryAcquire registers a new handle for jobID. init, when non-nil, runs
// before the handle becomes visible to Get. A live handle for the same id
// yields ErrAlreadyRunning and changes nothing.
func (r *Registry) TryAcquire(jobID string, init func(h *Handle)) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handles[jobID]; ok {
		return nil, common.ErrAlreadyRunning
	}
	h := newHandle(jobID)
	if init != nil {
		init(h)
	}
	r.handles[jobID] = h
	return h, nil
}

// Release removes jobID only while it still maps to h, so a stale release
// cannot evict a newer run.
func (r *Registry) Release(jobID string, h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.handles[jobID]; ok && cur == h {
		delete(r.handles, jobID)
	}
}

func (r *Registry) Get(jobID string) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handles[jobID]
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// ExecutionInfo describes a running execution.
type ExecutionInfo struct {
	JobID     string           `json:"jobId"`
	Name      string           `json:"name"`
	Type      model.ScriptType `json:"type"`
	Progress  int              `json:"progress"`
	StartedAt time.Time        `json:"startedAt"`
	StartedBy string           `json:"startedBy"`
}

func (r *Registry) Snapshot() []ExecutionInfo {
	handles := r.handlesSnapshot()
	out := make([]ExecutionInfo, 0, len(handles))
	for _, h := range handles {
		out = append(out, ExecutionInfo{
			JobID:     h.JobID,
			Name:      h.Name,
			Type:      h.ScriptType,
			Progress:  h.Progress(),
			StartedAt: h.StartedAt,
			StartedBy: h.Actor.Username,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func (r *Registry) handlesSnapshot() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	return out
}
