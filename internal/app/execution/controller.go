package execution

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"script_console/internal/common"
	"script_console/internal/common/security"
	"script_console/internal/domain/model"
	"script_console/internal/platform/metrics"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

const StopNotice = "Script execution stopped by user."

// JobStore persists the execution fields of a job record.
type JobStore interface {
	SaveExecution(ctx context.Context, seed *model.Script, state model.ExecutionState) error
}

// ActivitySink receives audit entries. Implementations must not fail the caller.
type ActivitySink interface {
	Record(ctx context.Context, action model.ActivityAction, level model.ActivityLevel, message string, actor security.Identity, details map[string]any)
}

type Options struct {
	StopTimeout   time.Duration
	StopKillGrace time.Duration
	// Heartbeat enables periodic progress ticks when positive.
	Heartbeat    time.Duration
	NewEstimator func() ProgressEstimator
	StoreTimeout time.Duration
}

type RunRequest struct {
	JobID   string           `json:"jobId" validate:"required,max=128"`
	Name    string           `json:"name,omitempty" validate:"max=255"`
	Type    model.ScriptType `json:"type" validate:"required"`
	Content string           `json:"content" validate:"required"`
}

type RunResult struct {
	JobID         string             `json:"jobId"`
	Success       bool               `json:"success"`
	Status        model.ScriptStatus `json:"status"`
	Output        string             `json:"output"`
	ExecutionTime int64              `json:"executionTime"` // milliseconds
	ExitCode      int                `json:"exitCode"`
	Error         string             `json:"error,omitempty"`

	cause error
}

// Err maps the terminal status to the error reported to callers of Run.
func (r *RunResult) Err() error {
	switch r.Status {
	case model.ScriptStatusSuccess:
		return nil
	case model.ScriptStatusStopped:
		return common.ErrStopped
	}
	if r.cause != nil {
		return r.cause
	}
	return common.ErrRuntimeFailure
}

// Controller owns the lifecycle of script executions: admission, launch,
// output streaming, stop and exactly-once finalization.
type Controller struct {
	launcher  *Launcher
	registry  *Registry
	store     JobStore
	publisher Publisher
	activity  ActivitySink
	metrics   *metrics.Execution
	logger    *zap.Logger
	validate  *validator.Validate
	opts      Options
}

func NewController(launcher *Launcher, store JobStore, publisher Publisher, activity ActivitySink, m *metrics.Execution, logger *zap.Logger, opts Options) *Controller {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 5 * time.Second
	}
	if opts.StopKillGrace <= 0 {
		opts.StopKillGrace = 2 * time.Second
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 10 * time.Second
	}
	if opts.NewEstimator == nil {
		opts.NewEstimator = NewEstimatorFunc("volume")
	}
	if activity == nil {
		activity = nopActivity{}
	}
	return &Controller{
		launcher:  launcher,
		registry:  NewRegistry(),
		store:     store,
		publisher: publisher,
		activity:  activity,
		metrics:   m,
		logger:    logger,
		validate:  validator.New(),
		opts:      opts,
	}
}

func (c *Controller) Executions() []ExecutionInfo {
	return c.registry.Snapshot()
}

// IsRunning reports whether a live execution exists for jobID.
func (c *Controller) IsRunning(jobID string) bool {
	return c.registry.Get(jobID) != nil
}

// Run starts an execution and blocks until it is terminal or ctx is done.
// Cancelling ctx stops waiting, not the execution. The result is returned
// alongside the error for failed and stopped runs.
func (c *Controller) Run(ctx context.Context, sess *security.Session, req RunRequest) (*RunResult, error) {
	h, err := c.Start(ctx, sess, req)
	if err != nil {
		return nil, err
	}
	select {
	case <-h.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	res := h.Result()
	return res, res.Err()
}

// Start admits and launches an execution and returns once it is Running.
// A launch failure after admission finalizes the handle as Failed; it is
// reported through the handle's result, not the returned error.
func (c *Controller) Start(ctx context.Context, sess *security.Session, req RunRequest) (*Handle, error) {
	if err := c.validate.Struct(req); err != nil {
		c.metrics.Rejected("validation")
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	actor, ok := sess.CurrentUser()
	if !ok {
		c.metrics.Rejected("unauthenticated")
		return nil, common.ErrUnauthorized
	}
	if !c.launcher.Supports(req.Type) {
		c.metrics.Rejected("unsupported_type")
		return nil, fmt.Errorf("%w: %q", common.ErrUnsupportedScriptType, req.Type)
	}

	name := req.Name
	if name == "" {
		name = req.JobID
	}
	h, err := c.registry.TryAcquire(req.JobID, func(h *Handle) {
		h.Name = name
		h.ScriptType = req.Type
		h.Actor = actor
		h.estimator = c.opts.NewEstimator()
		h.seed = &model.Script{
			ID:      req.JobID,
			Name:    name,
			Slug:    slug.Make(name),
			Type:    req.Type,
			Content: req.Content,
		}
	})
	if err != nil {
		c.metrics.Rejected("already_running")
		return nil, err
	}

	c.metrics.Started(string(req.Type))

	bg := context.WithoutCancel(ctx)
	startedAt := h.StartedAt
	if h.finalState() == nil {
		c.save(bg, h, model.ExecutionState{
			Status:    model.ScriptStatusRunning,
			LastRun:   &startedAt,
			StartedAt: &startedAt,
		})
	}
	// A stop that ran out its budget may have finalized while the Running
	// write was in flight. The terminal state is written again so it is the
	// last write for this handle.
	if final := h.finalState(); final != nil {
		c.save(bg, h, *final)
		return h, nil
	}

	h.mu.Lock()
	c.publishLocked(h, model.ScriptStatusRunning)
	h.mu.Unlock()

	c.activity.Record(bg, model.ActionScriptRun, model.LevelInfo,
		fmt.Sprintf("Started execution of script %q", name), actor,
		map[string]any{"scriptId": req.JobID, "scriptName": name, "scriptType": req.Type})

	c.logger.Info("script execution started",
		zap.String("job_id", req.JobID),
		zap.String("type", string(req.Type)),
		zap.String("user", actor.Username),
	)

	h.mu.Lock()
	stopping := h.stopRequested
	h.mu.Unlock()
	if stopping {
		h.markExited()
		return h, nil
	}

	proc, err := c.launcher.Launch(req.JobID, req.Type, req.Content)
	if err != nil {
		c.logger.Error("script launch failed", zap.String("job_id", req.JobID), zap.Error(err))
		h.markExited()
		c.finalize(bg, h, model.ScriptStatusFailed, err)
		return h, nil
	}

	h.mu.Lock()
	h.process = proc
	stopping = h.stopRequested
	h.mu.Unlock()
	if stopping {
		if err := proc.Terminate(); err != nil {
			c.logger.Warn("terminate after late stop", zap.String("job_id", req.JobID), zap.Error(err))
		}
	}

	go c.monitor(bg, h, proc)
	return h, nil
}

// monitor drains both streams, reaps the process and decides the terminal
// status. A requested stop leaves finalization to the stopper.
func (c *Controller) monitor(ctx context.Context, h *Handle, proc *Process) {
	var (
		wg        sync.WaitGroup
		errMu     sync.Mutex
		streamErr error
	)
	for _, r := range []io.Reader{proc.Stdout(), proc.Stderr()} {
		wg.Add(1)
		go func(r io.Reader) {
			defer wg.Done()
			if err := c.pump(h, r); err != nil {
				errMu.Lock()
				if streamErr == nil {
					streamErr = err
				}
				errMu.Unlock()
			}
		}(r)
	}
	stopHeartbeat := c.startHeartbeat(h)

	wg.Wait()
	code, waitErr := proc.Wait()
	stopHeartbeat()

	h.mu.Lock()
	h.exitCode = code
	stopping := h.stopRequested
	h.mu.Unlock()
	h.markExited()

	if stopping {
		return
	}

	switch {
	case waitErr != nil:
		c.finalize(ctx, h, model.ScriptStatusFailed, fmt.Errorf("%w: %w", common.ErrRuntimeFailure, waitErr))
	case streamErr != nil:
		c.finalize(ctx, h, model.ScriptStatusFailed, fmt.Errorf("%w: reading output: %w", common.ErrRuntimeFailure, streamErr))
	case code != 0:
		c.finalize(ctx, h, model.ScriptStatusFailed, fmt.Errorf("%w: exit code %d", common.ErrRuntimeFailure, code))
	default:
		c.finalize(ctx, h, model.ScriptStatusSuccess, nil)
	}
}

func (c *Controller) pump(h *Handle, r io.Reader) error {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			c.appendOutput(h, buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

// appendOutput is shared by stdout and stderr. Neither stream decides the
// terminal status; only the exit code does.
func (c *Controller) appendOutput(h *Handle, chunk []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.terminal {
		return
	}
	h.output.Write(chunk)
	h.progress = clampProgress(h.progress, h.estimator.OnOutput(h.output.Len()))
	c.publishLocked(h, model.ScriptStatusRunning)
}

func (c *Controller) startHeartbeat(h *Handle) func() {
	if c.opts.Heartbeat <= 0 {
		return func() {}
	}
	quit := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(c.opts.Heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				c.tick(h)
			}
		}
	}()
	return func() {
		close(quit)
		wg.Wait()
	}
}

func (c *Controller) tick(h *Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.terminal {
		return
	}
	next := clampProgress(h.progress, h.estimator.OnTick())
	if next == h.progress {
		return
	}
	h.progress = next
	c.publishLocked(h, model.ScriptStatusRunning)
}

// publishLocked must be called with h.mu held. Nothing is published once the
// handle is terminal, so the terminal event is always the last one.
func (c *Controller) publishLocked(h *Handle, status model.ScriptStatus) {
	if h.terminal {
		return
	}
	c.publisher.Publish(StatusEvent{
		JobID:    h.JobID,
		Status:   status,
		Progress: h.progress,
		Output:   h.output.String(),
	})
}

// finalize moves h to a terminal status exactly once. Later calls are no-ops.
func (c *Controller) finalize(ctx context.Context, h *Handle, status model.ScriptStatus, cause error) {
	h.finalizeOnce.Do(func() {
		finishedAt := time.Now().UTC()

		h.mu.Lock()
		h.terminal = true
		if status == model.ScriptStatusStopped {
			appendStopNotice(h)
		}
		h.progress = 100
		res := &RunResult{
			JobID:         h.JobID,
			Success:       status == model.ScriptStatusSuccess,
			Status:        status,
			Output:        h.output.String(),
			ExecutionTime: finishedAt.Sub(h.StartedAt).Milliseconds(),
			ExitCode:      h.exitCode,
			cause:         cause,
		}
		if cause != nil {
			res.Error = cause.Error()
		}
		h.result = res
		h.final = &model.ExecutionState{
			Status:     status,
			Progress:   100,
			Output:     res.Output,
			FinishedAt: &finishedAt,
		}
		final := *h.final
		h.mu.Unlock()

		c.save(ctx, h, final)
		c.publisher.Publish(StatusEvent{
			JobID:    h.JobID,
			Status:   status,
			Progress: 100,
			Output:   res.Output,
		})
		c.recordCompletion(ctx, h, res)
		c.metrics.Finished(string(h.ScriptType), string(status), finishedAt.Sub(h.StartedAt).Seconds())
		c.registry.Release(h.JobID, h)

		c.logger.Info("script execution finished",
			zap.String("job_id", h.JobID),
			zap.String("status", string(status)),
			zap.Int("exit_code", res.ExitCode),
			zap.Int64("duration_ms", res.ExecutionTime),
		)
		close(h.done)
	})
}

func appendStopNotice(h *Handle) {
	if n := h.output.Len(); n > 0 && h.output.String()[n-1] != '\n' {
		h.output.WriteByte('\n')
	}
	h.output.WriteString(StopNotice)
}

func (c *Controller) recordCompletion(ctx context.Context, h *Handle, res *RunResult) {
	details := map[string]any{
		"scriptId":      h.JobID,
		"scriptName":    h.Name,
		"executionTime": res.ExecutionTime,
	}
	switch res.Status {
	case model.ScriptStatusSuccess:
		c.activity.Record(ctx, model.ActionScriptRun, model.LevelInfo,
			fmt.Sprintf("Script %q completed successfully", h.Name), h.Actor, details)
	case model.ScriptStatusFailed:
		details["exitCode"] = res.ExitCode
		details["error"] = res.Error
		c.activity.Record(ctx, model.ActionScriptRun, model.LevelError,
			fmt.Sprintf("Script %q failed", h.Name), h.Actor, details)
	}
}

func (c *Controller) save(ctx context.Context, h *Handle, st model.ExecutionState) {
	if c.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.StoreTimeout)
	defer cancel()
	if err := c.store.SaveExecution(ctx, h.seed, st); err != nil {
		c.logger.Error("failed to persist execution state",
			zap.String("job_id", h.JobID),
			zap.String("status", string(st.Status)),
			zap.Error(err),
		)
	}
}

type nopActivity struct{}

func (nopActivity) Record(context.Context, model.ActivityAction, model.ActivityLevel, string, security.Identity, map[string]any) {
}
