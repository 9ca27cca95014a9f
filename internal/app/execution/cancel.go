package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"script_console/internal/common"
	"script_console/internal/common/security"
	"script_console/internal/domain/model"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SystemIdentity is the actor recorded for stops issued by the server itself.
var SystemIdentity = security.Identity{
	UserID:   "system",
	Username: "system",
	Name:     "System",
	Role:     model.RoleAdmin,
}

// Stop cancels the live execution of jobID. A nil error means the job is now
// Stopped, also for a caller that joined a stop already in progress. Stop
// returns within StopTimeout+StopKillGrace even when the process ignores
// every signal.
func (c *Controller) Stop(ctx context.Context, sess *security.Session, jobID string) error {
	actor, ok := sess.CurrentUser()
	if !ok {
		return common.ErrUnauthorized
	}
	h := c.registry.Get(jobID)
	if h == nil {
		return common.ErrNotRunning
	}
	return c.stop(ctx, h, actor)
}

func (c *Controller) stop(ctx context.Context, h *Handle, actor security.Identity) error {
	proc, first, live := h.requestStop()
	if !live {
		return common.ErrNotRunning
	}
	if !first {
		// Another stop owns this handle and always finalizes it; report the
		// outcome it reached.
		select {
		case <-h.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		if res := h.Result(); res == nil || res.Status != model.ScriptStatusStopped {
			return common.ErrNotRunning
		}
		return nil
	}
	log := c.logger.With(zap.String("job_id", h.JobID), zap.String("user", actor.Username))
	log.Info("stopping script")

	if proc != nil {
		if err := proc.Terminate(); err != nil {
			log.Warn("terminate failed", zap.Error(err))
		}
	}

	if !waitClosed(h.exited, c.opts.StopTimeout) {
		proc = h.currentProcess()
		if proc != nil {
			if err := proc.Kill(); err != nil {
				log.Warn("kill failed", zap.Error(err))
			}
		}
		if !waitClosed(h.exited, c.opts.StopKillGrace) {
			log.Warn("stop timeout: process did not exit, forcing stopped state",
				zap.Duration("timeout", c.opts.StopTimeout+c.opts.StopKillGrace))
			if proc != nil {
				proc.RemoveArtifact()
			}
		}
	}

	bg := context.WithoutCancel(ctx)
	c.finalize(bg, h, model.ScriptStatusStopped, nil)
	if res := h.Result(); res == nil || res.Status != model.ScriptStatusStopped {
		return common.ErrNotRunning
	}

	c.activity.Record(bg, model.ActionScriptStop, model.LevelInfo,
		fmt.Sprintf("Script %q stopped by user", h.Name), actor,
		map[string]any{"scriptId": h.JobID, "scriptName": h.Name})
	return nil
}

// Shutdown stops every live execution, waiting at most until ctx is done.
func (c *Controller) Shutdown(ctx context.Context) error {
	handles := c.registry.handlesSnapshot()
	if len(handles) == 0 {
		return nil
	}
	c.logger.Info("stopping running scripts", zap.Int("count", len(handles)))

	var g errgroup.Group
	for _, h := range handles {
		g.Go(func() error {
			if err := c.stop(ctx, h, SystemIdentity); err != nil && !errors.Is(err, common.ErrNotRunning) {
				return err
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// requestStop marks h as stopping and returns its process, which may be nil
// while the launch is still in progress. first is false when a stop was
// already requested; live is false once h is terminal.
func (h *Handle) requestStop() (proc *Process, first, live bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.terminal {
		return nil, false, false
	}
	if h.stopRequested {
		return h.process, false, true
	}
	h.stopRequested = true
	return h.process, true, true
}

func (h *Handle) currentProcess() *Process {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.process
}

func waitClosed(ch <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}
