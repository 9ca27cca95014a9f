package execution

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"script_console/internal/common"
	"script_console/internal/domain/model"

	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

type LauncherConfig struct {
	ScriptDir      string
	BashPath       string
	PowerShellPath string
	BatchPath      string
}

// Launcher turns a script body into a running interpreter process.
type Launcher struct {
	cfg    LauncherConfig
	logger *zap.Logger
}

func NewLauncher(cfg LauncherConfig, logger *zap.Logger) *Launcher {
	if cfg.ScriptDir == "" {
		cfg.ScriptDir = os.TempDir()
	}
	return &Launcher{cfg: cfg, logger: logger}
}

// command returns the interpreter and the arguments preceding the artifact path.
func (l *Launcher) command(t model.ScriptType) (string, []string, bool) {
	switch t {
	case model.ScriptTypeBash:
		return l.cfg.BashPath, nil, l.cfg.BashPath != ""
	case model.ScriptTypePowerShell:
		return l.cfg.PowerShellPath, []string{"-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass", "-File"}, l.cfg.PowerShellPath != ""
	case model.ScriptTypeBatch:
		return l.cfg.BatchPath, []string{"/C"}, l.cfg.BatchPath != ""
	}
	return "", nil, false
}

func (l *Launcher) Supports(t model.ScriptType) bool {
	_, _, ok := l.command(t)
	return ok
}

// Launch writes body to a fresh artifact and starts the interpreter on it.
// The artifact is removed on every path: here when the start fails, or by
// Process.Wait once the process has been reaped.
func (l *Launcher) Launch(jobID string, t model.ScriptType, body string) (*Process, error) {
	interpreter, args, ok := l.command(t)
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrUnsupportedScriptType, t)
	}

	path, err := l.writeArtifact(jobID, t, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrLaunchFailure, err)
	}

	cmd := exec.Command(interpreter, append(args, path)...)
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		l.removeArtifact(path)
		return nil, fmt.Errorf("%w: stdout pipe: %w", common.ErrLaunchFailure, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdout.Close()
		l.removeArtifact(path)
		return nil, fmt.Errorf("%w: stderr pipe: %w", common.ErrLaunchFailure, err)
	}

	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		l.removeArtifact(path)
		return nil, fmt.Errorf("%w: start %s: %w", common.ErrLaunchFailure, interpreter, err)
	}

	l.logger.Debug("interpreter started",
		zap.String("job_id", jobID),
		zap.String("interpreter", interpreter),
		zap.Int("pid", cmd.Process.Pid),
	)

	return &Process{
		launcher: l,
		cmd:      cmd,
		stdout:   stdout,
		stderr:   stderr,
		artifact: path,
		done:     make(chan struct{}),
	}, nil
}

func (l *Launcher) writeArtifact(jobID string, t model.ScriptType, body string) (string, error) {
	name := slug.Make(jobID)
	if name == "" {
		name = "job"
	}
	if len(name) > 64 {
		name = name[:64]
	}

	f, err := os.CreateTemp(l.cfg.ScriptDir, "script_"+name+"_*"+t.Extension())
	if err != nil {
		return "", fmt.Errorf("create artifact: %w", err)
	}
	path := f.Name()
	if _, err := f.WriteString(body); err != nil {
		f.Close()
		l.removeArtifact(path)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		l.removeArtifact(path)
		return "", fmt.Errorf("close artifact: %w", err)
	}
	return path, nil
}

func (l *Launcher) removeArtifact(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		l.logger.Warn("failed to remove script artifact", zap.String("path", path), zap.Error(err))
	}
}

// Process is a started interpreter. Stdout and Stderr must be read to EOF
// before Wait is called.
type Process struct {
	launcher *Launcher
	cmd      *exec.Cmd
	stdout   io.ReadCloser
	stderr   io.ReadCloser
	artifact string

	waitOnce   sync.Once
	removeOnce sync.Once
	exitCode   int
	waitErr    error
	done       chan struct{}
}

func (p *Process) Stdout() io.Reader { return p.stdout }
func (p *Process) Stderr() io.Reader { return p.stderr }

func (p *Process) Pid() int { return p.cmd.Process.Pid }

func (p *Process) Artifact() string { return p.artifact }

// Done is closed once the process has been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

// Wait reaps the process exactly once and removes the artifact. A non-zero
// exit is reported through the code, not the error.
func (p *Process) Wait() (int, error) {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		var exitErr *exec.ExitError
		switch {
		case err == nil:
			p.exitCode = 0
		case errors.As(err, &exitErr):
			p.exitCode = exitErr.ExitCode()
		default:
			p.exitCode = -1
			p.waitErr = err
		}
		p.RemoveArtifact()
		close(p.done)
	})
	return p.exitCode, p.waitErr
}

func (p *Process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Terminate asks the process group to exit. No-op once reaped.
func (p *Process) Terminate() error {
	if p.exited() {
		return nil
	}
	return terminateGroup(p.cmd.Process)
}

// Kill forcibly ends the process group. No-op once reaped.
func (p *Process) Kill() error {
	if p.exited() {
		return nil
	}
	return killGroup(p.cmd.Process)
}

func (p *Process) RemoveArtifact() {
	p.removeOnce.Do(func() {
		p.launcher.removeArtifact(p.artifact)
	})
}
