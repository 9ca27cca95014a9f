package execution_test

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"script_console/internal/app/execution"
	"script_console/internal/common"
	"script_console/internal/domain/model"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func lookBash(t *testing.T) string {
	t.Helper()
	bash, err := exec.LookPath("bash")
	if err != nil {
		t.Skipf("skipped, binary bash not available: %v", err)
	}
	return bash
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "script artifacts left behind")
}

func TestLaunchUnsupportedType(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	l := execution.NewLauncher(execution.LauncherConfig{ScriptDir: dir, BashPath: "bash"}, zaptest.NewLogger(t))

	require.True(t, l.Supports(model.ScriptTypeBash))
	require.False(t, l.Supports(model.ScriptTypePowerShell))
	require.False(t, l.Supports("python"))

	for _, st := range []model.ScriptType{"python", model.ScriptTypePowerShell} {
		_, err := l.Launch("job", st, "print('hi')")
		require.ErrorIs(t, err, common.ErrUnsupportedScriptType)
	}
	requireEmptyDir(t, dir)
}

func TestLaunchSpawnFailureRemovesArtifact(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	l := execution.NewLauncher(execution.LauncherConfig{
		ScriptDir: dir,
		BashPath:  filepath.Join(dir, "missing-interpreter"),
	}, zaptest.NewLogger(t))

	_, err := l.Launch("job", model.ScriptTypeBash, "echo hi")
	require.ErrorIs(t, err, common.ErrLaunchFailure)
	requireEmptyDir(t, dir)
}

func TestLaunchRunsScript(t *testing.T) {
	t.Parallel()
	bash := lookBash(t)
	dir := t.TempDir()
	l := execution.NewLauncher(execution.LauncherConfig{ScriptDir: dir, BashPath: bash}, zaptest.NewLogger(t))

	proc, err := l.Launch("Nightly Backup/1", model.ScriptTypeBash, "echo hello\necho oops >&2\nexit 3\n")
	require.NoError(t, err)

	name := filepath.Base(proc.Artifact())
	require.True(t, strings.HasPrefix(name, "script_nightly-backup-1_"), name)
	require.True(t, strings.HasSuffix(name, ".sh"), name)

	stdout, err := io.ReadAll(proc.Stdout())
	require.NoError(t, err)
	stderr, err := io.ReadAll(proc.Stderr())
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(stdout))
	require.Equal(t, "oops\n", string(stderr))

	code, err := proc.Wait()
	require.NoError(t, err)
	require.Equal(t, 3, code)
	requireEmptyDir(t, dir)

	// Reaped exactly once; signalling afterwards is a no-op.
	code, err = proc.Wait()
	require.NoError(t, err)
	require.Equal(t, 3, code)
	require.NoError(t, proc.Terminate())
	require.NoError(t, proc.Kill())
}

func TestTerminateReachesChildren(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("process groups are unix only")
	}
	t.Parallel()
	bash := lookBash(t)
	dir := t.TempDir()
	l := execution.NewLauncher(execution.LauncherConfig{ScriptDir: dir, BashPath: bash}, zaptest.NewLogger(t))

	proc, err := l.Launch("sleeper", model.ScriptTypeBash, "sleep 30 &\nwait\n")
	require.NoError(t, err)

	reaped := make(chan int, 1)
	go func() {
		// The background sleep holds both pipes open until it dies too.
		_, _ = io.Copy(io.Discard, proc.Stdout())
		_, _ = io.Copy(io.Discard, proc.Stderr())
		code, _ := proc.Wait()
		reaped <- code
	}()

	require.NoError(t, proc.Terminate())
	select {
	case code := <-reaped:
		require.NotEqual(t, 0, code)
	case <-time.After(10 * time.Second):
		_ = proc.Kill()
		t.Fatal("process group did not exit after terminate")
	}
	requireEmptyDir(t, dir)
}
