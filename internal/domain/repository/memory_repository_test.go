package repository_test

import (
	"context"
	"testing"
	"time"

	"script_console/internal/common"
	"script_console/internal/domain/model"
	"script_console/internal/domain/repository"

	"github.com/stretchr/testify/require"
)

func TestMemoryScriptRepositoryCRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := repository.NewMemoryScriptRepository()

	s := &model.Script{ID: "s1", Name: "Disk usage", Type: model.ScriptTypeBash, Content: "df -h", Category: "ops"}
	require.NoError(t, repo.Create(ctx, s))
	require.Equal(t, model.ScriptStatusIdle, s.Status)
	require.ErrorIs(t, repo.Create(ctx, s), common.ErrConflict)

	s.Name = "Disk usage report"
	require.NoError(t, repo.Update(ctx, s))

	got, err := repo.FindByID(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "Disk usage report", got.Name)

	require.NoError(t, repo.Delete(ctx, "s1"))
	_, err = repo.FindByID(ctx, "s1")
	require.ErrorIs(t, err, common.ErrNotFound)
	require.ErrorIs(t, repo.Delete(ctx, "s1"), common.ErrNotFound)
}

func TestMemoryScriptRepositoryList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := repository.NewMemoryScriptRepository()

	for _, s := range []model.Script{
		{ID: "a", Name: "Backup", Type: model.ScriptTypeBash, Category: "ops"},
		{ID: "b", Name: "Cleanup", Type: model.ScriptTypePowerShell, Category: "ops"},
		{ID: "c", Name: "Report", Type: model.ScriptTypeBash, Category: "reports", Description: "weekly backup stats"},
	} {
		s := s
		require.NoError(t, repo.Create(ctx, &s))
	}

	list, total, err := repo.List(ctx, model.ScriptFilter{Category: "ops"})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, list, 2)

	list, total, err = repo.List(ctx, model.ScriptFilter{Search: "BACKUP"})
	require.NoError(t, err)
	require.Equal(t, 2, total)

	list, total, err = repo.List(ctx, model.ScriptFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, list, 1)
}

func TestMemoryScriptRepositorySaveExecution(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := repository.NewMemoryScriptRepository()
	started := time.Now().UTC()

	seed := &model.Script{ID: "adhoc", Name: "adhoc", Slug: "adhoc", Type: model.ScriptTypeBash, Content: "echo hi"}
	require.NoError(t, repo.SaveExecution(ctx, seed, model.ExecutionState{
		Status: model.ScriptStatusRunning, LastRun: &started, StartedAt: &started,
	}))

	finished := started.Add(time.Second)
	require.NoError(t, repo.SaveExecution(ctx, seed, model.ExecutionState{
		Status: model.ScriptStatusSuccess, Progress: 100, Output: "hi\n", FinishedAt: &finished,
	}))

	got, err := repo.FindByID(ctx, "adhoc")
	require.NoError(t, err)
	require.Equal(t, model.ScriptStatusSuccess, got.Status)
	require.Equal(t, 100, got.Progress)
	require.Equal(t, "echo hi", got.Content)
	require.NotNil(t, got.StartedAt)
	require.True(t, got.StartedAt.Equal(started))
	require.True(t, got.FinishedAt.Equal(finished))
}

func TestMemoryActivityRepositoryList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := repository.NewMemoryActivityRepository()
	base := time.Now()

	require.NoError(t, repo.Create(ctx, &model.ActivityLog{ID: "1", Timestamp: base, Action: model.ActionScriptRun, Level: model.LevelInfo}))
	require.NoError(t, repo.Create(ctx, &model.ActivityLog{ID: "2", Timestamp: base.Add(time.Second), Action: model.ActionScriptStop, Level: model.LevelWarning}))
	require.NoError(t, repo.Create(ctx, &model.ActivityLog{ID: "3", Timestamp: base.Add(2 * time.Second), Action: model.ActionScriptRun, Level: model.LevelError}))

	all, err := repo.List(ctx, model.ActivityFilter{})
	require.NoError(t, err)
	require.Equal(t, []string{"3", "2", "1"}, []string{all[0].ID, all[1].ID, all[2].ID})

	runs, err := repo.List(ctx, model.ActivityFilter{Action: model.ActionScriptRun, Limit: 1})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "3", runs[0].ID)
}

func TestMemoryUserRepository(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := repository.NewMemoryUserRepository()

	u := &model.User{ID: "u1", Username: "alice", Name: "Alice", Department: model.DepartmentSupport, Role: model.RoleUser}
	require.NoError(t, repo.Create(ctx, u))
	require.ErrorIs(t, repo.Create(ctx, &model.User{ID: "u2", Username: "alice"}), common.ErrConflict)

	got, err := repo.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "u1", got.ID)

	_, err = repo.FindByID(ctx, "missing")
	require.ErrorIs(t, err, common.ErrNotFound)
}
