package service_test

import (
	"context"
	"os"
	"testing"
	"time"

	"script_console/internal/app/service"
	"script_console/internal/common"
	"script_console/internal/common/security"
	"script_console/internal/domain/model"
	"script_console/internal/domain/repository"
	"script_console/internal/platform/config"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	config.AppConfig = &config.Config{JWTKey: []byte("test-secret"), JWTExp: time.Hour}
	security.InitJWT()
	os.Exit(m.Run())
}

type runningSet map[string]bool

func (r runningSet) IsRunning(id string) bool { return r[id] }

var bob = security.Identity{UserID: "u-bob", Username: "bob", Name: "Bob", Role: model.RoleUser}

func TestRegisterAndLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	activityRepo := repository.NewMemoryActivityRepository()
	auth := service.NewAuthService(repository.NewMemoryUserRepository(), service.NewActivityService(activityRepo, zap.NewNop()))

	reg := service.RegisterRequest{Name: "Bob", Username: "bob", Password: "Sup3r$ecret", Department: model.DepartmentDevelopment}
	resp, err := auth.Register(ctx, reg)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Token)
	require.Empty(t, resp.User.HashedPassword)
	require.Equal(t, model.RoleUser, resp.User.Role)

	_, err = auth.Register(ctx, reg)
	require.ErrorIs(t, err, common.ErrConflict)

	login, err := auth.Login(ctx, service.LoginRequest{Username: "bob", Password: "Sup3r$ecret"})
	require.NoError(t, err)
	require.Equal(t, resp.User.ID, login.User.ID)

	token, err := security.TokenAuth.Decode(login.Token)
	require.NoError(t, err)
	claims, err := token.AsMap(ctx)
	require.NoError(t, err)
	require.Equal(t, resp.User.ID, claims["user_id"])

	_, err = auth.Login(ctx, service.LoginRequest{Username: "bob", Password: "Wr0ng$pass"})
	require.ErrorIs(t, err, common.ErrUnauthorized)
	_, err = auth.Login(ctx, service.LoginRequest{Username: "nobody", Password: "Sup3r$ecret"})
	require.ErrorIs(t, err, common.ErrUnauthorized)

	profile, err := auth.Profile(ctx, resp.User.ID)
	require.NoError(t, err)
	require.Equal(t, "bob", profile.Username)
	require.Empty(t, profile.HashedPassword)

	failures, err := activityRepo.List(ctx, model.ActivityFilter{Action: model.ActionSecurity})
	require.NoError(t, err)
	require.Len(t, failures, 2)
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()
	auth := service.NewAuthService(repository.NewMemoryUserRepository(),
		service.NewActivityService(repository.NewMemoryActivityRepository(), zap.NewNop()))

	cases := map[string]service.RegisterRequest{
		"weak password":      {Name: "Bob", Username: "bob", Password: "password1", Department: model.DepartmentSupport},
		"illegal character":  {Name: "Bob", Username: "bob", Password: "Sup3r$ecret#", Department: model.DepartmentSupport},
		"unknown department": {Name: "Bob", Username: "bob", Password: "Sup3r$ecret", Department: "Sales"},
		"short username":     {Name: "Bob", Username: "bo", Password: "Sup3r$ecret", Department: model.DepartmentSupport},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := auth.Register(context.Background(), req)
			require.ErrorIs(t, err, common.ErrValidation)
		})
	}
}

func TestScriptLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	activityRepo := repository.NewMemoryActivityRepository()
	running := runningSet{}
	scripts := service.NewScriptService(repository.NewMemoryScriptRepository(),
		service.NewActivityService(activityRepo, zap.NewNop()), running)

	_, err := scripts.Create(ctx, bob, service.CreateScriptRequest{Name: "x", Type: "python", Content: "print()", Category: "ops"})
	require.ErrorIs(t, err, common.ErrValidation)

	s, err := scripts.Create(ctx, bob, service.CreateScriptRequest{
		Name: "Clear Temp Files", Type: model.ScriptTypeBash, Content: "rm -rf /tmp/cache/*", Category: "maintenance",
	})
	require.NoError(t, err)
	require.Equal(t, "clear-temp-files", s.Slug)
	require.Equal(t, model.ScriptStatusIdle, s.Status)
	require.NotNil(t, s.CreatedByID)

	name := "Clear Cache"
	updated, err := scripts.Update(ctx, bob, s.ID, service.UpdateScriptRequest{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "clear-cache", updated.Slug)
	require.Equal(t, "rm -rf /tmp/cache/*", updated.Content)

	list, err := scripts.List(ctx, model.ScriptFilter{Category: "maintenance"})
	require.NoError(t, err)
	require.Equal(t, 1, list.Total)

	running[s.ID] = true
	require.ErrorIs(t, scripts.Delete(ctx, bob, s.ID), common.ErrConflict)
	running[s.ID] = false
	require.NoError(t, scripts.Delete(ctx, bob, s.ID))
	_, err = scripts.Get(ctx, s.ID)
	require.ErrorIs(t, err, common.ErrNotFound)

	entries, err := activityRepo.List(ctx, model.ActivityFilter{})
	require.NoError(t, err)
	actions := map[model.ActivityAction]int{}
	for _, e := range entries {
		actions[e.Action]++
		require.Equal(t, "bob", e.Details["performedBy"])
	}
	require.Equal(t, 1, actions[model.ActionScriptUpload])
	require.Equal(t, 1, actions[model.ActionScriptDelete])
}
