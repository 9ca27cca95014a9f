package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"script_console/internal/api"
	"script_console/internal/app/execution"
	"script_console/internal/app/service"
	"script_console/internal/common/security"
	"script_console/internal/domain/model"
	"script_console/internal/domain/repository"
	"script_console/internal/platform/config"
	"script_console/internal/platform/metrics"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	config.AppConfig = &config.Config{JWTKey: []byte("router-test-secret"), JWTExp: time.Hour}
	security.InitJWT()
	os.Exit(m.Run())
}

type testServer struct {
	*httptest.Server
	controller *execution.Controller
	hub        *execution.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	bash, err := exec.LookPath("bash")
	if err != nil {
		bash = "bash"
	}
	logger := zap.NewNop()
	scripts := repository.NewMemoryScriptRepository()
	activity := service.NewActivityService(repository.NewMemoryActivityRepository(), logger)
	hub := execution.NewHub()
	registry := metrics.NewRegistry()

	launcher := execution.NewLauncher(execution.LauncherConfig{ScriptDir: t.TempDir(), BashPath: bash}, logger)
	controller := execution.NewController(launcher, scripts, hub, activity, metrics.NewExecution(registry), logger,
		execution.Options{StopTimeout: time.Second, StopKillGrace: time.Second})

	router := api.NewRouter(logger,
		service.NewAuthService(repository.NewMemoryUserRepository(), activity),
		service.NewScriptService(scripts, activity, controller),
		activity, controller, hub, registry, 0)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = controller.Shutdown(ctx)
		hub.Close()
		srv.Close()
	})
	return &testServer{Server: srv, controller: controller, hub: hub}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (s *testServer) register(t *testing.T, username string) string {
	t.Helper()
	resp, body := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name":       "Test User",
		"username":   username,
		"password":   "Str0ng!Pass",
		"department": model.DepartmentSupport,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func requireBash(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skipf("skipped, binary bash not available: %v", err)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthFlow(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp, _ := srv.do(t, http.MethodGet, "/api/v1/auth/profile", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := srv.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name": "Weak", "username": "weak", "password": "password", "department": "Support",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, false, body["success"])

	token := srv.register(t, "carol")

	resp, body = srv.do(t, http.MethodGet, "/api/v1/auth/profile", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "carol", body["username"])

	resp, body = srv.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "carol", "password": "Str0ng!Pass"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, body["token"])

	resp, _ = srv.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "carol", "password": "Wr0ng!Pass"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestScriptRoutes(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	token := srv.register(t, "dave")

	resp, _ := srv.do(t, http.MethodGet, "/api/v1/scripts", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := srv.do(t, http.MethodPost, "/api/v1/scripts", token, map[string]string{
		"name": "Hello", "type": "bash", "content": "echo hello", "category": "demo",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	id := body["id"].(string)

	resp, body = srv.do(t, http.MethodGet, "/api/v1/scripts/"+id, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "hello", body["slug"])

	resp, body = srv.do(t, http.MethodPut, "/api/v1/scripts/"+id, token, map[string]string{"description": "says hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "says hello", body["description"])

	resp, body = srv.do(t, http.MethodGet, "/api/v1/scripts?category=demo", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, body["total"])

	resp, body = srv.do(t, http.MethodPost, "/api/v1/scripts/"+id+"/stop", token, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, false, body["success"])

	resp, _ = srv.do(t, http.MethodDelete, "/api/v1/scripts/"+id, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = srv.do(t, http.MethodGet, "/api/v1/scripts/"+id, token, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = srv.do(t, http.MethodGet, "/api/v1/activity?action=script_upload", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["logs"], 1)
}

func TestExecuteRoutes(t *testing.T) {
	t.Parallel()
	requireBash(t)
	srv := newTestServer(t)
	token := srv.register(t, "erin")

	resp, body := srv.do(t, http.MethodPost, "/api/v1/scripts/adhoc/execute", token, map[string]string{"type": "bash"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, body)

	resp, body = srv.do(t, http.MethodPost, "/api/v1/scripts/adhoc/execute", token, map[string]string{"type": "cobol", "content": "x"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, body)

	resp, body = srv.do(t, http.MethodPost, "/api/v1/scripts/adhoc/execute", token, map[string]string{"type": "bash", "content": "echo hi"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	require.Equal(t, true, body["success"])
	require.Contains(t, body["output"], "hi")
	require.Contains(t, body, "executionTime")

	resp, body = srv.do(t, http.MethodPost, "/api/v1/scripts/adhoc/execute", token, map[string]string{"type": "bash", "content": "exit 2"})
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode, body)
	require.Equal(t, false, body["success"])
	require.NotEmpty(t, body["error"])

	resp, body = srv.do(t, http.MethodPost, "/api/v1/scripts/long/execute?wait=false", token, map[string]string{"type": "bash", "content": "sleep 30"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, body)

	resp, body = srv.do(t, http.MethodPost, "/api/v1/scripts/long/execute", token, map[string]string{"type": "bash", "content": "echo dup"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, body)

	resp, body = srv.do(t, http.MethodGet, "/api/v1/executions", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["executions"], 1)

	resp, body = srv.do(t, http.MethodPost, "/api/v1/scripts/long/stop", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	require.Equal(t, true, body["success"])

	resp, body = srv.do(t, http.MethodGet, "/api/v1/scripts/long", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, string(model.ScriptStatusStopped), body["status"])
	require.EqualValues(t, 100, body["progress"])
}

func TestWebSocketStreamsStatus(t *testing.T) {
	t.Parallel()
	requireBash(t)
	srv := newTestServer(t)
	token := srv.register(t, "frank")
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?jwt="+token, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return srv.hub.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)

	resp2, body := srv.do(t, http.MethodPost, "/api/v1/scripts/ws-job/execute", token, map[string]string{"type": "bash", "content": "echo streamed"})
	require.Equal(t, http.StatusOK, resp2.StatusCode, body)

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var statuses []string
	for {
		var msg struct {
			Type    string                `json:"type"`
			Payload execution.StatusEvent `json:"payload"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		require.Equal(t, "scriptStatus", msg.Type)
		require.Equal(t, "ws-job", msg.Payload.JobID)
		statuses = append(statuses, string(msg.Payload.Status))
		if msg.Payload.Status.Terminal() {
			require.Equal(t, model.ScriptStatusSuccess, msg.Payload.Status)
			require.Equal(t, 100, msg.Payload.Progress)
			require.Contains(t, msg.Payload.Output, "streamed")
			break
		}
	}
	require.Equal(t, string(model.ScriptStatusRunning), statuses[0])
}
