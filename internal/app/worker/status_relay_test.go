package worker

import (
	"context"
	"os"
	"testing"
	"time"

	"script_console/internal/app/execution"
	"script_console/internal/domain/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEnvelopeRoundTripSkipsOwnEvents(t *testing.T) {
	t.Parallel()
	ev := execution.StatusEvent{JobID: "j", Status: model.ScriptStatusRunning, Progress: 40, Output: "line\n"}

	payload, err := encodeEnvelope("node-a", ev)
	require.NoError(t, err)

	_, ok, err := decodeEnvelope("node-a", payload)
	require.NoError(t, err)
	require.False(t, ok)

	got, ok, err := decodeEnvelope("node-b", payload)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "node-a", got.Origin)
	got.Origin = ""
	require.Equal(t, ev, got)

	_, _, err = decodeEnvelope("node-b", []byte(`{"event":{}}`))
	require.Error(t, err)
	_, _, err = decodeEnvelope("node-b", []byte(`not json`))
	require.Error(t, err)
}

// TestStatusRelayBetweenInstances needs a reachable Redis.
func TestStatusRelayBetweenInstances(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("skipped, TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })
	require.NoError(t, rdb.Ping(t.Context()).Err())

	channel := "script_status_test_" + uuid.NewString()
	hubA, hubB := execution.NewHub(), execution.NewHub()
	t.Cleanup(hubA.Close)
	t.Cleanup(hubB.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 2)
	go func() { done <- NewStatusRelay(rdb, hubA, channel, "a", zap.NewNop()).Start(ctx) }()
	go func() { done <- NewStatusRelay(rdb, hubB, channel, "b", zap.NewNop()).Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
		<-done
	})

	sub := hubB.Subscribe()
	defer sub.Close()

	want := execution.StatusEvent{JobID: "remote", Status: model.ScriptStatusSuccess, Progress: 100, Output: "ok"}
	require.Eventually(t, func() bool {
		// Resend until both subscriptions are live.
		hubA.Publish(want)
		select {
		case <-sub.Ready():
		case <-time.After(100 * time.Millisecond):
			return false
		}
		for _, ev := range sub.Drain() {
			if ev.JobID == want.JobID && ev.Origin == "a" {
				return true
			}
		}
		return false
	}, 10*time.Second, 50*time.Millisecond)
}
