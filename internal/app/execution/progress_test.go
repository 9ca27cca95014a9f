package execution

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVolumeEstimator(t *testing.T) {
	t.Parallel()
	e := VolumeEstimator{}
	require.Equal(t, 0, e.OnOutput(5))
	require.Equal(t, 50, e.OnOutput(500))
	require.Equal(t, RunningProgressCap, e.OnOutput(10_000))
	require.Equal(t, 0, e.OnTick())
}

func TestHeartbeatEstimatorIsCapped(t *testing.T) {
	t.Parallel()
	e := &HeartbeatEstimator{}
	prev := 0
	for range 200 {
		next := e.OnTick()
		require.GreaterOrEqual(t, next, prev)
		require.LessOrEqual(t, next, RunningProgressCap)
		prev = next
	}
	require.Equal(t, prev, e.OnOutput(123))
}

func TestClampProgress(t *testing.T) {
	t.Parallel()
	require.Equal(t, 40, clampProgress(40, 10))
	require.Equal(t, 60, clampProgress(40, 60))
	require.Equal(t, RunningProgressCap, clampProgress(40, 100))
	require.Equal(t, RunningProgressCap, clampProgress(RunningProgressCap, 0))
}

func TestNewEstimatorFunc(t *testing.T) {
	t.Parallel()
	require.IsType(t, &HeartbeatEstimator{}, NewEstimatorFunc("heartbeat")())
	require.IsType(t, VolumeEstimator{}, NewEstimatorFunc("volume")())
	require.IsType(t, VolumeEstimator{}, NewEstimatorFunc("bogus")())
}
