package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWorkerArgs(t *testing.T) {
	id, port, ok, err := parseWorkerArgs([]string{"--cluster-worker", "3", "8081"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint8(3), id)
	assert.Equal(t, uint16(8081), port)
}

func TestParseWorkerArgsAbsent(t *testing.T) {
	_, _, ok, err := parseWorkerArgs([]string{"--verbose"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFilterClusterWorkerArgs(t *testing.T) {
	in := []string{"app", "--cluster-worker", "1", "9090", "--verbose"}
	out := filterClusterWorkerArgs(in)
	assert.Equal(t, []string{"app", "--verbose"}, out)
}

func TestShouldRespawnThrottles(t *testing.T) {
	sup := &Supervisor{cfg: Config{Respawn: true}}
	child := &childProcess{id: 0}

	for i := 0; i < respawnThrottleCount-1; i++ {
		assert.True(t, sup.shouldRespawn(child))
	}
	assert.True(t, sup.shouldRespawn(child))
	assert.False(t, sup.shouldRespawn(child), "should disable respawn once throttled within the window")
}

func TestShouldRespawnRecoversAfterWindow(t *testing.T) {
	sup := &Supervisor{cfg: Config{Respawn: true}}
	child := &childProcess{id: 1}
	past := time.Now().Add(-2 * respawnThrottleWindow)
	child.restarts = []time.Time{past, past.Add(time.Second)}

	assert.True(t, sup.shouldRespawn(child))
}

func TestShouldRespawnDisabledWhenConfigOff(t *testing.T) {
	sup := &Supervisor{cfg: Config{Respawn: false}}
	child := &childProcess{id: 2}
	assert.False(t, sup.shouldRespawn(child))
}
