package rate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineFirstSampleHasNoInterval(t *testing.T) {
	e := NewEngine(0)
	_, ok := e.Observe(sample("cpu", t0, map[string]uint64{"busy": 1}))
	assert.False(t, ok)
	assert.Equal(t, 1, e.Sources())
}

func TestEngineReusesRateBelowResolution(t *testing.T) {
	e := NewEngine(100 * time.Millisecond)
	e.Observe(sample("eth0", t0, map[string]uint64{"rx": 0}))

	iv, ok := e.Observe(sample("eth0", t0.Add(time.Second), map[string]uint64{"rx": 1000}))
	require.True(t, ok)
	r, _ := iv.Rate("rx")
	assert.InDelta(t, 1000, r, 1e-9)

	iv, ok = e.Observe(sample("eth0", t0.Add(time.Second+time.Millisecond), map[string]uint64{"rx": 900000}))
	require.True(t, ok)
	assert.True(t, iv.Reused)
	r, _ = iv.Rate("rx")
	assert.InDelta(t, 1000, r, 1e-9, "jittered sample must not divide by a near-zero interval")

	iv, ok = e.Observe(sample("eth0", t0.Add(2*time.Second), map[string]uint64{"rx": 3000}))
	require.True(t, ok)
	assert.False(t, iv.Reused)
	assert.Equal(t, time.Second, iv.Elapsed, "the jittered sample was not cached")
	r, _ = iv.Rate("rx")
	assert.InDelta(t, 2000, r, 1e-9)
}

func TestEngineJitterWithoutHistory(t *testing.T) {
	e := NewEngine(100 * time.Millisecond)
	e.Observe(sample("eth0", t0, map[string]uint64{"rx": 0}))
	_, ok := e.Observe(sample("eth0", t0.Add(time.Millisecond), map[string]uint64{"rx": 10}))
	assert.False(t, ok)
}

func TestEngineClockGoingBackwardsResets(t *testing.T) {
	e := NewEngine(0)
	e.Observe(sample("cpu", t0, map[string]uint64{"busy": 10}))
	_, ok := e.Observe(sample("cpu", t0.Add(-time.Second), map[string]uint64{"busy": 20}))
	assert.False(t, ok)

	iv, ok := e.Observe(sample("cpu", t0, map[string]uint64{"busy": 30}))
	require.True(t, ok)
	assert.Equal(t, uint64(10), iv.Deltas["busy"].Value)
}

func TestEngineRetainDropsVanishedSources(t *testing.T) {
	e := NewEngine(0)
	e.Observe(sample("disk/sda", t0, map[string]uint64{"r": 1}))
	e.Observe(sample("disk/sdb", t0, map[string]uint64{"r": 1}))

	e.Retain(func(src string) bool { return src == "disk/sda" })
	assert.Equal(t, 1, e.Sources())

	_, ok := e.Observe(sample("disk/sdb", t0.Add(time.Second), map[string]uint64{"r": 5}))
	assert.False(t, ok, "a re-plugged device starts over")
}
