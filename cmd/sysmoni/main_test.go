package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/sysmoni/internal/model"
	"github.com/Dicklesworthstone/sysmoni/internal/scheduler"
)

func snapshot(tick uint64) *model.SystemSnapshot {
	return &model.SystemSnapshot{
		Tick:      tick,
		Timestamp: time.Unix(1_700_000_000, 0).UTC(),
		CPU:       model.CPU{Total: model.Float(12.5)},
	}
}

func TestEmitOnceSkipsWarmup(t *testing.T) {
	src := make(chan scheduler.Update, 4)
	src <- scheduler.Update{Snapshot: snapshot(1)}
	src <- scheduler.Update{Err: errors.New("transient")}
	src <- scheduler.Update{Snapshot: snapshot(3)}

	var buf bytes.Buffer
	require.NoError(t, emitOnce(context.Background(), src, &buf, false))

	var got model.SystemSnapshot
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, uint64(3), got.Tick)
	require.NotNil(t, got.CPU.Total)
	assert.Equal(t, 12.5, *got.CPU.Total)
	assert.Contains(t, buf.String(), `"Memory": {`, "indented output")
	assert.Contains(t, buf.String(), `"UsedBytes": null`, "absent values are null, never zero")
}

func TestEmitOnceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	require.NoError(t, emitOnce(ctx, make(chan scheduler.Update), &buf, false))
	assert.Empty(t, buf.String())
}

func TestEmitOncePretty(t *testing.T) {
	src := make(chan scheduler.Update, 2)
	src <- scheduler.Update{Snapshot: snapshot(1)}
	src <- scheduler.Update{Snapshot: snapshot(2)}

	var buf bytes.Buffer
	require.NoError(t, emitOnce(context.Background(), src, &buf, true))
	assert.Contains(t, buf.String(), "Tick")
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestEmitStreamWritesNDJSON(t *testing.T) {
	src := make(chan scheduler.Update, 3)
	src <- scheduler.Update{Snapshot: snapshot(1)}
	src <- scheduler.Update{Err: errors.New("boom")}
	src <- scheduler.Update{Snapshot: snapshot(3)}
	close(src)

	var buf bytes.Buffer
	require.NoError(t, emitStream(context.Background(), src, &buf))

	var ticks []uint64
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var s model.SystemSnapshot
		require.NoError(t, json.Unmarshal(sc.Bytes(), &s))
		ticks = append(ticks, s.Tick)
	}
	assert.Equal(t, []uint64{1, 3}, ticks)
}

type stubMonitor struct {
	state scheduler.State
	snap  *model.SystemSnapshot
}

func (s stubMonitor) State() scheduler.State                { return s.state }
func (s stubMonitor) LatestSnapshot() *model.SystemSnapshot { return s.snap }

func TestHandlerHealthz(t *testing.T) {
	reg := prometheus.NewRegistry()
	cases := []struct {
		desc   string
		mon    stubMonitor
		status int
		state  string
	}{
		{desc: "running", mon: stubMonitor{state: scheduler.Running, snap: snapshot(7)}, status: http.StatusOK, state: "running"},
		{desc: "stopped", mon: stubMonitor{state: scheduler.Stopped}, status: http.StatusServiceUnavailable, state: "stopped"},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			rec := httptest.NewRecorder()
			makeHandler(reg, tc.mon).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, tc.status, rec.Code)

			var h health
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
			assert.Equal(t, tc.state, h.State)
			assert.Equal(t, tc.mon.snap != nil, h.At != nil)
		})
	}
}

func TestHandlerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "sysmoni_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	rec := httptest.NewRecorder()
	makeHandler(reg, stubMonitor{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sysmoni_test_total 1")
}

func TestRootCmdRejectsInvalidConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--interval=0s"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	assert.ErrorContains(t, err, "interval must be positive")
}
