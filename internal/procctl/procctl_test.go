package procctl

import (
	"context"
	"errors"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Dicklesworthstone/sysmoni/internal/model"
)

var started = time.UnixMilli(1_700_000_000_000)

type call struct {
	pid      int32
	forceful bool
}

type fakeSignaler struct {
	mu      sync.Mutex
	calls   []call
	lookups int
	err     error
	created time.Time
}

func (f *fakeSignaler) record(pid int32, forceful bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{pid, forceful})
	return f.err
}

func (f *fakeSignaler) Terminate(_ context.Context, pid int32) error { return f.record(pid, false) }
func (f *fakeSignaler) Kill(_ context.Context, pid int32) error      { return f.record(pid, true) }

func (f *fakeSignaler) CreateTime(context.Context, int32) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	return f.created, nil
}

func (f *fakeSignaler) osCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls) + f.lookups
}

func snapshotWith(procs ...model.Process) func() *model.SystemSnapshot {
	snap := &model.SystemSnapshot{Processes: procs, Tree: model.BuildTree(procs)}
	return func() *model.SystemSnapshot { return snap }
}

func TestTerminateUnknownPidMakesNoOSCall(t *testing.T) {
	sig := &fakeSignaler{}
	c := New(snapshotWith(model.Process{PID: 10}), sig, zap.NewNop())

	err := c.Terminate(999, false)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, c.Signal(context.Background(), 999, true), ErrNotFound)
	c.Wait()
	assert.Zero(t, sig.osCalls())
}

func TestTerminateWithoutSnapshot(t *testing.T) {
	sig := &fakeSignaler{}
	c := New(func() *model.SystemSnapshot { return nil }, sig, zap.NewNop())
	assert.ErrorIs(t, c.Terminate(1, false), ErrNotFound)
	assert.Zero(t, sig.osCalls())
}

func TestTerminateDeliversResultAsync(t *testing.T) {
	sig := &fakeSignaler{created: started}
	c := New(snapshotWith(model.Process{PID: 10, Name: "sleep", CreateTime: started}), sig, zap.NewNop())
	results, cancel := c.Results(4)
	defer cancel()

	require.NoError(t, c.Terminate(10, false))
	require.NoError(t, c.Terminate(10, true))

	var got []Result
	for len(got) < 2 {
		select {
		case r := <-results:
			got = append(got, r)
		case <-time.After(time.Second):
			t.Fatal("no result")
		}
	}
	c.Wait()

	for _, r := range got {
		assert.Equal(t, int32(10), r.PID)
		assert.NoError(t, r.Err)
	}
	assert.ElementsMatch(t, []call{{10, false}, {10, true}}, sig.calls)
}

func TestSignalRejectsRecycledPid(t *testing.T) {
	sig := &fakeSignaler{created: started.Add(time.Minute)}
	c := New(snapshotWith(model.Process{PID: 10, CreateTime: started}), sig, zap.NewNop())

	err := c.Signal(context.Background(), 10, true)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, sig.calls, "never signal a different process under the same pid")
}

func TestSignalWithoutCreateTimeSkipsGuard(t *testing.T) {
	sig := &fakeSignaler{}
	c := New(snapshotWith(model.Process{PID: 10}), sig, zap.NewNop())

	require.NoError(t, c.Signal(context.Background(), 10, false))
	assert.Zero(t, sig.lookups)
	assert.Equal(t, []call{{10, false}}, sig.calls)
}

func TestSignalMapsOSErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"eperm", syscall.EPERM, ErrPermissionDenied},
		{"os permission", os.ErrPermission, ErrPermissionDenied},
		{"esrch", syscall.ESRCH, ErrNotFound},
		{"gopsutil not running", process.ErrorProcessNotRunning, ErrNotFound},
		{"already exited", os.ErrProcessDone, ErrNotFound},
		{"unsupported", ErrUnsupported, ErrUnsupported},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig := &fakeSignaler{err: tc.err}
			c := New(snapshotWith(model.Process{PID: 10}), sig, zap.NewNop())
			assert.ErrorIs(t, c.Signal(context.Background(), 10, false), tc.want)
		})
	}
}

func TestClassifyKeepsUnknownErrors(t *testing.T) {
	boom := errors.New("boom")
	err := Classify(5, boom)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrPermissionDenied)
	assert.NoError(t, Classify(5, nil))
}
