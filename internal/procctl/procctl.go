// Package procctl sends stop and kill requests to processes seen in the
// latest snapshot.
package procctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/Dicklesworthstone/sysmoni/internal/model"
	"github.com/Dicklesworthstone/sysmoni/internal/notify"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("process not found")
	ErrUnsupported      = errors.New("operation not supported on this platform")
)

const defaultTimeout = 2 * time.Second

// Signaler is the OS boundary. Implementations return errors that Classify
// understands.
type Signaler interface {
	Terminate(ctx context.Context, pid int32) error
	Kill(ctx context.Context, pid int32) error
	CreateTime(ctx context.Context, pid int32) (time.Time, error)
}

// Result reports the outcome of an asynchronous Terminate.
type Result struct {
	PID      int32
	Forceful bool
	Err      error
}

type Controller struct {
	latest  func() *model.SystemSnapshot
	sig     Signaler
	logger  *zap.Logger
	results *notify.Hub[Result]
	timeout time.Duration
	wg      sync.WaitGroup
}

// New returns a controller that validates pids against whatever latest
// returns at request time.
func New(latest func() *model.SystemSnapshot, sig Signaler, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sig == nil {
		sig = HostSignaler{}
	}
	return &Controller{
		latest:  latest,
		sig:     sig,
		logger:  logger.With(zap.String("component", "procctl")),
		results: notify.NewHub[Result](),
		timeout: defaultTimeout,
	}
}

// Terminate checks pid against the current snapshot and, if present,
// dispatches the request in the background. The returned error covers only
// validation; the OS outcome arrives on Results.
func (c *Controller) Terminate(pid int32, forceful bool) error {
	want, err := c.lookup(pid)
	if err != nil {
		return err
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		err := c.dispatch(ctx, want, forceful)
		c.results.Publish(Result{PID: pid, Forceful: forceful, Err: err})
	}()
	return nil
}

// Signal is the synchronous form of Terminate.
func (c *Controller) Signal(ctx context.Context, pid int32, forceful bool) error {
	want, err := c.lookup(pid)
	if err != nil {
		return err
	}
	return c.dispatch(ctx, want, forceful)
}

// Results subscribes to outcomes of Terminate requests.
func (c *Controller) Results(buffer int) (<-chan Result, func()) {
	return c.results.Subscribe(buffer)
}

// Wait blocks until every dispatched request has reported.
func (c *Controller) Wait() { c.wg.Wait() }

func (c *Controller) lookup(pid int32) (model.Process, error) {
	var snap *model.SystemSnapshot
	if c.latest != nil {
		snap = c.latest()
	}
	p, ok := snap.Process(pid)
	if !ok {
		return model.Process{}, fmt.Errorf("pid %d: %w", pid, ErrNotFound)
	}
	return p, nil
}

func (c *Controller) dispatch(ctx context.Context, want model.Process, forceful bool) error {
	log := c.logger.With(zap.Int32("pid", want.PID), zap.Bool("forceful", forceful))

	// The pid may have been recycled since the snapshot was taken.
	if !want.CreateTime.IsZero() {
		created, err := c.sig.CreateTime(ctx, want.PID)
		if err != nil {
			err = Classify(want.PID, err)
			log.Info("process lookup failed", zap.Error(err))
			return err
		}
		if !created.Equal(want.CreateTime) {
			log.Info("pid reused since last snapshot", zap.Time("seen", want.CreateTime), zap.Time("now", created))
			return fmt.Errorf("pid %d: %w", want.PID, ErrNotFound)
		}
	}

	var err error
	if forceful {
		err = c.sig.Kill(ctx, want.PID)
	} else {
		err = c.sig.Terminate(ctx, want.PID)
	}
	if err != nil {
		err = Classify(want.PID, err)
		log.Warn("signal failed", zap.Error(err))
		return err
	}
	log.Info("signal sent", zap.String("name", want.Name))
	return nil
}

// Classify maps OS errors onto the package sentinels.
func Classify(pid int32, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrUnsupported):
		return err
	case errors.Is(err, process.ErrorProcessNotRunning),
		errors.Is(err, syscall.ESRCH),
		errors.Is(err, os.ErrProcessDone):
		return fmt.Errorf("pid %d: %w: %w", pid, ErrNotFound, err)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("pid %d: %w: %w", pid, ErrPermissionDenied, err)
	}
	return fmt.Errorf("pid %d: %w", pid, err)
}
