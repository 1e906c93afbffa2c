package bench

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wesleyorama2/zkbench/internal/coord"
	"github.com/wesleyorama2/zkbench/internal/naming"
)

// WorkerState represents the lifecycle state of a Worker.
type WorkerState int32

const (
	// WorkerIdle indicates the worker has not started.
	WorkerIdle WorkerState = iota
	// WorkerRunning indicates the worker is issuing creates.
	WorkerRunning
	// WorkerStopped indicates the worker has returned.
	WorkerStopped
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerRunning:
		return "running"
	case WorkerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// WorkerConfig contains what a Worker needs to issue creates.
type WorkerConfig struct {
	// Session the creates go through. May be shared with other workers.
	Session coord.Session

	// Allocator supplies the path for every create.
	Allocator naming.Allocator

	// Mode is the creation mode.
	Mode coord.Mode

	// Batch is the number of creates per request; > 1 uses a multi-op.
	Batch int

	// Data is the payload of every created node.
	Data []byte

	// Rate caps creates per second for this worker. Zero means unlimited.
	Rate float64

	Logger *zap.Logger
}

// Worker issues creates in a tight loop until the shared deadline passes.
//
// A create failure is fatal: the worker stops and returns the error. There
// is no retry.
type Worker struct {
	ID int

	cfg     WorkerConfig
	limiter *rate.Limiter
	log     *zap.Logger

	state   atomic.Int32
	creates atomic.Int64
	reqs    []coord.CreateRequest
}

// WorkerError is a create failure tagged with the worker that hit it.
type WorkerError struct {
	Worker int
	Err    error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %d: %v", e.Worker, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }

// NewWorker creates an idle worker.
func NewWorker(id int, cfg WorkerConfig) *Worker {
	if cfg.Batch < 1 {
		cfg.Batch = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	w := &Worker{
		ID:  id,
		cfg: cfg,
		log: cfg.Logger.With(zap.Int("worker", id)),
	}
	if cfg.Rate > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Batch)
	}
	if cfg.Batch > 1 {
		w.reqs = make([]coord.CreateRequest, cfg.Batch)
	}
	return w
}

// State returns the current worker state.
func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// Creates returns the number of creates the service acknowledged.
func (w *Worker) Creates() int64 {
	return w.creates.Load()
}

// Session returns the session the worker issues creates through.
func (w *Worker) Session() coord.Session {
	return w.cfg.Session
}

// Run issues creates until deadline, ctx cancellation or the first error.
//
// The deadline check and the create that follows are not atomic: the last
// in-flight create may finish after deadline.
func (w *Worker) Run(ctx context.Context, deadline time.Time) error {
	if !w.state.CompareAndSwap(int32(WorkerIdle), int32(WorkerRunning)) {
		return &WorkerError{Worker: w.ID, Err: fmt.Errorf("already %s", w.State())}
	}
	defer w.state.Store(int32(WorkerStopped))

	w.log.Debug("worker started")
	defer func() {
		w.log.Debug("worker stopped", zap.Int64("creates", w.creates.Load()))
	}()

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return nil
		}
		if w.limiter != nil && !w.pace(ctx, deadline) {
			return nil
		}
		if err := w.create(); err != nil {
			return &WorkerError{Worker: w.ID, Err: err}
		}
	}
	return nil
}

// pace blocks until the limiter admits the next request. It returns false
// when the admission would land past the deadline.
func (w *Worker) pace(ctx context.Context, deadline time.Time) bool {
	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	return w.limiter.WaitN(waitCtx, w.cfg.Batch) == nil
}

func (w *Worker) create() error {
	if w.cfg.Batch == 1 {
		if _, err := w.cfg.Session.Create(w.cfg.Allocator.Next(), w.cfg.Data, w.cfg.Mode); err != nil {
			return err
		}
		w.creates.Add(1)
		return nil
	}

	for i := range w.reqs {
		w.reqs[i] = coord.CreateRequest{
			Path: w.cfg.Allocator.Next(),
			Data: w.cfg.Data,
			Mode: w.cfg.Mode,
		}
	}
	if _, err := w.cfg.Session.CreateBatch(w.reqs); err != nil {
		return err
	}
	w.creates.Add(int64(len(w.reqs)))
	return nil
}
