// Package bench drives the node-creation benchmark: it prepares the root,
// runs the workers against a shared deadline, settles, counts the children
// and closes every session.
package bench

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/zkbench/internal/coord"
	"github.com/wesleyorama2/zkbench/internal/naming"
)

// SessionPolicy decides which session each worker creates through.
type SessionPolicy string

const (
	// SharedSession uses the control session for every worker.
	SharedSession SessionPolicy = "shared"
	// PerWorkerSession opens a dedicated session per worker.
	PerWorkerSession SessionPolicy = "per-worker"
)

// ParseSessionPolicy parses "shared" or "per-worker".
func ParseSessionPolicy(s string) (SessionPolicy, error) {
	switch p := SessionPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case SharedSession, PerWorkerSession:
		return p, nil
	default:
		return "", fmt.Errorf("unknown session policy %q", s)
	}
}

// Phase is the current stage of a run.
type Phase string

const (
	PhaseInit     Phase = "init"
	PhaseSetup    Phase = "setup"
	PhaseRunning  Phase = "running"
	PhaseSettling Phase = "settling"
	PhaseCounting Phase = "counting"
	PhaseDone     Phase = "done"
)

// maxConcurrentConnects bounds how many per-worker sessions are opened at once.
const maxConcurrentConnects = 32

// Options configures a Runner.
type Options struct {
	// Client opens the control session and, for PerWorkerSession, one
	// session per worker.
	Client coord.Client

	// Root is the benchmark root path (default: /benchmark).
	Root string

	// Prefix is the child name prefix (default: node_).
	Prefix string

	// Mode is the creation mode for children.
	Mode coord.Mode

	// Workers is the number of concurrent workers. Zero is allowed.
	Workers int

	// Duration is the measurement window.
	Duration time.Duration

	// Sessions is the session policy (default: shared).
	Sessions SessionPolicy

	// Batch is the number of creates per request (default: 1).
	Batch int

	// Rate caps creates per second per worker. Zero means unlimited.
	Rate float64

	// Settler runs between the join and the count (default: 1s FixedDelay).
	Settler Settler

	// Cleanup removes the root after counting.
	Cleanup bool

	// RunID tags the root node and the result (default: random UUID).
	RunID string

	Logger *zap.Logger
}

// Result is the outcome of a successful run.
type Result struct {
	RunID    string        `json:"runId"`
	Root     string        `json:"root"`
	Mode     string        `json:"mode"`
	Sessions SessionPolicy `json:"sessions"`
	Workers  int           `json:"workers"`
	Batch    int           `json:"batch"`

	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`

	// Creates is the number of creates the service acknowledged to the
	// workers. The reported figure is Tally.Count.
	Creates int64 `json:"creates"`

	Tally
}

// RunStats is a live view of a run in progress.
type RunStats struct {
	Phase         Phase
	Elapsed       time.Duration
	Duration      time.Duration
	ActiveWorkers int
	Workers       int
	Creates       int64
}

// Runner executes one benchmark run.
//
// Example usage:
//
//	r, _ := bench.NewRunner(bench.Options{Client: client, Workers: 10, Duration: 10 * time.Second})
//	res, err := r.Run(ctx)
//	fmt.Printf("%d nodes, %.2f ops/s\n", res.Count, res.Throughput)
type Runner struct {
	opts Options
	log  *zap.Logger

	mu        sync.RWMutex
	phase     Phase
	workers   []*Worker
	startTime time.Time

	running atomic.Bool
}

// NewRunner validates opts and applies defaults.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Client == nil {
		return nil, errors.New("bench: client is required")
	}
	if opts.Workers < 0 {
		return nil, fmt.Errorf("bench: workers must be >= 0, got %d", opts.Workers)
	}
	if opts.Duration <= 0 {
		return nil, fmt.Errorf("bench: duration must be > 0, got %s", opts.Duration)
	}
	if opts.Root == "" {
		opts.Root = "/benchmark"
	}
	opts.Root = coord.Clean(opts.Root)
	if opts.Root == "/" {
		return nil, errors.New("bench: root must not be /")
	}
	if opts.Prefix == "" {
		opts.Prefix = "node_"
	}
	if strings.Contains(opts.Prefix, "/") {
		return nil, fmt.Errorf("bench: prefix %q must not contain /", opts.Prefix)
	}
	if opts.Sessions == "" {
		opts.Sessions = SharedSession
	}
	if opts.Batch < 1 {
		opts.Batch = 1
	}
	if opts.Rate < 0 {
		return nil, fmt.Errorf("bench: rate must be >= 0, got %g", opts.Rate)
	}
	if opts.Settler == nil {
		opts.Settler = FixedDelay{Delay: time.Second}
	}
	if opts.RunID == "" {
		opts.RunID = uuid.New().String()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Runner{
		opts:  opts,
		log:   opts.Logger.With(zap.String("run", opts.RunID)),
		phase: PhaseInit,
	}, nil
}

// Options returns the effective options after defaults.
func (r *Runner) Options() Options {
	return r.opts
}

// Run executes the benchmark and blocks until the count is taken and every
// session is closed.
//
// Any failure (connect, root setup, a worker's create, the settle listing
// or the count) fails the whole run; no partial result is returned.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, errors.New("bench: runner already running")
	}
	defer r.running.Store(false)
	defer r.setPhase(PhaseDone)

	r.setPhase(PhaseSetup)
	control, err := r.opts.Client.Connect(ctx)
	if err != nil {
		return nil, err
	}

	// Sessions that own children must stay open until counting is done.
	// They are closed here, after the control session's last use.
	var pendingClose []coord.Session
	defer func() {
		for _, s := range pendingClose {
			s.Close()
		}
		control.Close()
		r.log.Debug("sessions closed", zap.Int("sessions", len(pendingClose)+1))
	}()

	if err := PrepareRoot(control, r.opts.Root, []byte(r.opts.RunID), r.log); err != nil {
		return nil, err
	}

	sessions, err := r.workerSessions(ctx, control)
	pendingClose = append(pendingClose, sessions...)
	if err != nil {
		return nil, err
	}

	alloc := naming.ForMode(r.opts.Mode, r.opts.Root, r.opts.Prefix)
	workers := make([]*Worker, r.opts.Workers)
	for i := range workers {
		s := control
		if len(sessions) > 0 {
			s = sessions[i]
		}
		workers[i] = NewWorker(i, WorkerConfig{
			Session:   s,
			Allocator: alloc,
			Mode:      r.opts.Mode,
			Batch:     r.opts.Batch,
			Rate:      r.opts.Rate,
			Logger:    r.log,
		})
	}

	// One deadline for everyone, fixed before the first worker starts.
	start := time.Now()
	deadline := start.Add(r.opts.Duration)

	r.mu.Lock()
	r.workers = workers
	r.startTime = start
	r.phase = PhaseRunning
	r.mu.Unlock()

	r.log.Info("workers starting",
		zap.Int("workers", len(workers)),
		zap.Stringer("mode", r.opts.Mode),
		zap.String("sessions", string(r.effectivePolicy())),
		zap.Time("deadline", deadline))

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		w := w
		g.Go(func() error {
			return w.Run(gctx, deadline)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	end := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run interrupted: %w", err)
	}

	var creates int64
	for _, w := range workers {
		creates += w.Creates()
	}

	r.setPhase(PhaseSettling)
	if err := r.opts.Settler.Settle(ctx, control, r.opts.Root); err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}

	r.setPhase(PhaseCounting)
	tally, err := Aggregate(control, r.opts.Root, r.opts.Prefix, r.opts.Mode.Sequential(), r.opts.Duration)
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	r.log.Info("children counted",
		zap.Int("count", tally.Count),
		zap.Int64("creates", creates),
		zap.Float64("throughput", tally.Throughput))

	if r.opts.Cleanup {
		if err := RemoveTree(control, r.opts.Root); err != nil {
			r.log.Warn("cleanup failed", zap.String("root", r.opts.Root), zap.Error(err))
		}
	}

	return &Result{
		RunID:     r.opts.RunID,
		Root:      r.opts.Root,
		Mode:      r.opts.Mode.String(),
		Sessions:  r.effectivePolicy(),
		Workers:   r.opts.Workers,
		Batch:     r.opts.Batch,
		StartTime: start,
		EndTime:   end,
		Duration:  r.opts.Duration,
		Creates:   creates,
		Tally:     *tally,
	}, nil
}

// effectivePolicy falls back to per-worker sessions when the client cannot
// share one session between goroutines.
func (r *Runner) effectivePolicy() SessionPolicy {
	if r.opts.Sessions == SharedSession && !r.opts.Client.ConcurrentSessions() {
		return PerWorkerSession
	}
	return r.opts.Sessions
}

// workerSessions opens one session per worker under PerWorkerSession and
// returns nil under SharedSession. Sessions opened before a failure are
// still returned so the caller can close them.
func (r *Runner) workerSessions(ctx context.Context, control coord.Session) ([]coord.Session, error) {
	policy := r.effectivePolicy()
	if policy != r.opts.Sessions {
		r.log.Warn("client cannot share a session between workers, using per-worker sessions")
	}
	if policy == SharedSession || r.opts.Workers == 0 {
		return nil, nil
	}

	sessions := make([]coord.Session, r.opts.Workers)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentConnects)
	for i := range sessions {
		i := i
		g.Go(func() error {
			s, err := r.opts.Client.Connect(gctx)
			if err != nil {
				return fmt.Errorf("worker %d session: %w", i, err)
			}
			sessions[i] = s
			return nil
		})
	}
	err := g.Wait()

	opened := sessions[:0]
	for _, s := range sessions {
		if s != nil {
			opened = append(opened, s)
		}
	}
	if err != nil {
		return opened, err
	}
	r.log.Debug("worker sessions opened", zap.Int("sessions", len(opened)))
	return opened, nil
}

func (r *Runner) setPhase(p Phase) {
	r.mu.Lock()
	r.phase = p
	r.mu.Unlock()
}

// IsRunning returns whether Run is in progress.
func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// Stats returns a live view of the run.
func (r *Runner) Stats() RunStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := RunStats{
		Phase:    r.phase,
		Duration: r.opts.Duration,
		Workers:  r.opts.Workers,
	}
	if !r.startTime.IsZero() {
		stats.Elapsed = time.Since(r.startTime)
	}
	for _, w := range r.workers {
		if w.State() == WorkerRunning {
			stats.ActiveWorkers++
		}
		stats.Creates += w.Creates()
	}
	return stats
}
