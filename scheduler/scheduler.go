package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/kasuganosora/battlesim/observer"
	"github.com/kasuganosora/battlesim/rng"
	"go.uber.org/zap"
)

// ErrActionPanic wraps a panic raised by an action.
var ErrActionPanic = errors.New("scheduler: action panicked")

// State is the constraint on values threaded through a run. Clone must
// return a copy sharing no mutable data with the receiver.
type State[S any] interface {
	Clone() S
}

// Config configures a Scheduler.
type Config[S any] struct {
	Pool     Submitter
	Observer observer.Observer[S]
	// MaxDepth is the number of branch crossings a path may take. A path
	// meeting a branch at depth >= MaxDepth is dropped without a callback and
	// its weight is not handed to any other path.
	MaxDepth int
	Logger   *zap.Logger
	Metrics  *Metrics
}

// Scheduler drives node trees over states of type S.
type Scheduler[S State[S]] struct {
	pool     Submitter
	obs      observer.Observer[S]
	errObs   observer.ErrorObserver
	maxDepth int
	logger   *zap.Logger
	metrics  *Metrics
}

// New creates a Scheduler. A nil Pool runs everything inline.
func New[S State[S]](cfg Config[S]) *Scheduler[S] {
	if cfg.Pool == nil {
		cfg.Pool = Inline{}
	}
	if cfg.Observer == nil {
		cfg.Observer = observer.Nop[S]{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxDepth < 0 {
		cfg.MaxDepth = 0
	}
	errObs, _ := cfg.Observer.(observer.ErrorObserver)
	return &Scheduler[S]{
		pool:     cfg.Pool,
		obs:      cfg.Observer,
		errObs:   errObs,
		maxDepth: cfg.MaxDepth,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// MaxDepth returns the configured depth bound.
func (s *Scheduler[S]) MaxDepth() int { return s.maxDepth }

// Run starts executing node against state. Steps up to the first branch run
// on the calling goroutine; the rest runs on the pool. node is consumed.
func (s *Scheduler[S]) Run(node *rng.Node[S], state S) *Execution {
	e := newExecution()
	s.metrics.incRun()
	e.wg.Add(1)
	go func() {
		e.wg.Wait()
		close(e.done)
	}()
	s.unit(e, func(*S) *rng.Node[S] { return node }, state, 0, 1)
	return e
}

// Start is Run with the root on a new goroutine, so no step executes on the
// caller's goroutine. Use it when the caller must be able to Cancel or time out
// an execution even on an Inline pool.
func (s *Scheduler[S]) Start(node *rng.Node[S], state S) *Execution {
	e := newExecution()
	s.metrics.incRun()
	e.wg.Add(1)
	go func() {
		e.wg.Wait()
		close(e.done)
	}()
	go s.unit(e, func(*S) *rng.Node[S] { return node }, state, 0, 1)
	return e
}

// unit runs start against state and drives the result. It owns one
// WaitGroup slot of e.
func (s *Scheduler[S]) unit(e *Execution, start func(*S) *rng.Node[S], state S, depth int, weight float64) {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.fail(e, fmt.Errorf("%w: %v", ErrActionPanic, r), weight, depth)
		}
	}()
	if e.cancelled.Load() {
		s.drop(e, weight)
		return
	}
	node := start(&state)
	s.drive(e, node, state, depth, weight)
}

func (s *Scheduler[S]) drive(e *Execution, node *rng.Node[S], state S, depth int, weight float64) {
	for {
		p := node.Unwrap()
		switch p.Kind {
		case rng.KindEnd:
			e.terminals.Add(1)
			e.terminalWeight.add(weight)
			s.metrics.incTerminal()
			s.obs.OnTerminal(state, depth, weight)
			return

		case rng.KindStep:
			node = p.Action.Run(&state)

		case rng.KindLabel:
			e.labels.Add(1)
			s.metrics.incLabel()
			s.obs.OnLabel(p.Name)
			node = p.Child

		case rng.KindBranch:
			if depth >= s.maxDepth {
				s.drop(e, weight)
				return
			}
			if e.cancelled.Load() {
				s.drop(e, weight)
				return
			}
			e.branches.Add(1)
			s.metrics.incBranch()
			for _, inst := range p.Branch {
				cp := state.Clone()
				w := weight * inst.Weight
				run := inst.Action.Run
				e.wg.Add(1)
				err := s.pool.Submit(func() {
					s.unit(e, run, cp, depth+1, w)
				})
				if err != nil {
					e.wg.Done()
					s.fail(e, fmt.Errorf("scheduler: submit branch at depth %d: %w", depth, err), w, depth+1)
				}
			}
			return
		}
	}
}

func (s *Scheduler[S]) drop(e *Execution, weight float64) {
	e.abandoned.Add(1)
	e.abandonedWeight.add(weight)
	s.metrics.incAbandoned()
}

func (s *Scheduler[S]) fail(e *Execution, err error, weight float64, depth int) {
	e.failures.Add(1)
	e.failedWeight.add(weight)
	s.metrics.incFailure()
	s.logger.Error("path lost",
		zap.Error(err),
		zap.Int("depth", depth),
		zap.Float64("weight", weight))
	if s.errObs != nil {
		s.errObs.OnError(err)
	}
}

// Execution tracks the paths spawned by one Run.
type Execution struct {
	wg        sync.WaitGroup
	done      chan struct{}
	cancelled atomic.Bool

	terminals atomic.Int64
	labels    atomic.Int64
	branches  atomic.Int64
	abandoned atomic.Int64
	failures  atomic.Int64

	terminalWeight  atomicFloat
	abandonedWeight atomicFloat
	failedWeight    atomicFloat
}

func newExecution() *Execution {
	return &Execution{done: make(chan struct{})}
}

// Done is closed once every path has finished.
func (e *Execution) Done() <-chan struct{} { return e.done }

// Wait blocks until every path has finished.
func (e *Execution) Wait() { <-e.done }

// WaitContext waits for completion or ctx. Running paths are not stopped
// when ctx ends; call Cancel for that.
func (e *Execution) WaitContext(ctx context.Context) error {
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel makes every path drop out at its next branch point. Dropped paths
// are counted as abandoned.
func (e *Execution) Cancel() { e.cancelled.Store(true) }

// Stats is a snapshot of execution counters.
type Stats struct {
	Terminals       int64   `json:"terminals"`
	Labels          int64   `json:"labels"`
	Branches        int64   `json:"branches"`
	Abandoned       int64   `json:"abandoned"`
	Failures        int64   `json:"failures"`
	TerminalWeight  float64 `json:"terminal_weight"`
	AbandonedWeight float64 `json:"abandoned_weight"`
	FailedWeight    float64 `json:"failed_weight"`
}

// Stats reads the counters. Values are final once Done is closed.
func (e *Execution) Stats() Stats {
	return Stats{
		Terminals:       e.terminals.Load(),
		Labels:          e.labels.Load(),
		Branches:        e.branches.Load(),
		Abandoned:       e.abandoned.Load(),
		Failures:        e.failures.Load(),
		TerminalWeight:  e.terminalWeight.load(),
		AbandonedWeight: e.abandonedWeight.load(),
		FailedWeight:    e.failedWeight.load(),
	}
}

type atomicFloat struct{ bits atomic.Uint64 }

func (f *atomicFloat) add(v float64) {
	for {
		old := f.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + v)
		if f.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

func (f *atomicFloat) load() float64 { return math.Float64frombits(f.bits.Load()) }
