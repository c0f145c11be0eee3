package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kasuganosora/battlesim/observer"
	"github.com/kasuganosora/battlesim/rng"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newNop() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

type counter int

func (c counter) Clone() counter { return c }

func add(k int) rng.Action[counter] {
	return rng.ActionFunc[counter](func(s *counter) *rng.Node[counter] {
		*s += counter(k)
		return nil
	})
}

// fork builds a full binary tree n branches deep.
func fork(n int) *rng.Node[counter] {
	if n == 0 {
		return rng.End[counter]()
	}
	next := rng.ActionFunc[counter](func(s *counter) *rng.Node[counter] { return fork(n - 1) })
	return rng.Branch[counter](0.5, next).Or(next)
}

type result struct {
	mu     sync.Mutex
	values []int
	depths []int
	weight float64
	labels []string
	errs   []error
}

func (r *result) observer() observer.Funcs[counter] {
	return observer.Funcs[counter]{
		Label: func(name string) {
			r.mu.Lock()
			r.labels = append(r.labels, name)
			r.mu.Unlock()
		},
		Terminal: func(s counter, depth int, w float64) {
			r.mu.Lock()
			r.values = append(r.values, int(s))
			r.depths = append(r.depths, depth)
			r.weight += w
			r.mu.Unlock()
		},
		Error: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
	}
}

func TestRun_Scenario(t *testing.T) {
	pool := NewPool(4, newNop())
	defer pool.Close()

	res := &result{}
	s := New(Config[counter]{Pool: pool, Observer: res.observer(), MaxDepth: 8, Logger: newNop()})

	node := rng.AlwaysFunc(func(c *counter) *rng.Node[counter] {
		*c += 2
		return rng.Branch[counter](0.32, rng.ActionFunc[counter](func(c *counter) *rng.Node[counter] {
			*c *= 2
			return rng.Always(add(3))
		})).Or(rng.ActionFunc[counter](func(c *counter) *rng.Node[counter] {
			*c *= 3
			return nil
		}))
	}).Then(add(-2)).Label("start")

	e := s.Run(node, 0)
	e.Wait()

	sort.Ints(res.values)
	assert.Equal(t, []int{4, 5}, res.values)
	assert.Equal(t, []int{1, 1}, res.depths)
	assert.InDelta(t, 1.0, res.weight, 1e-12)
	assert.Equal(t, []string{"start"}, res.labels)

	st := e.Stats()
	assert.Equal(t, int64(2), st.Terminals)
	assert.Equal(t, int64(1), st.Branches)
	assert.Equal(t, int64(1), st.Labels)
	assert.Zero(t, st.Abandoned)
}

func TestRun_DepthCutoff(t *testing.T) {
	for _, d := range []int{0, 1, 3, 6} {
		res := &result{}
		s := New(Config[counter]{Observer: res.observer(), MaxDepth: d})
		e := s.Run(fork(d), 0)
		e.Wait()
		assert.Len(t, res.values, 1<<d, "depth %d", d)
		for _, depth := range res.depths {
			assert.LessOrEqual(t, depth, d)
		}

		// One level deeper than allowed: nothing reaches a terminal.
		res = &result{}
		s = New(Config[counter]{Observer: res.observer(), MaxDepth: d})
		e = s.Run(fork(d+1), 0)
		e.Wait()
		assert.Empty(t, res.values)
		st := e.Stats()
		assert.Equal(t, int64(1<<d), st.Abandoned)
		assert.InDelta(t, 1.0, st.AbandonedWeight, 1e-12)
		assert.Zero(t, st.TerminalWeight)
	}
}

func TestRun_ParallelFanOut(t *testing.T) {
	pool := NewPool(8, newNop())
	defer pool.Close()

	res := &result{}
	s := New(Config[counter]{Pool: pool, Observer: res.observer(), MaxDepth: 12})
	e := s.Run(fork(12), 0)
	require.NoError(t, e.WaitContext(context.Background()))

	assert.Len(t, res.values, 4096)
	assert.InDelta(t, 1.0, res.weight, 1e-9)
	assert.InDelta(t, 1.0, e.Stats().TerminalWeight, 1e-9)
}

func TestRun_StatesAreIndependent(t *testing.T) {
	pool := NewPool(4, newNop())
	defer pool.Close()

	// Each level adds 1 on the left and 2 on the right, so the sums over
	// all leaves are fixed if no path sees another path's mutations.
	var build func(n int) *rng.Node[counter]
	build = func(n int) *rng.Node[counter] {
		if n == 0 {
			return nil
		}
		return rng.Branch[counter](0.5, rng.ActionFunc[counter](func(c *counter) *rng.Node[counter] {
			*c++
			return build(n - 1)
		})).Or(rng.ActionFunc[counter](func(c *counter) *rng.Node[counter] {
			*c += 2
			return build(n - 1)
		}))
	}

	res := &result{}
	s := New(Config[counter]{Pool: pool, Observer: res.observer(), MaxDepth: 10})
	s.Run(build(10), 0).Wait()

	require.Len(t, res.values, 1024)
	total := 0
	for _, v := range res.values {
		total += v
	}
	// every leaf has 10 picks, average 1.5 each
	assert.Equal(t, 1024*15, total)
}

func TestRun_SubmitFailureSurfaced(t *testing.T) {
	pool := NewPool(1, newNop())
	pool.Close()

	res := &result{}
	s := New(Config[counter]{Pool: pool, Observer: res.observer(), MaxDepth: 4, Logger: newNop()})
	e := s.Run(fork(1), 0)
	e.Wait()

	assert.Empty(t, res.values)
	require.Len(t, res.errs, 2)
	assert.True(t, errors.Is(res.errs[0], ErrPoolClosed))
	st := e.Stats()
	assert.Equal(t, int64(2), st.Failures)
	assert.InDelta(t, 1.0, st.FailedWeight, 1e-12)
}

func TestRun_ActionPanicSurfaced(t *testing.T) {
	pool := NewPool(2, newNop())
	defer pool.Close()

	res := &result{}
	s := New(Config[counter]{Pool: pool, Observer: res.observer(), MaxDepth: 4, Logger: newNop()})
	node := rng.Branch[counter](0.25, rng.ActionFunc[counter](func(*counter) *rng.Node[counter] {
		panic("bad action")
	})).Or(add(1))

	e := s.Run(node, 0)
	e.Wait()

	assert.Equal(t, []int{1}, res.values)
	require.Len(t, res.errs, 1)
	assert.True(t, errors.Is(res.errs[0], ErrActionPanic))
	assert.InDelta(t, 0.25, e.Stats().FailedWeight, 1e-12)
}

func TestRun_Cancel(t *testing.T) {
	pool := NewPool(2, newNop())
	defer pool.Close()

	gate := make(chan struct{})
	blocked := rng.ActionFunc[counter](func(*counter) *rng.Node[counter] {
		<-gate
		return fork(5)
	})

	res := &result{}
	s := New(Config[counter]{Pool: pool, Observer: res.observer(), MaxDepth: 10})
	e := s.Run(rng.Branch[counter](0.5, blocked).Or(blocked), 0)
	e.Cancel()
	close(gate)
	e.Wait()

	assert.Empty(t, res.values)
	st := e.Stats()
	assert.Equal(t, int64(2), st.Abandoned)
	assert.InDelta(t, 1.0, st.AbandonedWeight, 1e-12)
}

func TestExecution_WaitContextTimeout(t *testing.T) {
	pool := NewPool(1, newNop())
	defer pool.Close()

	gate := make(chan struct{})
	s := New(Config[counter]{Pool: pool, MaxDepth: 2})
	e := s.Run(rng.Branch[counter](0.5, rng.ActionFunc[counter](func(*counter) *rng.Node[counter] {
		<-gate
		return nil
	})).Or(nil), 0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.WaitContext(ctx), context.DeadlineExceeded)

	close(gate)
	e.Wait()
	assert.Equal(t, int64(2), e.Stats().Terminals)
}

func TestStart_InlineCancellable(t *testing.T) {
	gate := make(chan struct{})
	blocked := rng.ActionFunc[counter](func(*counter) *rng.Node[counter] {
		<-gate
		return fork(6)
	})

	res := &result{}
	s := New(Config[counter]{Pool: Inline{}, Observer: res.observer(), MaxDepth: 10})
	e := s.Start(rng.Always[counter](blocked), 0)

	select {
	case <-e.Done():
		t.Fatal("execution finished before the gate opened")
	default:
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.WaitContext(ctx), context.DeadlineExceeded)

	e.Cancel()
	close(gate)
	e.Wait()
	st := e.Stats()
	assert.Zero(t, st.Terminals)
	assert.Equal(t, int64(1), st.Abandoned)
	assert.InDelta(t, 1.0, st.AbandonedWeight, 1e-12)
}

func TestMetrics_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, func() int { return 0 })

	s := New(Config[counter]{MaxDepth: 2, Metrics: m})
	s.Run(fork(3), 0).Wait()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.branches))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.abandoned))
	assert.Zero(t, testutil.ToFloat64(m.terminals))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs))
}

func TestNilMetricsSafe(t *testing.T) {
	var m *Metrics
	m.incBranch()
	m.incTerminal()
	m.incFailure()
}

func TestPool_RunsTasks(t *testing.T) {
	p := NewPool(4, newNop())
	var n int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			atomic.AddInt32(&n, 1)
		}))
	}
	wg.Wait()
	p.Close()
	assert.Equal(t, int32(100), atomic.LoadInt32(&n))
	assert.Equal(t, 4, p.Size())
}

func TestPool_NestedSubmitSingleWorker(t *testing.T) {
	p := NewPool(1, newNop())
	defer p.Close()

	done := make(chan struct{})
	require.NoError(t, p.Submit(func() {
		// The only worker is busy here; Submit must still return.
		_ = p.Submit(func() { close(done) })
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("nested task never ran")
	}
}

func TestPool_PanicRecovered(t *testing.T) {
	p := NewPool(1, newNop())
	defer p.Close()

	require.NoError(t, p.Submit(func() { panic("boom") }))
	done := make(chan struct{})
	require.NoError(t, p.Submit(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker died after panic")
	}
}

func TestPool_CloseDrainsQueue(t *testing.T) {
	p := NewPool(1, newNop())
	gate := make(chan struct{})
	started := make(chan struct{})
	var n int32
	require.NoError(t, p.Submit(func() {
		close(started)
		<-gate
	}))
	<-started
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(func() { atomic.AddInt32(&n, 1) }))
	}
	assert.Equal(t, 10, p.Pending())

	go close(gate)
	p.Close()
	assert.Equal(t, int32(10), atomic.LoadInt32(&n))
	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolClosed)
	p.Close()
}

func TestInline_RunsImmediately(t *testing.T) {
	ran := false
	require.NoError(t, Inline{}.Submit(func() { ran = true }))
	assert.True(t, ran)
}
