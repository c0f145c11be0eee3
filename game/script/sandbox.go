// Package script evaluates user-supplied JavaScript damage formulas in a
// pool of locked-down goja runtimes.
package script

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// ErrTimeout is returned when a script exceeds the execution time limit.
var ErrTimeout = errors.New("script: execution timed out")

// ErrPanic is returned when the runtime panics while running a script.
var ErrPanic = errors.New("script: runtime panic")

// ErrNotNumber is returned by EvalFloat when the result is not numeric.
var ErrNotNumber = errors.New("script: result is not a number")

// Bindings are the globals a script can read. Values are exposed with
// goja's default Go-to-JS conversion; nested maps become objects.
type Bindings map[string]interface{}

// VMPool hands out pre-initialised runtimes, one caller at a time each.
type VMPool struct {
	pool     chan *goja.Runtime
	timeout  time.Duration
	logger   *zap.Logger
	size     int
	programs sync.Map // source -> *goja.Program
}

// NewVMPool creates size runtimes. Zero values pick 4 runtimes and 500ms.
func NewVMPool(size int, timeout time.Duration, logger *zap.Logger) *VMPool {
	if size <= 0 {
		size = 4
	}
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &VMPool{
		pool:    make(chan *goja.Runtime, size),
		timeout: timeout,
		logger:  logger,
		size:    size,
	}
	for i := 0; i < size; i++ {
		p.pool <- newSafeVM()
	}
	return p
}

// Size returns the number of runtimes.
func (p *VMPool) Size() int { return p.size }

func (p *VMPool) compile(src string) (*goja.Program, error) {
	if v, ok := p.programs.Load(src); ok {
		return v.(*goja.Program), nil
	}
	prog, err := goja.Compile("formula", src, true)
	if err != nil {
		return nil, fmt.Errorf("script: compile: %w", err)
	}
	p.programs.Store(src, prog)
	return prog, nil
}

// Run executes src with the given bindings and returns the exported value
// of the last expression.
func (p *VMPool) Run(ctx context.Context, src string, b Bindings) (interface{}, error) {
	prog, err := p.compile(src)
	if err != nil {
		return nil, err
	}
	select {
	case vm := <-p.pool:
		keep := true
		defer func() {
			if keep {
				p.pool <- vm
			} else {
				p.pool <- newSafeVM()
			}
		}()
		return p.runVM(vm, prog, b, &keep)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *VMPool) runVM(vm *goja.Runtime, prog *goja.Program, b Bindings, keep *bool) (result interface{}, err error) {
	for name, v := range b {
		if err := vm.Set(name, v); err != nil {
			return nil, fmt.Errorf("script: bind %s: %w", name, err)
		}
	}
	defer func() {
		for name := range b {
			vm.Set(name, goja.Undefined())
		}
	}()

	timer := time.AfterFunc(p.timeout, func() {
		vm.Interrupt(ErrTimeout)
	})
	defer func() {
		timer.Stop()
		if *keep {
			vm.ClearInterrupt()
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			*keep = false
			result, err = nil, fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	v, runErr := vm.RunProgram(prog)
	if runErr != nil {
		var interrupted *goja.InterruptedError
		if errors.As(runErr, &interrupted) {
			// an interrupted runtime is replaced rather than reused
			*keep = false
			return nil, ErrTimeout
		}
		var ex *goja.Exception
		if errors.As(runErr, &ex) {
			return nil, fmt.Errorf("script: %s", ex.Error())
		}
		return nil, runErr
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	return v.Export(), nil
}

// newSafeVM creates a runtime with host-reaching globals removed and a
// deterministic Math.random.
func newSafeVM() *goja.Runtime {
	vm := goja.New()
	for _, name := range []string{"require", "process", "fetch", "XMLHttpRequest", "eval", "Function"} {
		vm.Set(name, goja.Undefined())
	}
	if m, ok := vm.Get("Math").(*goja.Object); ok {
		_ = m.Set("random", func() float64 { return 0 })
	}
	return vm
}

// Sandbox wraps a VMPool with logging and numeric helpers.
type Sandbox struct {
	pool   *VMPool
	logger *zap.Logger
}

// NewSandbox creates a Sandbox backed by a VMPool.
func NewSandbox(size int, timeout time.Duration, logger *zap.Logger) *Sandbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sandbox{
		pool:   NewVMPool(size, timeout, logger),
		logger: logger,
	}
}

// Eval runs src and returns its result.
func (sb *Sandbox) Eval(ctx context.Context, src string, b Bindings) (interface{}, error) {
	result, err := sb.pool.Run(ctx, src, b)
	if err != nil {
		sb.logger.Warn("script execution error",
			zap.String("src_preview", truncate(src, 80)),
			zap.Error(err))
	}
	return result, err
}

// EvalFloat runs src and converts the result to float64.
func (sb *Sandbox) EvalFloat(ctx context.Context, src string, b Bindings) (float64, error) {
	out, err := sb.Eval(ctx, src, b)
	if err != nil {
		return 0, err
	}
	switch v := out.(type) {
	case int64:
		return float64(v), nil
	case float64:
		if math.IsNaN(v) {
			return 0, ErrNotNumber
		}
		return v, nil
	case int:
		return float64(v), nil
	}
	return 0, fmt.Errorf("%w: %T", ErrNotNumber, out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
