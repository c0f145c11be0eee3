// Package observer holds the callback sinks that receive scheduler events.
package observer

// Observer receives label crossings and terminal states. Methods are called
// from arbitrary workers and must be safe for concurrent use.
type Observer[S any] interface {
	OnLabel(name string)
	// OnTerminal is called once per path that reaches a terminal. weight is
	// the product of the branch weights taken along the path.
	OnTerminal(state S, depth int, weight float64)
}

// ErrorObserver is implemented by observers that want to hear about paths
// lost to infrastructure failures (rejected submissions, panicking actions).
type ErrorObserver interface {
	OnError(err error)
}

// Funcs adapts plain functions to Observer. Nil fields are skipped.
type Funcs[S any] struct {
	Label    func(name string)
	Terminal func(state S, depth int, weight float64)
	Error    func(err error)
}

func (f Funcs[S]) OnLabel(name string) {
	if f.Label != nil {
		f.Label(name)
	}
}

func (f Funcs[S]) OnTerminal(state S, depth int, weight float64) {
	if f.Terminal != nil {
		f.Terminal(state, depth, weight)
	}
}

func (f Funcs[S]) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

// Nop discards every event.
type Nop[S any] struct{}

func (Nop[S]) OnLabel(string) {}

func (Nop[S]) OnTerminal(S, int, float64) {}
