package observer

import "sync"

type eventKind uint8

const (
	evLabel eventKind = iota
	evTerminal
	evError
)

type event[S any] struct {
	kind   eventKind
	name   string
	state  S
	depth  int
	weight float64
	err    error
}

// Channel funnels events from every worker into a single goroutine that
// forwards them to sink. The sink therefore never sees concurrent calls.
// Close must only be called once no more events will be produced.
type Channel[S any] struct {
	ch   chan event[S]
	sink Observer[S]
	done chan struct{}
	once sync.Once
}

// NewChannel starts the draining goroutine. buf is the channel capacity.
func NewChannel[S any](sink Observer[S], buf int) *Channel[S] {
	if buf <= 0 {
		buf = 1024
	}
	c := &Channel[S]{
		ch:   make(chan event[S], buf),
		sink: sink,
		done: make(chan struct{}),
	}
	go c.drain()
	return c
}

func (c *Channel[S]) OnLabel(name string) {
	c.ch <- event[S]{kind: evLabel, name: name}
}

func (c *Channel[S]) OnTerminal(state S, depth int, weight float64) {
	c.ch <- event[S]{kind: evTerminal, state: state, depth: depth, weight: weight}
}

func (c *Channel[S]) OnError(err error) {
	c.ch <- event[S]{kind: evError, err: err}
}

// Close stops accepting events and blocks until the sink has seen all of them.
func (c *Channel[S]) Close() {
	c.once.Do(func() { close(c.ch) })
	<-c.done
}

func (c *Channel[S]) drain() {
	defer close(c.done)
	errSink, _ := c.sink.(ErrorObserver)
	for ev := range c.ch {
		switch ev.kind {
		case evLabel:
			c.sink.OnLabel(ev.name)
		case evTerminal:
			c.sink.OnTerminal(ev.state, ev.depth, ev.weight)
		case evError:
			if errSink != nil {
				errSink.OnError(ev.err)
			}
		}
	}
}
