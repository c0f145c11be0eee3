package observer

import (
	"sort"
	"sync"
)

// Outcome is the accumulated mass of one terminal class.
type Outcome struct {
	Weight float64 `json:"weight"`
	Count  int64   `json:"count"`
}

// Result is a point-in-time copy of what a Collector has seen.
type Result struct {
	Outcomes  map[string]Outcome `json:"outcomes"`
	Labels    map[string]int64   `json:"labels,omitempty"`
	Depths    map[int]float64    `json:"depths,omitempty"`
	Measures  map[string]float64 `json:"measures,omitempty"`
	Weight    float64            `json:"weight"`
	Terminals int64              `json:"terminals"`
	MaxDepth  int                `json:"max_depth"`
	Errors    []string           `json:"errors,omitempty"`
}

// Classes returns the outcome names sorted by descending weight.
func (r Result) Classes() []string {
	names := make([]string, 0, len(r.Outcomes))
	for name := range r.Outcomes {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		wi, wj := r.Outcomes[names[i]].Weight, r.Outcomes[names[j]].Weight
		if wi != wj {
			return wi > wj
		}
		return names[i] < names[j]
	})
	return names
}

// Collector aggregates terminal states into a weighted distribution.
// All updates go through one mutex.
type Collector[S any] struct {
	classify func(S) string
	measures map[string]func(S) float64

	mu        sync.Mutex
	outcomes  map[string]*Outcome
	labels    map[string]int64
	depths    map[int]float64
	sums      map[string]float64
	weight    float64
	terminals int64
	maxDepth  int
	errs      []string
}

// NewCollector creates a Collector. classify names the outcome of a terminal
// state; measures are averaged over terminals, weighted by path probability.
func NewCollector[S any](classify func(S) string, measures map[string]func(S) float64) *Collector[S] {
	if classify == nil {
		classify = func(S) string { return "terminal" }
	}
	return &Collector[S]{
		classify: classify,
		measures: measures,
		outcomes: make(map[string]*Outcome),
		labels:   make(map[string]int64),
		depths:   make(map[int]float64),
		sums:     make(map[string]float64),
	}
}

func (c *Collector[S]) OnLabel(name string) {
	c.mu.Lock()
	c.labels[name]++
	c.mu.Unlock()
}

func (c *Collector[S]) OnTerminal(state S, depth int, weight float64) {
	// Classification and measures run outside the lock; state is owned by
	// the reporting path.
	class := c.classify(state)
	var vals map[string]float64
	if len(c.measures) > 0 {
		vals = make(map[string]float64, len(c.measures))
		for name, fn := range c.measures {
			vals[name] = fn(state)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.outcomes[class]
	if !ok {
		o = &Outcome{}
		c.outcomes[class] = o
	}
	o.Weight += weight
	o.Count++
	c.depths[depth] += weight
	for name, v := range vals {
		c.sums[name] += v * weight
	}
	c.weight += weight
	c.terminals++
	if depth > c.maxDepth {
		c.maxDepth = depth
	}
}

func (c *Collector[S]) OnError(err error) {
	c.mu.Lock()
	c.errs = append(c.errs, err.Error())
	c.mu.Unlock()
}

// Terminals returns the number of terminals seen so far.
func (c *Collector[S]) Terminals() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminals
}

// Result copies the current aggregate.
func (c *Collector[S]) Result() Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := Result{
		Outcomes:  make(map[string]Outcome, len(c.outcomes)),
		Labels:    make(map[string]int64, len(c.labels)),
		Depths:    make(map[int]float64, len(c.depths)),
		Measures:  make(map[string]float64, len(c.sums)),
		Weight:    c.weight,
		Terminals: c.terminals,
		MaxDepth:  c.maxDepth,
		Errors:    append([]string(nil), c.errs...),
	}
	for k, v := range c.outcomes {
		r.Outcomes[k] = *v
	}
	for k, v := range c.labels {
		r.Labels[k] = v
	}
	for k, v := range c.depths {
		r.Depths[k] = v
	}
	for k, v := range c.sums {
		if c.weight > 0 {
			r.Measures[k] = v / c.weight
		}
	}
	return r
}
