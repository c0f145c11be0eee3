// Package rng describes staged, probability-branching computations over a
// mutable state value. A Node is a tree of deferred actions: a terminal, a
// step that runs one action, a two-way weighted branch, or a label. Nodes are
// built with the combinators in this package and executed by the scheduler.
package rng

import (
	"errors"
	"math"
	"sync/atomic"
)

// ErrNodeConsumed is the panic value raised when a node is used a second time.
var ErrNodeConsumed = errors.New("rng: node already consumed")

// Kind identifies the shape of a Node.
type Kind uint8

const (
	KindEnd Kind = iota
	KindStep
	KindBranch
	KindLabel
)

func (k Kind) String() string {
	switch k {
	case KindEnd:
		return "end"
	case KindStep:
		return "step"
	case KindBranch:
		return "branch"
	case KindLabel:
		return "label"
	}
	return "unknown"
}

// Action mutates the state in place and returns the node to continue with.
// Returning nil is the same as returning End.
type Action[S any] interface {
	Run(s *S) *Node[S]
}

// ActionFunc adapts a plain function to Action.
type ActionFunc[S any] func(s *S) *Node[S]

// Run calls f(s).
func (f ActionFunc[S]) Run(s *S) *Node[S] { return f(s) }

// Instance is one side of a Branch.
type Instance[S any] struct {
	Weight float64
	Action Action[S]
}

// Node is a single-use computation tree. A nil *Node behaves as End.
type Node[S any] struct {
	kind     Kind
	action   Action[S]
	branch   [2]Instance[S]
	name     string
	child    *Node[S]
	consumed atomic.Bool
}

// Parts is the content of a Node released by Unwrap.
type Parts[S any] struct {
	Kind   Kind
	Action Action[S]
	Branch [2]Instance[S]
	Name   string
	Child  *Node[S]
}

// End returns a terminal node.
func End[S any]() *Node[S] {
	return &Node[S]{kind: KindEnd}
}

// Always returns a node that runs action once control reaches it.
func Always[S any](action Action[S]) *Node[S] {
	return &Node[S]{kind: KindStep, action: orEnd(action)}
}

// AlwaysFunc is Always for a plain function.
func AlwaysFunc[S any](fn func(s *S) *Node[S]) *Node[S] {
	if fn == nil {
		return Always[S](nil)
	}
	return Always[S](ActionFunc[S](fn))
}

// Labeled wraps n so observers see name before n runs.
func Labeled[S any](name string, n *Node[S]) *Node[S] {
	return &Node[S]{kind: KindLabel, name: name, child: n}
}

// Label is the method form of Labeled. It consumes n.
func (n *Node[S]) Label(name string) *Node[S] {
	return Labeled(name, n)
}

// Kind reports the node shape without consuming it.
func (n *Node[S]) Kind() Kind {
	if n == nil {
		return KindEnd
	}
	return n.kind
}

// Unwrap consumes n and returns its content. It panics with ErrNodeConsumed
// if n was already unwrapped or spliced by Then.
func (n *Node[S]) Unwrap() Parts[S] {
	if n == nil {
		return Parts[S]{Kind: KindEnd}
	}
	if !n.consumed.CompareAndSwap(false, true) {
		panic(ErrNodeConsumed)
	}
	return Parts[S]{
		Kind:   n.kind,
		Action: n.action,
		Branch: n.branch,
		Name:   n.name,
		Child:  n.child,
	}
}

// BranchBuilder is the first half of a Branch. Complete it with Or.
type BranchBuilder[S any] struct {
	p      float64
	action Action[S]
}

// Branch starts a weighted branch: action runs with probability p.
func Branch[S any](p float64, action Action[S]) BranchBuilder[S] {
	return BranchBuilder[S]{p: clamp01(p), action: orEnd(action)}
}

// Or completes the branch with the action taken with probability 1-p.
func (b BranchBuilder[S]) Or(action Action[S]) *Node[S] {
	return &Node[S]{
		kind: KindBranch,
		branch: [2]Instance[S]{
			{Weight: b.p, Action: b.action},
			{Weight: 1 - b.p, Action: orEnd(action)},
		},
	}
}

// Chance builds a branch on p, collapsing to a plain step when p is 0 or 1
// so degenerate events neither fan out nor count against the depth bound.
func Chance[S any](p float64, onTrue, onFalse Action[S]) *Node[S] {
	p = clamp01(p)
	switch {
	case p >= 1:
		return Always(onTrue)
	case p <= 0:
		return Always(onFalse)
	}
	return Branch(p, onTrue).Or(onFalse)
}

// Uniform picks one of actions with equal probability, as a chain of binary
// branches weighted 1/k, 1/(k-1), ... so each action ends up with 1/k.
func Uniform[S any](actions ...Action[S]) *Node[S] {
	switch len(actions) {
	case 0:
		return End[S]()
	case 1:
		return Always(actions[0])
	}
	head, rest := actions[0], actions[1:]
	return Branch(1/float64(len(actions)), head).Or(ActionFunc[S](func(*S) *Node[S] {
		return Uniform(rest...)
	}))
}

func orEnd[S any](a Action[S]) Action[S] {
	if a == nil {
		return ActionFunc[S](func(*S) *Node[S] { return nil })
	}
	return a
}

func clamp01(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
