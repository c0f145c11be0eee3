// Package hook lets embedding code observe and react to battle events
// (effects applied, expired or dispelled, damage dealt) without touching
// the rules themselves.
package hook

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrInterrupt stops the remaining handlers of a Trigger call.
var ErrInterrupt = errors.New("hook interrupted")

// Fn handles one event. It returns the (possibly replaced) data and an
// optional error; ErrInterrupt halts the chain.
type Fn func(ctx context.Context, event string, data interface{}) (interface{}, error)

type entry struct {
	priority int
	name     string
	fn       Fn
}

// Center is a priority-ordered handler registry. Trigger may be called from
// many evaluation workers at once.
type Center struct {
	mu    sync.RWMutex
	hooks map[string][]*entry
}

// NewCenter creates an empty Center.
func NewCenter() *Center {
	return &Center{hooks: make(map[string][]*entry)}
}

// Register adds fn for event. Lower priority runs first; equal priorities
// keep registration order.
func (c *Center) Register(event string, priority int, name string, fn Fn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := append(c.hooks[event], &entry{priority: priority, name: name, fn: fn})
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].priority < entries[j].priority
	})
	c.hooks[event] = entries
}

// Unregister removes every handler called name from event.
func (c *Center) Unregister(event, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks[event] = without(c.hooks[event], name)
}

// UnregisterAll removes every handler called name from all events.
func (c *Center) UnregisterAll(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for event, entries := range c.hooks {
		c.hooks[event] = without(entries, name)
	}
}

func without(entries []*entry, name string) []*entry {
	out := entries[:0]
	for _, e := range entries {
		if e.name != name {
			out = append(out, e)
		}
	}
	return out
}

// Has reports whether any handler listens for event. Callers use it to skip
// building event payloads nobody reads.
func (c *Center) Has(event string) bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.hooks[event]) > 0
}

// Trigger runs the handlers for event in priority order, threading data
// through them. Errors other than ErrInterrupt are ignored. A nil Center
// returns data unchanged.
func (c *Center) Trigger(ctx context.Context, event string, data interface{}) (interface{}, error) {
	if c == nil {
		return data, nil
	}
	c.mu.RLock()
	entries := make([]*entry, len(c.hooks[event]))
	copy(entries, c.hooks[event])
	c.mu.RUnlock()

	for _, e := range entries {
		out, err := e.fn(ctx, event, data)
		if errors.Is(err, ErrInterrupt) {
			return out, err
		}
		if err == nil {
			data = out
		}
	}
	return data, nil
}

// Battle events.
const (
	OnEffectApplied = "on_effect_applied"
	OnEffectExpired = "on_effect_expired"
	OnDispel        = "on_dispel"
	AfterDamage     = "after_damage"
	AfterHeal       = "after_heal"
	OnHeroDeath     = "on_hero_death"
	BeforeTurn      = "before_turn"
)
