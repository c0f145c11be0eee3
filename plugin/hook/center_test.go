package hook

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrigger_NoHandlers(t *testing.T) {
	c := NewCenter()
	out, err := c.Trigger(context.Background(), OnDispel, 42)
	require.NoError(t, err)
	assert.Equal(t, 42, out)
	assert.False(t, c.Has(OnDispel))
}

func TestTrigger_NilCenter(t *testing.T) {
	var c *Center
	out, err := c.Trigger(context.Background(), AfterDamage, "x")
	require.NoError(t, err)
	assert.Equal(t, "x", out)
	assert.False(t, c.Has(AfterDamage))
}

func TestTrigger_DataThreaded(t *testing.T) {
	c := NewCenter()
	c.Register(AfterDamage, 0, "double", func(_ context.Context, _ string, d interface{}) (interface{}, error) {
		return d.(float64) * 2, nil
	})
	c.Register(AfterDamage, 1, "plus", func(_ context.Context, _ string, d interface{}) (interface{}, error) {
		return d.(float64) + 10, nil
	})
	out, err := c.Trigger(context.Background(), AfterDamage, 5.0)
	require.NoError(t, err)
	assert.Equal(t, 20.0, out)
	assert.True(t, c.Has(AfterDamage))
}

func TestTrigger_PriorityThenRegistrationOrder(t *testing.T) {
	c := NewCenter()
	var order []string
	reg := func(p int, name string) {
		c.Register("ev", p, name, func(_ context.Context, _ string, d interface{}) (interface{}, error) {
			order = append(order, name)
			return d, nil
		})
	}
	reg(10, "late")
	reg(1, "first")
	reg(5, "mid-a")
	reg(5, "mid-b")
	_, _ = c.Trigger(context.Background(), "ev", nil)
	assert.Equal(t, []string{"first", "mid-a", "mid-b", "late"}, order)
}

func TestTrigger_Interrupt(t *testing.T) {
	c := NewCenter()
	second := false
	c.Register("ev", 0, "stop", func(_ context.Context, _ string, d interface{}) (interface{}, error) {
		return "stopped", ErrInterrupt
	})
	c.Register("ev", 1, "never", func(_ context.Context, _ string, d interface{}) (interface{}, error) {
		second = true
		return d, nil
	})
	out, err := c.Trigger(context.Background(), "ev", "in")
	assert.True(t, errors.Is(err, ErrInterrupt))
	assert.Equal(t, "stopped", out)
	assert.False(t, second)
}

func TestTrigger_ErrorKeepsPreviousData(t *testing.T) {
	c := NewCenter()
	c.Register("ev", 0, "bad", func(_ context.Context, _ string, d interface{}) (interface{}, error) {
		return "garbage", errors.New("failed")
	})
	out, err := c.Trigger(context.Background(), "ev", "in")
	require.NoError(t, err)
	assert.Equal(t, "in", out)
}

func TestUnregister(t *testing.T) {
	c := NewCenter()
	var a, b bool
	c.Register(OnDispel, 0, "a", func(_ context.Context, _ string, d interface{}) (interface{}, error) { a = true; return d, nil })
	c.Register(OnDispel, 0, "b", func(_ context.Context, _ string, d interface{}) (interface{}, error) { b = true; return d, nil })
	c.Register(AfterHeal, 0, "a", func(_ context.Context, _ string, d interface{}) (interface{}, error) { a = true; return d, nil })

	c.Unregister(OnDispel, "a")
	_, _ = c.Trigger(context.Background(), OnDispel, nil)
	assert.False(t, a)
	assert.True(t, b)

	c.UnregisterAll("a")
	_, _ = c.Trigger(context.Background(), AfterHeal, nil)
	assert.False(t, a)
	assert.False(t, c.Has(AfterHeal))
}

func TestTrigger_Concurrent(t *testing.T) {
	c := NewCenter()
	var mu sync.Mutex
	n := 0
	c.Register(OnEffectApplied, 0, "count", func(_ context.Context, _ string, d interface{}) (interface{}, error) {
		mu.Lock()
		n++
		mu.Unlock()
		return d, nil
	})
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Trigger(context.Background(), OnEffectApplied, nil)
		}()
	}
	wg.Wait()
	assert.Equal(t, 32, n)
}
