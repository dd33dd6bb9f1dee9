package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errHandler = errors.New("handler failed")

func call(success bool) func() error {
	return func() error {
		if success {
			return nil
		}
		return errHandler
	}
}

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		calls    []bool
		expected State
	}{
		{
			name:     "stays closed on successes",
			settings: Settings{Timeout: time.Minute},
			calls:    []bool{true, true, true},
			expected: StateClosed,
		},
		{
			name:     "default trips after three failures",
			settings: Settings{Timeout: time.Minute},
			calls:    []bool{false, false, false},
			expected: StateOpen,
		},
		{
			name:     "success resets consecutive failures",
			settings: Settings{Timeout: time.Minute},
			calls:    []bool{false, false, true, false, false},
			expected: StateClosed,
		},
		{
			name: "custom trip condition",
			settings: Settings{
				Timeout: time.Minute,
				ReadyToTrip: func(counts Counts) bool {
					return counts.TotalFailures >= 1
				},
			},
			calls:    []bool{true, false},
			expected: StateOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("regions#1", tt.settings)
			for _, success := range tt.calls {
				_ = b.Execute(call(success))
			}
			assert.Equal(t, tt.expected, b.State())
		})
	}
}

func TestBreakerCounts(t *testing.T) {
	b := New("m", Settings{})

	require.NoError(t, b.Execute(call(true)))
	counts := b.Counts()
	assert.Equal(t, uint32(1), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalSuccesses)
	assert.Equal(t, uint32(1), counts.ConsecutiveSuccesses)

	assert.ErrorIs(t, b.Execute(call(false)), errHandler)
	counts = b.Counts()
	assert.Equal(t, uint32(2), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalFailures)
	assert.Equal(t, uint32(1), counts.ConsecutiveFailures)
	assert.Equal(t, uint32(0), counts.ConsecutiveSuccesses)
}

func TestBreakerOpenSkipsCall(t *testing.T) {
	b := New("m", Settings{Timeout: time.Minute})
	for i := 0; i < 3; i++ {
		_ = b.Execute(call(false))
	}
	require.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpen(t *testing.T) {
	b := New("m", Settings{MaxRequests: 2, Timeout: 20 * time.Millisecond})
	for i := 0; i < 3; i++ {
		_ = b.Execute(call(false))
	}
	require.Equal(t, StateOpen, b.State())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Execute(call(true)))
	assert.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, b.Execute(call(true)))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := New("m", Settings{Timeout: 20 * time.Millisecond})
	for i := 0; i < 3; i++ {
		_ = b.Execute(call(false))
	}
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	_ = b.Execute(call(false))
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerInterval(t *testing.T) {
	b := New("m", Settings{Interval: 20 * time.Millisecond})
	_ = b.Execute(call(false))
	_ = b.Execute(call(false))

	time.Sleep(30 * time.Millisecond)
	_ = b.Execute(call(false))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, uint32(1), b.Counts().ConsecutiveFailures)
}

func TestBreakerCallbacks(t *testing.T) {
	var mu sync.Mutex
	var transitions []string

	b := New("regions#2", Settings{
		Timeout: 10 * time.Millisecond,
		OnStateChange: func(name string, from, to State) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})

	for i := 0; i < 3; i++ {
		_ = b.Execute(call(false))
	}
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Execute(call(true)))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"regions#2:closed->open",
		"regions#2:open->half-open",
		"regions#2:half-open->closed",
	}, transitions)
}

func TestBreakerPanicCountsAsFailure(t *testing.T) {
	b := New("m", Settings{})
	assert.Panics(t, func() {
		_ = b.Execute(func() error { panic("boom") })
	})
	assert.Equal(t, uint32(1), b.Counts().TotalFailures)
}

func TestGroup(t *testing.T) {
	g := NewGroup(Settings{Timeout: time.Minute})

	for i := 0; i < 3; i++ {
		_ = g.Execute("bad", call(false))
		require.NoError(t, g.Execute("good", call(true)))
	}

	assert.Same(t, g.Get("bad"), g.Get("bad"))
	assert.Equal(t, map[string]State{
		"bad":  StateOpen,
		"good": StateClosed,
	}, g.States())
	assert.ErrorIs(t, g.Execute("bad", call(true)), ErrCircuitOpen)
}

func TestGroupConcurrent(t *testing.T) {
	g := NewGroup(Settings{})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = g.Execute("m", call(true))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint32(800), g.Get("m").Counts().TotalSuccesses)
}
