package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBudget = errors.New("budget exhausted")

func fail() error { return errBudget }
func pass() error { return nil }

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		calls    []func() error
		want     State
	}{
		{
			name:     "stays closed on successes",
			settings: Settings{Threshold: 2, Cooldown: time.Minute},
			calls:    []func() error{pass, pass, pass},
			want:     StateClosed,
		},
		{
			name:     "opens at threshold",
			settings: Settings{Threshold: 3, Cooldown: time.Minute},
			calls:    []func() error{fail, fail, fail},
			want:     StateOpen,
		},
		{
			name:     "success resets the run",
			settings: Settings{Threshold: 2, Cooldown: time.Minute},
			calls:    []func() error{fail, pass, fail, pass, fail},
			want:     StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaker := New("test", tt.settings)
			for _, call := range tt.calls {
				_ = breaker.Do(call)
			}
			assert.Equal(t, tt.want, breaker.State())
		})
	}
}

func TestBreakerOpenRejects(t *testing.T) {
	breaker := New("test", Settings{Threshold: 2, Cooldown: time.Minute})

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, breaker.Do(fail), errBudget)
	}
	require.Equal(t, StateOpen, breaker.State())

	called := false
	err := breaker.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpen(t *testing.T) {
	t.Run("trials close it", func(t *testing.T) {
		breaker := New("test", Settings{Threshold: 1, Trials: 2, Cooldown: 20 * time.Millisecond})
		_ = breaker.Do(fail)
		require.Equal(t, StateOpen, breaker.State())

		time.Sleep(30 * time.Millisecond)
		require.Equal(t, StateHalfOpen, breaker.State())

		require.NoError(t, breaker.Do(pass))
		assert.Equal(t, StateHalfOpen, breaker.State())
		require.NoError(t, breaker.Do(pass))
		assert.Equal(t, StateClosed, breaker.State())
	})

	t.Run("failure reopens it", func(t *testing.T) {
		breaker := New("test", Settings{Threshold: 1, Cooldown: 20 * time.Millisecond})
		_ = breaker.Do(fail)

		time.Sleep(30 * time.Millisecond)
		require.Equal(t, StateHalfOpen, breaker.State())

		_ = breaker.Do(fail)
		assert.Equal(t, StateOpen, breaker.State())
	})

	t.Run("admits only the trials", func(t *testing.T) {
		breaker := New("test", Settings{Threshold: 1, Trials: 1, Cooldown: 20 * time.Millisecond})
		_ = breaker.Do(fail)
		time.Sleep(30 * time.Millisecond)

		started := make(chan struct{})
		release := make(chan struct{})
		done := make(chan error, 1)
		go func() {
			done <- breaker.Do(func() error { close(started); <-release; return nil })
		}()
		<-started

		assert.ErrorIs(t, breaker.Do(pass), ErrTooManyRequests)

		close(release)
		require.NoError(t, <-done)
		assert.Equal(t, StateClosed, breaker.State())
	})
}

func TestBreakerOnStateChange(t *testing.T) {
	var transitions []string
	breaker := New("engine", Settings{
		Threshold: 2,
		Cooldown:  10 * time.Millisecond,
		OnStateChange: func(name string, from, to State) {
			assert.Equal(t, "engine", name)
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = breaker.Do(fail)
	_ = breaker.Do(fail)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, breaker.State())
	require.NoError(t, breaker.Do(pass))

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreakerIsFailure(t *testing.T) {
	errScript := errors.New("script threw")
	breaker := New("engine", Settings{
		Threshold: 2,
		Cooldown:  time.Minute,
		IsFailure: func(err error) bool { return errors.Is(err, errBudget) },
	})

	// Domain errors pass through but never trip the breaker.
	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, breaker.Do(func() error { return errScript }), errScript)
	}
	assert.Equal(t, StateClosed, breaker.State())

	_ = breaker.Do(fail)
	_ = breaker.Do(fail)
	assert.Equal(t, StateOpen, breaker.State())
}

func TestBreakerStaleOutcomeIgnored(t *testing.T) {
	breaker := New("engine", Settings{Threshold: 1, Cooldown: time.Minute})

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- breaker.Do(func() error { close(started); <-release; return nil })
	}()
	<-started

	// Trip the breaker while the first call is still running.
	_ = breaker.Do(fail)
	require.Equal(t, StateOpen, breaker.State())

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateOpen, breaker.State())
}

func TestBreakerPanicCountsAsFailure(t *testing.T) {
	breaker := New("engine", Settings{Threshold: 1})

	assert.Panics(t, func() {
		_ = breaker.Do(func() error { panic("boom") })
	})
	assert.Equal(t, StateOpen, breaker.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}
