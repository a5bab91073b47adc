package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the circuit breaker behavior
type Settings struct {
	// Threshold is the run of consecutive failures that opens the breaker
	Threshold uint32
	// Trials is how many calls half-open admits; that many successes close it
	Trials uint32
	// Cooldown is how long the breaker stays open before going half-open
	Cooldown time.Duration
	// IsFailure classifies a call's error. Only failures move the breaker;
	// defaults to err != nil.
	IsFailure func(err error) bool
	// OnStateChange is called under the breaker lock on every transition
	OnStateChange func(name string, from State, to State)
}

// Breaker guards one engine against runs of budget failures
type Breaker struct {
	name     string
	settings Settings

	mu         sync.Mutex
	state      State
	generation uint64
	failures   uint32 // consecutive, closed state
	admitted   uint32 // half-open
	successes  uint32 // half-open
	openedAt   time.Time
}

// New creates a closed breaker
func New(name string, settings Settings) *Breaker {
	if settings.Threshold == 0 {
		settings.Threshold = 5
	}
	if settings.Trials == 0 {
		settings.Trials = 1
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = 30 * time.Second
	}
	if settings.IsFailure == nil {
		settings.IsFailure = func(err error) bool { return err != nil }
	}
	return &Breaker{name: name, settings: settings}
}

// State returns the current state, moving open to half-open once the
// cooldown has passed
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current(time.Now())
}

// Do runs req if the breaker admits it. A panic in req counts as a failure
// and is re-raised.
func (b *Breaker) Do(req func() error) error {
	generation, err := b.admit()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			b.record(generation, true)
			panic(r)
		}
	}()

	err = req()
	b.record(generation, b.settings.IsFailure(err))
	return err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.current(time.Now()) {
	case StateOpen:
		return b.generation, ErrCircuitOpen
	case StateHalfOpen:
		if b.admitted >= b.settings.Trials {
			return b.generation, ErrTooManyRequests
		}
		b.admitted++
	}
	return b.generation, nil
}

// record applies an outcome unless the breaker changed state since the call
// was admitted.
func (b *Breaker) record(generation uint64, failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state := b.current(now)
	if generation != b.generation {
		return
	}

	switch state {
	case StateClosed:
		if !failed {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.settings.Threshold {
			b.transition(StateOpen, now)
		}
	case StateHalfOpen:
		if failed {
			b.transition(StateOpen, now)
			return
		}
		b.successes++
		if b.successes >= b.settings.Trials {
			b.transition(StateClosed, now)
		}
	}
}

func (b *Breaker) current(now time.Time) State {
	if b.state == StateOpen && now.Sub(b.openedAt) >= b.settings.Cooldown {
		b.transition(StateHalfOpen, now)
	}
	return b.state
}

func (b *Breaker) transition(to State, now time.Time) {
	from := b.state
	b.state = to
	b.generation++
	b.failures, b.admitted, b.successes = 0, 0, 0
	if to == StateOpen {
		b.openedAt = now
	}
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}
