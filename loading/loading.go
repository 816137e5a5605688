// Package loading tracks the visible progress of async auth operations:
// a small idle/loading state machine with listener fan-out, plus wrappers
// that enforce minimum and maximum visible durations around an operation.
package loading

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// OperationType labels what kind of operation is in flight.
type OperationType string

const (
	TypeLogin   OperationType = "login"
	TypeLogout  OperationType = "logout"
	TypeRenewal OperationType = "renewal"
	TypeGeneric OperationType = "generic"
)

// State is a snapshot of the manager.
type State struct {
	Loading   bool
	Type      OperationType
	Provider  string
	Message   string
	Progress  int // 0-100
	StartTime time.Time
}

// StartOptions configures a loading episode.
type StartOptions struct {
	Type     OperationType
	Provider string
	Message  string
	Timeout  time.Duration // auto-stop when exceeded, zero disables
}

// Listener receives every state mutation.
type Listener func(State)

// Manager is the loading state machine. Safe for concurrent use.
type Manager struct {
	mu        sync.Mutex
	state     State
	listeners map[int]Listener
	nextID    int
	timeout   *time.Timer
	nowTime   func() time.Time
}

// ManagerOption modifies a Manager at construction.
type ManagerOption func(*Manager)

// WithNowTime sets the time source (primarily for testing).
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// NewManager creates an idle Manager.
func NewManager(options ...ManagerOption) *Manager {
	m := &Manager{
		listeners: make(map[int]Listener),
		nowTime:   time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// Start enters the loading state. A second Start replaces the current
// episode. When options.Timeout is set, Stop fires automatically after it.
func (m *Manager) Start(options StartOptions) {
	opType := options.Type
	if opType == "" {
		opType = TypeGeneric
	}

	m.mu.Lock()
	m.stopTimerLocked()
	m.state = State{
		Loading:   true,
		Type:      opType,
		Provider:  options.Provider,
		Message:   options.Message,
		Progress:  0,
		StartTime: m.nowTime(),
	}
	if options.Timeout > 0 {
		m.timeout = time.AfterFunc(options.Timeout, m.Stop)
	}
	snapshot := m.state
	m.mu.Unlock()

	m.notify(snapshot)
}

// Stop returns to idle. Idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.state.Loading {
		m.mu.Unlock()
		return
	}
	m.stopTimerLocked()
	m.state = State{}
	snapshot := m.state
	m.mu.Unlock()

	m.notify(snapshot)
}

func (m *Manager) stopTimerLocked() {
	if m.timeout != nil {
		m.timeout.Stop()
		m.timeout = nil
	}
}

// UpdateProgress sets progress, clamped to 0-100. No-op while idle.
func (m *Manager) UpdateProgress(progress int) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	m.mutate(func(s *State) { s.Progress = progress })
}

// UpdateMessage replaces the status message. No-op while idle.
func (m *Manager) UpdateMessage(message string) {
	m.mutate(func(s *State) { s.Message = message })
}

// UpdateType replaces the operation type. No-op while idle.
func (m *Manager) UpdateType(opType OperationType) {
	m.mutate(func(s *State) { s.Type = opType })
}

func (m *Manager) mutate(fn func(*State)) {
	m.mu.Lock()
	if !m.state.Loading {
		m.mu.Unlock()
		return
	}
	fn(&m.state)
	snapshot := m.state
	m.mu.Unlock()

	m.notify(snapshot)
}

// Reset forces idle and drops all listeners.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.stopTimerLocked()
	m.state = State{}
	m.listeners = make(map[int]Listener)
	m.mu.Unlock()
}

// State returns the current snapshot.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsLoading reports whether an episode is in flight.
func (m *Manager) IsLoading() bool {
	return m.State().Loading
}

// Duration reports how long the current episode has been running, zero
// while idle.
func (m *Manager) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.Loading {
		return 0
	}
	return m.nowTime().Sub(m.state.StartTime)
}

// AddListener subscribes to state mutations and returns an unsubscribe
// function.
func (m *Manager) AddListener(listener Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = listener
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *Manager) notify(snapshot State) {
	m.mu.Lock()
	callbacks := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		callbacks = append(callbacks, l)
	}
	m.mu.Unlock()

	for _, callback := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Msg("loading listener panicked")
				}
			}()
			callback(snapshot)
		}()
	}
}

// ErrOperationTimeout is returned by Execute when maxDuration is exceeded.
var ErrOperationTimeout = errors.New("operation timed out")

// ExecuteOptions configures Execute.
type ExecuteOptions struct {
	Start        StartOptions
	MinDuration  time.Duration // loading stays visible at least this long
	MaxDuration  time.Duration // operation fails after this, zero disables
	ErrorHandler func(error)
}

// Execute wraps an operation in a loading episode. The episode stays
// visible for at least MinDuration to avoid flicker, the operation is
// abandoned after MaxDuration, and Stop always runs before the error is
// returned. ErrorHandler, when set, sees the error first.
func Execute[T any](ctx context.Context, manager *Manager, options ExecuteOptions, operation func(context.Context) (T, error)) (T, error) {
	var zero T

	manager.Start(options.Start)
	defer manager.Stop()

	opCtx := ctx
	var cancel context.CancelFunc
	if options.MaxDuration > 0 {
		opCtx, cancel = context.WithTimeout(ctx, options.MaxDuration)
		defer cancel()
	}

	started := time.Now()
	result, err := operation(opCtx)
	if err == nil && opCtx.Err() != nil {
		err = opCtx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = ErrOperationTimeout
	}

	if remaining := options.MinDuration - time.Since(started); remaining > 0 {
		select {
		case <-time.After(remaining):
		case <-ctx.Done():
		}
	}

	if err != nil {
		if options.ErrorHandler != nil {
			options.ErrorHandler(err)
		}
		return zero, err
	}
	return result, nil
}

// WithThreshold delays the visible start of an episode: operations that
// finish inside the threshold never show loading at all.
func WithThreshold(manager *Manager, threshold time.Duration, options StartOptions) (cancelStart func()) {
	timer := time.AfterFunc(threshold, func() {
		manager.Start(options)
	})
	return func() {
		timer.Stop()
		manager.Stop()
	}
}

// Debounced coalesces bursts of start requests: only the last request
// inside the wait window actually starts an episode.
type Debounced struct {
	manager *Manager
	wait    time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewDebounced wraps a manager with a debounce window.
func NewDebounced(manager *Manager, wait time.Duration) *Debounced {
	return &Debounced{manager: manager, wait: wait}
}

// Start schedules an episode; an earlier pending start is replaced.
func (d *Debounced) Start(options StartOptions) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.wait, func() {
		d.manager.Start(options)
	})
}

// Stop cancels any pending start and stops the manager.
func (d *Debounced) Stop() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
	d.manager.Stop()
}
