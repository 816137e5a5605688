package clientfakes

import (
	"context"
	"sync"

	"github.com/saltyvip/turnstile/client"
)

var _ client.Launcher = (*FakeLauncher)(nil)
var _ client.Window = (*FakeWindow)(nil)

// FakeWindow is a controllable sign-in window for tests.
type FakeWindow struct {
	closed    chan struct{}
	closeOnce sync.Once
}

func NewFakeWindow() *FakeWindow {
	return &FakeWindow{closed: make(chan struct{})}
}

func (w *FakeWindow) Closed() <-chan struct{} { return w.closed }

// Close simulates the user dismissing the window.
func (w *FakeWindow) Close() {
	w.closeOnce.Do(func() { close(w.closed) })
}

// Dismiss is Close under a test-intent name.
func (w *FakeWindow) Dismiss() { w.Close() }

// FakeLauncher records opened URLs and hands out pre-built windows.
type FakeLauncher struct {
	mu      sync.Mutex
	opened  []string
	window  *FakeWindow
	openErr error

	// OnOpen, when set, runs on each Open with the URL about to open.
	OnOpen func(authURL string)
}

func NewFakeLauncher() *FakeLauncher {
	return &FakeLauncher{window: NewFakeWindow()}
}

// SetWindow replaces the window the next Open returns.
func (l *FakeLauncher) SetWindow(window *FakeWindow) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.window = window
}

// SetOpenError makes subsequent Opens fail.
func (l *FakeLauncher) SetOpenError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.openErr = err
}

func (l *FakeLauncher) Open(_ context.Context, authURL string, _ client.PopupFeatures) (client.Window, error) {
	l.mu.Lock()
	l.opened = append(l.opened, authURL)
	window, err, onOpen := l.window, l.openErr, l.OnOpen
	l.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if onOpen != nil {
		go onOpen(authURL)
	}
	return window, nil
}

// OpenedURLs returns every URL passed to Open.
func (l *FakeLauncher) OpenedURLs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.opened...)
}
