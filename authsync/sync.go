// Package authsync keeps authentication state converging across every
// process ("tab") sharing a data folder. Events go out on two channels at
// once: an in-process subscriber hub, and a shared state file whose writes
// other processes pick up with a filesystem watcher. Neither channel orders
// against the other and an event can arrive twice, so subscribers must treat
// events as hints to re-check session state, never as the state itself.
package authsync

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Event is a cross-tab auth notification type.
type Event string

const (
	EventLogin          Event = "login"
	EventLogout         Event = "logout"
	EventSessionRefresh Event = "session_refresh"
)

// Message is the wire payload written to the state file. Deliberately thin:
// receivers re-fetch session state rather than trusting it.
type Message struct {
	Type      Event  `json:"type"`
	Timestamp int64  `json:"timestamp"`
	UserID    string `json:"userId,omitempty"`
}

// Broadcaster publishes and receives auth sync events.
type Broadcaster struct {
	statePath string

	mu          sync.Mutex
	listeners   map[int]func(Event)
	nextID      int
	watcher     *fsnotify.Watcher
	lastWritten []byte
	initialized bool
	nowTime     func() time.Time
}

// BroadcasterOption modifies a Broadcaster at construction.
type BroadcasterOption func(*Broadcaster)

// WithBroadcastNowTime sets the time source (primarily for testing).
func WithBroadcastNowTime(nowFunc func() time.Time) BroadcasterOption {
	return func(b *Broadcaster) {
		b.nowTime = nowFunc
	}
}

// New creates a Broadcaster around the shared state file. Call Init before
// expecting cross-process delivery.
func New(statePath string, options ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{
		statePath: statePath,
		listeners: make(map[int]func(Event)),
		nowTime:   time.Now,
	}
	for _, opt := range options {
		opt(b)
	}
	return b
}

// Init wires the filesystem watcher on the state file's directory. It is
// idempotent, and a watcher that cannot be created is tolerated: in-process
// delivery still works, only cross-process delivery is lost.
func (b *Broadcaster) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return nil
	}
	b.initialized = true

	if err := os.MkdirAll(filepath.Dir(b.statePath), 0o700); err != nil {
		return errors.Wrap(err, "[Broadcaster.Init] MkdirAll")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Debug().Err(err).Msg("auth sync falling back to in-process delivery only")
		return nil
	}
	// Watch the directory: the file may not exist yet, and atomic writers
	// replace it by rename.
	if err := watcher.Add(filepath.Dir(b.statePath)); err != nil {
		watcher.Close()
		log.Debug().Err(err).Msg("auth sync falling back to in-process delivery only")
		return nil
	}
	b.watcher = watcher

	go b.watchLoop(watcher)
	log.Debug().Str("path", b.statePath).Msg("auth sync initialized")
	return nil
}

func (b *Broadcaster) watchLoop(watcher *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Name != b.statePath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			b.deliverFromFile()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Debug().Err(err).Msg("auth sync watcher error")
		}
	}
}

func (b *Broadcaster) deliverFromFile() {
	data, err := os.ReadFile(b.statePath)
	if err != nil {
		return
	}

	b.mu.Lock()
	own := bytes.Equal(data, b.lastWritten)
	b.mu.Unlock()
	if own {
		// Our own write echoing back through the watcher.
		return
	}

	var message Message
	if err := json.Unmarshal(data, &message); err != nil {
		log.Debug().Err(err).Msg("auth sync state file unreadable")
		return
	}
	if message.Type == "" {
		return
	}
	b.dispatch(message.Type)
}

// Broadcast publishes an event on both channels simultaneously.
func (b *Broadcaster) Broadcast(eventType Event, userID string) {
	message := Message{
		Type:      eventType,
		Timestamp: b.nowTime().UnixMilli(),
		UserID:    userID,
	}

	b.dispatch(eventType)

	data, err := json.Marshal(message)
	if err != nil {
		log.Debug().Err(err).Msg("auth sync marshal failed")
		return
	}
	b.mu.Lock()
	b.lastWritten = data
	b.mu.Unlock()
	if err := os.WriteFile(b.statePath, data, 0o600); err != nil {
		log.Debug().Err(err).Msg("auth sync state write failed")
	}
}

func (b *Broadcaster) dispatch(eventType Event) {
	b.mu.Lock()
	callbacks := make([]func(Event), 0, len(b.listeners))
	for _, cb := range b.listeners {
		callbacks = append(callbacks, cb)
	}
	b.mu.Unlock()

	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("event", string(eventType)).
						Msg("auth sync listener panicked")
				}
			}()
			cb(eventType)
		}()
	}
}

// OnAuthSync subscribes to sync events and returns an unsubscribe function.
// The callback receives only the event type.
func (b *Broadcaster) OnAuthSync(callback func(Event)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = callback
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

// NotifyLogin tells other tabs a user signed in.
func (b *Broadcaster) NotifyLogin(userID string) {
	b.Broadcast(EventLogin, userID)
}

// NotifyLogout tells other tabs the user signed out.
func (b *Broadcaster) NotifyLogout() {
	b.Broadcast(EventLogout, "")
}

// NotifySessionRefresh tells other tabs the session tokens were renewed.
func (b *Broadcaster) NotifySessionRefresh(userID string) {
	b.Broadcast(EventSessionRefresh, userID)
}

// Cleanup closes the watcher and drops all listeners. Safe to call more
// than once; the broadcaster can be re-initialized afterwards.
func (b *Broadcaster) Cleanup() {
	b.mu.Lock()
	watcher := b.watcher
	b.watcher = nil
	b.listeners = make(map[int]func(Event))
	b.initialized = false
	b.mu.Unlock()

	if watcher != nil {
		watcher.Close()
	}
}
