// Package hotkey registers one process-wide key combination and delivers its
// presses on the UI queue.
package hotkey

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// ErrEmptyCombo is returned for a combination without keys.
var ErrEmptyCombo = errors.New("hotkey: empty key combination")

// KeyEvent is a raw key transition from a Source.
type KeyEvent struct {
	Code uint16
	Down bool
}

// Source delivers global key events regardless of which application has focus.
type Source interface {
	// Start begins delivering events. The channel is closed after Stop.
	Start() (<-chan KeyEvent, error)
	Stop()
	// Keycode resolves a normalized key name.
	Keycode(name string) (uint16, bool)
}

// Poster runs callbacks serially, in order. dispatch.Queue implements it.
type Poster interface {
	Post(fn func()) bool
}

var aliases = map[string]string{
	"command":  "cmd",
	"super":    "cmd",
	"meta":     "cmd",
	"control":  "ctrl",
	"option":   "alt",
	"opt":      "alt",
	"return":   "enter",
	"spacebar": "space",
}

// ParseCombo splits a combination like "ctrl+shift+space" into normalized key
// names. The last key is the trigger; the rest are held modifiers.
func ParseCombo(s string) ([]string, error) {
	var keys []string
	for _, part := range strings.Split(s, "+") {
		k := strings.ToLower(strings.TrimSpace(part))
		if k == "" {
			continue
		}
		if a, ok := aliases[k]; ok {
			k = a
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil, ErrEmptyCombo
	}
	return keys, nil
}

type binding struct {
	combo    string
	codes    []uint16
	callback func()
}

// matches reports whether the press of code completes the combination.
func (b *binding) matches(pressed map[uint16]bool, code uint16) bool {
	if code != b.codes[len(b.codes)-1] {
		return false
	}
	for _, c := range b.codes {
		if !pressed[c] {
			return false
		}
	}
	return true
}

// Listener owns the global key observer.
type Listener struct {
	src   Source
	queue Poster

	mu      sync.Mutex
	active  *binding
	started bool
	done    chan struct{}
}

// NewListener creates a listener that posts callbacks to queue.
func NewListener(src Source, queue Poster) *Listener {
	return &Listener{src: src, queue: queue}
}

// Register installs combo. A previous registration is replaced.
func (l *Listener) Register(combo string, callback func()) error {
	keys, err := ParseCombo(combo)
	if err != nil {
		return err
	}
	codes := make([]uint16, len(keys))
	for i, k := range keys {
		code, ok := l.src.Keycode(k)
		if !ok {
			return fmt.Errorf("hotkey: unknown key %q in %q", k, combo)
		}
		codes[i] = code
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.active = &binding{combo: combo, codes: codes, callback: callback}

	if !l.started {
		events, err := l.src.Start()
		if err != nil {
			l.active = nil
			return fmt.Errorf("start key source: %w", err)
		}
		l.started = true
		l.done = make(chan struct{})
		go l.loop(events, l.done)
	}

	slog.Info("hotkey registered", "combo", combo)
	return nil
}

// Unregister stops the key source and removes the combination. Presses the
// source delivered before Stop are still posted.
func (l *Listener) Unregister() {
	l.mu.Lock()
	started, done := l.started, l.done
	l.started = false
	if !started {
		l.active = nil
	}
	l.mu.Unlock()

	if !started {
		return
	}
	l.src.Stop()
	<-done

	l.mu.Lock()
	if !l.started {
		l.active = nil
	}
	l.mu.Unlock()
	slog.Info("hotkey unregistered")
}

func (l *Listener) current() *binding {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

func (l *Listener) loop(events <-chan KeyEvent, done chan struct{}) {
	defer close(done)

	pressed := make(map[uint16]bool)
	for ev := range events {
		if !ev.Down {
			delete(pressed, ev.Code)
			continue
		}
		if pressed[ev.Code] {
			continue // auto-repeat
		}
		pressed[ev.Code] = true

		b := l.current()
		if b == nil || !b.matches(pressed, ev.Code) {
			continue
		}
		slog.Debug("hotkey pressed", "combo", b.combo)
		if !l.queue.Post(b.callback) {
			slog.Warn("hotkey press dropped, queue closed", "combo", b.combo)
		}
	}
}
