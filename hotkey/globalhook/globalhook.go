// Package globalhook implements hotkey.Source with gohook.
package globalhook

import (
	"sync"

	hook "github.com/robotn/gohook"

	"github.com/catvomitingrainbows/vocal-liquid/hotkey"
)

// Source forwards key hold/release events from the system keyboard hook.
type Source struct {
	mu      sync.Mutex
	running bool
}

// New returns an idle source.
func New() *Source {
	return &Source{}
}

// Start starts the system hook.
func (s *Source) Start() (<-chan hotkey.KeyEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evChan := hook.Start()
	s.running = true

	out := make(chan hotkey.KeyEvent, 64)
	go func() {
		defer close(out)
		for ev := range evChan {
			switch ev.Kind {
			case hook.KeyHold:
				out <- hotkey.KeyEvent{Code: ev.Keycode, Down: true}
			case hook.KeyUp:
				out <- hotkey.KeyEvent{Code: ev.Keycode, Down: false}
			}
		}
	}()
	return out, nil
}

// Stop ends the system hook, which closes the event channel.
func (s *Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	hook.End()
}

// Keycode resolves a key name through gohook's keycode table.
func (s *Source) Keycode(name string) (uint16, bool) {
	code, ok := hook.Keycode[name]
	return code, ok
}
