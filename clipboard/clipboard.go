// Package clipboard replaces the system clipboard contents with plain text.
package clipboard

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/atotto/clipboard"
)

// ErrUnsupported is returned when no clipboard utility is available.
var ErrUnsupported = errors.New("clipboard: unsupported on this system")

// Writer replaces the clipboard contents.
type Writer interface {
	WriteText(text string) error
}

// System writes to the general pasteboard.
type System struct {
	mu sync.Mutex
}

// NewSystem returns the system clipboard writer.
func NewSystem() *System {
	if clipboard.Unsupported {
		slog.Warn("system clipboard unavailable")
	}
	return &System{}
}

// WriteText clears the clipboard and sets text as its only content.
func (s *System) WriteText(text string) error {
	if clipboard.Unsupported {
		return ErrUnsupported
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	slog.Debug("clipboard written", "chars", len(text))
	return nil
}
