// Package notify shows user-visible notifications for recording events.
package notify

import (
	"fmt"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/catvomitingrainbows/vocal-liquid/internal/types"
)

// AppName is used as the notification title.
const AppName = "Vocal Liquid"

// maxShown bounds the persisted set of hints already shown.
const maxShown = 32

const shownPrefix = "notify/shown/"

// EventType is a notification class.
type EventType int

const (
	RecordingStarted EventType = iota
	Transcribing
	TranscriptionDone
	Failure
)

func (t EventType) String() string {
	switch t {
	case RecordingStarted:
		return "recording_started"
	case Transcribing:
		return "transcribing"
	case TranscriptionDone:
		return "transcription_done"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// Event is a single notification request.
type Event struct {
	Type      EventType
	SessionID string
	Kind      types.ErrorKind // Failure only
	Text      string          // TranscriptionDone only
}

// Tag identifies the event for deduplication.
func (e Event) Tag() string {
	if e.Type == Failure {
		return e.Type.String() + "/" + string(e.Kind)
	}
	return e.Type.String()
}

// hinted reports whether the event carries a settings hint that is shown at
// most once per install. The failure itself is always reported.
func (e Event) hinted() bool {
	return e.Type == Failure && e.Kind == types.ErrorPermissionDenied
}

// Sender delivers a notification to the desktop.
type Sender interface {
	Send(title, message string) error
}

// Storage persists the set of hints already shown.
type Storage interface {
	Exists(key string) (bool, error)
	Touch(key string) error
	Keys(prefix string) ([]string, error)
	DeletePrefix(prefix string) error
}

// Options configures a Notifier.
type Options struct {
	Enabled    bool
	PerSession int         // Max notifications per session, 0 for unlimited
	Allowed    func() bool // Optional permission gate
}

// Notifier rate-limits and deduplicates notifications.
type Notifier struct {
	sender Sender
	store  Storage
	opts   Options

	mu      sync.Mutex
	session string
	sent    int
	tags    map[string]bool
}

// New creates a Notifier. store may be nil, in which case one-time hints
// are shown with every failure.
func New(sender Sender, store Storage, opts Options) *Notifier {
	return &Notifier{
		sender: sender,
		store:  store,
		opts:   opts,
		tags:   make(map[string]bool),
	}
}

// NewSession resets per-session limits.
func (n *Notifier) NewSession(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.session = id
	n.sent = 0
	clear(n.tags)
}

// Notify shows ev unless it is a duplicate or the session limit is reached.
// It reports whether the notification was delivered.
func (n *Notifier) Notify(ev Event) bool {
	if !n.opts.Enabled {
		return false
	}
	if n.opts.Allowed != nil && !n.opts.Allowed() {
		slog.Debug("notification not permitted", "tag", ev.Tag())
		return false
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	tag := ev.Tag()
	if n.tags[tag] {
		slog.Debug("notification deduplicated", "tag", tag, "session", ev.SessionID)
		return false
	}
	if n.opts.PerSession > 0 && n.sent >= n.opts.PerSession {
		slog.Debug("notification limit reached", "tag", tag, "session", ev.SessionID)
		return false
	}
	hint := ev.hinted() && !n.shownLocked(tag)

	n.tags[tag] = true
	n.sent++

	title, message := render(ev, hint)
	if err := n.sender.Send(title, message); err != nil {
		slog.Warn("send notification", "tag", tag, "error", err)
		return false
	}
	if hint {
		n.markShownLocked(tag)
	}
	slog.Debug("notification sent", "tag", tag, "session", ev.SessionID)
	return true
}

// ResetShown forgets every one-time hint.
func (n *Notifier) ResetShown() error {
	if n.store == nil {
		return nil
	}
	return n.store.DeletePrefix(shownPrefix)
}

func (n *Notifier) shownLocked(tag string) bool {
	if n.store == nil {
		return false
	}
	ok, err := n.store.Exists(shownPrefix + tag)
	if err != nil {
		slog.Warn("read shown notifications", "error", err)
		return false
	}
	return ok
}

func (n *Notifier) markShownLocked(tag string) {
	if n.store == nil {
		return
	}
	keys, err := n.store.Keys(shownPrefix)
	if err == nil && len(keys) >= maxShown {
		err = n.store.DeletePrefix(shownPrefix)
	}
	if err == nil {
		err = n.store.Touch(shownPrefix + tag)
	}
	if err != nil {
		slog.Warn("persist shown notification", "tag", tag, "error", err)
	}
}

// previewLen is the number of runes of the transcript shown.
const previewLen = 60

func render(ev Event, hint bool) (title, message string) {
	switch ev.Type {
	case RecordingStarted:
		return AppName, "Recording… press the hotkey again to stop."
	case Transcribing:
		return AppName, "Transcribing…"
	case TranscriptionDone:
		return AppName + ": copied to clipboard", preview(ev.Text)
	case Failure:
		msg := ev.Kind.Message()
		if hint {
			msg += " Allow " + AppName + " in System Settings > Privacy & Security > Microphone."
		}
		return AppName, msg
	default:
		return AppName, fmt.Sprint(ev.Type)
	}
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLen {
		return text
	}
	r := []rune(text)
	return string(r[:previewLen]) + "…"
}
