// Package permission caches OS permission decisions so the user is prompted at
// most once per permission kind per install.
package permission

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// EnvSkip, when set to a truthy value, makes every check report granted.
// Development and testing only.
const EnvSkip = "VOCAL_LIQUID_SKIP_PERMISSIONS"

// Kind identifies a protected resource.
type Kind int

const (
	Microphone Kind = iota
	Notification
)

func (k Kind) String() string {
	switch k {
	case Microphone:
		return "microphone"
	case Notification:
		return "notification"
	default:
		return "unknown"
	}
}

// Status is the OS authorization status for a Kind.
type Status int

const (
	NotDetermined Status = iota
	Authorized
	Denied
	Restricted
)

func (s Status) String() string {
	switch s {
	case Authorized:
		return "authorized"
	case Denied:
		return "denied"
	case Restricted:
		return "restricted"
	default:
		return "not_determined"
	}
}

// conclusive reports whether the status is a final decision worth caching.
func (s Status) conclusive() bool {
	return s == Authorized || s == Denied || s == Restricted
}

// State is the persisted decision for one Kind.
// Granted is meaningless while Checked is false.
type State struct {
	Kind    Kind `json:"kind"`
	Checked bool `json:"checked"`
	Granted bool `json:"granted"`
}

// Authorizer talks to the platform permission subsystem.
type Authorizer interface {
	// Status returns the current status without prompting.
	Status(kind Kind) Status
	// Request prompts the user once and reports the decision asynchronously.
	Request(kind Kind, done func(granted bool))
}

// Storage persists permission flags.
type Storage interface {
	Bool(key string) (value, found bool, err error)
	SetBools(values map[string]bool) error
	DeletePrefix(prefix string) error
}

// Options configures a Cache.
type Options struct {
	// Bypass short-circuits every check to granted.
	Bypass bool
}

// BypassFromEnv reports whether EnvSkip is set to a truthy value.
func BypassFromEnv() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(EnvSkip))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Cache is the permission cache. It is safe for concurrent use.
type Cache struct {
	auth   Authorizer
	store  Storage
	bypass bool

	mu      sync.Mutex
	memo    map[Kind]State
	pending map[Kind][]func(bool)
}

// New creates a Cache backed by the given authorizer and storage.
func New(auth Authorizer, store Storage, opts Options) *Cache {
	if opts.Bypass {
		slog.Warn("permission checks bypassed", "env", EnvSkip)
	}
	return &Cache{
		auth:    auth,
		store:   store,
		bypass:  opts.Bypass,
		memo:    make(map[Kind]State),
		pending: make(map[Kind][]func(bool)),
	}
}

// IsGranted returns the cached decision without prompting. With no cached
// decision it reads the OS status and caches it when conclusive; an
// undetermined status returns false and is not cached.
func (c *Cache) IsGranted(kind Kind) bool {
	if c.bypass {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if st, ok := c.cachedLocked(kind); ok {
		return st.Granted
	}

	status := c.auth.Status(kind)
	if !status.conclusive() {
		slog.Debug("permission undetermined", "kind", kind)
		return false
	}
	return c.resolveLocked(kind, status == Authorized).Granted
}

// RequestIfNeeded invokes done with the cached decision if there is one.
// Otherwise it prompts once; callers arriving while that prompt is
// outstanding join it instead of prompting again and observe the same result.
func (c *Cache) RequestIfNeeded(kind Kind, done func(granted bool)) {
	if done == nil {
		done = func(bool) {}
	}
	if c.bypass {
		done(true)
		return
	}

	c.mu.Lock()
	if st, ok := c.cachedLocked(kind); ok {
		c.mu.Unlock()
		done(st.Granted)
		return
	}

	if waiters, inflight := c.pending[kind]; inflight {
		c.pending[kind] = append(waiters, done)
		c.mu.Unlock()
		slog.Debug("permission request already outstanding", "kind", kind)
		return
	}

	status := c.auth.Status(kind)
	if status.conclusive() {
		st := c.resolveLocked(kind, status == Authorized)
		c.mu.Unlock()
		done(st.Granted)
		return
	}

	c.pending[kind] = []func(bool){done}
	c.mu.Unlock()

	slog.Info("requesting permission", "kind", kind)
	c.auth.Request(kind, func(granted bool) {
		c.mu.Lock()
		c.resolveLocked(kind, granted)
		waiters := c.pending[kind]
		delete(c.pending, kind)
		c.mu.Unlock()

		for _, w := range waiters {
			w(granted)
		}
	})
}

// State returns the current decision for kind without querying the OS.
func (c *Cache) State(kind Kind) State {
	if c.bypass {
		return State{Kind: kind, Checked: true, Granted: true}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.cachedLocked(kind); ok {
		return st
	}
	return State{Kind: kind}
}

// Reset clears the cached decision for kind.
func (c *Cache) Reset(kind Kind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.memo, kind)
	return c.store.DeletePrefix(kindPrefix(kind))
}

// ResetAll clears every cached decision.
func (c *Cache) ResetAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.memo)
	return c.store.DeletePrefix(keyPrefix)
}

// cachedLocked returns a checked State from memory or storage.
func (c *Cache) cachedLocked(kind Kind) (State, bool) {
	if st, ok := c.memo[kind]; ok && st.Checked {
		return st, true
	}

	checked, found, err := c.store.Bool(checkedKey(kind))
	if err != nil {
		slog.Warn("read permission state", "kind", kind, "error", err)
		return State{}, false
	}
	if !found || !checked {
		return State{}, false
	}

	granted, _, err := c.store.Bool(grantedKey(kind))
	if err != nil {
		slog.Warn("read permission state", "kind", kind, "error", err)
		return State{}, false
	}

	st := State{Kind: kind, Checked: true, Granted: granted}
	c.memo[kind] = st
	return st, true
}

// resolveLocked records a decision in memory and storage.
func (c *Cache) resolveLocked(kind Kind, granted bool) State {
	st := State{Kind: kind, Checked: true, Granted: granted}
	c.memo[kind] = st

	err := c.store.SetBools(map[string]bool{
		checkedKey(kind): true,
		grantedKey(kind): granted,
	})
	if err != nil {
		slog.Error("persist permission state", "kind", kind, "error", err)
	}
	slog.Info("permission resolved", "kind", kind, "granted", granted)
	return st
}

const keyPrefix = "permission/"

func kindPrefix(kind Kind) string { return keyPrefix + kind.String() + "/" }
func checkedKey(kind Kind) string { return kindPrefix(kind) + "checked" }
func grantedKey(kind Kind) string { return kindPrefix(kind) + "granted" }
