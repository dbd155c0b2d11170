// Package recorder drives the Idle → Recording → Transcribing cycle.
//
// Every exported method except State must run on the UI queue; background
// work (permission prompts, transcription, the recording ceiling) posts its
// continuation back to that queue.
package recorder

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/catvomitingrainbows/vocal-liquid/audiocapture"
	"github.com/catvomitingrainbows/vocal-liquid/clipboard"
	"github.com/catvomitingrainbows/vocal-liquid/internal/types"
	"github.com/catvomitingrainbows/vocal-liquid/notify"
	"github.com/catvomitingrainbows/vocal-liquid/permission"
	"github.com/catvomitingrainbows/vocal-liquid/stt"
)

// Permissions is the subset of permission.Cache used here.
type Permissions interface {
	IsGranted(kind permission.Kind) bool
	State(kind permission.Kind) permission.State
	RequestIfNeeded(kind permission.Kind, done func(granted bool))
}

// Capture is the subset of audiocapture.Capture used here.
type Capture interface {
	Start() bool
	Stop()
	DrainSamples() []float32
	Clear()
}

// Transcriber is the subset of stt.Engine used here.
type Transcriber interface {
	Transcribe(samples []float32, done func(stt.Result))
}

// Notifier is the subset of notify.Notifier used here.
type Notifier interface {
	NewSession(id string)
	Notify(ev notify.Event) bool
}

// Poster schedules work on the UI queue.
type Poster interface {
	Post(fn func()) bool
}

// Deps are the collaborators of a Recorder.
type Deps struct {
	Permissions Permissions
	Capture     Capture
	Transcriber Transcriber
	Clipboard   clipboard.Writer
	Notifier    Notifier
	Queue       Poster
}

// Options configures a Recorder.
type Options struct {
	// MaxDuration stops a recording automatically; zero disables the ceiling.
	MaxDuration time.Duration
	// SilenceThreshold trims leading and trailing frames whose RMS is at or
	// below it; an entirely silent recording counts as empty. Zero disables.
	SilenceThreshold float32
	// NewID generates session ids. Defaults to uuid.NewString.
	NewID func() string
}

// Recorder is the recording orchestrator.
type Recorder struct {
	deps  Deps
	opts  Options
	timer *time.Timer

	observers []func(types.Status)

	mu     sync.RWMutex
	status types.Status
}

// New creates a Recorder in the Idle state.
func New(deps Deps, opts Options) *Recorder {
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Recorder{
		deps:   deps,
		opts:   opts,
		status: types.Status{State: types.StateIdle, Since: time.Now()},
	}
}

// OnState registers fn to be called on the UI queue after every transition.
// It must be called before the first transition.
func (r *Recorder) OnState(fn func(types.Status)) {
	r.observers = append(r.observers, fn)
}

// State returns the current status. Safe from any goroutine.
func (r *Recorder) State() types.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Toggle handles a hotkey press.
func (r *Recorder) Toggle() {
	st := r.State()
	switch st.State {
	case types.StateIdle:
		r.start()
	case types.StateRecording:
		r.stop()
	case types.StateTranscribing:
		slog.Info("hotkey ignored while transcribing", "session", st.SessionID)
	}
}

// Stop ends the current recording. It is a no-op unless Recording.
func (r *Recorder) Stop() {
	st := r.State()
	if st.State != types.StateRecording {
		slog.Debug("stop ignored", "state", st.State)
		return
	}
	r.stop()
}

// ForceReset abandons any recording or in-flight transcription and returns
// to Idle. A late transcription result is discarded.
func (r *Recorder) ForceReset() {
	st := r.State()
	if st.State == types.StateIdle {
		return
	}
	r.stopTimer()
	if st.State == types.StateRecording {
		r.deps.Capture.Stop()
	}
	r.deps.Capture.Clear()
	slog.Warn("recording session abandoned", "session", st.SessionID, "state", st.State)
	r.setStatus(types.Status{State: types.StateIdle})
}

func (r *Recorder) start() {
	id := r.opts.NewID()
	r.deps.Notifier.NewSession(id)

	if !r.deps.Permissions.IsGranted(permission.Microphone) {
		if !r.deps.Permissions.State(permission.Microphone).Checked {
			r.requestMicrophone()
		}
		slog.Warn("recording refused", "session", id, "reason", types.ErrorPermissionDenied)
		r.fail(id, types.ErrorPermissionDenied)
		return
	}

	if !r.deps.Capture.Start() {
		slog.Error("recording refused", "session", id, "reason", types.ErrorEngineStartFailed)
		r.fail(id, types.ErrorEngineStartFailed)
		return
	}

	slog.Info("recording started", "session", id)
	r.setStatus(types.Status{State: types.StateRecording, SessionID: id})
	r.deps.Notifier.Notify(notify.Event{Type: notify.RecordingStarted, SessionID: id})
	r.armTimer(id)
}

// requestMicrophone prompts for access. The current press still fails; a
// grant makes the next press work.
func (r *Recorder) requestMicrophone() {
	r.deps.Permissions.RequestIfNeeded(permission.Microphone, func(granted bool) {
		r.deps.Queue.Post(func() {
			slog.Info("microphone permission decided", "granted", granted)
		})
	})
}

func (r *Recorder) stop() {
	id := r.State().SessionID
	r.stopTimer()
	r.deps.Capture.Stop()
	samples := r.deps.Capture.DrainSamples()
	r.deps.Capture.Clear()
	if r.opts.SilenceThreshold > 0 && len(samples) > 0 {
		trimmed := audiocapture.TrimSilence(samples, r.opts.SilenceThreshold)
		slog.Debug("silence trimmed", "session", id, "from", len(samples), "to", len(trimmed))
		samples = trimmed
	}

	if len(samples) == 0 {
		slog.Warn("recording empty", "session", id)
		r.setStatus(types.Status{State: types.StateIdle})
		r.fail(id, types.ErrorNoAudioSamples)
		return
	}

	slog.Info("recording stopped",
		"session", id,
		"samples", len(samples),
		"audio", time.Duration(len(samples))*time.Second/stt.SampleRate,
	)
	r.setStatus(types.Status{State: types.StateTranscribing, SessionID: id, Samples: len(samples)})
	r.deps.Notifier.Notify(notify.Event{Type: notify.Transcribing, SessionID: id})

	r.deps.Transcriber.Transcribe(samples, func(res stt.Result) {
		r.deps.Queue.Post(func() { r.complete(id, res) })
	})
}

func (r *Recorder) complete(id string, res stt.Result) {
	st := r.State()
	if st.State != types.StateTranscribing || st.SessionID != id {
		slog.Info("stale transcription dropped", "session", id, "current", st.SessionID)
		return
	}

	if res.Err != nil {
		r.setStatus(types.Status{State: types.StateIdle})
		r.fail(id, types.KindOf(res.Err))
		return
	}

	if err := r.deps.Clipboard.WriteText(res.Text); err != nil {
		slog.Error("copy transcription", "session", id, "error", err)
		r.setStatus(types.Status{State: types.StateIdle})
		r.fail(id, types.ErrorUnknown)
		return
	}

	r.setStatus(types.Status{State: types.StateIdle})
	r.deps.Notifier.Notify(notify.Event{Type: notify.TranscriptionDone, SessionID: id, Text: res.Text})
}

func (r *Recorder) fail(id string, kind types.ErrorKind) {
	r.deps.Notifier.Notify(notify.Event{Type: notify.Failure, SessionID: id, Kind: kind})
}

func (r *Recorder) armTimer(id string) {
	if r.opts.MaxDuration <= 0 {
		return
	}
	r.timer = time.AfterFunc(r.opts.MaxDuration, func() {
		r.deps.Queue.Post(func() {
			st := r.State()
			if st.State != types.StateRecording || st.SessionID != id {
				return
			}
			slog.Info("recording ceiling reached", "session", id, "max", r.opts.MaxDuration)
			r.stop()
		})
	})
}

func (r *Recorder) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Recorder) setStatus(st types.Status) {
	st.Since = time.Now()

	r.mu.Lock()
	prev := r.status.State
	r.status = st
	r.mu.Unlock()

	slog.Debug("recorder state", "from", prev, "to", st.State, "session", st.SessionID)
	for _, fn := range r.observers {
		fn(st)
	}
}
