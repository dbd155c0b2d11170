package recorder

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/catvomitingrainbows/vocal-liquid/audiocapture"
	"github.com/catvomitingrainbows/vocal-liquid/internal/dispatch"
	"github.com/catvomitingrainbows/vocal-liquid/internal/types"
	"github.com/catvomitingrainbows/vocal-liquid/notify"
	"github.com/catvomitingrainbows/vocal-liquid/permission"
	"github.com/catvomitingrainbows/vocal-liquid/store"
	"github.com/catvomitingrainbows/vocal-liquid/stt"
)

// fakePermissions implements Permissions for testing.
type fakePermissions struct {
	mu       sync.Mutex
	granted  bool
	checked  bool
	requests int
}

func (f *fakePermissions) IsGranted(permission.Kind) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.granted
}

func (f *fakePermissions) State(kind permission.Kind) permission.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return permission.State{Kind: kind, Checked: f.checked, Granted: f.granted}
}

func (f *fakePermissions) RequestIfNeeded(_ permission.Kind, done func(bool)) {
	f.mu.Lock()
	f.requests++
	f.checked = true
	granted := f.granted
	f.mu.Unlock()
	go done(granted)
}

// fakeEngine implements audiocapture.Engine for testing.
type fakeEngine struct {
	mu       sync.Mutex
	running  bool
	startErr error
	starts   int
	tap      func(audiocapture.Chunk)
}

func (f *fakeEngine) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeEngine) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeEngine) SetTap(tap func(audiocapture.Chunk)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tap = tap
}

func (f *fakeEngine) RemoveTap() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tap = nil
}

func (f *fakeEngine) Close() error { return nil }

func (f *fakeEngine) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *fakeEngine) deliver(samples []float32) {
	f.mu.Lock()
	tap := f.tap
	f.mu.Unlock()
	if tap != nil {
		tap(audiocapture.Chunk{Samples: samples, Channels: 1, SampleRate: audiocapture.TargetSampleRate})
	}
}

// fakeTranscriber implements Transcriber. Calls are held until finish.
type fakeTranscriber struct {
	mu      sync.Mutex
	pending []func(stt.Result)
	samples []int
}

func (f *fakeTranscriber) Transcribe(samples []float32, done func(stt.Result)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, done)
	f.samples = append(f.samples, len(samples))
}

func (f *fakeTranscriber) finish(res stt.Result) {
	f.mu.Lock()
	pending := f.pending
	f.pending = nil
	f.mu.Unlock()
	for _, done := range pending {
		done(res)
	}
}

func (f *fakeTranscriber) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.samples)
}

// fakeClipboard implements clipboard.Writer.
type fakeClipboard struct {
	mu     sync.Mutex
	text   string
	writes int
	err    error
}

func (f *fakeClipboard) WriteText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.text = text
	f.writes++
	return nil
}

func (f *fakeClipboard) contents() (string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text, f.writes
}

// fakeNotifier implements Notifier.
type fakeNotifier struct {
	mu       sync.Mutex
	sessions []string
	events   []notify.Event
}

func (f *fakeNotifier) NewSession(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, id)
}

func (f *fakeNotifier) Notify(ev notify.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return true
}

func (f *fakeNotifier) failures() []types.ErrorKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kinds []types.ErrorKind
	for _, ev := range f.events {
		if ev.Type == notify.Failure {
			kinds = append(kinds, ev.Kind)
		}
	}
	return kinds
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type harness struct {
	rec     *Recorder
	queue   *dispatch.Queue
	capture *audiocapture.Capture
	perms   *fakePermissions
	engine  *fakeEngine
	stt     *fakeTranscriber
	clip    *fakeClipboard
	notes   *fakeNotifier
	states  chan types.Status
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		queue:  dispatch.New(),
		perms:  &fakePermissions{granted: true, checked: true},
		engine: &fakeEngine{},
		stt:    &fakeTranscriber{},
		clip:   &fakeClipboard{},
		notes:  &fakeNotifier{},
		states: make(chan types.Status, 16),
	}
	t.Cleanup(h.queue.Close)

	var n atomic.Int32
	if opts.NewID == nil {
		opts.NewID = func() string { return fmt.Sprintf("session-%d", n.Add(1)) }
	}

	h.capture = audiocapture.New(h.engine, audiocapture.DefaultConfig())
	h.rec = New(Deps{
		Permissions: h.perms,
		Capture:     h.capture,
		Transcriber: h.stt,
		Clipboard:   h.clip,
		Notifier:    h.notes,
		Queue:       h.queue,
	}, opts)
	h.rec.OnState(func(st types.Status) { h.states <- st })
	return h
}

// do runs fn on the UI queue and waits for it.
func (h *harness) do(fn func()) {
	h.queue.Sync(fn)
}

// flush waits for everything already posted to the queue.
func (h *harness) flush() {
	h.queue.Sync(func() {})
}

func (h *harness) waitState(t *testing.T, want types.State) types.Status {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-h.states:
			if st.State == want {
				return st
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s (current %s)", want, h.rec.State().State)
			return types.Status{}
		}
	}
}

func tone(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		if i%2 == 0 {
			s[i] = 0.3
		} else {
			s[i] = -0.3
		}
	}
	return s
}

func TestPermissionDenied(t *testing.T) {
	h := newHarness(t, Options{})
	h.perms.granted = false

	h.do(h.rec.Toggle)

	if st := h.rec.State(); st.State != types.StateIdle {
		t.Fatalf("state = %s, want idle", st.State)
	}
	if got := h.notes.failures(); len(got) != 1 || got[0] != types.ErrorPermissionDenied {
		t.Errorf("failures = %v, want [permission_denied]", got)
	}
	if h.engine.startCount() != 0 {
		t.Error("audio engine must not be started without permission")
	}
	if h.perms.requests != 0 {
		t.Error("a cached denial must not prompt")
	}
}

func TestPermissionUndeterminedRequests(t *testing.T) {
	h := newHarness(t, Options{})
	h.perms.granted = false
	h.perms.checked = false

	h.do(h.rec.Toggle)
	h.flush()

	if h.perms.requests != 1 {
		t.Errorf("requests = %d, want 1", h.perms.requests)
	}
	if h.rec.State().State != types.StateIdle {
		t.Error("press should still fail while the prompt is outstanding")
	}
	if got := h.notes.failures(); len(got) != 1 || got[0] != types.ErrorPermissionDenied {
		t.Errorf("failures = %v", got)
	}
}

func TestRecordTranscribeCopy(t *testing.T) {
	h := newHarness(t, Options{})

	h.do(h.rec.Toggle)
	if st := h.waitState(t, types.StateRecording); st.SessionID != "session-1" {
		t.Errorf("SessionID = %q", st.SessionID)
	}

	// Two seconds at 16 kHz, in 100 ms chunks.
	for i := 0; i < 20; i++ {
		h.engine.deliver(tone(1600))
	}

	h.do(h.rec.Toggle)
	st := h.waitState(t, types.StateTranscribing)
	if st.Samples != 32000 {
		t.Errorf("Samples = %d, want 32000", st.Samples)
	}

	h.stt.finish(stt.Result{Text: "hello world"})
	h.waitState(t, types.StateIdle)

	text, writes := h.clip.contents()
	if text != "hello world" || writes != 1 {
		t.Errorf("clipboard = %q (%d writes), want %q", text, writes, "hello world")
	}
	if got := h.notes.failures(); len(got) != 0 {
		t.Errorf("unexpected failures %v", got)
	}
}

func TestStopTwice(t *testing.T) {
	h := newHarness(t, Options{})

	h.do(h.rec.Toggle)
	h.engine.deliver(tone(160))
	h.do(h.rec.Stop)
	before := h.notes.count()

	h.do(h.rec.Stop)
	if h.notes.count() != before {
		t.Error("second Stop emitted a notification")
	}
	if h.stt.calls() != 1 {
		t.Errorf("transcriptions = %d, want 1", h.stt.calls())
	}

	// Stop while Idle is also a no-op.
	h.stt.finish(stt.Result{Text: "x"})
	h.waitState(t, types.StateIdle)
	after := h.notes.count()
	h.do(h.rec.Stop)
	h.do(h.rec.Stop)
	if h.notes.count() != after {
		t.Error("Stop while idle emitted a notification")
	}
}

func TestEngineStartFailure(t *testing.T) {
	h := newHarness(t, Options{})
	h.engine.startErr = errors.New("no input device")

	h.do(h.rec.Toggle)

	if h.rec.State().State != types.StateIdle {
		t.Fatal("expected idle")
	}
	if got := h.notes.failures(); len(got) != 1 || got[0] != types.ErrorEngineStartFailed {
		t.Errorf("failures = %v, want [engine_start_failed]", got)
	}
}

func TestEmptyRecording(t *testing.T) {
	h := newHarness(t, Options{})

	h.do(h.rec.Toggle)
	h.do(h.rec.Toggle)

	if h.rec.State().State != types.StateIdle {
		t.Fatal("expected idle")
	}
	if got := h.notes.failures(); len(got) != 1 || got[0] != types.ErrorNoAudioSamples {
		t.Errorf("failures = %v, want [no_audio_samples]", got)
	}
	if h.stt.calls() != 0 {
		t.Error("empty recording must not be transcribed")
	}
}

func TestHotkeyIgnoredWhileTranscribing(t *testing.T) {
	h := newHarness(t, Options{})

	h.do(h.rec.Toggle)
	h.engine.deliver(tone(160))
	h.do(h.rec.Toggle)
	h.do(h.rec.Toggle)

	if st := h.rec.State(); st.State != types.StateTranscribing {
		t.Fatalf("state = %s, want transcribing", st.State)
	}
	if h.engine.startCount() != 1 {
		t.Errorf("engine starts = %d, want 1", h.engine.startCount())
	}
}

func TestTranscriptionFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.ErrorKind
	}{
		{"exit code", &stt.TranscriptionError{Code: 2}, types.ErrorTranscriptionFailed},
		{"model", stt.ErrModelLoading, types.ErrorModelLoadingFailed},
		{"other", errors.New("boom"), types.ErrorUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Options{})
			h.do(h.rec.Toggle)
			h.engine.deliver(tone(160))
			h.do(h.rec.Toggle)

			h.stt.finish(stt.Result{Err: tt.err})
			h.waitState(t, types.StateIdle)

			if got := h.notes.failures(); len(got) != 1 || got[0] != tt.want {
				t.Errorf("failures = %v, want [%s]", got, tt.want)
			}
			if _, writes := h.clip.contents(); writes != 0 {
				t.Error("clipboard written on failure")
			}
		})
	}
}

func TestForceResetDropsLateResult(t *testing.T) {
	h := newHarness(t, Options{})

	h.do(h.rec.Toggle)
	h.engine.deliver(tone(160))
	h.do(h.rec.Toggle)
	h.do(h.rec.ForceReset)

	if h.rec.State().State != types.StateIdle {
		t.Fatal("expected idle after ForceReset")
	}

	// Start a new session before the abandoned result arrives.
	h.do(h.rec.Toggle)
	h.stt.finish(stt.Result{Text: "stale"})
	h.flush()

	if _, writes := h.clip.contents(); writes != 0 {
		t.Error("abandoned result reached the clipboard")
	}
	if st := h.rec.State(); st.State != types.StateRecording || st.SessionID != "session-2" {
		t.Errorf("status = %+v, want recording session-2", st)
	}
}

func TestForceResetWhileRecording(t *testing.T) {
	h := newHarness(t, Options{})

	h.do(h.rec.Toggle)
	h.engine.deliver(tone(160))
	h.do(h.rec.ForceReset)

	if h.rec.State().State != types.StateIdle {
		t.Fatal("expected idle")
	}
	if h.stt.calls() != 0 {
		t.Error("abandoned recording must not be transcribed")
	}

	h.do(h.rec.Toggle)
	h.do(h.rec.Toggle)
	if got := h.notes.failures(); len(got) != 1 || got[0] != types.ErrorNoAudioSamples {
		t.Errorf("discarded samples leaked into the next session: %v", got)
	}
}

func TestCeilingStopsRecording(t *testing.T) {
	h := newHarness(t, Options{MaxDuration: 20 * time.Millisecond})

	h.do(h.rec.Toggle)
	h.engine.deliver(tone(160))

	h.waitState(t, types.StateTranscribing)
	if h.stt.calls() != 1 {
		t.Errorf("transcriptions = %d, want 1", h.stt.calls())
	}
}

func TestClipboardFailure(t *testing.T) {
	h := newHarness(t, Options{})
	h.clip.err = errors.New("pasteboard busy")

	h.do(h.rec.Toggle)
	h.engine.deliver(tone(160))
	h.do(h.rec.Toggle)
	h.stt.finish(stt.Result{Text: "hello"})
	h.waitState(t, types.StateIdle)

	if got := h.notes.failures(); len(got) != 1 || got[0] != types.ErrorUnknown {
		t.Errorf("failures = %v, want [unknown]", got)
	}
}

func TestSilenceTrimmed(t *testing.T) {
	h := newHarness(t, Options{SilenceThreshold: 0.01})

	h.do(h.rec.Toggle)
	h.engine.deliver(make([]float32, 16000))
	h.engine.deliver(tone(1600))
	h.engine.deliver(make([]float32, 16000))
	h.do(h.rec.Toggle)

	st := h.waitState(t, types.StateTranscribing)
	if st.Samples >= 33600 || st.Samples < 1600 {
		t.Errorf("Samples = %d, want silence trimmed around 1600", st.Samples)
	}
}

func TestSilentRecordingIsEmpty(t *testing.T) {
	h := newHarness(t, Options{SilenceThreshold: 0.01})

	h.do(h.rec.Toggle)
	h.engine.deliver(make([]float32, 16000))
	h.do(h.rec.Toggle)

	if got := h.notes.failures(); len(got) != 1 || got[0] != types.ErrorNoAudioSamples {
		t.Errorf("failures = %v, want [no_audio_samples]", got)
	}
	if h.stt.calls() != 0 {
		t.Error("silent recording must not be transcribed")
	}
}

func TestBufferReleasedAfterHandOff(t *testing.T) {
	tests := []struct {
		name   string
		finish func(t *testing.T, h *harness)
	}{
		{"success", func(t *testing.T, h *harness) {
			h.stt.finish(stt.Result{Text: "hello world"})
			h.waitState(t, types.StateIdle)
		}},
		{"failure", func(t *testing.T, h *harness) {
			h.stt.finish(stt.Result{Err: &stt.TranscriptionError{Code: 1}})
			h.waitState(t, types.StateIdle)
		}},
		{"reset", func(_ *testing.T, h *harness) {
			h.do(h.rec.ForceReset)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Options{})
			h.do(h.rec.Toggle)
			for i := 0; i < 20; i++ {
				h.engine.deliver(tone(1600))
			}
			h.do(h.rec.Toggle)
			h.waitState(t, types.StateTranscribing)

			if got := len(h.capture.DrainSamples()); got != 0 {
				t.Errorf("capture holds %d samples while transcribing", got)
			}
			tt.finish(t, h)
			if got := len(h.capture.DrainSamples()); got != 0 {
				t.Errorf("capture holds %d samples once idle", got)
			}
		})
	}
}

func TestForceResetReleasesRecording(t *testing.T) {
	h := newHarness(t, Options{})

	h.do(h.rec.Toggle)
	h.engine.deliver(tone(1600))
	h.do(h.rec.ForceReset)

	if got := len(h.capture.DrainSamples()); got != 0 {
		t.Errorf("capture holds %d samples after reset", got)
	}
}

// countingSender implements notify.Sender.
type countingSender struct {
	mu   sync.Mutex
	msgs []string
}

func (c *countingSender) Send(_, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, message)
	return nil
}

func (c *countingSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func TestEveryDeniedPressNotifies(t *testing.T) {
	s, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	sender := &countingSender{}
	h := newHarness(t, Options{})
	h.perms.granted = false
	rec := New(Deps{
		Permissions: h.perms,
		Capture:     h.capture,
		Transcriber: h.stt,
		Clipboard:   h.clip,
		Notifier:    notify.New(sender, s, notify.Options{Enabled: true, PerSession: 3}),
		Queue:       h.queue,
	}, Options{})

	for i := 1; i <= 3; i++ {
		h.do(rec.Toggle)
		if got := sender.count(); got != i {
			t.Fatalf("press %d: notifications = %d, want %d", i, got, i)
		}
	}
	if rec.State().State != types.StateIdle {
		t.Error("denied presses must leave the recorder idle")
	}
}
