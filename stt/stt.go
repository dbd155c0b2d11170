// Package stt provides the transcription engine and its speech-to-text backends.
package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/catvomitingrainbows/vocal-liquid/internal/types"
)

// SampleRate is the input rate every backend expects.
const SampleRate = 16000

var (
	// ErrNoAudioSamples is returned for an empty sample sequence.
	ErrNoAudioSamples = types.NewKindError(types.ErrorNoAudioSamples, "stt: no audio samples")
	// ErrModelLoading is returned by every call once model loading failed.
	ErrModelLoading = types.NewKindError(types.ErrorModelLoadingFailed, "stt: model loading failed")
	// ErrNoSpeech is returned when the backend recognized nothing.
	ErrNoSpeech = types.NewKindError(types.ErrorTranscriptionFailed, "stt: no speech recognized")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("stt: engine closed")
)

// TranscriptionError reports a non-zero result from the external engine.
type TranscriptionError struct {
	Code   int
	Detail string
}

func (e *TranscriptionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("stt: transcription failed (code %d)", e.Code)
	}
	return fmt.Sprintf("stt: transcription failed (code %d): %s", e.Code, e.Detail)
}

// Kind implements types.Kinded.
func (e *TranscriptionError) Kind() types.ErrorKind {
	return types.ErrorTranscriptionFailed
}

// TranscribeResult represents the result of a transcription.
type TranscribeResult struct {
	Text     string    `json:"text"`     // Transcribed text
	Language string    `json:"language"` // Detected language code
	Segments []Segment `json:"segments"` // Time-stamped segments
}

// Segment represents a time-stamped audio segment.
type Segment struct {
	Text  string        `json:"text"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// Backend is an external speech-to-text implementation.
type Backend interface {
	// Name returns the backend identifier.
	Name() string

	// Transcribe converts audio samples to text.
	// samples: PCM float32 mono at 16000 Hz
	Transcribe(ctx context.Context, samples []float32) (*TranscribeResult, error)

	// Close releases resources held by the backend.
	Close() error
}

// Result is the outcome of one Engine.Transcribe call.
type Result struct {
	Text string
	Err  error
}

// Engine runs transcriptions off the caller's goroutine. A backend that
// failed to load leaves the engine permanently failing with ErrModelLoading.
type Engine struct {
	backend Backend
	loadErr error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewEngine wraps backend. Pass the error from constructing the backend as
// loadErr; a nil backend with a nil loadErr is treated as a load failure.
func NewEngine(backend Backend, loadErr error) *Engine {
	if backend == nil && loadErr == nil {
		loadErr = ErrModelLoading
	}
	if loadErr != nil {
		if !errors.Is(loadErr, ErrModelLoading) {
			loadErr = fmt.Errorf("%w: %v", ErrModelLoading, loadErr)
		}
		slog.Error("transcription unavailable", "error", loadErr)
		backend = nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		backend: backend,
		loadErr: loadErr,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Ready reports whether the backend loaded.
func (e *Engine) Ready() bool {
	return e.loadErr == nil
}

// Backend returns the backend name, or "" when none loaded.
func (e *Engine) Backend() string {
	if e.backend == nil {
		return ""
	}
	return e.backend.Name()
}

// Transcribe hands samples to the backend on a background goroutine and calls
// done with the outcome. Empty input, a failed model load, or a closed engine
// call done before Transcribe returns, without touching the backend.
func (e *Engine) Transcribe(samples []float32, done func(Result)) {
	if len(samples) == 0 {
		done(Result{Err: ErrNoAudioSamples})
		return
	}
	if e.loadErr != nil {
		done(Result{Err: e.loadErr})
		return
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		done(Result{Err: ErrClosed})
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		done(e.run(samples))
	}()
}

func (e *Engine) run(samples []float32) Result {
	start := time.Now()
	audioLen := time.Duration(len(samples)) * time.Second / SampleRate

	res, err := e.backend.Transcribe(e.ctx, samples)
	if err != nil {
		slog.Error("transcribe", "backend", e.backend.Name(), "audio", audioLen, "error", err)
		return Result{Err: err}
	}

	text := strings.TrimSpace(res.Text)
	slog.Info("transcribed",
		"backend", e.backend.Name(),
		"audio", audioLen,
		"took", time.Since(start).Round(time.Millisecond),
		"chars", len(text),
	)
	if text == "" {
		return Result{Err: ErrNoSpeech}
	}
	return Result{Text: text}
}

// Close cancels in-flight work, waits for it, and closes the backend.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()

	if e.backend != nil {
		return e.backend.Close()
	}
	return nil
}
