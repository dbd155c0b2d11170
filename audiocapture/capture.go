// Package audiocapture records microphone audio into a mono 16 kHz sample
// buffer on top of a long-lived capture engine.
package audiocapture

import (
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/catvomitingrainbows/vocal-liquid/internal/types"
)

// TargetSampleRate is the rate every recording is converted to.
const TargetSampleRate = 16000

// ErrEngineStart is returned when the capture engine cannot be started.
var ErrEngineStart = types.NewKindError(types.ErrorEngineStartFailed, "audiocapture: engine start failed")

// ErrClosed is returned when the engine is used after Close.
var ErrClosed = errors.New("audiocapture: closed")

// Chunk is one delivery from the engine in the hardware's native format.
// Samples are interleaved float32 frames and only valid during the tap call.
type Chunk struct {
	Samples    []float32
	Channels   int
	SampleRate int
}

// Engine is the platform capture engine. It is started once and kept warm
// between recordings; the tap is installed and removed per recording.
type Engine interface {
	// Start starts the engine. Starting a running engine is a no-op.
	Start() error
	// Running reports whether the engine is delivering audio.
	Running() bool
	// SetTap installs the chunk callback, replacing any previous one.
	SetTap(tap func(Chunk))
	// RemoveTap uninstalls the callback. It must not wait for an in-flight
	// callback to return.
	RemoveTap()
	// Close stops the engine and releases the device.
	Close() error
}

// Config holds configuration for audio capture.
type Config struct {
	MaxDuration time.Duration    // Recording ceiling, default 4 hours
	Resample    ResamplerFactory // Used when the device rate is not 16 kHz
}

// DefaultConfig returns the default capture configuration.
func DefaultConfig() Config {
	return Config{
		MaxDuration: 4 * time.Hour,
	}
}

// Capture is the single audio capture service of the process.
type Capture struct {
	mu sync.Mutex

	engine Engine
	cfg    Config

	// State
	recording bool
	closed    bool
	startTime time.Time
	chunks    int

	buffer *Buffer
	conv   *converter
}

// New creates a capture service over engine. The engine is not started until
// the first recording.
func New(engine Engine, cfg Config) *Capture {
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultConfig().MaxDuration
	}
	maxSamples := int(int64(cfg.MaxDuration) * TargetSampleRate / int64(time.Second))

	return &Capture{
		engine: engine,
		cfg:    cfg,
		buffer: NewBuffer(maxSamples),
	}
}

// Start begins a recording. It returns false if already recording, or if the
// engine could not be started; in that case no tap is left installed.
func (c *Capture) Start() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recording || c.closed {
		return false
	}

	c.engine.RemoveTap()

	if !c.engine.Running() {
		if err := c.engine.Start(); err != nil {
			slog.Error("start audio engine", "error", err)
			return false
		}
	}

	c.buffer.Reset()
	c.conv = newConverter(c.cfg.Resample)
	c.chunks = 0
	c.recording = true
	c.startTime = time.Now()
	c.engine.SetTap(c.handleChunk)

	if !c.engine.Running() {
		c.recording = false
		c.conv.close()
		c.conv = nil
		c.engine.RemoveTap()
		slog.Error("audio engine not running after start")
		return false
	}

	slog.Info("audio capture started")
	return true
}

// Stop ends the recording. The flag is flipped under the same lock the tap
// appends under, so no chunk is appended once Stop returns. Stopping while
// not recording is a no-op.
func (c *Capture) Stop() {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return
	}
	c.recording = false

	if c.conv != nil {
		c.buffer.Append(c.conv.flush())
		c.conv.close()
		c.conv = nil
	}
	samples, dropped := c.buffer.Len(), c.buffer.Dropped()
	c.mu.Unlock()

	c.engine.RemoveTap()
	slog.Info("audio capture stopped", "samples", samples, "dropped", dropped)
}

// DrainSamples returns the samples of the current or last recording. The
// buffer is not cleared; call Clear once the samples have been handed off.
func (c *Capture) DrainSamples() []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clip(c.buffer.Samples())
}

// Clear releases the buffered samples. Slices returned by DrainSamples stay
// valid. It is a no-op while recording.
func (c *Capture) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recording {
		return
	}
	c.buffer.Reset()
}

// IsRecording returns true while a recording is active.
func (c *Capture) IsRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// Duration returns how long the current recording has been running.
func (c *Capture) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording {
		return 0
	}
	return time.Since(c.startTime)
}

// MaxDuration returns the recording ceiling.
func (c *Capture) MaxDuration() time.Duration {
	return c.cfg.MaxDuration
}

// Shutdown stops any recording and releases the engine. The capture cannot
// be restarted afterwards.
func (c *Capture) Shutdown() error {
	c.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.engine.Close()
}

// handleChunk runs on the engine's audio thread.
func (c *Capture) handleChunk(chunk Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.recording || c.conv == nil {
		return
	}

	full := c.buffer.Full()
	c.buffer.Append(c.conv.convert(chunk))
	if !full && c.buffer.Full() {
		slog.Warn("recording ceiling reached, dropping audio", "max", c.cfg.MaxDuration)
	}

	c.chunks++
	if c.chunks%100 == 0 {
		slog.Debug("captured audio chunks", "count", c.chunks, "samples", c.buffer.Len())
	}
}
