// Package mic implements audiocapture.Engine on the default microphone using
// miniaudio through malgo.
package mic

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/catvomitingrainbows/vocal-liquid/audiocapture"
)

// Engine is a long-lived capture device. The device is opened in its native
// channel count and sample rate with float32 samples.
type Engine struct {
	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	running bool
	closed  bool

	channels   int
	sampleRate int

	tap     atomic.Pointer[func(audiocapture.Chunk)]
	scratch []float32 // only touched on the audio thread
}

// New returns an engine. No device is opened until Start.
func New() *Engine {
	return &Engine{}
}

// Start opens and starts the default capture device.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return audiocapture.ErrClosed
	}
	if e.running {
		return nil
	}

	if e.ctx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
			slog.Debug("miniaudio", "msg", strings.TrimSpace(msg))
		})
		if err != nil {
			return fmt.Errorf("%w: init context: %v", audiocapture.ErrEngineStart, err)
		}
		e.ctx = ctx
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 0 // native
	cfg.SampleRate = 0       // native

	device, err := malgo.InitDevice(e.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: e.onData,
	})
	if err != nil {
		return fmt.Errorf("%w: init device: %v", audiocapture.ErrEngineStart, err)
	}

	e.channels = int(device.CaptureChannels())
	e.sampleRate = int(device.SampleRate())

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("%w: start device: %v", audiocapture.ErrEngineStart, err)
	}

	e.device = device
	e.running = true
	slog.Info("audio engine started", "channels", e.channels, "sample_rate", e.sampleRate)
	return nil
}

// Running reports whether the device is started.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running && e.device != nil && e.device.IsStarted()
}

// SetTap installs the chunk callback.
func (e *Engine) SetTap(tap func(audiocapture.Chunk)) {
	e.tap.Store(&tap)
}

// RemoveTap uninstalls the chunk callback without waiting.
func (e *Engine) RemoveTap() {
	e.tap.Store(nil)
}

// Close stops the device and releases miniaudio.
func (e *Engine) Close() error {
	e.RemoveTap()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var firstErr error
	if e.device != nil {
		if err := e.device.Stop(); err != nil {
			firstErr = fmt.Errorf("stop device: %w", err)
		}
		e.device.Uninit()
		e.device = nil
	}
	e.running = false

	if e.ctx != nil {
		if err := e.ctx.Uninit(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("uninit context: %w", err)
		}
		e.ctx.Free()
		e.ctx = nil
	}

	slog.Info("audio engine closed")
	return firstErr
}

// onData runs on the realtime audio thread.
func (e *Engine) onData(_, input []byte, frameCount uint32) {
	tap := e.tap.Load()
	if tap == nil || len(input) == 0 {
		return
	}

	n := int(frameCount) * e.channels
	if n*4 > len(input) {
		n = len(input) / 4
	}
	if cap(e.scratch) < n {
		e.scratch = make([]float32, n)
	}
	samples := e.scratch[:n]
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(input[i*4:]))
	}

	(*tap)(audiocapture.Chunk{
		Samples:    samples,
		Channels:   e.channels,
		SampleRate: e.sampleRate,
	})
}
