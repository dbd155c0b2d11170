package audiocapture

import "log/slog"

// Resampler converts a mono float32 stream between sample rates. It is fed
// chunk by chunk and may hold back samples until Flush.
type Resampler interface {
	// Write converts samples and returns the output produced so far.
	Write(samples []float32) ([]float32, error)
	// Flush returns any held-back output and releases the resampler.
	Flush() ([]float32, error)
}

// ResamplerFactory creates a Resampler for one recording.
type ResamplerFactory func(fromRate, toRate int) (Resampler, error)

// converter turns native chunks into mono 16 kHz samples. One converter lives
// for one recording and is only used under the Capture lock.
type converter struct {
	factory   ResamplerFactory
	resampler Resampler
	fromRate  int
	failed    bool
	mono      []float32
}

func newConverter(factory ResamplerFactory) *converter {
	return &converter{factory: factory}
}

// convert downmixes and resamples one chunk. The returned slice is only
// valid until the next call.
func (cv *converter) convert(chunk Chunk) []float32 {
	mono := cv.downmix(chunk)
	if chunk.SampleRate == TargetSampleRate {
		if cv.resampler != nil {
			slog.Info("device sample rate changed", "from", cv.fromRate, "to", chunk.SampleRate)
			return append(cv.flush(), mono...)
		}
		return mono
	}
	if len(mono) == 0 {
		return mono
	}

	var tail []float32
	if cv.resampler == nil || cv.fromRate != chunk.SampleRate {
		var ok bool
		if tail, ok = cv.open(chunk.SampleRate); !ok {
			return tail
		}
	}

	out, err := cv.resampler.Write(mono)
	if err != nil {
		slog.Warn("resample chunk", "from", chunk.SampleRate, "error", err)
		return tail
	}
	if len(tail) > 0 {
		return append(tail, out...)
	}
	return out
}

// open switches to a resampler for rate. The previous resampler's held-back
// output is returned so a mid-recording rate change loses nothing.
func (cv *converter) open(rate int) (tail []float32, ok bool) {
	if cv.failed {
		return nil, false
	}
	if cv.resampler != nil {
		slog.Info("device sample rate changed", "from", cv.fromRate, "to", rate)
		tail = cv.flush()
	}
	if cv.factory == nil {
		slog.Error("no resampler for device rate", "rate", rate)
		cv.failed = true
		return tail, false
	}

	r, err := cv.factory(rate, TargetSampleRate)
	if err != nil {
		slog.Error("create resampler", "from", rate, "error", err)
		cv.failed = true
		return tail, false
	}
	cv.resampler = r
	cv.fromRate = rate
	return tail, true
}

func (cv *converter) downmix(chunk Chunk) []float32 {
	ch := chunk.Channels
	if ch <= 1 {
		return chunk.Samples
	}

	frames := len(chunk.Samples) / ch
	if cap(cv.mono) < frames {
		cv.mono = make([]float32, frames)
	}
	mono := cv.mono[:frames]

	scale := 1 / float32(ch)
	for i := range frames {
		var sum float32
		for _, s := range chunk.Samples[i*ch : (i+1)*ch] {
			sum += s
		}
		mono[i] = sum * scale
	}
	return mono
}

// flush returns the resampler's held-back tail.
func (cv *converter) flush() []float32 {
	if cv.resampler == nil {
		return nil
	}
	out, err := cv.resampler.Flush()
	cv.resampler = nil
	if err != nil {
		slog.Warn("flush resampler", "error", err)
	}
	return out
}

func (cv *converter) close() {
	if cv.resampler != nil {
		_, _ = cv.resampler.Flush()
		cv.resampler = nil
	}
}
