// Package resample provides a streaming soxr resampler for audiocapture.
package resample

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	soxr "github.com/zaf/resample"

	"github.com/catvomitingrainbows/vocal-liquid/audiocapture"
)

// Stream resamples mono float32 audio chunk by chunk.
type Stream struct {
	r       *soxr.Resampler
	out     *bytes.Buffer
	in      []byte
	samples []float32
}

// New is an audiocapture.ResamplerFactory.
func New(fromRate, toRate int) (audiocapture.Resampler, error) {
	out := &bytes.Buffer{}
	r, err := soxr.New(out, float64(fromRate), float64(toRate), 1, soxr.F32, soxr.MediumQ)
	if err != nil {
		return nil, fmt.Errorf("create resampler %d->%d: %w", fromRate, toRate, err)
	}
	return &Stream{r: r, out: out}, nil
}

// Write feeds samples and returns the converted output available so far.
// The returned slice is reused by the next call.
func (s *Stream) Write(samples []float32) ([]float32, error) {
	if s.r == nil {
		return nil, fmt.Errorf("resampler closed")
	}

	need := 4 * len(samples)
	if cap(s.in) < need {
		s.in = make([]byte, need)
	}
	in := s.in[:need]
	for i, v := range samples {
		binary.LittleEndian.PutUint32(in[i*4:], math.Float32bits(v))
	}

	if _, err := s.r.Write(in); err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}
	return s.drain(), nil
}

// Flush closes the resampler and returns its remaining output.
func (s *Stream) Flush() ([]float32, error) {
	if s.r == nil {
		return nil, nil
	}
	err := s.r.Close()
	s.r = nil
	out := append([]float32(nil), s.drain()...)
	if err != nil {
		return out, fmt.Errorf("close resampler: %w", err)
	}
	return out, nil
}

// drain decodes every complete float32 in the output buffer.
func (s *Stream) drain() []float32 {
	n := s.out.Len() / 4
	if cap(s.samples) < n {
		s.samples = make([]float32, n)
	}
	samples := s.samples[:n]
	raw := s.out.Next(n * 4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return samples
}
