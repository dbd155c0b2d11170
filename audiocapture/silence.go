package audiocapture

import "math"

const (
	silenceFrame = TargetSampleRate / 50 // 20 ms
	silencePad   = TargetSampleRate / 5  // 200 ms kept around speech
)

// TrimSilence returns the part of samples (16 kHz mono) between the first and
// last 20 ms frame whose RMS exceeds threshold, padded on both sides. It
// returns nil when every frame is below the threshold.
func TrimSilence(samples []float32, threshold float32) []float32 {
	first, last := -1, -1
	for off := 0; off < len(samples); off += silenceFrame {
		end := min(off+silenceFrame, len(samples))
		if calculateRMS(samples[off:end]) > threshold {
			if first < 0 {
				first = off
			}
			last = end
		}
	}
	if first < 0 {
		return nil
	}
	return samples[max(first-silencePad, 0):min(last+silencePad, len(samples))]
}

// calculateRMS calculates the root mean square of audio samples.
func calculateRMS(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}
