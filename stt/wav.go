package stt

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavChunk is how many samples are converted per encoder write.
const wavChunk = 16384

// writeWAV encodes float32 samples as 16-bit mono PCM WAV.
func writeWAV(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           make([]int, 0, wavChunk),
		SourceBitDepth: 16,
	}

	for start := 0; start < len(samples); start += wavChunk {
		end := min(start+wavChunk, len(samples))
		buf.Data = buf.Data[:0]
		for _, s := range samples[start:end] {
			buf.Data = append(buf.Data, floatToPCM16(s))
		}
		if err := enc.Write(buf); err != nil {
			_ = f.Close()
			return fmt.Errorf("write wav: %w", err)
		}
	}

	if err := enc.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return f.Close()
}

func floatToPCM16(s float32) int {
	// Clamp to [-1, 1]
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int(s * 32767)
}
