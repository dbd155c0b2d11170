package audiocapture

// Buffer is an append-only sample buffer with a hard ceiling. Samples past
// the ceiling are dropped and counted. It is not safe for concurrent use.
type Buffer struct {
	samples []float32
	max     int
	dropped int
}

// NewBuffer creates a buffer holding at most max samples.
func NewBuffer(max int) *Buffer {
	return &Buffer{max: max}
}

// Append adds samples and returns how many were kept.
func (b *Buffer) Append(samples []float32) int {
	room := b.max - len(b.samples)
	if room <= 0 {
		b.dropped += len(samples)
		return 0
	}
	if len(samples) > room {
		b.dropped += len(samples) - room
		samples = samples[:room]
	}
	b.samples = append(b.samples, samples...)
	return len(samples)
}

// Samples returns the accumulated samples.
func (b *Buffer) Samples() []float32 {
	return b.samples
}

// Len returns the number of samples held.
func (b *Buffer) Len() int {
	return len(b.samples)
}

// Dropped returns how many samples were rejected by the ceiling.
func (b *Buffer) Dropped() int {
	return b.dropped
}

// Full reports whether the ceiling has been reached.
func (b *Buffer) Full() bool {
	return len(b.samples) >= b.max
}

// Reset empties the buffer. The backing array is released, not reused, so
// slices handed out earlier stay intact.
func (b *Buffer) Reset() {
	b.samples = nil
	b.dropped = 0
}
