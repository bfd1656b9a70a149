package agent

import (
	"github.com/mskumargvd/arushi-cloud/pkg/models"
)

// DefaultBufferCapacity holds one hour of samples at a 5s tick
const DefaultBufferCapacity = 720

// OfflineBuffer is a fixed-size FIFO of samples collected while the server
// is unreachable. Pushing into a full buffer overwrites the oldest sample.
//
// OfflineBuffer is not safe for concurrent use; it belongs to the
// supervisor loop.
type OfflineBuffer struct {
	items    []models.StatSample
	head     int
	size     int
	capacity int
}

// NewOfflineBuffer creates a buffer holding at most capacity samples.
// A non-positive capacity uses DefaultBufferCapacity.
func NewOfflineBuffer(capacity int) *OfflineBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &OfflineBuffer{
		items:    make([]models.StatSample, capacity),
		capacity: capacity,
	}
}

// Push appends a sample at the tail. It reports whether the oldest sample
// was evicted to make room.
func (b *OfflineBuffer) Push(sample models.StatSample) (evicted bool) {
	tail := (b.head + b.size) % b.capacity
	b.items[tail] = sample

	if b.size == b.capacity {
		b.head = (b.head + 1) % b.capacity
		return true
	}
	b.size++
	return false
}

// Front returns the oldest sample without removing it
func (b *OfflineBuffer) Front() (models.StatSample, bool) {
	if b.size == 0 {
		return models.StatSample{}, false
	}
	return b.items[b.head], true
}

// DropFront removes the oldest sample, if any
func (b *OfflineBuffer) DropFront() {
	if b.size == 0 {
		return
	}
	b.items[b.head] = models.StatSample{}
	b.head = (b.head + 1) % b.capacity
	b.size--
}

// Len returns the number of buffered samples
func (b *OfflineBuffer) Len() int {
	return b.size
}

// Cap returns the buffer capacity
func (b *OfflineBuffer) Cap() int {
	return b.capacity
}

// snapshot returns the buffered samples oldest first
func (b *OfflineBuffer) snapshot() []models.StatSample {
	out := make([]models.StatSample, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.head+i)%b.capacity]
	}
	return out
}
