package audio

import (
	"sync"
)

// RingBuffer is a fixed-capacity, thread-safe byte ring used to smooth the
// handoff between irregular network delivery and the steady pull of an
// audio device callback. One slot is sacrificed to distinguish full from
// empty.
type RingBuffer struct {
	buffer []byte
	size   int
	read   int
	write  int
	mu     sync.RWMutex
}

// NewRingBuffer creates a ring buffer holding up to size-1 bytes.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		buffer: make([]byte, size),
		size:   size,
	}
}

// Write copies data into the ring. Returns the number of bytes written,
// which is less than len(data) when the ring fills.
func (rb *RingBuffer) Write(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := 0
	for _, b := range data {
		if (rb.write+1)%rb.size == rb.read {
			break
		}
		rb.buffer[rb.write] = b
		rb.write = (rb.write + 1) % rb.size
		written++
	}
	return written
}

// Read copies up to len(data) bytes out of the ring and returns the count.
func (rb *RingBuffer) Read(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	read := 0
	for i := range data {
		if rb.read == rb.write {
			break
		}
		data[i] = rb.buffer[rb.read]
		rb.read = (rb.read + 1) % rb.size
		read++
	}
	return read
}

// Available returns the number of bytes ready to read.
func (rb *RingBuffer) Available() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.available()
}

func (rb *RingBuffer) available() int {
	if rb.write >= rb.read {
		return rb.write - rb.read
	}
	return rb.size - rb.read + rb.write
}

// Space returns the number of bytes that can be written without dropping.
func (rb *RingBuffer) Space() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size - rb.available() - 1
}

// Clear discards all buffered bytes.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.read = 0
	rb.write = 0
}

// IsEmpty reports whether no bytes are buffered.
func (rb *RingBuffer) IsEmpty() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.read == rb.write
}
