package client

import (
	"errors"
	"sync"

	"github.com/talkeasy/voice-pipeline/internal/audio"
)

// ErrProducerClosed is returned by Feed and Flush after Close.
var ErrProducerClosed = errors.New("frame producer is closed")

// PumpProducer decouples the capture callback from the network: Feed only
// copies into a ring buffer, and a pump goroutine assembles and emits
// frames. Use this when the emit path can block, so the audio callback
// never stalls.
type PumpProducer struct {
	frameSamples int
	emit         EmitFunc

	ring *audio.RingBuffer

	mu     sync.Mutex
	closed bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// NewPumpProducer creates a pump-backed producer. ringBytes sizes the
// buffer between the callback and the pump; it is rounded up to hold at
// least two frames.
func NewPumpProducer(frameSamples, ringBytes int, emit EmitFunc) *PumpProducer {
	if frameSamples <= 0 {
		frameSamples = audio.FrameSamples
	}
	minBytes := 2 * frameSamples * 2
	if ringBytes < minBytes {
		ringBytes = minBytes
	}
	// The ring sacrifices one slot, so size it one past the requested
	// capacity; an even capacity keeps every write and drop sample-aligned.
	ringBytes += ringBytes % 2
	p := &PumpProducer{
		frameSamples: frameSamples,
		emit:         emit,
		ring:         audio.NewRingBuffer(ringBytes + 1),
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	p.wg.Add(1)
	go p.pump()
	return p
}

// Feed copies samples into the ring and returns immediately. A full ring
// drops the oldest unconsumed audio by advancing past it; capture keeps
// real time.
func (p *PumpProducer) Feed(samples []float32) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrProducerClosed
	}
	p.mu.Unlock()

	data := audio.SamplesToBytes(audio.Float32ToPCM16(samples))
	if space := p.ring.Space(); space < len(data) {
		// Discard whole frames so the s16le stream stays sample-aligned
		// across the gap.
		frameBytes := p.frameSamples * 2
		discard := len(data) - space
		discard = (discard + frameBytes - 1) / frameBytes * frameBytes
		if avail := p.ring.Available(); discard > avail {
			discard = avail
		}
		p.ring.Read(make([]byte, discard))
	}
	p.ring.Write(data)

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

// pump drains the ring a frame at a time, preserving the same framing a
// CallbackProducer would produce for the same input.
func (p *PumpProducer) pump() {
	defer p.wg.Done()

	frameBytes := p.frameSamples * 2
	frame := make([]byte, frameBytes)
	for {
		select {
		case <-p.done:
			return
		case <-p.wake:
		}

		for p.ring.Available() >= frameBytes {
			if n := p.ring.Read(frame); n < frameBytes {
				return
			}
			out := make([]byte, frameBytes)
			copy(out, frame)
			if err := p.emit(out); err != nil {
				return
			}
		}
	}
}

// Flush emits whatever short tail remains in the ring.
func (p *PumpProducer) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrProducerClosed
	}

	n := p.ring.Available()
	if n == 0 {
		return nil
	}
	// Keep the tail sample-aligned.
	n -= n % 2
	if n == 0 {
		return nil
	}
	tail := make([]byte, n)
	p.ring.Read(tail)
	return p.emit(tail)
}

// Close stops the pump goroutine and discards buffered audio.
func (p *PumpProducer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.done)
	p.wg.Wait()
	p.ring.Clear()
	return nil
}
