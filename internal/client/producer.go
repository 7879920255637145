// Package client implements the capture and playback half of the pipeline:
// frame production from the microphone, the playback scheduler, and the
// WebSocket session that ties them to the server.
package client

import (
	"sync"

	"github.com/talkeasy/voice-pipeline/internal/audio"
)

// EmitFunc receives one complete frame of s16le PCM bytes ready for the
// wire.
type EmitFunc func(frame []byte) error

// FrameProducer converts raw capture samples into fixed-size wire frames.
// Both implementations produce bit-identical framing for identical input:
// same frame size, same sample order, no padding of short tails.
type FrameProducer interface {
	// Feed accepts float32 samples from the capture callback.
	Feed(samples []float32) error

	// Flush emits any buffered tail as a short final frame.
	Flush() error

	// Close releases the producer. Feed after Close is an error.
	Close() error
}

// CallbackProducer assembles frames inline on the capture callback. Cheap
// and allocation-free in steady state, but Feed must not be called while
// the emit function blocks on the network.
type CallbackProducer struct {
	frameSamples int
	emit         EmitFunc

	mu      sync.Mutex
	pending []int16
	closed  bool
}

// NewCallbackProducer creates a producer emitting frames of frameSamples
// samples.
func NewCallbackProducer(frameSamples int, emit EmitFunc) *CallbackProducer {
	if frameSamples <= 0 {
		frameSamples = audio.FrameSamples
	}
	return &CallbackProducer{
		frameSamples: frameSamples,
		emit:         emit,
		pending:      make([]int16, 0, frameSamples),
	}
}

// Feed converts samples and emits every complete frame they fill.
func (p *CallbackProducer) Feed(samples []float32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrProducerClosed
	}

	p.pending = append(p.pending, audio.Float32ToPCM16(samples)...)
	for len(p.pending) >= p.frameSamples {
		frame := audio.SamplesToBytes(p.pending[:p.frameSamples])
		p.pending = p.pending[p.frameSamples:]
		if err := p.emit(frame); err != nil {
			return err
		}
	}
	return nil
}

// Flush emits the buffered tail, if any, as a short frame.
func (p *CallbackProducer) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrProducerClosed
	}
	if len(p.pending) == 0 {
		return nil
	}
	frame := audio.SamplesToBytes(p.pending)
	p.pending = p.pending[:0]
	return p.emit(frame)
}

// Close marks the producer closed. The buffered tail is discarded; call
// Flush first to keep it.
func (p *CallbackProducer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.pending = nil
	p.mu.Unlock()
	return nil
}
