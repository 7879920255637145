package client

import (
	"testing"

	"github.com/talkeasy/voice-pipeline/internal/audio"
)

// testPlaybackDevice builds a device with only the buffer wired, enough to
// exercise the Enqueue path without audio hardware.
func testPlaybackDevice(capacity int) *PlaybackDevice {
	return &PlaybackDevice{ring: audio.NewRingBuffer(capacity + 1)}
}

func TestPlaybackDevice_EnqueueUninitialized(t *testing.T) {
	p := &PlaybackDevice{}
	if err := p.Enqueue([]byte{0, 0}); err == nil {
		t.Error("Expected error from uninitialized device")
	}
}

func TestPlaybackDevice_EnqueueBounded(t *testing.T) {
	const capacity = 64
	p := testPlaybackDevice(capacity)

	for i := 0; i < 20; i++ {
		if err := p.Enqueue(make([]byte, 32)); err != nil {
			t.Fatalf("Enqueue %d failed: %v", i, err)
		}
	}

	if got := p.ring.Available(); got > capacity {
		t.Errorf("Buffered %d bytes, capacity is %d", got, capacity)
	}
}

func TestPlaybackDevice_OverflowKeepsNewestAligned(t *testing.T) {
	const capacity = 64
	p := testPlaybackDevice(capacity)

	old := make([]int16, capacity/2)
	for i := range old {
		old[i] = 0x0101
	}
	if err := p.Enqueue(audio.SamplesToBytes(old)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	fresh := make([]int16, 16)
	for i := range fresh {
		fresh[i] = 0x1234
	}
	if err := p.Enqueue(audio.SamplesToBytes(fresh)); err != nil {
		t.Fatalf("Enqueue after overflow failed: %v", err)
	}

	buf := make([]byte, capacity)
	n := p.ring.Read(buf)
	if n != capacity {
		t.Fatalf("Read %d bytes, want %d", n, capacity)
	}

	samples, err := audio.BytesToSamples(buf[:n])
	if err != nil {
		t.Fatalf("Buffered audio not sample-aligned: %v", err)
	}
	tail := samples[len(samples)-len(fresh):]
	for i, s := range tail {
		if s != 0x1234 {
			t.Fatalf("Newest sample %d = %#x, want 0x1234 (stream misaligned after overflow)", i, s)
		}
	}
}
