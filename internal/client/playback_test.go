package client

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/talkeasy/voice-pipeline/internal/audio"
	"github.com/talkeasy/voice-pipeline/internal/protocol"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type recordingSink struct {
	chunks [][]byte
}

func (s *recordingSink) Enqueue(pcm []byte) error {
	s.chunks = append(s.chunks, pcm)
	return nil
}

func (s *recordingSink) totalBytes() int {
	n := 0
	for _, c := range s.chunks {
		n += len(c)
	}
	return n
}

func testScheduler(clock Clock, sink Sink) *PlaybackScheduler {
	return NewPlaybackScheduler(clock, sink, SchedulerConfig{
		SampleRate:   16000,
		LookAhead:    150 * time.Millisecond,
		Padding:      20 * time.Millisecond,
		StartBuffers: 2,
	}, zerolog.Nop())
}

// chunkOf builds a wire chunk of n PCM bytes, prepending a WAV header when
// withHeader is set.
func chunkOf(n, number int, withHeader, isFinal bool) protocol.TTSAudioChunk {
	payload := make([]byte, n)
	for i := range payload {
		payload[i] = byte(i)
	}
	if withHeader {
		payload = append(make([]byte, audio.WAVHeaderSize), payload...)
	}
	return protocol.NewTTSAudioChunk(
		base64.StdEncoding.EncodeToString(payload), number, len(payload), isFinal)
}

func TestScheduler_HeaderSkippedOncePerTurn(t *testing.T) {
	sink := &recordingSink{}
	s := testScheduler(&fakeClock{now: time.Unix(100, 0)}, sink)

	// Two chunks: only the first carries (and loses) the header.
	if err := s.OnChunk(chunkOf(3200, 1, true, false)); err != nil {
		t.Fatalf("OnChunk 1 failed: %v", err)
	}
	if err := s.OnChunk(chunkOf(3200, 2, false, true)); err != nil {
		t.Fatalf("OnChunk 2 failed: %v", err)
	}

	if len(sink.chunks) != 2 {
		t.Fatalf("Expected 2 enqueued chunks, got %d", len(sink.chunks))
	}
	if len(sink.chunks[0]) != 3200 {
		t.Errorf("First chunk = %d bytes, want 3200 (header stripped)", len(sink.chunks[0]))
	}
	if len(sink.chunks[1]) != 3200 {
		t.Errorf("Second chunk = %d bytes, want 3200 (no header to strip)", len(sink.chunks[1]))
	}
}

func TestScheduler_StartHysteresis(t *testing.T) {
	sink := &recordingSink{}
	s := testScheduler(&fakeClock{now: time.Unix(100, 0)}, sink)

	// 3200 bytes = 100 ms at 16 kHz: below the 150 ms look-ahead and below
	// the two-buffer floor, so playback must not start yet.
	if err := s.OnChunk(chunkOf(3200, 1, true, false)); err != nil {
		t.Fatalf("OnChunk failed: %v", err)
	}
	if len(sink.chunks) != 0 {
		t.Fatalf("Playback started after one short chunk")
	}

	// Second buffer satisfies the hysteresis; both flush in order.
	if err := s.OnChunk(chunkOf(1600, 2, false, false)); err != nil {
		t.Fatalf("OnChunk failed: %v", err)
	}
	if len(sink.chunks) != 2 {
		t.Fatalf("Expected both buffers flushed, got %d", len(sink.chunks))
	}
	if len(sink.chunks[0]) != 3200 || len(sink.chunks[1]) != 1600 {
		t.Errorf("Flush order wrong: %d, %d", len(sink.chunks[0]), len(sink.chunks[1]))
	}
}

func TestScheduler_LookAheadAloneStarts(t *testing.T) {
	sink := &recordingSink{}
	s := testScheduler(&fakeClock{now: time.Unix(100, 0)}, sink)

	// A single 200 ms chunk covers the look-ahead window by itself.
	if err := s.OnChunk(chunkOf(6400, 1, true, false)); err != nil {
		t.Fatalf("OnChunk failed: %v", err)
	}
	if len(sink.chunks) != 1 {
		t.Errorf("Expected playback to start on look-ahead coverage, chunks = %d", len(sink.chunks))
	}
}

func TestScheduler_FinalFlushesShortTurn(t *testing.T) {
	sink := &recordingSink{}
	s := testScheduler(&fakeClock{now: time.Unix(100, 0)}, sink)

	// A one-chunk turn below the hysteresis still plays.
	if err := s.OnChunk(chunkOf(1600, 1, true, true)); err != nil {
		t.Fatalf("OnChunk failed: %v", err)
	}
	if sink.totalBytes() != 1600 {
		t.Errorf("Short final turn enqueued %d bytes, want 1600", sink.totalBytes())
	}
}

func TestScheduler_GaplessPlayhead(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	sink := &recordingSink{}
	s := testScheduler(clock, sink)

	// Each chunk is 100 ms; back-to-back arrivals must abut exactly:
	// no gap, no overlap.
	s.OnChunk(chunkOf(3200, 1, true, false))
	s.OnChunk(chunkOf(3200, 2, false, false))
	s.OnChunk(chunkOf(3200, 3, false, false))

	want := clock.now.Add(20 * time.Millisecond).Add(300 * time.Millisecond)
	if got := s.Playhead(); !got.Equal(want) {
		t.Errorf("Playhead = %v, want %v (contiguous schedule)", got, want)
	}
}

func TestScheduler_LateChunkReschedules(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	sink := &recordingSink{}
	s := testScheduler(clock, sink)

	s.OnChunk(chunkOf(3200, 1, true, false))
	s.OnChunk(chunkOf(3200, 2, false, false))

	// Playback drained past the playhead before the next chunk arrived.
	clock.now = clock.now.Add(2 * time.Second)
	s.OnChunk(chunkOf(3200, 3, false, false))

	want := clock.now.Add(20 * time.Millisecond).Add(100 * time.Millisecond)
	if got := s.Playhead(); !got.Equal(want) {
		t.Errorf("Playhead = %v, want %v (rescheduled from now+padding)", got, want)
	}
}

func TestScheduler_ResetOnFinal(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	sink := &recordingSink{}
	s := testScheduler(clock, sink)

	s.OnChunk(chunkOf(3200, 1, true, false))
	s.OnChunk(chunkOf(3200, 2, false, true))

	if !s.Playhead().IsZero() {
		t.Error("Playhead not reset after final chunk")
	}

	// Next turn: header skip must be re-armed.
	sink.chunks = nil
	s.OnChunk(chunkOf(3200, 1, true, false))
	s.OnChunk(chunkOf(3200, 2, false, true))
	for i, c := range sink.chunks {
		if len(c) != 3200 {
			t.Errorf("Turn 2 chunk %d = %d bytes, want 3200", i, len(c))
		}
	}
}

func TestScheduler_BadBase64(t *testing.T) {
	s := testScheduler(&fakeClock{now: time.Unix(100, 0)}, &recordingSink{})
	chunk := protocol.NewTTSAudioChunk("not base64!!!", 1, 10, false)
	if err := s.OnChunk(chunk); err == nil {
		t.Error("Expected error for undecodable chunk")
	}
}
