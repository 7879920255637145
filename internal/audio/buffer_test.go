package audio

import "testing"

func TestRingBuffer_WriteRead(t *testing.T) {
	rb := NewRingBuffer(16)

	data := []byte{1, 2, 3, 4, 5}
	if n := rb.Write(data); n != len(data) {
		t.Fatalf("Write returned %d, want %d", n, len(data))
	}
	if rb.Available() != len(data) {
		t.Errorf("Available = %d, want %d", rb.Available(), len(data))
	}

	out := make([]byte, len(data))
	if n := rb.Read(out); n != len(data) {
		t.Fatalf("Read returned %d, want %d", n, len(data))
	}
	for i := range data {
		if out[i] != data[i] {
			t.Errorf("byte %d = %d, want %d", i, out[i], data[i])
		}
	}
	if !rb.IsEmpty() {
		t.Error("Buffer should be empty after full read")
	}
}

func TestRingBuffer_Full(t *testing.T) {
	rb := NewRingBuffer(8) // holds 7 bytes

	n := rb.Write([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9})
	if n != 7 {
		t.Errorf("Write into full ring returned %d, want 7", n)
	}
	if rb.Space() != 0 {
		t.Errorf("Space = %d, want 0", rb.Space())
	}
}

func TestRingBuffer_Wraparound(t *testing.T) {
	rb := NewRingBuffer(8)

	// Advance the read/write cursors past the physical end.
	rb.Write([]byte{1, 2, 3, 4, 5})
	out := make([]byte, 5)
	rb.Read(out)

	data := []byte{10, 11, 12, 13, 14, 15}
	if n := rb.Write(data); n != len(data) {
		t.Fatalf("Wrapped write returned %d, want %d", n, len(data))
	}
	got := make([]byte, len(data))
	if n := rb.Read(got); n != len(data) {
		t.Fatalf("Wrapped read returned %d, want %d", n, len(data))
	}
	for i := range data {
		if got[i] != data[i] {
			t.Errorf("byte %d = %d, want %d", i, got[i], data[i])
		}
	}
}

func TestRingBuffer_ReadEmpty(t *testing.T) {
	rb := NewRingBuffer(8)
	out := make([]byte, 4)
	if n := rb.Read(out); n != 0 {
		t.Errorf("Read from empty ring returned %d, want 0", n)
	}
}

func TestRingBuffer_Clear(t *testing.T) {
	rb := NewRingBuffer(16)
	rb.Write([]byte{1, 2, 3})
	rb.Clear()
	if !rb.IsEmpty() {
		t.Error("Clear did not empty the buffer")
	}
	if rb.Available() != 0 {
		t.Errorf("Available after Clear = %d, want 0", rb.Available())
	}
}
