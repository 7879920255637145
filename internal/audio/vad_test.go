package audio

import "testing"

func loudFrame(n int) []int16 {
	frame := make([]int16, n)
	for i := range frame {
		if i%2 == 0 {
			frame[i] = 5000
		} else {
			frame[i] = -5000
		}
	}
	return frame
}

func TestVADDetector_SpeechStart(t *testing.T) {
	vad := NewVADDetector(&VADConfig{
		EnergyThreshold: 500,
		VoicedFrames:    3,
		SilenceFrames:   5,
		FrameSize:       320,
	})

	frame := loudFrame(320)

	// First two voiced frames must not trigger the start edge yet.
	for i := 0; i < 2; i++ {
		speaking, started, _ := vad.ProcessFrame(frame)
		if speaking || started {
			t.Fatalf("Frame %d: speaking=%v started=%v, want false before threshold", i, speaking, started)
		}
	}

	speaking, started, _ := vad.ProcessFrame(frame)
	if !speaking || !started {
		t.Errorf("Third voiced frame: speaking=%v started=%v, want both true", speaking, started)
	}

	// Edge fires once.
	_, started, _ = vad.ProcessFrame(frame)
	if started {
		t.Error("Start edge reported twice")
	}
}

func TestVADDetector_SpeechEnd(t *testing.T) {
	vad := NewVADDetector(&VADConfig{
		EnergyThreshold: 500,
		VoicedFrames:    1,
		SilenceFrames:   3,
		FrameSize:       320,
	})

	loud := loudFrame(320)
	silent := make([]int16, 320)

	vad.ProcessFrame(loud)
	if !vad.IsSpeaking() {
		t.Fatal("Expected speaking after voiced frame")
	}

	for i := 0; i < 2; i++ {
		_, _, ended := vad.ProcessFrame(silent)
		if ended {
			t.Fatalf("Silence frame %d ended speech early", i)
		}
	}
	speaking, _, ended := vad.ProcessFrame(silent)
	if speaking || !ended {
		t.Errorf("Third silent frame: speaking=%v ended=%v, want end of speech", speaking, ended)
	}
}

func TestVADDetector_SilenceResetByVoice(t *testing.T) {
	vad := NewVADDetector(&VADConfig{
		EnergyThreshold: 500,
		VoicedFrames:    1,
		SilenceFrames:   3,
		FrameSize:       320,
	})

	loud := loudFrame(320)
	silent := make([]int16, 320)

	vad.ProcessFrame(loud)
	vad.ProcessFrame(silent)
	vad.ProcessFrame(silent)
	vad.ProcessFrame(loud) // resets silence run

	for i := 0; i < 2; i++ {
		_, _, ended := vad.ProcessFrame(silent)
		if ended {
			t.Fatal("Silence counter was not reset by intervening voice")
		}
	}
}

func TestVADDetector_Reset(t *testing.T) {
	vad := NewVADDetector(nil)
	for i := 0; i < 10; i++ {
		vad.ProcessFrame(loudFrame(320))
	}
	if !vad.IsSpeaking() {
		t.Fatal("Expected speaking state before reset")
	}
	vad.Reset()
	if vad.IsSpeaking() {
		t.Error("Reset did not clear speaking state")
	}
}
