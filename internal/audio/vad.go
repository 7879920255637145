package audio

// VADConfig holds the voice-activity tuning knobs. These are environment
// dependent (microphone, room, gain), so they are configuration rather than
// constants.
type VADConfig struct {
	EnergyThreshold float64 // RMS threshold above which a frame counts as voiced
	VoicedFrames    int     // consecutive voiced frames before speech starts
	SilenceFrames   int     // consecutive silent frames before speech ends
	FrameSize       int     // samples per analysis frame (320 = 20 ms at 16 kHz)
}

// DefaultVADConfig returns conservative defaults for 16 kHz capture.
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		EnergyThreshold: 500.0,
		VoicedFrames:    3,  // 60 ms of sustained speech
		SilenceFrames:   50, // 1 s of silence
		FrameSize:       320,
	}
}

// VADDetector tracks speech on/off transitions over a frame stream.
type VADDetector struct {
	config         *VADConfig
	voicedCounter  int
	silenceCounter int
	isSpeaking     bool
}

// NewVADDetector creates a detector; nil config uses defaults.
func NewVADDetector(config *VADConfig) *VADDetector {
	if config == nil {
		config = DefaultVADConfig()
	}
	return &VADDetector{config: config}
}

// ProcessFrame classifies one frame and reports state plus edge events.
// Returns (isSpeaking, speechStarted, speechEnded).
func (v *VADDetector) ProcessFrame(samples []int16) (bool, bool, bool) {
	voiced := CalculateRMS(samples) > v.config.EnergyThreshold

	var speechStarted, speechEnded bool

	if voiced {
		v.silenceCounter = 0
		v.voicedCounter++
		if !v.isSpeaking && v.voicedCounter >= v.config.VoicedFrames {
			speechStarted = true
			v.isSpeaking = true
		}
	} else {
		v.voicedCounter = 0
		v.silenceCounter++
		if v.isSpeaking && v.silenceCounter >= v.config.SilenceFrames {
			speechEnded = true
			v.isSpeaking = false
			v.silenceCounter = 0
		}
	}

	return v.isSpeaking, speechStarted, speechEnded
}

// Reset clears all detector state.
func (v *VADDetector) Reset() {
	v.voicedCounter = 0
	v.silenceCounter = 0
	v.isSpeaking = false
}

// IsSpeaking reports whether speech is currently detected.
func (v *VADDetector) IsSpeaking() bool {
	return v.isSpeaking
}
