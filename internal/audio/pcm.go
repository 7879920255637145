// Package audio holds the sample-level plumbing shared by the capture and
// playback paths: float/int16 PCM conversion, resampling, WAV container
// handling, and energy measurement.
package audio

import (
	"fmt"
	"math"
)

const (
	// SampleRate is the pipeline-wide PCM rate: 16 kHz mono 16-bit.
	SampleRate = 16000

	// FrameSamples is the reference capture frame size (~256 ms at 16 kHz).
	FrameSamples = 4096

	// WAVHeaderSize is the fixed container header prepended to the first
	// synthesized chunk of every turn.
	WAVHeaderSize = 44
)

// Float32ToPCM16 quantizes normalized float samples to 16-bit signed PCM:
// round(clamp(s, -1, 1) * 32767).
func Float32ToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		out[i] = int16(math.Round(float64(s) * 32767))
	}
	return out
}

// PCM16ToFloat32 converts 16-bit PCM back to normalized floats (s / 32768).
func PCM16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return out
}

// SamplesToBytes serializes int16 samples as little-endian bytes, the wire
// layout of a binary audio frame.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// BytesToSamples parses little-endian 16-bit PCM bytes into samples.
func BytesToSamples(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even, got %d", len(data))
	}
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return out, nil
}

// Downmix averages interleaved multi-channel float samples into mono.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	out := make([]float32, len(samples)/channels)
	for i := range out {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample performs linear-interpolation resampling of float samples.
// Good enough for speech; swap in a windowed-sinc kernel if fidelity ever
// becomes a problem.
func Resample(samples []float32, inputRate, outputRate int) []float32 {
	if inputRate == outputRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	out := make([]float32, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio
		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}
		fraction := float32(srcPos - float64(idx0))
		out[i] = samples[idx0]*(1-fraction) + samples[idx1]*fraction
	}

	return out
}

// TrimWAVHeader strips the fixed RIFF header from the first chunk of a
// synthesized stream. Chunks shorter than the header are returned empty.
func TrimWAVHeader(data []byte) []byte {
	if len(data) <= WAVHeaderSize {
		return nil
	}
	return data[WAVHeaderSize:]
}

// CalculateRMS returns the root-mean-square energy of a frame, used for
// voice-activity detection.
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
