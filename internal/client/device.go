package client

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/talkeasy/voice-pipeline/internal/audio"
)

// CaptureDevice wraps a malgo capture device: 16 kHz mono s16le, low
// latency, feeding a FrameProducer from the device callback.
type CaptureDevice struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig

	mu       sync.Mutex
	producer FrameProducer
}

// NewCaptureDevice initializes the capture device against an existing malgo
// context.
func NewCaptureDevice(audioContext *malgo.AllocatedContext) (*CaptureDevice, error) {
	c := &CaptureDevice{audioContext: audioContext}

	format := malgo.FormatS16
	channels := 1
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	c.config = malgo.DefaultDeviceConfig(malgo.Capture)
	c.config.SampleRate = uint32(audio.SampleRate)
	c.config.Capture.Format = format
	c.config.Capture.Channels = uint32(channels)
	c.config.Alsa.NoMMap = 1
	c.config.PerformanceProfile = malgo.LowLatency
	c.config.PeriodSizeInFrames = 480
	c.config.Periods = 3

	device, err := malgo.InitDevice(audioContext.Context, c.config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}
			c.mu.Lock()
			producer := c.producer
			c.mu.Unlock()
			if producer == nil {
				return
			}
			samples, err := audio.BytesToSamples(pInput[:n])
			if err != nil {
				return
			}
			_ = producer.Feed(audio.PCM16ToFloat32(samples))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}
	c.device = device
	return c, nil
}

// Start begins capture, feeding the producer from the device callback.
func (c *CaptureDevice) Start(producer FrameProducer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}
	if c.device.IsStarted() {
		c.producer = producer
		return nil
	}
	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	c.producer = producer
	return nil
}

// Stop halts capture.
func (c *CaptureDevice) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}
	if !c.device.IsStarted() {
		return nil
	}
	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	c.producer = nil
	return nil
}

// Uninit releases the device.
func (c *CaptureDevice) Uninit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	c.producer = nil
}

// PlaybackDevice wraps a malgo playback device and implements Sink. The
// scheduler enqueues PCM in playback order; the device callback drains a
// bounded ring. When the scheduler outruns the device the oldest audio is
// dropped, never the newest.
type PlaybackDevice struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig

	mu   sync.Mutex
	ring *audio.RingBuffer
}

// DefaultPlaybackBufferBytes bounds buffered playback audio, about 740 ms
// at 44.1 kHz mono s16le.
const DefaultPlaybackBufferBytes = 64 * 1024

// NewPlaybackDevice initializes a playback device at the given sample rate
// with a bounded buffer of bufferBytes.
func NewPlaybackDevice(audioContext *malgo.AllocatedContext, sampleRate, bufferBytes int) (*PlaybackDevice, error) {
	if bufferBytes <= 0 {
		bufferBytes = DefaultPlaybackBufferBytes
	}
	// The ring sacrifices one slot, so size it one past the requested
	// capacity; an even capacity keeps every write and drop sample-aligned.
	bufferBytes += bufferBytes % 2
	p := &PlaybackDevice{
		audioContext: audioContext,
		ring:         audio.NewRingBuffer(bufferBytes + 1),
	}

	format := malgo.FormatS16
	channels := 1
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	p.config = malgo.DefaultDeviceConfig(malgo.Playback)
	p.config.SampleRate = uint32(sampleRate)
	p.config.Playback.Format = format
	p.config.Playback.Channels = uint32(channels)
	p.config.Alsa.NoMMap = 1
	p.config.PeriodSizeInFrames = uint32(sampleRate / 10)
	p.config.Periods = 4

	device, err := malgo.InitDevice(audioContext.Context, p.config, malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			need := int(frameCount) * bytesPerFrame
			if need > len(pOutput) {
				need = len(pOutput)
			}
			// A short read leaves the rest of pOutput silent.
			p.ring.Read(pOutput[:need])
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}
	p.device = device
	return p, nil
}

// Enqueue appends PCM to the device buffer. When the ring is full the
// oldest audio is discarded in even-byte steps so the s16le stream stays
// sample-aligned.
func (p *PlaybackDevice) Enqueue(pcm []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ring == nil {
		return fmt.Errorf("device not initialized")
	}
	if space := p.ring.Space(); space < len(pcm) {
		discard := len(pcm) - space
		discard += discard % 2
		if avail := p.ring.Available(); discard > avail {
			discard = avail
		}
		p.ring.Read(make([]byte, discard))
	}
	p.ring.Write(pcm)
	return nil
}

// Start begins playback.
func (p *PlaybackDevice) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device == nil {
		return fmt.Errorf("device not initialized")
	}
	if err := p.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	return nil
}

// Stop halts playback and drops buffered audio.
func (p *PlaybackDevice) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device == nil {
		return fmt.Errorf("device not initialized")
	}
	if err := p.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop playback device: %w", err)
	}
	p.ring.Clear()
	return nil
}

// Uninit releases the device.
func (p *PlaybackDevice) Uninit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device != nil {
		p.device.Uninit()
		p.device = nil
	}
	if p.ring != nil {
		p.ring.Clear()
	}
}
