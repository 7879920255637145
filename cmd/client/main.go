// Command client is a terminal client for the voice pipeline: it captures
// microphone audio, streams it to the server, and plays the synthesized
// response back. Press Enter to start a turn, Enter again to stop talking.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gen2brain/malgo"
	"github.com/google/uuid"

	"github.com/talkeasy/voice-pipeline/internal/audio"
	"github.com/talkeasy/voice-pipeline/internal/client"
	"github.com/talkeasy/voice-pipeline/internal/observability"
	"github.com/talkeasy/voice-pipeline/internal/protocol"
)

func main() {
	serverURL := flag.String("server", "ws://localhost:8080/ws/audio-stream", "server WebSocket URL")
	sessionID := flag.String("session", "", "session ID (random when empty)")
	webSearch := flag.Bool("search", false, "enable web search augmentation")
	sampleRate := flag.Int("playback-rate", 44100, "playback sample rate in Hz")
	playbackBuffer := flag.Int("playback-buffer", client.DefaultPlaybackBufferBytes, "playback buffer size in bytes")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	observability.InitLogger(*logLevel, true)
	logger := observability.GetLogger()

	if *sessionID == "" {
		*sessionID = uuid.New().String()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	audioContext, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		fatal("failed to initialize audio context: %v", err)
	}
	defer func() {
		_ = audioContext.Uninit()
		audioContext.Free()
	}()

	playbackDevice, err := client.NewPlaybackDevice(audioContext, *sampleRate, *playbackBuffer)
	if err != nil {
		fatal("failed to open playback device: %v", err)
	}
	defer playbackDevice.Uninit()
	if err := playbackDevice.Start(); err != nil {
		fatal("failed to start playback: %v", err)
	}

	captureDevice, err := client.NewCaptureDevice(audioContext)
	if err != nil {
		fatal("failed to open capture device: %v", err)
	}
	defer captureDevice.Uninit()

	scheduler := client.NewPlaybackScheduler(client.SystemClock{}, playbackDevice, client.SchedulerConfig{
		SampleRate:   *sampleRate,
		LookAhead:    client.DefaultSchedulerConfig().LookAhead,
		Padding:      client.DefaultSchedulerConfig().Padding,
		StartBuffers: client.DefaultSchedulerConfig().StartBuffers,
	}, logger)

	conn, err := client.Dial(ctx, *serverURL, *sessionID, *webSearch, scheduler, client.Handlers{
		OnReady: func(ev protocol.AudioStreamReady) {
			fmt.Printf("Connected, session %s\n", ev.SessionID)
		},
		OnPartial: func(text string) {
			fmt.Printf("\r… %s", text)
		},
		OnFinal: func(text string) {
			fmt.Printf("\rYou: %s\n", text)
		},
		OnTurnEnd: func(final *string) {
			if final == nil {
				fmt.Println("\r(no speech detected)")
			}
		},
		OnLLMChunk: func(chunk string) {
			fmt.Print(chunk)
		},
		OnLLMStart: func(string) {
			fmt.Print("Assistant: ")
		},
		OnLLMComplete: func(string) {
			fmt.Println()
		},
		OnStageError: func(eventType, message string) {
			fmt.Printf("\n[%s] %s\n", eventType, message)
		},
	}, logger)
	if err != nil {
		fatal("failed to connect: %v", err)
	}
	defer conn.Close()

	producer := client.NewPumpProducer(audio.FrameSamples, 0, conn.SendFrame)
	defer producer.Close()

	if err := captureDevice.Start(producer); err != nil {
		fatal("failed to start capture: %v", err)
	}
	defer captureDevice.Stop()

	fmt.Println("Press Enter to start talking, Enter again to stop. Ctrl-C quits.")
	go controlLoop(conn, producer)

	select {
	case <-ctx.Done():
	case <-conn.Done():
		if err := conn.Err(); err != nil {
			fmt.Fprintf(os.Stderr, "connection lost: %v\n", err)
		}
	}
}

// controlLoop toggles capture turns on Enter presses.
func controlLoop(conn *client.Conn, producer client.FrameProducer) {
	scanner := bufio.NewScanner(os.Stdin)
	capturing := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "" && !capturing:
			if err := conn.StartStreaming(); err != nil {
				fmt.Fprintf(os.Stderr, "start failed: %v\n", err)
				continue
			}
			capturing = true
			fmt.Println("[listening]")
		case line == "" && capturing:
			_ = producer.Flush()
			if err := conn.StopStreaming(); err != nil {
				fmt.Fprintf(os.Stderr, "stop failed: %v\n", err)
			}
			capturing = false
		case line == "search on":
			_ = conn.ToggleWebSearch(true)
			fmt.Println("[web search on]")
		case line == "search off":
			_ = conn.ToggleWebSearch(false)
			fmt.Println("[web search off]")
		}
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
