// Command server runs the WebRTC voice conversation agent: it accepts SDP
// offers, wires VAD/STT/LLM/TTS into a per-connection pipeline, and streams
// synthesized speech back on the same peer connection.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/pion/webrtc/v4"

	"github.com/stopdesign/buratino/internal/config"
	"github.com/stopdesign/buratino/internal/logging"
	"github.com/stopdesign/buratino/internal/prompt"
	"github.com/stopdesign/buratino/pkg/bus"
	"github.com/stopdesign/buratino/pkg/chat"
	"github.com/stopdesign/buratino/pkg/endpoint"
	"github.com/stopdesign/buratino/pkg/llmworker"
	"github.com/stopdesign/buratino/pkg/orchestrator"
	"github.com/stopdesign/buratino/pkg/persistence"
	"github.com/stopdesign/buratino/pkg/providers/llm"
	"github.com/stopdesign/buratino/pkg/providers/stt"
	"github.com/stopdesign/buratino/pkg/providers/tts"
	"github.com/stopdesign/buratino/pkg/tools"
	"github.com/stopdesign/buratino/pkg/transport"
	"github.com/stopdesign/buratino/pkg/ttsworker"
	"github.com/stopdesign/buratino/pkg/vad"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(true)

	chatLog, err := persistence.OpenChatLog("db.jsonl")
	if err != nil {
		log.Fatalf("persistence: %v", err)
	}
	defer chatLog.Close()

	sttProvider, err := buildSTT(cfg)
	if err != nil {
		log.Fatalf("stt: %v", err)
	}
	llmProvider := buildLLM(cfg)
	ttsProvider := buildTTS(cfg)

	server, err := transport.NewServer(func(pc *webrtc.PeerConnection) error {
		return buildSession(pc, cfg, logger, chatLog, sttProvider, llmProvider, ttsProvider)
	}, nil)
	if err != nil {
		log.Fatalf("transport: %v", err)
	}

	logger.Info("listening", "addr", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, server.Handler()); err != nil {
		log.Fatalf("http: %v", err)
	}
}

// pcmSnapshotter is implemented by STT providers that keep a rolling raw
// PCM log for the save_audio control message. Not part of
// StreamingSTTProvider since batch-only providers have nothing to log.
type pcmSnapshotter interface {
	PCMSnapshot() []byte
}

func buildSTT(cfg config.Config) (orchestrator.StreamingSTTProvider, error) {
	switch cfg.STTProvider {
	case "deepgram":
		return stt.NewStreamingDeepgramSTT(cfg.DeepgramAPIKey), nil
	default:
		return nil, fmt.Errorf("STT_PROVIDER=%q has no streaming implementation wired", cfg.STTProvider)
	}
}

func buildLLM(cfg config.Config) llm.StreamingProvider {
	return llm.NewStreamingOpenAILLM(cfg.OpenAIAPIKey, "", cfg.LLMModel)
}

func buildTTS(cfg config.Config) ttsworker.Provider {
	switch cfg.TTSProvider {
	case "lokutor":
		return tts.NewLokutorTTS(cfg.LokutorAPIKey)
	default:
		return tts.NewOpenAITTS(cfg.OpenAIAPIKey)
	}
}

// buildSession wires one conversation's worth of workers onto a fresh event
// bus and attaches the resulting pipeline to pc's tracks and data channel.
func buildSession(pc *webrtc.PeerConnection, cfg config.Config, logger *logging.ZerologLogger, chatLog *persistence.ChatLog,
	sttProvider orchestrator.StreamingSTTProvider, llmProvider llm.StreamingProvider, ttsProvider ttsworker.Provider) error {

	ctx, cancel := context.WithCancel(context.Background())

	b := bus.New(logger)
	b.Start()

	chatCtx := chat.NewContext(prompt.Default)
	chatCtx.SetInterruptedEarlyThresholdMs(cfg.InterruptedEarlyMs)
	chatCtx.SetOnAppend(func(m chat.Message) {
		if err := chatLog.Append(m); err != nil {
			logger.Warn("failed to persist message", "error", err)
		}
	})

	toolsReg := tools.NewRegistry()

	llmWorker := llmworker.New(b, llmProvider)
	llmWorker.Start()

	ttsWorker := ttsworker.New(b, ttsProvider, cfg.Voice, cfg.Language)
	ttsWorker.Start(ctx)

	coord := orchestrator.NewCoordinator(b, chatCtx, endpoint.NewDefault(), toolsReg, logger, orchestrator.CoordinatorConfig{
		Voice:               cfg.Voice,
		Language:            cfg.Language,
		MinWordsToInterrupt: cfg.MinWordsToInterrupt,
		SystemPrompt:        prompt.Default,
	})
	coord.Start()

	var vadProvider vad.Provider
	if cfg.SileroModelPath != "" {
		silero, err := vad.NewSilero(cfg.SileroModelPath)
		if err != nil {
			logger.Warn("failed to load silero model, falling back to RMS", "error", err)
			vadProvider = vad.NewRMSFallback()
		} else {
			vadProvider = silero
		}
	} else {
		vadProvider = vad.NewRMSFallback()
	}

	sttAudioCh, err := sttProvider.StreamTranscribe(ctx, orchestrator.Language(cfg.Language), func(text string, isFinal bool) error {
		if isFinal {
			coord.OnSTTFinal(text)
		} else {
			coord.OnSTTInterim(text)
		}
		return nil
	})
	if err != nil {
		cancel()
		return fmt.Errorf("stt stream: %w", err)
	}

	const vadChunkBytes = 512 * 2 // 512 samples of 16-bit PCM at 16kHz
	var vadBuf []byte

	inbound, err := transport.NewInboundHandler(func(pcm48k []byte) {
		select {
		case sttAudioCh <- pcm48k:
		default:
		}

		vadBuf = append(vadBuf, transport.DownsampleTo16k(pcm48k)...)
		for len(vadBuf) >= vadChunkBytes {
			chunk := vadBuf[:vadChunkBytes]
			vadBuf = vadBuf[vadChunkBytes:]

			sample, err := vadProvider.Process(chunk)
			if err != nil {
				continue
			}
			coord.OnVADSample(sample, 0.032)
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("inbound handler: %w", err)
	}

	outboundTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 1},
		"audio", "buratino",
	)
	if err != nil {
		cancel()
		return fmt.Errorf("outbound track: %w", err)
	}
	if _, err := pc.AddTrack(outboundTrack); err != nil {
		cancel()
		return fmt.Errorf("add track: %w", err)
	}
	pacer := transport.NewOutboundPacer(outboundTrack, ttsWorker)
	go pacer.Run(ctx)

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		go inbound.Run(ctx, track)
	})

	b.Subscribe(transport.KindSTTSave, func(bus.Event) {
		snap, ok := sttProvider.(pcmSnapshotter)
		if !ok {
			logger.Warn("stt_save requested but STT provider keeps no PCM log")
			return
		}
		pcm := snap.PCMSnapshot()
		if len(pcm) == 0 {
			logger.Info("stt_save requested with nothing buffered yet")
			return
		}
		path, err := persistence.SnapshotPCM("audio_log", pcm, 48000)
		if err != nil {
			logger.Warn("failed to snapshot audio", "error", err)
			return
		}
		logger.Info("audio snapshot written", "path", path)
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		transport.WireControlChannel(dc, transport.ControlHandlers{
			OnSaveAudio: func() {
				b.Publish(transport.KindSTTSave, nil)
			},
			OnForceAbort: func() {
				coord.OnForceAbort()
			},
		})
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed ||
			s == webrtc.PeerConnectionStateDisconnected {
			cancel()
			b.Stop()
		}
	})

	if os.Getenv("DEBUG_PIPELINE") != "" {
		logger.Debug("session pipeline built")
	}
	return nil
}
