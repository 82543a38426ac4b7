// Command localmic runs the same VAD/STT/LLM/TTS pipeline as cmd/server
// over a local microphone and speaker instead of a WebRTC peer connection.
// It's a dev harness: unlike a remote peer's browser, a local loopback has
// no built-in acoustic echo cancellation, so it runs the teacher's
// correlation-based EchoSuppressor to keep the mic from hearing the
// speaker.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gen2brain/malgo"
	opus "gopkg.in/hraban/opus.v2"

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
	"github.com/stopdesign/buratino/pkg/ttsworker"
	"github.com/stopdesign/buratino/pkg/vad"
)

// sampleRate is fixed at the pipeline's native rate: the STT wire contract,
// the VAD downsampler, and the Opus codec all assume 48kHz.
const sampleRate = 48000

// pcmSnapshotter mirrors cmd/server's save_audio wiring for the "save"
// console command.
type pcmSnapshotter interface {
	PCMSnapshot() []byte
}

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.New(logger)
	b.Start()
	defer b.Stop()

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
		log.Fatalf("stt stream: %v", err)
	}

	echoSuppressor := orchestrator.NewEchoSuppressor()

	outDecoder, err := opus.NewDecoder(sampleRate, 1)
	if err != nil {
		log.Fatalf("opus decoder: %v", err)
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Fatalf("audio context: %v", err)
	}
	defer mctx.Uninit()

	var playbackMu sync.Mutex
	var playbackBytes []byte

	var rmsMu sync.Mutex
	lastRMS := 0.0

	const vadChunkBytes = 512 * 2 // 512 samples of 16-bit PCM at 16kHz
	var vadBuf []byte

	onSamples := func(pOutput, pInput []byte, frameCount uint32) {
		if pInput != nil {
			rms := rmsOf(pInput)
			rmsMu.Lock()
			lastRMS = rms
			rmsMu.Unlock()

			chunk := pInput
			if echoSuppressor.IsEcho(pInput) {
				chunk = make([]byte, len(pInput))
			}

			select {
			case sttAudioCh <- chunk:
			default:
			}

			vadBuf = append(vadBuf, downsampleTo16k(chunk)...)
			for len(vadBuf) >= vadChunkBytes {
				sample, err := vadProvider.Process(vadBuf[:vadChunkBytes])
				vadBuf = vadBuf[vadChunkBytes:]
				if err != nil {
					continue
				}
				coord.OnVADSample(sample, 0.032)
			}
		}
		if pOutput != nil {
			playbackMu.Lock()
			n := copy(pOutput, playbackBytes)
			playbackBytes = playbackBytes[n:]
			for i := n; i < len(pOutput); i++ {
				pOutput[i] = 0
			}
			playbackMu.Unlock()
		}
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = sampleRate
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		log.Fatalf("audio device: %v", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		log.Fatalf("audio start: %v", err)
	}

	// Pulls paced Opus packets off the TTS worker at the same 20ms cadence
	// the WebRTC outbound track uses, decodes them to PCM, and feeds the
	// playback buffer and the echo suppressor's reference window.
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		pcm := make([]int16, 5760)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				data, _, isSpeech := ttsWorker.NextPacket()
				if !isSpeech {
					continue
				}
				n, err := outDecoder.Decode(data, pcm)
				if err != nil || n <= 0 {
					continue
				}
				out := make([]byte, n*2)
				for i := 0; i < n; i++ {
					out[i*2] = byte(pcm[i])
					out[i*2+1] = byte(pcm[i] >> 8)
				}
				echoSuppressor.RecordPlayedAudio(out)
				playbackMu.Lock()
				playbackBytes = append(playbackBytes, out...)
				playbackMu.Unlock()
			}
		}
	}()

	go func() {
		for {
			rmsMu.Lock()
			level := lastRMS
			rmsMu.Unlock()
			dots := int(level * 500)
			if dots > 40 {
				dots = 40
			}
			meter := ""
			for i := 0; i < dots; i++ {
				meter += "|"
			}
			fmt.Printf("\r[MIC ENERGY: %-40s] RMS: %.5f", meter, level)
			time.Sleep(100 * time.Millisecond)
		}
	}()

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Println("\ntype f3<enter> to force barge-in, save<enter> to snapshot audio")
		for scanner.Scan() {
			switch scanner.Text() {
			case "f3":
				coord.OnForceAbort()
			case "save":
				snap, ok := sttProvider.(pcmSnapshotter)
				if !ok {
					logger.Warn("STT provider keeps no PCM log")
					continue
				}
				pcm := snap.PCMSnapshot()
				if len(pcm) == 0 {
					logger.Info("nothing buffered yet")
					continue
				}
				path, err := persistence.SnapshotPCM("audio_log", pcm, sampleRate)
				if err != nil {
					logger.Warn("failed to snapshot audio", "error", err)
					continue
				}
				logger.Info("audio snapshot written", "path", path)
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	fmt.Println("\nshutting down")
}

func rmsOf(chunk []byte) float64 {
	if len(chunk) < 2 {
		return 0
	}
	var sum float64
	n := 0
	for i := 0; i+1 < len(chunk); i += 2 {
		v := int16(chunk[i]) | (int16(chunk[i+1]) << 8)
		f := float64(v) / 32768.0
		sum += f * f
		n++
	}
	return math.Sqrt(sum / float64(n))
}

// downsampleTo16k matches transport.DownsampleTo16k's 1-in-3 decimation but
// stays local since this binary has no pion/webrtc dependency to hang it
// off of.
func downsampleTo16k(pcm48k []byte) []byte {
	out := make([]byte, 0, len(pcm48k)/3)
	for i := 0; i+5 < len(pcm48k); i += 6 {
		out = append(out, pcm48k[i], pcm48k[i+1])
	}
	return out
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
