// Package ttsworker turns text into a turn-fenced stream of paced Opus
// packets for the outbound media track, with silence filler when nothing is
// queued.
package ttsworker

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	opus "gopkg.in/hraban/opus.v2"

	"github.com/stopdesign/buratino/pkg/bus"
	"github.com/stopdesign/buratino/pkg/oggopus"
	"github.com/stopdesign/buratino/pkg/worker"
)

const (
	KindRequest        = "tts_request"
	KindAbort          = "tts_abort"
	KindSpeechStarted  = "tts_speech_started"
	KindSpeechStopped  = "tts_speech_stopped"
)

// Request asks the worker to synthesize text for a turn.
type Request struct {
	Text string
	Turn int
}

// SpeechStoppedEvent carries why playback stopped.
type SpeechStoppedEvent struct {
	Reason string // "", "abort"
}

// Provider streams raw Ogg-Opus bytes for a block of text.
type Provider interface {
	StreamSynthesize(ctx context.Context, text string, voice, lang string, onChunk func([]byte) error) error
}

// packet is one scheduled Opus frame.
type packet struct {
	turn     int
	ptsCount int64
	data     []byte
}

const outboundSampleRate = 48000

// silenceOpus is a standard 20ms Opus silence frame.
var silenceOpus = []byte{0xf8, 0xff, 0xfe}

// Worker is the TTS stage and outbound packet scheduler.
type Worker struct {
	worker.BaseWorker
	provider Provider
	voice    string
	lang     string

	reqs chan Request

	mu          sync.Mutex
	currentTurn int

	packets chan packet
	active  atomic.Bool

	decoder *opus.Decoder
}

// New creates the worker. voice/lang are passed through to the provider on
// every request.
func New(b *bus.Bus, provider Provider, voice, lang string) *Worker {
	dec, _ := opus.NewDecoder(outboundSampleRate, 1)
	return &Worker{
		BaseWorker: worker.New(b),
		provider:   provider,
		voice:      voice,
		lang:       lang,
		reqs:       make(chan Request, 32),
		packets:    make(chan packet, 64),
		decoder:    dec,
	}
}

// Start subscribes to tts_request/tts_abort and launches the synthesis loop.
func (w *Worker) Start(ctx context.Context) {
	w.BaseWorker.Start(ctx)
	w.Subscribe(KindRequest, func(ev bus.Event) {
		if r, ok := ev.Payload.(Request); ok {
			select {
			case w.reqs <- r:
			default:
			}
		}
	})
	w.Subscribe(KindAbort, func(ev bus.Event) {
		turn, _ := ev.Payload.(int)
		w.abort(turn)
	})
	go w.loop(ctx)
}

func (w *Worker) abort(turn int) {
	w.mu.Lock()
	if turn+1 > w.currentTurn {
		w.currentTurn = turn + 1
	}
	w.mu.Unlock()
	w.Emit(KindSpeechStopped, SpeechStoppedEvent{Reason: "abort"})
}

func (w *Worker) floor() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentTurn
}

func (w *Worker) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-w.reqs:
			if req.Turn < w.floor() {
				continue
			}
			w.synthesize(ctx, req)
		}
	}
}

func (w *Worker) synthesize(ctx context.Context, req Request) {
	proc := oggopus.New(func(pkt []byte, meta oggopus.Meta) {
		if req.Turn < w.floor() {
			return
		}
		ptsCount := w.ptsCountFor(pkt)
		select {
		case w.packets <- packet{turn: req.Turn, ptsCount: ptsCount, data: pkt}:
		case <-ctx.Done():
		}
	})

	w.provider.StreamSynthesize(ctx, req.Text, w.voice, w.lang, func(chunk []byte) error {
		if req.Turn < w.floor() {
			return io.EOF
		}
		proc.Write(chunk)
		return nil
	})
}

// ptsCountFor decodes pkt to get its sample count and converts to a 48kHz
// presentation-time delta. Decode failures fall back to a 20ms estimate so
// pacing never stalls on a single bad packet.
func (w *Worker) ptsCountFor(pkt []byte) int64 {
	pcm := make([]int16, 5760) // max Opus frame at 48kHz
	n, err := w.decoder.Decode(pkt, pcm)
	if err != nil || n <= 0 {
		return outboundSampleRate / 50
	}
	return int64(n)
}

// NextPacket is pulled by the outbound media track at wall-clock rate. It
// returns the next live packet if one is fresh, otherwise a 20ms silence
// filler. ptsCount is always in 48kHz samples.
func (w *Worker) NextPacket() (data []byte, ptsCount int64, isSpeech bool) {
	floor := w.floor()

	for {
		select {
		case p := <-w.packets:
			if p.turn < floor {
				continue
			}
			w.setActive(true)
			return p.data, p.ptsCount, true
		default:
			w.setActive(false)
			return silenceOpus, outboundSampleRate / 50, false
		}
	}
}

func (w *Worker) setActive(speech bool) {
	was := w.active.Swap(speech)
	if speech && !was {
		w.Emit(KindSpeechStarted, nil)
	} else if !speech && was {
		w.Emit(KindSpeechStopped, SpeechStoppedEvent{})
	}
}
