package ttsworker

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stopdesign/buratino/pkg/bus"
)

// buildOggPage and buildOggHead mirror the minimal page layout the oggopus
// package parses: magic, 22 unused header bytes, a segment count of 1, one
// segment-size byte, then the body.
func buildOggPage(body []byte) []byte {
	page := make([]byte, 0, 28+len(body))
	page = append(page, []byte("OggS")...)
	page = append(page, make([]byte, 22)...)
	page = append(page, byte(1), byte(len(body)))
	page = append(page, body...)
	return page
}

func buildOggHead() []byte {
	body := make([]byte, 0, 19)
	body = append(body, []byte("OpusHead")...)
	body = append(body, 1, 1)
	preSkip := make([]byte, 2)
	binary.LittleEndian.PutUint16(preSkip, 0)
	body = append(body, preSkip...)
	sr := make([]byte, 4)
	binary.LittleEndian.PutUint32(sr, 24000)
	body = append(body, sr...)
	body = append(body, 0, 0, 0)
	return buildOggPage(body)
}

type fakeTTSProvider struct {
	oggBytes []byte
	err      error
}

func (f *fakeTTSProvider) StreamSynthesize(ctx context.Context, text, voice, lang string, onChunk func([]byte) error) error {
	if f.err != nil {
		return f.err
	}
	return onChunk(f.oggBytes)
}

func TestSynthesizeQueuesDecodedPackets(t *testing.T) {
	b := bus.New(nil)
	b.Start()
	defer b.Stop()

	provider := &fakeTTSProvider{oggBytes: append(buildOggHead(), buildOggPage([]byte{0x01, 0x02, 0x03})...)}
	w := New(b, provider, "alloy", "en")

	w.synthesize(context.Background(), Request{Text: "hello", Turn: 1})

	data, ptsCount, isSpeech := w.NextPacket()
	if !isSpeech {
		t.Fatal("expected a real packet, got silence filler")
	}
	if string(data) != string([]byte{0x01, 0x02, 0x03}) {
		t.Fatalf("unexpected packet payload: %v", data)
	}
	if ptsCount <= 0 {
		t.Fatalf("expected a positive pts count, got %d", ptsCount)
	}
}

func TestNextPacketReturnsSilenceWhenQueueEmpty(t *testing.T) {
	b := bus.New(nil)
	b.Start()
	defer b.Stop()

	w := New(b, &fakeTTSProvider{}, "alloy", "en")

	data, ptsCount, isSpeech := w.NextPacket()
	if isSpeech {
		t.Fatal("expected silence filler, got a speech packet")
	}
	if string(data) != string(silenceOpus) {
		t.Fatalf("expected silence filler bytes, got %v", data)
	}
	if ptsCount != outboundSampleRate/50 {
		t.Fatalf("expected 20ms of silence pts, got %d", ptsCount)
	}
}

func TestAbortDropsStalePackets(t *testing.T) {
	b := bus.New(nil)
	b.Start()
	defer b.Stop()

	provider := &fakeTTSProvider{oggBytes: append(buildOggHead(), buildOggPage([]byte{0x09})...)}
	w := New(b, provider, "alloy", "en")

	w.synthesize(context.Background(), Request{Text: "hello", Turn: 1})
	w.abort(1) // bumps currentTurn past 1, the in-flight packet is now stale

	_, _, isSpeech := w.NextPacket()
	if isSpeech {
		t.Fatal("expected the stale turn-1 packet to be dropped after abort")
	}
}

func TestLoopSkipsRequestsBelowCurrentTurn(t *testing.T) {
	b := bus.New(nil)
	b.Start()
	defer b.Stop()

	provider := &fakeTTSProvider{oggBytes: append(buildOggHead(), buildOggPage([]byte{0x05})...)}
	w := New(b, provider, "alloy", "en")
	w.abort(5) // currentTurn becomes 6

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	b.Publish(KindRequest, Request{Turn: 1, Text: "stale turn"})
	time.Sleep(50 * time.Millisecond)

	_, _, isSpeech := w.NextPacket()
	if isSpeech {
		t.Fatal("expected a request below the current turn floor to be skipped entirely")
	}
}

func TestSetActivePublishesSpeechStartedAndStopped(t *testing.T) {
	b := bus.New(nil)
	b.Start()
	defer b.Stop()

	w := New(b, &fakeTTSProvider{}, "alloy", "en")

	started := make(chan struct{}, 1)
	stopped := make(chan struct{}, 1)
	b.Subscribe(KindSpeechStarted, func(bus.Event) { started <- struct{}{} })
	b.Subscribe(KindSpeechStopped, func(bus.Event) { stopped <- struct{}{} })

	w.setActive(true)
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("expected a speech-started event on the false->true transition")
	}

	w.setActive(true) // no transition, should not republish
	w.setActive(false)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("expected a speech-stopped event on the true->false transition")
	}
}
