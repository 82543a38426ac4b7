package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/stopdesign/buratino/pkg/orchestrator"
)

// maxPCMLogBytes bounds the rolling PCM log kept for save_audio snapshots:
// roughly 60s of 48kHz 16-bit stereo audio.
const maxPCMLogBytes = 48000 * 2 * 2 * 60

// StreamingDeepgramSTT keeps a persistent websocket session open to an ASR
// vendor and reemits interim/final/utterance-end events as PCM is fed in.
type StreamingDeepgramSTT struct {
	apiKey string
	host   string

	mu     sync.Mutex
	conn   *websocket.Conn
	pcmLog []byte
}

func NewStreamingDeepgramSTT(apiKey string) *StreamingDeepgramSTT {
	return &StreamingDeepgramSTT{apiKey: apiKey, host: "api.deepgram.com"}
}

// PCMSnapshot returns a copy of the rolling PCM log (the most recent
// maxPCMLogBytes fed to the stream), for save_audio. Taking a snapshot does
// not clear the log.
func (s *StreamingDeepgramSTT) PCMSnapshot() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.pcmLog))
	copy(out, s.pcmLog)
	return out
}

func (s *StreamingDeepgramSTT) appendPCMLog(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pcmLog = append(s.pcmLog, chunk...)
	if over := len(s.pcmLog) - maxPCMLogBytes; over > 0 {
		s.pcmLog = s.pcmLog[over:]
	}
}

func (s *StreamingDeepgramSTT) Name() string { return "deepgram-streaming-stt" }

// Transcribe is not used by the streaming path; it exists to satisfy
// STTProvider for code that only needs one-shot batch transcription.
func (s *StreamingDeepgramSTT) Transcribe(ctx context.Context, audioPCM []byte, lang orchestrator.Language) (string, error) {
	return "", fmt.Errorf("deepgram streaming provider does not support batch Transcribe")
}

// deepgramMessage is the subset of the wire protocol this server consumes.
type deepgramMessage struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal     bool `json:"is_final"`
	SpeechFinal bool `json:"speech_final"`
}

// StreamTranscribe opens the session and returns a channel the caller writes
// raw PCM frames to; onTranscript fires for every interim and final result.
// Closing the returned channel ends the session.
func (s *StreamingDeepgramSTT) StreamTranscribe(ctx context.Context, lang orchestrator.Language, onTranscript func(transcript string, isFinal bool) error) (chan<- []byte, error) {
	u := url.URL{
		Scheme:   "wss",
		Host:     s.host,
		Path:     "/v1/listen",
		RawQuery: "model=nova-2&interim_results=true&punctuate=true&endpointing=100&encoding=linear16&channels=2&sample_rate=48000",
	}
	if lang != "" {
		u.RawQuery += "&language=" + string(lang)
	}

	header := make(map[string][]string)
	header["Authorization"] = []string{"Token " + s.apiKey}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to deepgram: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	audioCh := make(chan []byte, 32)

	go func() {
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-audioCh:
				if !ok {
					conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
					return
				}
				s.appendPCMLog(chunk)
				if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
					return
				}
			}
		}
	}()

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var msg deepgramMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if msg.Type == "UtteranceEnd" {
				onTranscript("", true)
				continue
			}
			if len(msg.Channel.Alternatives) == 0 {
				continue
			}
			text := msg.Channel.Alternatives[0].Transcript
			if text == "" {
				continue
			}
			if err := onTranscript(text, msg.IsFinal || msg.SpeechFinal); err != nil {
				return
			}
		}
	}()

	return audioCh, nil
}

func (s *StreamingDeepgramSTT) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
