package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// OpenAITTS streams speech synthesis in Ogg-Opus framing, the server's
// primary TTS backend.
type OpenAITTS struct {
	apiKey string
	url    string
	model  string

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewOpenAITTS(apiKey string) *OpenAITTS {
	return &OpenAITTS{
		apiKey: apiKey,
		url:    "https://api.openai.com/v1/audio/speech",
		model:  "tts-1",
	}
}

func (t *OpenAITTS) Name() string { return "openai-tts" }

func (t *OpenAITTS) Synthesize(ctx context.Context, text, voice, lang string) ([]byte, error) {
	var audio []byte
	err := t.StreamSynthesize(ctx, text, voice, lang, func(chunk []byte) error {
		audio = append(audio, chunk...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return audio, nil
}

// StreamSynthesize requests Opus audio for text and streams the raw
// response body to onChunk as it arrives.
func (t *OpenAITTS) StreamSynthesize(ctx context.Context, text, voice, lang string, onChunk func([]byte) error) error {
	if voice == "" {
		voice = "alloy"
	}

	payload := map[string]interface{}{
		"model":           t.model,
		"input":           text,
		"voice":           voice,
		"response_format": "opus",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("openai tts error (status %d): %s", resp.StatusCode, string(b))
	}

	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if cbErr := onChunk(buf[:n]); cbErr != nil {
				return cbErr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Abort cancels the request currently in flight, if any.
func (t *OpenAITTS) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	return nil
}
