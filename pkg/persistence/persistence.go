// Package persistence appends the chat log to disk and snapshots raw PCM on
// request.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/stopdesign/buratino/pkg/audio"
	"github.com/stopdesign/buratino/pkg/chat"
)

// ChatLog appends one JSON line per chat message to a file, UTF-8, no
// escaping of non-ASCII content.
type ChatLog struct {
	mu   sync.Mutex
	f    *os.File
	enc  *json.Encoder
}

// OpenChatLog opens (creating if needed) the jsonl file at path for
// appending.
func OpenChatLog(path string) (*ChatLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("persistence: open %s: %w", path, err)
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	return &ChatLog{f: f, enc: enc}, nil
}

// Append writes one message as a JSON line.
func (c *ChatLog) Append(m chat.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.Encode(m)
}

// Close closes the underlying file.
func (c *ChatLog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.f.Close()
}

// SnapshotPCM writes raw 16-bit PCM to a timestamped WAV file under dir.
// MP3 transcoding is not attempted here.
func SnapshotPCM(dir string, pcm []byte, sampleRate int) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s/%s.wav", dir, time.Now().Format("20060102_150405"))
	wav := audio.NewWavBuffer(pcm, sampleRate)
	if err := os.WriteFile(name, wav, 0o644); err != nil {
		return "", err
	}
	return name, nil
}
