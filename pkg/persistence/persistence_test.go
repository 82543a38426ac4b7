package persistence

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stopdesign/buratino/pkg/chat"
)

func TestChatLogAppendWritesOneJSONLinePerMessage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.jsonl")
	log, err := OpenChatLog(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer log.Close()

	if err := log.Append(chat.Message{Role: "user", Content: "hello"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := log.Append(chat.Message{Role: "assistant", Content: "hi there"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	log.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var m chat.Message
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatalf("expected valid JSON line, got error: %v", err)
	}
	if m.Role != "user" || m.Content != "hello" {
		t.Fatalf("unexpected decoded message: %+v", m)
	}
}

func TestChatLogAppendsAcrossReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.jsonl")

	log1, err := OpenChatLog(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	log1.Append(chat.Message{Role: "user", Content: "first"})
	log1.Close()

	log2, err := OpenChatLog(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	log2.Append(chat.Message{Role: "user", Content: "second"})
	log2.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(data), "first") || !strings.Contains(string(data), "second") {
		t.Fatalf("expected both messages to survive across reopen, got: %s", data)
	}
}

func TestSnapshotPCMWritesWavFile(t *testing.T) {
	dir := t.TempDir()
	pcm := make([]byte, 320) // 160 16-bit samples

	name, err := SnapshotPCM(dir, pcm, 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasSuffix(name, ".wav") {
		t.Fatalf("expected a .wav filename, got %q", name)
	}

	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("expected file to exist at %q: %v", name, err)
	}
	if len(data) <= len(pcm) {
		t.Fatalf("expected the WAV file to include header bytes beyond the raw PCM, got %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" {
		t.Fatalf("expected a RIFF header, got %q", data[0:4])
	}
}
