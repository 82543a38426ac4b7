package config

import (
	"os"
	"testing"
)

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LISTEN_ADDR", "STT_PROVIDER", "LLM_PROVIDER", "TTS_PROVIDER",
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GOOGLE_API_KEY", "GROQ_API_KEY",
		"DEEPGRAM_API_KEY", "ASSEMBLYAI_API_KEY", "LOKUTOR_API_KEY",
		"LLM_MODEL", "TTS_VOICE", "LANGUAGE", "SILERO_MODEL_PATH",
		"MIN_WORDS_TO_INTERRUPT", "INTERRUPTED_EARLY_MS",
	} {
		os.Unsetenv(k)
	}
}

func TestLoadFailsWithoutRequiredKeys(t *testing.T) {
	clearProviderEnv(t)
	if _, err := Load(); err == nil {
		t.Fatal("expected Load to fail without any provider API keys set")
	}
}

func TestLoadSucceedsWithDefaultProvidersAndKeys(t *testing.T) {
	clearProviderEnv(t)
	os.Setenv("OPENAI_API_KEY", "sk-test")
	os.Setenv("DEEPGRAM_API_KEY", "dg-test")
	defer clearProviderEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLMProvider != "openai" || cfg.STTProvider != "deepgram" || cfg.TTSProvider != "openai" {
		t.Fatalf("unexpected default providers: %+v", cfg)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("expected default listen addr, got %q", cfg.ListenAddr)
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	clearProviderEnv(t)
	os.Setenv("OPENAI_API_KEY", "sk-test")
	os.Setenv("DEEPGRAM_API_KEY", "dg-test")
	os.Setenv("TTS_PROVIDER", "not-a-real-vendor")
	defer clearProviderEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for an unrecognized TTS_PROVIDER")
	}
}

func TestGetEnvIntFallsBackOnGarbage(t *testing.T) {
	os.Setenv("MIN_WORDS_TO_INTERRUPT", "not-a-number")
	defer os.Unsetenv("MIN_WORDS_TO_INTERRUPT")

	if got := getEnvInt("MIN_WORDS_TO_INTERRUPT", 2); got != 2 {
		t.Fatalf("expected fallback value 2, got %d", got)
	}
}
