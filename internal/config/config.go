// Package config loads process-level settings from the environment,
// generalizing the provider-selection switch the local demo binary used to
// hardcode.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the fully resolved process configuration.
type Config struct {
	ListenAddr string

	STTProvider string
	LLMProvider string
	TTSProvider string

	OpenAIAPIKey    string
	AnthropicAPIKey string
	GoogleAPIKey    string
	GroqAPIKey      string
	DeepgramAPIKey  string
	AssemblyAIKey   string
	LokutorAPIKey   string

	LLMModel string

	Voice    string
	Language string

	SileroModelPath string

	MinWordsToInterrupt int
	InterruptedEarlyMs  int64

	STTTimeoutSeconds int
	LLMTimeoutSeconds int
	TTSTimeoutSeconds int
}

// Load reads a .env file if present (ignored if missing) then fills Config
// from the environment, failing hard on missing required keys the way the
// original bootstrap did with its log.Fatal checks.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		ListenAddr:          getEnv("LISTEN_ADDR", ":8080"),
		STTProvider:         getEnv("STT_PROVIDER", "deepgram"),
		LLMProvider:         getEnv("LLM_PROVIDER", "openai"),
		TTSProvider:         getEnv("TTS_PROVIDER", "openai"),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey:     os.Getenv("ANTHROPIC_API_KEY"),
		GoogleAPIKey:        os.Getenv("GOOGLE_API_KEY"),
		GroqAPIKey:          os.Getenv("GROQ_API_KEY"),
		DeepgramAPIKey:      os.Getenv("DEEPGRAM_API_KEY"),
		AssemblyAIKey:       os.Getenv("ASSEMBLYAI_API_KEY"),
		LokutorAPIKey:       os.Getenv("LOKUTOR_API_KEY"),
		LLMModel:            getEnv("LLM_MODEL", ""),
		Voice:               getEnv("TTS_VOICE", "alloy"),
		Language:            getEnv("LANGUAGE", "en"),
		SileroModelPath:     os.Getenv("SILERO_MODEL_PATH"),
		MinWordsToInterrupt: getEnvInt("MIN_WORDS_TO_INTERRUPT", 2),
		InterruptedEarlyMs:  int64(getEnvInt("INTERRUPTED_EARLY_MS", 3000)),
		STTTimeoutSeconds:   getEnvInt("STT_TIMEOUT_SECONDS", 30),
		LLMTimeoutSeconds:   getEnvInt("LLM_TIMEOUT_SECONDS", 60),
		TTSTimeoutSeconds:   getEnvInt("TTS_TIMEOUT_SECONDS", 30),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.LLMProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("config: OPENAI_API_KEY is required for LLM_PROVIDER=openai")
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("config: ANTHROPIC_API_KEY is required for LLM_PROVIDER=anthropic")
		}
	case "google":
		if c.GoogleAPIKey == "" {
			return fmt.Errorf("config: GOOGLE_API_KEY is required for LLM_PROVIDER=google")
		}
	default:
		return fmt.Errorf("config: unknown LLM_PROVIDER %q", c.LLMProvider)
	}

	switch c.STTProvider {
	case "deepgram":
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("config: DEEPGRAM_API_KEY is required for STT_PROVIDER=deepgram")
		}
	case "assemblyai":
		if c.AssemblyAIKey == "" {
			return fmt.Errorf("config: ASSEMBLYAI_API_KEY is required for STT_PROVIDER=assemblyai")
		}
	case "groq":
		if c.GroqAPIKey == "" {
			return fmt.Errorf("config: GROQ_API_KEY is required for STT_PROVIDER=groq")
		}
	default:
		return fmt.Errorf("config: unknown STT_PROVIDER %q", c.STTProvider)
	}

	switch c.TTSProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("config: OPENAI_API_KEY is required for TTS_PROVIDER=openai")
		}
	case "lokutor":
		if c.LokutorAPIKey == "" {
			return fmt.Errorf("config: LOKUTOR_API_KEY is required for TTS_PROVIDER=lokutor")
		}
	default:
		return fmt.Errorf("config: unknown TTS_PROVIDER %q", c.TTSProvider)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
