package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sjawhar/codereflex/internal/llm"
)

// EnvPrefix is the namespace prefix for all CodeReflex environment variables.
const EnvPrefix = "CODEREFLEX_"

const (
	StorageSQLite   = "sqlite"
	StorageSupabase = "supabase"

	TranscriptionClient   = "client"
	TranscriptionDeepgram = "deepgram"
)

// Config holds all application configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
type Config struct {
	ListenAddr                string  `yaml:"listen_addr"`
	StaticDir                 string  `yaml:"static_dir"`
	DBPath                    string  `yaml:"db_path"`
	StorageBackend            string  `yaml:"storage_backend"`
	SupabaseURL               string  `yaml:"supabase_url"`
	LLMModel                  string  `yaml:"llm_model"`
	LLMBaseURL                string  `yaml:"llm_base_url"`
	LLMTimeout                string  `yaml:"llm_timeout"`
	EmotionModel              string  `yaml:"emotion_model"`
	EmotionInterval           string  `yaml:"emotion_interval"`
	EmotionThreshold          float64 `yaml:"emotion_threshold"`
	Transcription             string  `yaml:"transcription"`
	DeepgramModel             string  `yaml:"deepgram_model"`
	SampleRate                int     `yaml:"sample_rate"`
	AudioDir                  string  `yaml:"audio_dir"`
	ReportDir                 string  `yaml:"report_dir"`
	DefaultVoice              string  `yaml:"default_voice"`
	SkipConfirmationOnTimeout bool    `yaml:"skip_confirmation_on_timeout"`
	GDriveFolderID            string  `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile     string  `yaml:"google_credentials_file"`

	// Secrets, env vars only.
	OpenAIAPIKey           string `yaml:"-"`
	OpenRouterAPIKey       string `yaml:"-"`
	AnthropicAPIKey        string `yaml:"-"`
	GeminiAPIKey           string `yaml:"-"`
	DeepgramAPIKey         string `yaml:"-"`
	SupabaseServiceRoleKey string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:                "127.0.0.1:8080",
		DBPath:                    "data/codereflex.db",
		StorageBackend:            StorageSQLite,
		LLMModel:                  "openai/gpt-4o-mini",
		LLMTimeout:                "60s",
		EmotionModel:              "gpt-4o-mini",
		EmotionInterval:           "5s",
		EmotionThreshold:          0.5,
		Transcription:             TranscriptionClient,
		DeepgramModel:             "nova-2",
		SampleRate:                16000,
		AudioDir:                  "data/audio",
		ReportDir:                 "data/reports",
		SkipConfirmationOnTimeout: true,
		GoogleCredentialsFile:     "./service-account.json",
	}
}

// LoadDotEnv loads variables from path into the environment without
// overriding ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedLLMTimeout falls back to 60s when llm_timeout is invalid.
func (c *Config) ParsedLLMTimeout() time.Duration {
	return parseDuration(c.LLMTimeout, 60*time.Second)
}

func (c *Config) ParsedEmotionInterval() time.Duration {
	return parseDuration(c.EmotionInterval, 5*time.Second)
}

// LLMAPIKey returns the key for the provider named in llm_model.
func (c *Config) LLMAPIKey() string {
	provider, _, err := llm.ParseModel(c.LLMModel)
	if err != nil {
		return ""
	}
	return c.providerKey(provider)
}

// EmotionAPIKey is the key used by the vision detector, which talks to an
// OpenAI-compatible endpoint.
func (c *Config) EmotionAPIKey() string {
	if c.OpenAIAPIKey != "" {
		return c.OpenAIAPIKey
	}
	return c.OpenRouterAPIKey
}

func (c *Config) providerKey(provider string) string {
	switch provider {
	case "openai":
		return c.OpenAIAPIKey
	case "openrouter":
		return c.OpenRouterAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	case "gemini":
		return c.GeminiAPIKey
	default:
		return ""
	}
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	overrides := map[string]*string{
		"LISTEN_ADDR":             &cfg.ListenAddr,
		"STATIC_DIR":              &cfg.StaticDir,
		"DB_PATH":                 &cfg.DBPath,
		"STORAGE_BACKEND":         &cfg.StorageBackend,
		"SUPABASE_URL":            &cfg.SupabaseURL,
		"LLM_MODEL":               &cfg.LLMModel,
		"LLM_BASE_URL":            &cfg.LLMBaseURL,
		"LLM_TIMEOUT":             &cfg.LLMTimeout,
		"EMOTION_MODEL":           &cfg.EmotionModel,
		"EMOTION_INTERVAL":        &cfg.EmotionInterval,
		"TRANSCRIPTION":           &cfg.Transcription,
		"DEEPGRAM_MODEL":          &cfg.DeepgramModel,
		"AUDIO_DIR":               &cfg.AudioDir,
		"REPORT_DIR":              &cfg.ReportDir,
		"DEFAULT_VOICE":           &cfg.DefaultVoice,
		"GDRIVE_FOLDER_ID":        &cfg.GDriveFolderID,
		"GOOGLE_CREDENTIALS_FILE": &cfg.GoogleCredentialsFile,
	}
	for key, dst := range overrides {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv(EnvPrefix + "SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && rate > 0 {
			cfg.SampleRate = rate
		}
	}
	if v := os.Getenv(EnvPrefix + "EMOTION_THRESHOLD"); v != "" {
		if threshold, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			cfg.EmotionThreshold = threshold
		}
	}
	if v := os.Getenv(EnvPrefix + "SKIP_CONFIRMATION_ON_TIMEOUT"); v != "" {
		if skip, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.SkipConfirmationOnTimeout = skip
		}
	}
}

// secret prefers the namespaced variable and falls back to the name the
// provider SDKs use.
func secret(name string) string {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		return v
	}
	return os.Getenv(name)
}

func loadSecrets(cfg *Config) {
	cfg.OpenAIAPIKey = secret("OPENAI_API_KEY")
	cfg.OpenRouterAPIKey = secret("OPENROUTER_API_KEY")
	cfg.AnthropicAPIKey = secret("ANTHROPIC_API_KEY")
	cfg.GeminiAPIKey = secret("GEMINI_API_KEY")
	cfg.DeepgramAPIKey = secret("DEEPGRAM_API_KEY")
	cfg.SupabaseServiceRoleKey = secret("SUPABASE_SERVICE_ROLE_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	provider, _, err := llm.ParseModel(cfg.LLMModel)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid llm_model %q: interviews cannot run. Use provider/model, e.g. openai/gpt-4o-mini.", cfg.LLMModel))
	} else if cfg.providerKey(provider) == "" {
		warnings = append(warnings, fmt.Sprintf("No API key configured for %s: interviews cannot run. Set %s.", provider, strings.ToUpper(provider)+"_API_KEY"))
	}

	if _, err := time.ParseDuration(cfg.LLMTimeout); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid llm_timeout %q: using default 60s.", cfg.LLMTimeout))
	}
	if _, err := time.ParseDuration(cfg.EmotionInterval); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid emotion_interval %q: using default 5s.", cfg.EmotionInterval))
	}
	if cfg.EmotionAPIKey() == "" {
		warnings = append(warnings, "No OpenAI API key configured: emotion tracking is disabled. Set OPENAI_API_KEY.")
	}

	switch cfg.StorageBackend {
	case StorageSQLite:
	case StorageSupabase:
		if cfg.SupabaseURL == "" || cfg.SupabaseServiceRoleKey == "" {
			warnings = append(warnings, "Supabase storage needs supabase_url and SUPABASE_SERVICE_ROLE_KEY: falling back to sqlite.")
			cfg.StorageBackend = StorageSQLite
		}
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown storage_backend %q: using sqlite.", cfg.StorageBackend))
		cfg.StorageBackend = StorageSQLite
	}

	switch cfg.Transcription {
	case TranscriptionClient:
	case TranscriptionDeepgram:
		if cfg.DeepgramAPIKey == "" {
			warnings = append(warnings, "Deepgram API key not configured: using browser speech recognition. Set DEEPGRAM_API_KEY.")
			cfg.Transcription = TranscriptionClient
		}
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown transcription %q: using browser speech recognition.", cfg.Transcription))
		cfg.Transcription = TranscriptionClient
	}

	if cfg.EmotionThreshold < 0 || cfg.EmotionThreshold > 1 {
		warnings = append(warnings, fmt.Sprintf("emotion_threshold %.2f is outside 0..1: using 0.5.", cfg.EmotionThreshold))
		cfg.EmotionThreshold = 0.5
	}

	return warnings
}
