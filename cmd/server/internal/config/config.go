// Package config loads service configuration from the environment, with an
// optional YAML overlay file for deployments that prefer files over env vars.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the unified service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Whisper   WhisperConfig   `yaml:"whisper"`
	NLP       NLPConfig       `yaml:"nlp"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Reports   ReportsConfig   `yaml:"reports"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Env  string `yaml:"env"` // dev, staging, prod
	Port string `yaml:"port"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`  // empty disables file output
}

// WhisperConfig holds transcription collaborator settings. Disabled switches
// the service to the degraded mock transcriber; the URL is then ignored.
type WhisperConfig struct {
	APIURL      string        `yaml:"api_url"`
	Model       string        `yaml:"model"`
	MaxDuration time.Duration `yaml:"max_duration"` // audio cutoff per request
	Disabled    bool          `yaml:"disabled"`
}

// NLPConfig holds settings for the NER/summarization/embedding service.
type NLPConfig struct {
	ServiceURL     string   `yaml:"service_url"`
	NERModel       string   `yaml:"ner_model"`
	NERFallbacks   []string `yaml:"ner_fallbacks"` // ranked, tried in order
	NERThreshold   float64  `yaml:"ner_threshold"`
	SummarizeModel string   `yaml:"summarize_model"`
	EmbedModel     string   `yaml:"embed_model"`
}

// GeminiConfig holds generative model settings. An empty APIKey leaves report
// generation unconfigured; generation calls then short-circuit.
type GeminiConfig struct {
	APIKey     string        `yaml:"-"`
	Model      string        `yaml:"model"`
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// KnowledgeConfig holds vector index settings.
type KnowledgeConfig struct {
	IndexPath    string `yaml:"index_path"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
}

// ReportsConfig holds rendered artifact settings.
type ReportsConfig struct {
	Dir string `yaml:"dir"`
}

// LoadConfig builds the configuration from environment variables, then
// overlays the YAML file named by CONFIG_FILE when present. File values win
// for every key the file sets.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Env:  getEnv("ENV", "dev"),
			Port: getEnv("PORT", "8000"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", "app.log"),
		},
		Whisper: WhisperConfig{
			APIURL:      getEnv("WHISPER_API_URL", "http://whisper:8082"),
			Model:       getEnv("WHISPER_MODEL", "base"),
			MaxDuration: getEnvDuration("WHISPER_MAX_DURATION", 2520*time.Second),
			Disabled:    getEnvBool("WHISPER_DISABLED", false),
		},
		NLP: NLPConfig{
			ServiceURL:     getEnv("NLP_SERVICE_URL", "http://nlp:8090"),
			NERModel:       getEnv("NER_MODEL", "Jean-Baptiste/roberta-large-ner-english"),
			NERFallbacks:   parseStringList(getEnv("NER_FALLBACK_MODELS", "dslim/bert-base-NER,dbmdz/bert-large-cased-finetuned-conll03-english")),
			NERThreshold:   getEnvFloat("NER_THRESHOLD", 0.7),
			SummarizeModel: getEnv("SUMMARIZE_MODEL", "facebook/bart-large-cnn"),
			EmbedModel:     getEnv("EMBED_MODEL", "sentence-transformers/all-MiniLM-L6-v2"),
		},
		Gemini: GeminiConfig{
			APIKey:     getEnv("GOOGLE_API_KEY", ""),
			Model:      getEnv("GEMINI_MODEL", "gemini-1.5-flash-8b"),
			Retries:    getEnvInt("GEMINI_RETRIES", 3),
			RetryDelay: getEnvDuration("GEMINI_RETRY_DELAY", 5*time.Second),
		},
		Knowledge: KnowledgeConfig{
			IndexPath:    getEnv("INDEX_PATH", "faiss_index"),
			ChunkSize:    getEnvInt("CHUNK_SIZE", 200),
			ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 50),
		},
		Reports: ReportsConfig{
			Dir: getEnv("REPORTS_DIR", "./temp"),
		},
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// applyFile overlays values from a YAML config file onto cfg.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// ValidateConfig checks configuration consistency before startup.
func ValidateConfig(cfg *Config) error {
	var errs []string

	if cfg.Whisper.APIURL == "" && !cfg.Whisper.Disabled {
		errs = append(errs, "whisper API URL must not be empty unless whisper is disabled")
	}
	if cfg.NLP.ServiceURL == "" {
		errs = append(errs, "NLP service URL must not be empty")
	}
	if cfg.NLP.NERThreshold < 0 || cfg.NLP.NERThreshold > 1 {
		errs = append(errs, fmt.Sprintf("NER threshold %v outside [0,1]", cfg.NLP.NERThreshold))
	}
	if cfg.Gemini.Retries < 1 {
		errs = append(errs, "gemini retries must be at least 1")
	}
	if cfg.Knowledge.ChunkSize <= 0 {
		errs = append(errs, "chunk size must be positive")
	}
	if cfg.Knowledge.ChunkOverlap < 0 || cfg.Knowledge.ChunkOverlap >= cfg.Knowledge.ChunkSize {
		errs = append(errs, "chunk overlap must be non-negative and smaller than chunk size")
	}
	// An empty Gemini API key is not fatal: report generation runs in its
	// unconfigured state and short-circuits.

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// Bare integers are treated as seconds for compatibility with the
		// previous deployment's DURATION=2520 style values.
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

func parseStringList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
