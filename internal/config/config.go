package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Scratch    ScratchConfig    `yaml:"scratch"`
	Transcoder TranscoderConfig `yaml:"transcoder"`
	STT        STTConfig        `yaml:"stt"`
	Worker     WorkerConfig     `yaml:"worker"`
}

type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"` // empty disables the audit trail
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ScratchConfig struct {
	Dir    string        `yaml:"dir"`     // default: "temp_audio"
	MaxAge time.Duration `yaml:"max_age"` // orphaned request dirs older than this are swept
}

type TranscoderConfig struct {
	Backend       string `yaml:"backend"` // "auto", "native" or "ffmpeg"
	FFmpegCommand string `yaml:"ffmpeg_command"`
	SampleRate    int    `yaml:"sample_rate"`
	Channels      int    `yaml:"channels"`
}

type STTConfig struct {
	Backend               string `yaml:"backend"`  // "google", "openai", "local" or "mock"
	Language              string `yaml:"language"` // BCP-47 locale, e.g. "fa-IR"
	GoogleAPIKey          string `yaml:"google_api_key"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`
	OpenAIKey             string `yaml:"openai_key"`
	OpenAIBaseURL         string `yaml:"openai_base_url"`
	OpenAIModel           string `yaml:"openai_model"`
	LocalBaseURL          string `yaml:"local_base_url"` // default: "http://localhost:8178"
	MockText              string `yaml:"mock_text"`
}

type WorkerConfig struct {
	Concurrency   int    `yaml:"concurrency"`
	SweepSchedule string `yaml:"sweep_schedule"` // asynq cronspec
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8000,
			CORSOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			MaxConns: 10,
			MinConns: 1,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Scratch: ScratchConfig{
			Dir:    "temp_audio",
			MaxAge: time.Hour,
		},
		Transcoder: TranscoderConfig{
			Backend:       "auto",
			FFmpegCommand: "ffmpeg -nostdin -hide_banner -loglevel error",
			SampleRate:    16000,
			Channels:      1,
		},
		STT: STTConfig{
			Backend:      "google",
			Language:     "fa-IR",
			LocalBaseURL: "http://localhost:8178",
		},
		Worker: WorkerConfig{
			Concurrency:   2,
			SweepSchedule: "@every 10m",
		},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	var err error

	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	if cfg.Server.Port, err = getEnvInt("SERVER_PORT", cfg.Server.Port); err != nil {
		return fmt.Errorf("invalid SERVER_PORT: %w", err)
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitList(v)
	}

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	if cfg.Database.MaxConns, err = getEnvInt("DB_MAX_CONNS", cfg.Database.MaxConns); err != nil {
		return fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}
	if cfg.Database.MinConns, err = getEnvInt("DB_MIN_CONNS", cfg.Database.MinConns); err != nil {
		return fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	if cfg.Redis.DB, err = getEnvInt("REDIS_DB", cfg.Redis.DB); err != nil {
		return fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg.Scratch.Dir = getEnv("SCRATCH_DIR", cfg.Scratch.Dir)
	if cfg.Scratch.MaxAge, err = getEnvDuration("SCRATCH_MAX_AGE", cfg.Scratch.MaxAge); err != nil {
		return fmt.Errorf("invalid SCRATCH_MAX_AGE: %w", err)
	}

	cfg.Transcoder.Backend = getEnv("TRANSCODE_BACKEND", cfg.Transcoder.Backend)
	cfg.Transcoder.FFmpegCommand = getEnv("TRANSCODE_FFMPEG_COMMAND", cfg.Transcoder.FFmpegCommand)
	if cfg.Transcoder.SampleRate, err = getEnvInt("TRANSCODE_SAMPLE_RATE", cfg.Transcoder.SampleRate); err != nil {
		return fmt.Errorf("invalid TRANSCODE_SAMPLE_RATE: %w", err)
	}
	if cfg.Transcoder.Channels, err = getEnvInt("TRANSCODE_CHANNELS", cfg.Transcoder.Channels); err != nil {
		return fmt.Errorf("invalid TRANSCODE_CHANNELS: %w", err)
	}

	cfg.STT.Backend = getEnv("STT_BACKEND", cfg.STT.Backend)
	cfg.STT.Language = getEnv("STT_LANGUAGE", cfg.STT.Language)
	cfg.STT.GoogleAPIKey = getEnv("GOOGLE_API_KEY", cfg.STT.GoogleAPIKey)
	cfg.STT.GoogleCredentialsFile = getEnv("GOOGLE_APPLICATION_CREDENTIALS", cfg.STT.GoogleCredentialsFile)
	cfg.STT.OpenAIKey = getEnv("OPENAI_API_KEY", cfg.STT.OpenAIKey)
	cfg.STT.OpenAIBaseURL = getEnv("STT_OPENAI_BASE_URL", cfg.STT.OpenAIBaseURL)
	cfg.STT.OpenAIModel = getEnv("STT_OPENAI_MODEL", cfg.STT.OpenAIModel)
	cfg.STT.LocalBaseURL = getEnv("STT_LOCAL_BASE_URL", cfg.STT.LocalBaseURL)
	cfg.STT.MockText = getEnv("STT_MOCK_TEXT", cfg.STT.MockText)

	if cfg.Worker.Concurrency, err = getEnvInt("WORKER_CONCURRENCY", cfg.Worker.Concurrency); err != nil {
		return fmt.Errorf("invalid WORKER_CONCURRENCY: %w", err)
	}
	cfg.Worker.SweepSchedule = getEnv("WORKER_SWEEP_SCHEDULE", cfg.Worker.SweepSchedule)

	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var problems []string

	switch c.STT.Backend {
	case "google":
	case "openai":
		if c.STT.OpenAIKey == "" && c.STT.OpenAIBaseURL == "" {
			problems = append(problems, "OPENAI_API_KEY is required for STT_BACKEND=openai")
		}
	case "local", "mock":
	default:
		problems = append(problems, fmt.Sprintf("unknown STT_BACKEND %q", c.STT.Backend))
	}

	switch c.Transcoder.Backend {
	case "auto", "native", "ffmpeg":
	default:
		problems = append(problems, fmt.Sprintf("unknown TRANSCODE_BACKEND %q", c.Transcoder.Backend))
	}

	if c.STT.Language == "" {
		problems = append(problems, "STT_LANGUAGE must not be empty")
	}
	if c.Transcoder.SampleRate <= 0 {
		problems = append(problems, "TRANSCODE_SAMPLE_RATE must be positive")
	}
	if c.Transcoder.Channels <= 0 {
		problems = append(problems, "TRANSCODE_CHANNELS must be positive")
	}
	if c.Scratch.Dir == "" {
		problems = append(problems, "SCRATCH_DIR must not be empty")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
