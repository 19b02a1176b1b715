package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/optio-learning/optio-backend/internal/data/db"
	"github.com/optio-learning/optio-backend/internal/platform/envutil"
	"github.com/optio-learning/optio-backend/internal/platform/objectstore"
)

type Config struct {
	LogMode       string              `yaml:"log_mode"`
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	JWT           JWTConfig           `yaml:"jwt"`
	OpenAI        OpenAIConfig        `yaml:"openai"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Worker        WorkerConfig        `yaml:"worker"`
	Storage       objectstore.Config  `yaml:"storage"`
	Redis         RedisConfig         `yaml:"redis"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	Host         string `yaml:"host"`
	Port         string `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Name         string `yaml:"name"`
	SSLMode      string `yaml:"sslmode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type JWTConfig struct {
	SecretKey string `yaml:"secret_key"`
}

type OpenAIConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	Temperature float64       `yaml:"temperature"`
}

type PipelineConfig struct {
	MaxChunkChars      int `yaml:"max_chunk_chars"`
	ChunkWorkers       int `yaml:"chunk_workers"`
	SummaryChars       int `yaml:"summary_chars"`
	GenerationAttempts int `yaml:"generation_attempts"`
}

type WorkerConfig struct {
	Concurrency       int           `yaml:"concurrency"`
	MaxAttempts       int           `yaml:"max_attempts"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	StaleRunning      time.Duration `yaml:"stale_running"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type ObservabilityConfig struct {
	MetricsEnabled bool    `yaml:"metrics_enabled"`
	OTelEnabled    bool    `yaml:"otel_enabled"`
	ServiceName    string  `yaml:"service_name"`
	Environment    string  `yaml:"environment"`
	Endpoint       string  `yaml:"otlp_endpoint"`
	Insecure       bool    `yaml:"otlp_insecure"`
	Headers        string  `yaml:"otlp_headers"`
	SampleRatio    float64 `yaml:"sample_ratio"`
}

func defaultConfig() Config {
	return Config{
		LogMode: "development",
		Server: ServerConfig{
			Port:            "8080",
			MaxUploadBytes:  50 << 20,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:  db.DriverPostgres,
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			Name:    "optio",
			SSLMode: "disable",
		},
		OpenAI: OpenAIConfig{
			Timeout:     180 * time.Second,
			MaxRetries:  2,
			Temperature: 0.2,
		},
		Worker: WorkerConfig{
			Concurrency:       4,
			MaxAttempts:       3,
			RetryDelay:        30 * time.Second,
			StaleRunning:      10 * time.Minute,
			PollInterval:      time.Second,
			HeartbeatInterval: 30 * time.Second,
		},
		Storage: objectstore.Config{
			Mode:     objectstore.ModeLocal,
			LocalDir: "data/uploads",
		},
		Redis: RedisConfig{Channel: "optio-sse"},
		Observability: ObservabilityConfig{
			MetricsEnabled: true,
			ServiceName:    "optio-backend",
			Environment:    "development",
			SampleRatio:    1,
		},
	}
}

/*
LoadConfig builds the runtime configuration in three layers: built-in
defaults, then the YAML file at path (or CONFIG_FILE when path is empty),
then environment variables. A missing explicit file is an error.
*/
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		path = envutil.String("CONFIG_FILE", "")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)

	cfg.Server.Port = envutil.String("PORT", cfg.Server.Port)
	if raw := envutil.String("CORS_ORIGINS", ""); raw != "" {
		cfg.Server.CORSOrigins = splitList(raw)
	}
	cfg.Server.MaxUploadBytes = int64(envutil.Int("MAX_UPLOAD_BYTES", int(cfg.Server.MaxUploadBytes)))
	cfg.Server.ShutdownTimeout = envutil.Seconds("SHUTDOWN_TIMEOUT_SECONDS", cfg.Server.ShutdownTimeout)

	cfg.Database.Driver = envutil.String("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = envutil.String("DATABASE_URL", cfg.Database.DSN)
	cfg.Database.Host = envutil.String("POSTGRES_HOST", cfg.Database.Host)
	cfg.Database.Port = envutil.String("POSTGRES_PORT", cfg.Database.Port)
	cfg.Database.User = envutil.String("POSTGRES_USER", cfg.Database.User)
	cfg.Database.Password = envutil.String("POSTGRES_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = envutil.String("POSTGRES_NAME", cfg.Database.Name)
	cfg.Database.SSLMode = envutil.String("POSTGRES_SSLMODE", cfg.Database.SSLMode)
	cfg.Database.MaxOpenConns = envutil.Int("DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)

	cfg.JWT.SecretKey = envutil.String("JWT_SECRET_KEY", cfg.JWT.SecretKey)

	cfg.OpenAI.APIKey = envutil.String("OPENAI_API_KEY", cfg.OpenAI.APIKey)
	cfg.OpenAI.BaseURL = envutil.String("OPENAI_BASE_URL", cfg.OpenAI.BaseURL)
	cfg.OpenAI.Model = envutil.String("OPENAI_MODEL", cfg.OpenAI.Model)
	cfg.OpenAI.Timeout = envutil.Seconds("OPENAI_TIMEOUT_SECONDS", cfg.OpenAI.Timeout)
	cfg.OpenAI.MaxRetries = envutil.Int("OPENAI_MAX_RETRIES", cfg.OpenAI.MaxRetries)
	cfg.OpenAI.Temperature = envutil.Float("OPENAI_TEMPERATURE", cfg.OpenAI.Temperature)

	cfg.Pipeline.MaxChunkChars = envutil.Int("CURRICULUM_MAX_CHUNK_CHARS", cfg.Pipeline.MaxChunkChars)
	cfg.Pipeline.ChunkWorkers = envutil.Int("CURRICULUM_CHUNK_WORKERS", cfg.Pipeline.ChunkWorkers)
	cfg.Pipeline.SummaryChars = envutil.Int("CURRICULUM_SUMMARY_CHARS", cfg.Pipeline.SummaryChars)
	cfg.Pipeline.GenerationAttempts = envutil.Int("CURRICULUM_GENERATION_ATTEMPTS", cfg.Pipeline.GenerationAttempts)

	cfg.Worker.Concurrency = envutil.Int("WORKER_CONCURRENCY", cfg.Worker.Concurrency)
	cfg.Worker.MaxAttempts = envutil.Int("WORKER_MAX_ATTEMPTS", cfg.Worker.MaxAttempts)
	cfg.Worker.RetryDelay = envutil.Seconds("WORKER_RETRY_DELAY_SECONDS", cfg.Worker.RetryDelay)
	cfg.Worker.StaleRunning = envutil.Seconds("WORKER_STALE_RUNNING_SECONDS", cfg.Worker.StaleRunning)
	cfg.Worker.HeartbeatInterval = envutil.Seconds("WORKER_HEARTBEAT_SECONDS", cfg.Worker.HeartbeatInterval)

	cfg.Storage.Mode = objectstore.Mode(envutil.String("OBJECT_STORAGE_MODE", string(cfg.Storage.Mode)))
	cfg.Storage.EmulatorHost = envutil.String("STORAGE_EMULATOR_HOST", cfg.Storage.EmulatorHost)
	cfg.Storage.Bucket = envutil.String("CURRICULUM_GCS_BUCKET_NAME", cfg.Storage.Bucket)
	cfg.Storage.LocalDir = envutil.String("LOCAL_STORAGE_DIR", cfg.Storage.LocalDir)
	cfg.Storage.CredentialsJSON = envutil.String("GOOGLE_APPLICATION_CREDENTIALS_JSON", cfg.Storage.CredentialsJSON)

	cfg.Redis.Addr = envutil.String("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envutil.String("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = envutil.Int("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.Channel = envutil.String("REDIS_CHANNEL", cfg.Redis.Channel)

	cfg.Observability.MetricsEnabled = envutil.Bool("METRICS_ENABLED", cfg.Observability.MetricsEnabled)
	cfg.Observability.OTelEnabled = envutil.Bool("OTEL_ENABLED", cfg.Observability.OTelEnabled)
	cfg.Observability.ServiceName = envutil.String("OTEL_SERVICE_NAME", cfg.Observability.ServiceName)
	cfg.Observability.Environment = envutil.String("APP_ENV", cfg.Observability.Environment)
	cfg.Observability.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Observability.Endpoint)
	cfg.Observability.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Observability.Insecure)
	cfg.Observability.Headers = envutil.String("OTEL_EXPORTER_OTLP_HEADERS", cfg.Observability.Headers)
	cfg.Observability.SampleRatio = envutil.Float("OTEL_SAMPLE_RATIO", cfg.Observability.SampleRatio)
}

// ValidateHTTP checks what the API server needs beyond ValidateCore.
func (c Config) ValidateHTTP() error {
	if strings.TrimSpace(c.JWT.SecretKey) == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	return nil
}

// ValidateCore checks settings every command needs.
func (c Config) ValidateCore() error {
	switch strings.ToLower(strings.TrimSpace(c.Database.Driver)) {
	case "", db.DriverPostgres, db.DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Worker.HeartbeatInterval >= c.Worker.StaleRunning {
		return fmt.Errorf("worker heartbeat interval %s must be below stale-running %s", c.Worker.HeartbeatInterval, c.Worker.StaleRunning)
	}
	return objectstore.Validate(objectstore.Normalize(c.Storage))
}

func (c Config) dbConfig() db.Config {
	return db.Config{
		Driver:       c.Database.Driver,
		DSN:          c.Database.DSN,
		Host:         c.Database.Host,
		Port:         c.Database.Port,
		User:         c.Database.User,
		Password:     c.Database.Password,
		Name:         c.Database.Name,
		SSLMode:      c.Database.SSLMode,
		MaxOpenConns: c.Database.MaxOpenConns,
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
