package common

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	OCR        OCRConfig
	Banks      BanksConfig
	Embeddings EmbeddingsConfig
	History    HistoryConfig
	Log        LogConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr        string
	GRPCAddr        string
	MaxUploadBytes  int64
	RequestTimeout  time.Duration
	RateLimitRPS    float64
	RateLimitBurst  int
	CORSOrigins     []string
	ScratchDir      string
	ShutdownTimeout time.Duration
}

// OCRConfig holds page rendering and OCR configuration
type OCRConfig struct {
	Pdftoppm      string
	Tesseract     string
	TesseractLang string
	TessdataDir   string
	DPI           int
	MinTextChars  int
	MaxPages      int
	PSM           int
	OEM           int
}

// BanksConfig points at the bank identifier YAML file
type BanksConfig struct {
	Path string
}

// EmbeddingsConfig selects the embedding backend used by the reranker.
// An empty URL selects the local hashing embedder.
type EmbeddingsConfig struct {
	URL     string
	Model   string
	APIKey  string
	Timeout time.Duration
	Dims    int
}

// HistoryConfig holds result-history store configuration. An empty DSN disables the store.
type HistoryConfig struct {
	Driver        string
	DSN           string
	Retention     time.Duration
	PruneSchedule string
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from environment variables, after applying an optional .env file.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("config.dotenv.failed", "error", err)
	}

	return &Config{
		Server: ServerConfig{
			HTTPAddr:        getEnv("HTTP_ADDR", ":8000"),
			GRPCAddr:        getEnv("GRPC_ADDR", ""),
			MaxUploadBytes:  getEnvAsInt64("MAX_UPLOAD_BYTES", 25<<20),
			RequestTimeout:  getEnvAsDuration("REQUEST_TIMEOUT", 2*time.Minute),
			RateLimitRPS:    getEnvAsFloat64("RATE_LIMIT_RPS", 5),
			RateLimitBurst:  getEnvAsInt("RATE_LIMIT_BURST", 10),
			CORSOrigins:     getEnvAsList("CORS_ORIGINS", []string{"*"}),
			ScratchDir:      getEnv("SCRATCH_DIR", os.TempDir()),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		OCR: OCRConfig{
			Pdftoppm:      getEnv("PDFTOPPM_BIN", "pdftoppm"),
			Tesseract:     getEnv("TESSERACT_BIN", "tesseract"),
			TesseractLang: getEnv("TESSERACT_LANG", "eng"),
			TessdataDir:   getEnv("TESSDATA_PREFIX", ""),
			DPI:           getEnvAsInt("OCR_DPI", 200),
			MinTextChars:  getEnvAsInt("OCR_MIN_TEXT_CHARS", 20),
			MaxPages:      getEnvAsInt("OCR_MAX_PAGES", 0),
			PSM:           getEnvAsInt("TESSERACT_PSM", 0),
			OEM:           getEnvAsInt("TESSERACT_OEM", 0),
		},
		Banks: BanksConfig{
			Path: getEnv("BANKS_CONFIG", "configs/banks.yaml"),
		},
		Embeddings: EmbeddingsConfig{
			URL:     getEnv("EMBEDDINGS_URL", ""),
			Model:   getEnv("EMBEDDINGS_MODEL", "all-MiniLM-L6-v2"),
			APIKey:  getEnv("EMBEDDINGS_API_KEY", ""),
			Timeout: getEnvAsDuration("EMBEDDINGS_TIMEOUT", 30*time.Second),
			Dims:    getEnvAsInt("EMBEDDINGS_DIMS", 384),
		},
		History: HistoryConfig{
			Driver:        getEnv("HISTORY_DRIVER", "sqlite"),
			DSN:           getEnv("HISTORY_DSN", ""),
			Retention:     getEnvAsDuration("HISTORY_RETENTION", 30*24*time.Hour),
			PruneSchedule: getEnv("HISTORY_PRUNE_SCHEDULE", "@hourly"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator().
		Field("BANKS_CONFIG", c.Banks.Path, Required).
		Field("HTTP_ADDR", c.Server.HTTPAddr, Required).
		Field("OCR_DPI", c.OCR.DPI, Positive).
		Field("OCR_MIN_TEXT_CHARS", c.OCR.MinTextChars, Positive).
		Field("TESSERACT_LANG", c.OCR.TesseractLang, Required, MaxLength(64)).
		Field("MAX_UPLOAD_BYTES", c.Server.MaxUploadBytes, Positive).
		Field("EMBEDDINGS_DIMS", c.Embeddings.Dims, Positive)
	if c.History.DSN != "" {
		v.Field("HISTORY_DRIVER", c.History.Driver, OneOf("sqlite", "pgx"))
	}
	if c.Embeddings.URL != "" {
		v.Field("EMBEDDINGS_MODEL", c.Embeddings.Model, Required)
	}
	if v.HasErrors() {
		return NewAppError(CodeConfig, v.ErrorMessage(), ErrConfig)
	}
	return nil
}
