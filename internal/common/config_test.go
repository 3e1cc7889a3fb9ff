package common

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := LoadConfig()
		assert.Equal(t, 200, cfg.OCR.DPI)
		assert.Equal(t, 20, cfg.OCR.MinTextChars)
		assert.Equal(t, "eng", cfg.OCR.TesseractLang)
		assert.Equal(t, "configs/banks.yaml", cfg.Banks.Path)
		assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
		assert.Empty(t, cfg.History.DSN)
		require.NoError(t, cfg.Validate())
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("OCR_DPI", "300")
		t.Setenv("REQUEST_TIMEOUT", "45s")
		t.Setenv("CORS_ORIGINS", "http://localhost:5173, https://cards.example.com ,")
		t.Setenv("RATE_LIMIT_RPS", "2.5")
		t.Setenv("HISTORY_DSN", "file:history.db")

		cfg := LoadConfig()
		assert.Equal(t, 300, cfg.OCR.DPI)
		assert.Equal(t, 45*time.Second, cfg.Server.RequestTimeout)
		assert.Equal(t, []string{"http://localhost:5173", "https://cards.example.com"}, cfg.Server.CORSOrigins)
		assert.InDelta(t, 2.5, cfg.Server.RateLimitRPS, 1e-9)
		assert.Equal(t, "file:history.db", cfg.History.DSN)
	})

	t.Run("malformed numbers fall back to defaults", func(t *testing.T) {
		t.Setenv("OCR_DPI", "lots")
		t.Setenv("REQUEST_TIMEOUT", "soon")
		cfg := LoadConfig()
		assert.Equal(t, 200, cfg.OCR.DPI)
		assert.Equal(t, 2*time.Minute, cfg.Server.RequestTimeout)
	})
}

func TestConfigValidate(t *testing.T) {
	cfg := LoadConfig()
	cfg.Banks.Path = " "
	cfg.OCR.DPI = 0
	cfg.History.DSN = "postgres://localhost/history"
	cfg.History.Driver = "mysql"
	cfg.OCR.TesseractLang = strings.Repeat("eng+", 20)

	err := cfg.Validate()
	require.Error(t, err)

	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, CodeConfig, appErr.Code)
	assert.True(t, errors.Is(err, ErrConfig))
	assert.Contains(t, appErr.Message, "BANKS_CONFIG")
	assert.Contains(t, appErr.Message, "OCR_DPI")
	assert.Contains(t, appErr.Message, "HISTORY_DRIVER")
	assert.Contains(t, appErr.Message, "TESSERACT_LANG")
}

func TestValidatorErr(t *testing.T) {
	t.Run("no errors", func(t *testing.T) {
		assert.NoError(t, NewValidator().Field("id", "2b1f7a4e-5f0c-4a59-9d8e-2f5d1d6f3a10", UUID).Err())
	})

	t.Run("invalid input", func(t *testing.T) {
		err := NewValidator().
			Field("id", "not-a-uuid", UUID).
			Field("lang", "abcdef", MaxLength(3)).
			Err()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidInput))
		var appErr *AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, CodeInvalidInput, appErr.Code)
		assert.Contains(t, appErr.Message, "must be a valid UUID")
		assert.Contains(t, appErr.Message, "at most 3 characters")
	})
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestGRPCStatus(t *testing.T) {
	assert.Nil(t, GRPCStatus(nil))
	assert.Contains(t, GRPCStatus(NewAppError(CodeInvalidInput, "empty document", ErrInvalidInput)).Error(), "InvalidArgument")
	assert.Contains(t, GRPCStatus(errors.New("boom")).Error(), "Internal")
}
