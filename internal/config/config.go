// Package config resolves editor settings from the environment and an
// optional .env file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/fpang/muted-image-editor/internal/auth"
	"github.com/fpang/muted-image-editor/internal/chat"
	"github.com/fpang/muted-image-editor/internal/editor"
	"github.com/fpang/muted-image-editor/internal/filehandler"
)

// Config holds all settings shared by the editor binaries.
type Config struct {
	// Remote edit
	ImageModel string

	// Session timing
	Debounce        time.Duration
	ConfirmationTTL time.Duration
	DiscardStale    bool
	SessionIdleTTL  time.Duration

	// Upload constraints
	MaxUploadBytes int64

	// API key from SSM Parameter Store
	UseSSM   bool
	SSMParam string
}

// LoadDotEnv loads a .env file from the working directory if one exists.
// Variables already set in the environment win.
func LoadDotEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to read .env file")
	}
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		ImageModel:      chat.GetImageModelName(),
		Debounce:        GetDuration("EDITOR_DEBOUNCE", editor.DefaultDebounce),
		ConfirmationTTL: GetDuration("EDITOR_CONFIRMATION_TTL", editor.DefaultConfirmationTTL),
		DiscardStale:    GetBool("EDITOR_DISCARD_STALE", false),
		SessionIdleTTL:  GetDuration("EDITOR_SESSION_IDLE_TTL", 30*time.Minute),
		MaxUploadBytes:  GetInt64("EDITOR_MAX_UPLOAD_BYTES", filehandler.DefaultMaxUploadBytes),
		UseSSM:          GetBool("EDITOR_USE_SSM", false),
		SSMParam:        GetString("SSM_API_KEY_PARAM", auth.DefaultSSMParam),
	}
}

// EditorOptions converts the session settings into controller options.
func (c *Config) EditorOptions() []editor.Option {
	return []editor.Option{
		editor.WithDebounce(c.Debounce),
		editor.WithConfirmationTTL(c.ConfirmationTTL),
		editor.WithDiscardStale(c.DiscardStale),
		editor.WithMaxUploadBytes(c.MaxUploadBytes),
	}
}

// GetString returns environment variable as string with default
func GetString(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// GetInt64 returns environment variable as int64 with default
func GetInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil && n > 0 {
			return n
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Ignoring invalid integer setting")
	}
	return defaultValue
}

// GetBool returns environment variable as bool
func GetBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Ignoring invalid boolean setting")
	}
	return defaultValue
}

// GetDuration accepts Go duration strings ("500ms", "2s") or a bare number
// of milliseconds.
func GetDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d >= 0 {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	log.Warn().Str("key", key).Str("value", value).Msg("Ignoring invalid duration setting")
	return defaultValue
}
