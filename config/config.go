// Package config loads process configuration from the environment and an optional .env file.
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/srgchrksv/docpodcaster/apperrors"
	"github.com/srgchrksv/docpodcaster/models"
)

type Config struct {
	HTTPAddr       string
	AllowedOrigins []string
	LogLevel       string

	GeminiAPIKey  string
	GeminiModel   string
	ScriptTimeout time.Duration
	MaxInputChars int

	GoogleCredentialsJSON string
	GoogleCredentialsFile string
	TTSLanguage           string
	TTSTimeout            time.Duration
	HostVoice             string
	GuestVoice            string

	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string

	MongoURI        string
	MongoDatabase   string
	MongoCollection string
}

// Load reads .env (when present) and then the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not read .env file", "error", err)
	}

	return &Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8000"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		GeminiAPIKey:  strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		ScriptTimeout: getEnvDuration("SCRIPT_TIMEOUT", 90*time.Second),
		MaxInputChars: getEnvInt("MAX_INPUT_CHARS", 25000),

		// Hosting dashboards sometimes wrap the JSON blob in quotes.
		GoogleCredentialsJSON: strings.Trim(strings.TrimSpace(os.Getenv("GOOGLE_CREDENTIALS_JSON")), `"`),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", "google-credentials.json"),
		TTSLanguage:           getEnv("TTS_LANGUAGE", "en-US"),
		TTSTimeout:            getEnvDuration("TTS_TIMEOUT", 30*time.Second),
		HostVoice:             getEnv("HOST_VOICE", "en-US-Journey-D"),
		GuestVoice:            getEnv("GUEST_VOICE", "en-US-Journey-F"),

		SupabaseURL:    os.Getenv("SUPABASE_URL"),
		SupabaseKey:    os.Getenv("SUPABASE_KEY"),
		SupabaseBucket: getEnv("SUPABASE_BUCKET", "podcasts"),

		MongoURI:        os.Getenv("MONGODB_CONNECTION_STRING"),
		MongoDatabase:   getEnv("MONGODB_DATABASE_NAME", "smartkb"),
		MongoCollection: getEnv("MONGODB_PODCAST_COLLECTION", "podcast_metadata"),
	}
}

// Validate reports the settings the pipeline cannot run without.
func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return apperrors.Configuration("GEMINI_API_KEY is not set")
	}
	if c.GoogleCredentialsJSON == "" {
		if _, err := os.Stat(c.GoogleCredentialsFile); err != nil {
			return apperrors.Configuration("no Google credentials: set GOOGLE_CREDENTIALS_JSON or provide %s", c.GoogleCredentialsFile)
		}
	}
	if c.MaxInputChars <= 0 {
		return apperrors.Configuration("MAX_INPUT_CHARS must be positive, got %d", c.MaxInputChars)
	}
	return nil
}

// Voices returns the host/guest voice pairing with any configured overrides.
func (c *Config) Voices() models.Voices {
	v := models.DefaultVoices()
	if c.HostVoice != "" {
		v[models.Host] = models.Voice{ID: c.HostVoice, DisplayName: v[models.Host].DisplayName}
	}
	if c.GuestVoice != "" {
		v[models.Guest] = models.Voice{ID: c.GuestVoice, DisplayName: v[models.Guest].DisplayName}
	}
	return v
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// HasSupabase reports whether object storage credentials are present.
func (c *Config) HasSupabase() bool {
	return c.SupabaseURL != "" && c.SupabaseKey != ""
}

// HasMongo reports whether a metadata cache connection string is present.
func (c *Config) HasMongo() bool {
	return c.MongoURI != ""
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return def
}
