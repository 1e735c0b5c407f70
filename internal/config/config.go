package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	AppName     = "ecosort-bot"
	EnvFileName = "config.env"

	DefaultWebAddr        = ":8080"
	DefaultRequestTimeout = 60 * time.Second

	// WebDisabled as WEB_ADDR turns the web front-end off.
	WebDisabled = "off"
)

// requiredEnvVars lists environment variables that must be set to run.
var requiredEnvVars = []string{"GEMINI_API_KEY"}

// Config is the runtime configuration read from the environment.
type Config struct {
	GeminiAPIKey      string
	GeminiModel       string
	GeminiTemperature *float32
	GeminiBaseURL     string

	BotToken       string
	AllowedChatIDs []int64

	WebAddr        string
	LogLevel       zerolog.Level
	RequestTimeout time.Duration
}

// TelegramEnabled reports whether a bot token was configured.
func (c *Config) TelegramEnabled() bool {
	return c.BotToken != ""
}

// WebEnabled reports whether the web server should run.
func (c *Config) WebEnabled() bool {
	return c.WebAddr != "" && c.WebAddr != WebDisabled
}

// LoadEnvFile loads environment variables from the config file in the user's
// config directory, then from .env in the working directory. Errors are
// ignored since the files may not exist. Variables already set win.
func LoadEnvFile() {
	if configBase, err := os.UserConfigDir(); err == nil {
		_ = godotenv.Load(filepath.Join(configBase, AppName, EnvFileName))
	}
	_ = godotenv.Load()
}

// Missing returns the names of required variables that are unset.
func Missing() []string {
	var missing []string
	for _, name := range requiredEnvVars {
		if strings.TrimSpace(os.Getenv(name)) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	if missing := Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	cfg := &Config{
		GeminiAPIKey:   strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:    strings.TrimSpace(os.Getenv("GEMINI_MODEL")),
		GeminiBaseURL:  strings.TrimSpace(os.Getenv("GEMINI_BASE_URL")),
		BotToken:       strings.TrimSpace(os.Getenv("BOT_TOKEN")),
		WebAddr:        DefaultWebAddr,
		LogLevel:       zerolog.InfoLevel,
		RequestTimeout: DefaultRequestTimeout,
	}

	var errs []error

	if v := strings.TrimSpace(os.Getenv("GEMINI_TEMPERATURE")); v != "" {
		t, err := strconv.ParseFloat(v, 32)
		if err != nil {
			errs = append(errs, fmt.Errorf("GEMINI_TEMPERATURE: %w", err))
		} else {
			temp := float32(t)
			cfg.GeminiTemperature = &temp
		}
	}

	if v := strings.TrimSpace(os.Getenv("ALLOWED_CHAT_IDS")); v != "" {
		ids, err := parseChatIDs(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("ALLOWED_CHAT_IDS: %w", err))
		}
		cfg.AllowedChatIDs = ids
	}

	if v := strings.TrimSpace(os.Getenv("WEB_ADDR")); v != "" {
		cfg.WebAddr = v
	}

	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		level, err := zerolog.ParseLevel(strings.ToLower(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
		} else {
			cfg.LogLevel = level
		}
	}

	if v := strings.TrimSpace(os.Getenv("REQUEST_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("REQUEST_TIMEOUT: %w", err))
		} else if d <= 0 {
			errs = append(errs, fmt.Errorf("REQUEST_TIMEOUT: must be positive, got %s", v))
		} else {
			cfg.RequestTimeout = d
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseChatIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
