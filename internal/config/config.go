package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	SendgridAPIKey string `env:"SENDGRID_API_KEY,required=true"`
	FromEmail      string `env:"FROM_EMAIL,required=true"`
	FromName       string `env:"FROM_NAME,default=Webinar Team"`

	WebinarTitle   string `env:"WEBINAR_TITLE,required=true"`
	WebinarJoinURL string `env:"WEBINAR_JOIN_URL,required=true"`
	WebinarStartAt string `env:"WEBINAR_START_AT,required=true"`
	SurveyBaseURL  string `env:"SURVEY_BASE_URL,required=true"`

	PollIntervalSeconds  int    `env:"POLL_INTERVAL_SECONDS,default=60"`
	SendDelayMillis      int    `env:"SEND_DELAY_MS,default=100"`
	DisplayTimezone      string `env:"DISPLAY_TIMEZONE,default=UTC"`
	ResetStrandedOnStart bool   `env:"RESET_STRANDED_ON_START,default=false"`

	APIPort     int    `env:"API_PORT,default=8080"`
	MetricsPort int    `env:"METRICS_PORT,default=9091"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if _, err := time.LoadLocation(cfg.DisplayTimezone); err != nil {
		return nil, fmt.Errorf("invalid DISPLAY_TIMEZONE %q: %w", cfg.DisplayTimezone, err)
	}
	if _, err := time.Parse(time.RFC3339, cfg.WebinarStartAt); err != nil {
		return nil, fmt.Errorf("invalid WEBINAR_START_AT %q: %w", cfg.WebinarStartAt, err)
	}

	return &cfg, nil
}

// WebinarStart returns the parsed event start time. Load already validated
// the raw value.
func (c *Config) WebinarStart() time.Time {
	t, _ := time.Parse(time.RFC3339, c.WebinarStartAt)
	return t
}

// DisplayLocation returns the parsed display timezone. Load already
// validated the raw value.
func (c *Config) DisplayLocation() *time.Location {
	loc, _ := time.LoadLocation(c.DisplayTimezone)
	return loc
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c *Config) SendDelay() time.Duration {
	return time.Duration(c.SendDelayMillis) * time.Millisecond
}
