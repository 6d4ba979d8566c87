package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Settings holds environment-supplied runtime settings, kept separate
// from the YAML document because they carry credentials.
type Settings struct {
	APIID       int    `envconfig:"TG_API_ID" required:"true"`
	APIHash     string `envconfig:"TG_API_HASH" required:"true"`
	SessionFile string `envconfig:"TG_SESSION_FILE" default:"./data/session.json"`

	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`

	// Optional bot-token notifier for run summaries.
	BotToken    string `envconfig:"TG_BOT_TOKEN"`
	AdminChatID int64  `envconfig:"TG_ADMIN_CHAT_ID"`

	MaxDeliveryAttempts int `envconfig:"MAX_DELIVERY_ATTEMPTS" default:"5"`
	Workers             int `envconfig:"WORKERS" default:"1"`
}

// LoadSettings reads Settings from the environment.
func LoadSettings() (*Settings, error) {
	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return nil, fmt.Errorf("load environment settings: %w", err)
	}
	if s.MaxDeliveryAttempts < 1 {
		s.MaxDeliveryAttempts = 1
	}
	if s.Workers < 1 {
		s.Workers = 1
	}
	return &s, nil
}
