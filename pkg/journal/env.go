package journal

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type envSettings struct {
	Enabled bool   `env:"DIRTY_JOURNAL_ENABLED" envDefault:"true"`
	Channel string `env:"DIRTY_JOURNAL_CHANNEL" envDefault:"dirty"`
}

// ConfigFromEnv reads the journal configuration from the environment.
func ConfigFromEnv() (Config, error) {
	settings := envSettings{}
	if err := env.Parse(&settings); err != nil {
		return Config{}, fmt.Errorf("journal: %w", err)
	}
	return Config{
		Enabled: settings.Enabled,
		Channel: settings.Channel,
	}, nil
}
