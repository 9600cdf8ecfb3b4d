package passkey

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config controls WebAuthn relying party settings.
type Config struct {
	RPDisplayName string        `env:"PASSKEY_DEMO_WEBAUTHN_RP_DISPLAY_NAME" envDefault:"Passkey Demo"`
	RPID          string        `env:"PASSKEY_DEMO_WEBAUTHN_RP_ID"           envDefault:"localhost"`
	RPOrigins     []string      `env:"PASSKEY_DEMO_WEBAUTHN_RP_ORIGINS"      envSeparator:","`
	ChallengeTTL  time.Duration `env:"PASSKEY_DEMO_WEBAUTHN_CHALLENGE_TTL"   envDefault:"5m"`
}

// LoadConfigFromEnv returns passkey configuration with defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{
			RPDisplayName: "Passkey Demo",
			RPID:          "localhost",
			RPOrigins:     []string{"http://localhost:3000"},
			ChallengeTTL:  5 * time.Minute,
		}
	}
	if len(cfg.RPOrigins) == 0 {
		cfg.RPOrigins = []string{"http://localhost:3000"}
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = 5 * time.Minute
	}
	return cfg
}
