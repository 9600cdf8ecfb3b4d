// Package passkeyd parses configuration for the passkey server command.
package passkeyd

import (
	"context"
	"flag"

	server "github.com/augchan42/passkey-backend-demo/internal/app"
	platformcmd "github.com/augchan42/passkey-backend-demo/internal/platform/cmd"
)

// Config holds passkeyd command configuration.
type Config struct {
	Addr string `env:"PASSKEY_DEMO_HTTP_ADDR" envDefault:"localhost:8080"`
}

// ParseConfig loads env defaults and parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := platformcmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The passkey HTTP server address")
	if err := platformcmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the passkey server with telemetry configured.
func Run(ctx context.Context, cfg Config) error {
	return platformcmd.RunWithTelemetry(ctx, platformcmd.ServicePasskeyd, func(ctx context.Context) error {
		return server.Run(ctx, cfg.Addr)
	})
}
