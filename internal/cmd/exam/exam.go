// Package exam parses exam coordinator flags and launches the service.
package exam

import (
	"context"
	"flag"

	server "github.com/hallwatch/hallwatch/internal/exam/app"
	entrypoint "github.com/hallwatch/hallwatch/internal/platform/cmd"
)

// Config holds exam command configuration.
type Config = server.Config

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The exam HTTP server port")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path (empty for in-memory storage)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the exam coordinator HTTP service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceExam, func(context.Context) error {
		return server.Run(ctx, cfg)
	})
}
