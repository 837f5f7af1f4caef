// Package server parses configuration and runs the accountlink service.
package server

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/tbranch/accountlink/internal/auth/app"
	"github.com/tbranch/accountlink/internal/auth/events"
	"github.com/tbranch/accountlink/internal/auth/identity"
	"github.com/tbranch/accountlink/internal/auth/providers"
	"github.com/tbranch/accountlink/internal/auth/session"
	authsqlite "github.com/tbranch/accountlink/internal/auth/storage/sqlite"
	"github.com/tbranch/accountlink/internal/auth/verify"
	"github.com/tbranch/accountlink/internal/platform/config"
)

// Config holds server command configuration.
type Config struct {
	Addr       string
	DBPath     string
	AppOrigins []string
}

// EnvLookup returns the value for a key when present.
type EnvLookup func(string) (string, bool)

// ParseConfig parses flags into a Config, with environment fallbacks.
func ParseConfig(fs *flag.FlagSet, args []string, lookup EnvLookup) (Config, error) {
	cfg := Config{
		Addr:   envOrDefault(lookup, "ACCOUNTLINK_ADDR", "localhost:8080"),
		DBPath: envOrDefault(lookup, "ACCOUNTLINK_DB_PATH", filepath.Join("data", "auth.db")),
	}
	origins := envOrDefault(lookup, "ACCOUNTLINK_APP_ORIGINS", "")

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The HTTP server address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The SQLite database path")
	fs.StringVar(&origins, "app-origins", origins, "Comma-separated browser origins allowed to call the API")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	for _, origin := range strings.Split(origins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			cfg.AppOrigins = append(cfg.AppOrigins, trimmed)
		}
	}
	return cfg, nil
}

func envOrDefault(lookup EnvLookup, key, fallback string) string {
	if lookup == nil {
		return fallback
	}
	if value, ok := lookup(key); ok {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

// Run wires the service and serves until the context ends.
func Run(ctx context.Context, cfg Config) error {
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := authsqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open auth sqlite store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("close auth store: %v", err)
		}
	}()

	registry, err := providers.LoadRegistry()
	if err != nil {
		return err
	}

	var verifyCfg verify.Config
	if err := config.ParseEnv(&verifyCfg); err != nil {
		return err
	}

	bus := events.OutboxBus{Outbox: store}
	sessions := session.NewManager(store, store, bus)
	resolver := identity.NewResolver(store)
	service := app.NewService(store, registry, resolver, sessions)
	service.Verifier = verify.NewIssuer(verifyCfg)
	service.Mailer = verify.LogMailer{}

	server, err := app.NewServer(cfg.Addr, cfg.AppOrigins, service)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}
