// Command musicsynk runs the music-sync control-panel server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/musicsynk/musicsynk/internal/auth"
	"github.com/musicsynk/musicsynk/internal/config"
	"github.com/musicsynk/musicsynk/internal/db"
	"github.com/musicsynk/musicsynk/internal/provider"
	"github.com/musicsynk/musicsynk/internal/spotify"
	"github.com/musicsynk/musicsynk/internal/sync"
	"github.com/musicsynk/musicsynk/internal/vault"
	"github.com/musicsynk/musicsynk/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	logger.Info("starting musicsynk", "mode", cfg.Mode)

	if cfg.Mode == config.ModeMock {
		server := web.NewServer(cfg, provider.NewMock(), nil, nil, logger)
		return server.Run()
	}

	ctx := context.Background()
	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()

	credentials := vault.New(database.AuthSessions(), cfg.EncryptionKey)
	oauth := spotify.NewOAuth(cfg.SpotifyClientID, cfg.SpotifySecret, cfg.SpotifyRedirect)
	tokens := auth.NewManager(credentials, oauth)

	runner := sync.NewRunner(
		database.Runs(),
		database.Snapshots(),
		database.PlaylistRegistry(),
		tokens,
		func(accessToken string) sync.LibraryClient {
			return spotify.NewClient(accessToken)
		},
		cfg,
		sync.WithLogger(logger),
	)

	p := provider.NewSpotifyReadonly(database.Runs(), credentials, database.PlaylistRegistry(), runner, cfg)

	server := web.NewServer(cfg, p, oauth, credentials, logger)
	return server.Run()
}
