// Package main provides the subwoofer entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/hiraico/subwoofer/internal/app/guild"
	"github.com/hiraico/subwoofer/internal/app/nowplaying"
	"github.com/hiraico/subwoofer/internal/infra/config"
	"github.com/hiraico/subwoofer/internal/infra/logger"
	"github.com/hiraico/subwoofer/internal/infra/settings"
	"github.com/hiraico/subwoofer/internal/infra/subsonic"
)

var (
	app        = kingpin.New("subwoofer", "Per-guild music playback coordinator for a Subsonic catalog")
	configPath = app.Flag("config", "Path to config file").Default("config/subwoofer.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// playlists command
	playlistsCmd = app.Command("playlists", "List catalog playlists and exit")
)

func init() {
	// start command (default)
	app.Command("start", "Start the coordinator (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	catalog, err := subsonic.New(subsonic.Config{
		ServerURL:     cfg.Subsonic.ServerURL,
		Username:      cfg.Subsonic.Username,
		Password:      cfg.Subsonic.Password,
		ClientName:    cfg.Subsonic.ClientName,
		CoverCacheDir: cfg.Subsonic.CoverCacheDir,
	})
	if err != nil {
		zlog.Fatal().Msgf("Failed to create catalog client: %v", err)
	}

	if command == playlistsCmd.FullCommand() {
		if err := printPlaylists(catalog); err != nil {
			zlog.Fatal().Msgf("Failed to list playlists: %v", err)
		}
		return
	}

	if err := run(cfg, catalog); err != nil {
		zlog.Error().Msgf("Coordinator error: %v", err)
		os.Exit(1)
	}
}

// run executes the coordinator. A separate function ensures defers run even
// when returning with an error.
func run(cfg *config.Config, catalog *subsonic.Client) error {
	store := settings.NewStore(cfg.Settings.Path)

	registry, err := guild.NewRegistry(catalog, nil, nil, store, guild.Options{
		RandomSettings: cfg.Autoplay.Random,
		Refresh: nowplaying.Options{
			Interval: time.Duration(cfg.Playback.RefreshIntervalSec) * time.Second,
			Window:   cfg.Playback.RecreateWindow,
		},
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	saveDone := make(chan struct{})
	go func() {
		defer close(saveDone)
		registry.RunAutosave(ctx, time.Duration(cfg.Settings.SaveIntervalSec)*time.Second)
	}()

	zlog.Info().Msg("Coordinator started, waiting for gateway commands")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	zlog.Info().Msg("Received shutdown signal...")

	// Cancelling the autosave loop triggers its final save.
	cancel()
	<-saveDone

	zlog.Info().Msg("Coordinator stopped")
	return nil
}

// printPlaylists prints the catalog's playlists.
func printPlaylists(catalog *subsonic.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	playlists, err := catalog.ListPlaylists(ctx)
	if err != nil {
		return err
	}

	fmt.Println("Available Playlists:")
	for _, p := range playlists {
		fmt.Printf("  %-20s %-40s [%s]\n", p.ID, p.Name, p.DurationPrintable())
	}
	return nil
}
