package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/wailsapp/wails/v3/pkg/application"

	"github.com/catvomitingrainbows/vocal-liquid/config"
	"github.com/catvomitingrainbows/vocal-liquid/internal/app"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Development aid; a missing .env is normal.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config, using defaults", "error", err)
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config, using defaults", "error", err)
		cfg = config.Default()
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))
	slog.Info("starting app", "version", version, "commit", commit, "date", date)

	appService := app.New(cfg, version)

	wailsApp := application.New(application.Options{
		Name:        "Vocal Liquid",
		Description: "Menu-bar dictation to the clipboard",
		Services: []application.Service{
			application.NewService(appService),
		},
		Mac: application.MacOptions{
			// Menu-bar only: no Dock icon
			ActivationPolicy: application.ActivationPolicyAccessory,

			// There are no windows; the tray keeps the app alive
			ApplicationShouldTerminateAfterLastWindowClosed: false,
		},
		OnShutdown: appService.Shutdown,
	})

	if err := appService.Init(wailsApp); err != nil {
		slog.Error("init app", "error", err)
		os.Exit(1)
	}

	if err := wailsApp.Run(); err != nil {
		slog.Error("run app", "error", err)
		appService.Shutdown()
		os.Exit(1)
	}
}
