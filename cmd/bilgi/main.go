// Command bilgi ingests company documents and answers questions about them.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/custodia-labs/bilgi/internal/adapters/driven/ai"
	"github.com/custodia-labs/bilgi/internal/adapters/driven/config/env"
	"github.com/custodia-labs/bilgi/internal/adapters/driven/config/file"
	"github.com/custodia-labs/bilgi/internal/adapters/driving/cli"
	"github.com/custodia-labs/bilgi/internal/core/services"
	"github.com/custodia-labs/bilgi/internal/logger"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx)
	stop()
	os.Exit(code)
}

func run(ctx context.Context) int {
	if err := env.LoadDotEnv(); err != nil {
		logger.Warn("%v", err)
	}

	dir, err := file.DefaultDir()
	if err != nil {
		logger.Error("%v", err)
		return 1
	}
	fileStore, err := file.NewConfigStore(dir)
	if err != nil {
		logger.Error("%v", err)
		return 1
	}
	settingsService := services.NewSettingsService(env.New(fileStore), ai.NewConfigValidator())

	cli.SetVersion(version)
	cli.SetServices(&cli.Services{Settings: settingsService})

	settings, err := settingsService.Get()
	if err != nil {
		logger.Error("load settings: %v", err)
		return 1
	}

	app, err := newApp(ctx, dir, *settings)
	if err != nil {
		// Settings commands still work so the configuration can be fixed.
		logger.Error("%v", err)
	} else {
		defer app.Close()
		app.services.Settings = settingsService
		cli.SetServices(app.services)
	}

	if err := cli.Execute(ctx); err != nil {
		return 1
	}
	return 0
}
