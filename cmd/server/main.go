package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bodytweaker/internal/app/server/api"
	"bodytweaker/internal/app/server/config"
	"bodytweaker/internal/utils/logger"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:           "bodytweaker-server",
		Short:         "Прокси Bot API для Body Tweaker",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "путь к YAML-файлу конфигурации")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("конфигурация: %w", err)
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", slog.String("env", cfg.Env), slog.String("address", cfg.RunAddress))
	if cfg.Telegram.Token == "" {
		log.Warn("TELEGRAM_BOT_TOKEN не задан, прокси будут отвечать 500")
	}

	services, closeServices := api.NewServices(cfg, log)
	defer closeServices()

	srv := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           api.New(services, log),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("сервер остановлен: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", logger.Err(err))
		return err
	}
	log.Info("server stopped")
	return nil
}
