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

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	appaudit "github.com/bryanwahyu/solaudit/internal/application/audit"
	"github.com/bryanwahyu/solaudit/internal/application/compiler"
	"github.com/bryanwahyu/solaudit/internal/config"
	"github.com/bryanwahyu/solaudit/internal/infra/ai/openai"
	"github.com/bryanwahyu/solaudit/internal/infra/executor/slither"
	"github.com/bryanwahyu/solaudit/internal/infra/httpserver"
)

var cfgPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "api",
		Short: "Serve the smart contract audit API",
		RunE:  runServer,
	}

	defaultPath := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultPath = v
	}
	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", defaultPath, "path to config.yaml")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.Log.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config load error: %w", err)
	}
	logger := newLogger(cfg)

	runner := slither.NewRunner(slither.Options{
		Binary:    cfg.Analyzer.Binary,
		ExtraArgs: cfg.Analyzer.ExtraArgs,
		Timeout:   cfg.Analyzer.Timeout,
		TempDir:   cfg.Analyzer.TempDir,
	}, logger)

	client := openai.NewClient(openai.Options{
		APIKey:  cfg.AI.APIKey,
		BaseURL: cfg.AI.BaseURL,
		Model:   cfg.AI.Model,
		Timeout: cfg.AI.Timeout,
	}, logger)

	compileSvc, err := compiler.NewService(logger)
	if err != nil {
		return err
	}
	auditSvc := appaudit.NewService(runner, client, logger)

	handler := httpserver.NewRouter(auditSvc, compileSvc, httpserver.Options{
		CORSOrigins:    cfg.CORS.Origins,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       60 * time.Second,
		// one audit may spend the full analyzer and completion budgets
		WriteTimeout: cfg.Analyzer.Timeout + cfg.AI.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("model", client.Model).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("server error")
			return err
		}
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
		return err
	}
	return nil
}
