package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/person-api/backend/internal/config"
	"github.com/zhouzirui/person-api/backend/internal/handler"
	"github.com/zhouzirui/person-api/backend/internal/model/person"
	"github.com/zhouzirui/person-api/backend/internal/service/events"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		addr     string
		envFile  string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:           "person-api",
		Short:         "HTTP service exposing CRUD operations over an in-memory person collection",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file
			if err := godotenv.Load(envFile); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to load %s: %v, continuing with system environment variables only\n", envFile, err)
			}

			cfg, err := config.Load()
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed to load configuration: %v\n", err)
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if logLevel != "" {
				level, err := config.ParseLevel(logLevel)
				if err != nil {
					return err
				}
				cfg.Log.Level = level
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides ADDR/PORT")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level, overrides LOG_LEVEL")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	logger := newLogger(cfg.Log, out)
	log.Logger = logger

	store := person.NewMemoryStore(cfg.Store.InitialPersons(), cfg.Store.IDPolicy)
	logger.Info().
		Int("persons", store.Len()).
		Str("id_policy", string(cfg.Store.IDPolicy)).
		Msg("person store initialized")

	var broker *events.Broker
	if cfg.Events.Enabled {
		broker = events.NewBroker(cfg.Events.Buffer, logger)
		logger.Info().Int("buffer", cfg.Events.Buffer).Msg("change feed enabled")
	} else {
		logger.Info().Msg("change feed disabled by configuration")
	}

	srv := newServer(cfg.Server.Addr, handler.NewRouter(store, broker, logger), broker)

	logger.Info().Str("addr", cfg.Server.Addr).Msg("person api listening")
	if err := runServer(ctx, srv, cfg.Server.ShutdownTimeout, logger); err != nil {
		logger.Error().Err(err).Msg("server error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer builds the HTTP server. Shutdown closes the broker so open
// /events and /events/ws streams end instead of holding the server open.
func newServer(addr string, router http.Handler, broker *events.Broker) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if broker != nil {
		srv.RegisterOnShutdown(broker.Close)
	}
	return srv
}

func newLogger(cfg config.LogConfig, out io.Writer) zerolog.Logger {
	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(cfg.Level).With().Timestamp().Logger()
}

func runServer(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, logger zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Dur("timeout", shutdownTimeout).Msg("graceful shutdown incomplete")
		}
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
