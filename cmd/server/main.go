package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soaringjerry/Pollen/internal/api"
	"github.com/soaringjerry/Pollen/internal/config"
	"github.com/soaringjerry/Pollen/internal/docstore"
	"github.com/soaringjerry/Pollen/internal/identity"
	"github.com/soaringjerry/Pollen/internal/middleware"
	"github.com/soaringjerry/Pollen/internal/services"
	"github.com/soaringjerry/Pollen/internal/utils"
)

const devJWTSecret = "pollen-dev-secret"

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "pollen",
		Short: "Pollen form and poll server",
		// serve is the default when no subcommand is given
		RunE:          runServe,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config (default $"+config.EnvConfigFile+")")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	utils.InitLogger(cfg.Logging)
	return cfg, nil
}

func openStore(cfg config.Config) (docstore.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return docstore.OpenSQLite(cfg.Store.SQLitePath, cfg.Store.MigrationsDir)
	case "mongo":
		return docstore.NewMongoStore(docstore.MongoConfig{
			URI:         cfg.Store.Mongo.URI,
			Database:    cfg.Store.Mongo.Database,
			Timeout:     cfg.Store.Mongo.Timeout,
			MaxPoolSize: cfg.Store.Mongo.MaxPoolSize,
		})
	case "", "memory":
		slog.Warn("using in-memory store; data is lost on restart")
		return docstore.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	raw, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	store := docstore.NewInstrumented(raw)
	defer func() {
		if cerr := store.Close(); cerr != nil {
			slog.Error("closing store", slog.String("error", cerr.Error()))
		}
	}()

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		slog.Warn("no JWT secret configured, using development secret")
		secret = devJWTSecret
	}
	tokens := identity.NewTokens(secret, cfg.Auth.TokenTTL)

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.PerSecond > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)
	}

	rt := api.NewRouter(api.Deps{
		Accounts: services.NewAccountService(store, cfg.AppID, tokens.Sign),
		Builder: services.NewBuilderService(store, services.BuilderConfig{
			AppID:          cfg.AppID,
			ShareBaseURL:   cfg.ShareBaseURL,
			DebounceWindow: cfg.Builder.DebounceWindow,
			SnapshotPolicy: services.SnapshotPolicy(cfg.Builder.SnapshotPolicy),
			WriteTimeout:   cfg.Builder.WriteTimeout,
		}),
		Viewer: services.NewViewerService(store, services.ViewerConfig{
			AppID:          cfg.AppID,
			ValidationMode: services.ValidationMode(cfg.Viewer.ValidationMode),
		}),
		Summary: services.NewSummaryService(store, cfg.AppID),
		Tokens:  tokens,
		Limiter: limiter,
		Version: utils.SafeEnv("POLLEN_COMMIT", "dev"),
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionsDone := make(chan struct{})
	go func() {
		rt.Run(ctx)
		close(sessionsDone)
	}()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           rt.Handler(cfg.AllowOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Pollen server listening", slog.String("addr", cfg.Addr), slog.String("store", cfg.Store.Driver))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		stop()
		<-sessionsDone
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown", slog.String("error", err.Error()))
	}
	// builder sessions flush pending edits before the store closes
	<-sessionsDone
	return nil
}
