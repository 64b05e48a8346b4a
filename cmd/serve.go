package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"finlern/internal/auth"
	"finlern/internal/botdetect"
	"finlern/internal/config"
	"finlern/internal/csrf"
	"finlern/internal/http/handlers"
	"finlern/internal/http/router"
	"finlern/internal/logging"
	"finlern/internal/notify"
	"finlern/internal/ratelimit"
	"finlern/internal/repo"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the HTTP server",
	Long: `Start the enrollment API.

The server shuts down gracefully on SIGINT or SIGTERM, waiting up to
server.shutdown_timeout for in-flight requests.

Examples:
  finlern serve
  finlern serve --port 9000 --trusted-host www.finlern.fi
  finlern serve --migrate`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().String("trusted-host", "", "public host the form is served from")
	serveCmd.Flags().Bool("trust-proxy", false, "take the client address from X-Forwarded-For")
	serveCmd.Flags().String("rate-limit-store", "", "rate limit store (memory, redis)")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply the schema before serving")
	mustBindFlags(serveCmd.Flags(), map[string]string{
		"server.port":         "port",
		"server.trusted_host": "trusted-host",
		"server.trust_proxy":  "trust-proxy",
		"rate_limit.store":    "rate-limit-store",
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := repo.Open(ctx, cfg.DB(), logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	if serveMigrate {
		created, err := repo.Migrate(ctx, pool)
		if err != nil {
			return err
		}
		logger.Info(ctx, "schema applied", "created", created)
	}

	limiter, closeStore := buildLimiter(ctx, cfg, logger)
	defer closeStore()

	validator, err := csrf.New(cfg.CSRFValidator())
	if err != nil {
		return fmt.Errorf("csrf: %w", err)
	}
	if validator.LocalhostTrusted() {
		logger.Warn(ctx, nil, "localhost origins are trusted")
	}

	var sessions *auth.Sessions
	if cfg.Auth.SessionSecret != "" {
		sessions, err = auth.NewSessions(cfg.Auth.SessionSecret, cfg.Auth.SecureCookie)
		if err != nil {
			return fmt.Errorf("sessions: %w", err)
		}
	}
	provider, err := auth.NewProvider(cfg.AuthProvider(), sessions)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	var adminKey *auth.AdminKey
	if cfg.Auth.AdminAPIKey != "" || cfg.Auth.AdminAPIKeyHash != "" {
		adminKey, err = auth.NewAdminKey(cfg.Auth.AdminAPIKey, cfg.Auth.AdminAPIKeyHash)
		if err != nil {
			return fmt.Errorf("admin key: %w", err)
		}
	} else {
		logger.Warn(ctx, nil, "no admin API key configured, admin routes reject every request")
	}

	notifier, err := notify.New(cfg.Notifier(), logger)
	if err != nil {
		return fmt.Errorf("notifier: %w", err)
	}

	bots, err := botdetect.New(cfg.BotDetector(), cfg.FormProfile())
	if err != nil {
		return fmt.Errorf("bot detection: %w", err)
	}
	if config.WatchFormProfile(viper.GetViper(), bots, logger) {
		logger.Info(ctx, "watching config file for form profile changes", "file", viper.ConfigFileUsed())
	}

	h := handlers.New(handlers.Deps{
		Store:        repo.NewEnrollmentRepo(pool),
		Notifier:     notifier,
		Bots:         bots,
		Limiter:      limiter,
		DB:           pool,
		Sessions:     sessions,
		Logger:       logger,
		MailTo:       cfg.Mail.To,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr: ":" + strconv.Itoa(cfg.Server.Port),
		Handler: router.NewRouter(router.Config{
			Handlers:     h,
			Limiter:      limiter,
			CSRF:         validator,
			Identity:     provider,
			Sessions:     sessions,
			AdminKey:     adminKey,
			TrustProxy:   cfg.Server.TrustProxy,
			MaxBodyBytes: cfg.Server.MaxBodyBytes,
			Logger:       logger,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "server starting", "addr", srv.Addr, "environment", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info(context.Background(), "server stopped")
	return nil
}

// buildLimiter returns the configured limiter. When the tiers are invalid or
// the store cannot be reached, it returns a limiter that admits everything
// and reports itself degraded.
func buildLimiter(ctx context.Context, cfg *config.Config, logger logging.Logger) (*ratelimit.Limiter, func()) {
	noop := func() {}
	tiers := cfg.Tiers()
	if err := ratelimit.ValidateTiers(tiers); err != nil {
		return ratelimit.NewFailOpen(err, tiers, logger), noop
	}

	var (
		store      ratelimit.Store
		closeStore = noop
	)
	switch cfg.RateLimit.Store {
	case "redis":
		rs, err := ratelimit.NewRedisStore(ctx, cfg.RedisStore())
		if err != nil {
			return ratelimit.NewFailOpen(err, tiers, logger), noop
		}
		store = rs
		closeStore = func() {
			if err := rs.Close(); err != nil {
				logger.Warn(context.Background(), err, "close redis store")
			}
		}
	default:
		ms, err := ratelimit.NewMemoryStore(cfg.RateLimit.Capacity)
		if err != nil {
			return ratelimit.NewFailOpen(err, tiers, logger), noop
		}
		store = ms
	}

	limiter, err := ratelimit.New(store, tiers, logger)
	if err != nil {
		closeStore()
		return ratelimit.NewFailOpen(err, tiers, logger), noop
	}
	return limiter, closeStore
}
