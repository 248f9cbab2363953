package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"os"
	"time"

	"github.com/driverjobs/formrelay/internal/config"
	"github.com/driverjobs/formrelay/internal/mailer"
	"github.com/driverjobs/formrelay/internal/security"
	"github.com/driverjobs/formrelay/internal/upload"
	"golang.org/x/sync/errgroup"
)

// verifyTimeout bounds the startup check of the mail relay.
const verifyTimeout = 30 * time.Second

type App struct {
	config     *config.Config
	logger     *slog.Logger
	started    time.Time
	uploads    *upload.Handler
	limiter    *security.RateLimiter
	dispatcher *mailer.Dispatcher
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg)

	transport, encrypt, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}

	return newApp(cfg, logger, transport, encrypt)
}

func newApp(cfg *config.Config, logger *slog.Logger, transport mailer.Transport, encrypt bool) (*App, error) {
	uploads := upload.NewHandler(cfg.UploadDir)
	if err := uploads.Prepare(); err != nil {
		return nil, err
	}

	dispatcher := mailer.NewDispatcher(transport, mailer.Config{
		From:         mail.Address{Name: cfg.EmailFromName, Address: cfg.FromAddress()},
		AdminAddress: cfg.AdminEmail,
		Disabled:     cfg.DisableEmails,
		SendRate:     cfg.SMTPSendRate,
		EncryptAdmin: encrypt,
	}, logger)

	return &App{
		config:     cfg,
		logger:     logger,
		started:    time.Now(),
		uploads:    uploads,
		limiter:    security.NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow),
		dispatcher: dispatcher,
	}, nil
}

// newTransport builds the SMTP transport and reports whether admin notices
// are to be encrypted.
func newTransport(cfg *config.Config) (*mailer.SMTPTransport, bool, error) {
	smtpCfg := mailer.SMTPConfig{
		Host:        cfg.SMTPHost,
		Port:        cfg.SMTPPort,
		Username:    cfg.EmailUser,
		Password:    cfg.EmailPass,
		ImplicitTLS: cfg.SMTPImplicitTLS,
	}

	if cfg.PGPPublicKeyPath == "" {
		return mailer.NewSMTPTransport(smtpCfg), false, nil
	}

	keyring, err := mailer.LoadPublicKey(cfg.PGPPublicKeyPath)
	if err != nil {
		return nil, false, fmt.Errorf("loading PGP key: %w", err)
	}
	smtpCfg.Keyring = keyring
	return mailer.NewSMTPTransport(smtpCfg), true, nil
}

func (app *App) Start(ctx context.Context) error {
	// Create an errgroup derived from the parent context
	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", app.config.Port),
		Handler:      app.routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Minute,
		ErrorLog:     slog.NewLogLogger(app.logger.Handler(), slog.LevelError),
	}

	// Start the server in a goroutine
	g.Go(func() error {
		app.logger.Info("starting server", "addr", srv.Addr, "env", app.config.Env,
			"emails_disabled", app.dispatcher.Disabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	// Check the mail relay once; requests are served either way
	g.Go(func() error {
		app.verifyMailer(gctx)
		return nil
	})

	// Start shutdown listener
	g.Go(func() error {
		<-gctx.Done() // Wait for OS signal or parent context to fail

		app.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	app.logger.Info("stopped server")
	return nil
}

func (app *App) verifyMailer(ctx context.Context) {
	if app.dispatcher.Disabled() {
		app.logger.Warn("emails disabled, notices will be logged instead of sent")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	if err := app.dispatcher.Verify(ctx); err != nil {
		app.logger.Error("mail relay unreachable", "host", app.config.SMTPHost, "err", err)
		return
	}
	app.logger.Info("mail relay ready", "host", app.config.SMTPHost)
}

func newLogger(cfg *config.Config) *slog.Logger {
	logLevel := slog.LevelInfo

	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))

	slog.SetDefault(logger)
	return logger
}
