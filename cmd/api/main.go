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

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/emilythestrangee/consensus/backend/internal/config"
	"github.com/emilythestrangee/consensus/backend/internal/database"
	"github.com/emilythestrangee/consensus/backend/internal/handlers"
	"github.com/emilythestrangee/consensus/backend/internal/identity"
	"github.com/emilythestrangee/consensus/backend/internal/logging"
	"github.com/emilythestrangee/consensus/backend/internal/notify"
	"github.com/emilythestrangee/consensus/backend/internal/outbox"
	"github.com/emilythestrangee/consensus/backend/internal/server"
	"github.com/emilythestrangee/consensus/backend/internal/voting"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "consensus: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.New(cfg.DB, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	store := database.NewStore(db.GetDB(), logger.Named("store"))
	dispatcher := notify.NewDispatcher(
		notify.Resolver{Volumes: store, Mentions: store, Votes: store},
		store,
		newMailer(cfg.SMTP, logger),
		logger.Named("notify"),
	)
	dispatcher.MailConcurrency = cfg.Outbox.MailConcurrency
	if cfg.Twilio.Enabled() {
		dispatcher.Alerter = notify.NewTwilioAlerter(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From)
	}

	relay := outbox.NewRelay(store, dispatcher, logger.Named("outbox"))
	relay.BatchSize = cfg.Outbox.BatchSize
	relay.MaxAttempts = cfg.Outbox.MaxAttempts
	relay.PollInterval = cfg.Outbox.PollInterval

	votes := voting.NewService(store, voting.MotionPhase{}, relay, logger.Named("voting"))

	if !cfg.Apple.Enabled() {
		logger.Warn("APPLE_CLIENT_ID not set, sign in with apple disabled")
	}
	providers := identity.NewDefaultRegistry(cfg.Apple.ClientID, cfg.Apple.KeysURL)

	handler := handlers.NewHandler(handlers.Dependencies{
		Votes:         votes,
		VoteReader:    store,
		Notifications: store,
		Identities:    store,
		Providers:     providers,
		Logger:        logger.Named("http"),
	})
	srv := server.NewServer(cfg.Port, cfg.JWTSecret, handler, db, logger.Named("http"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if cfg.Outbox.Listen {
		g.Go(func() error {
			return outbox.Listen(ctx, database.DSN(cfg.DB), relay, logger.Named("outbox"))
		})
	}
	g.Go(func() error {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newMailer(cfg config.SMTPConfig, logger *zap.Logger) notify.Mailer {
	if cfg.Host == "" {
		logger.Warn("SMTP_HOST not set, emails will only be logged")
		return notify.LogMailer{Logger: logger.Named("mail")}
	}
	return notify.NewSMTPMailer(cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.From)
}
