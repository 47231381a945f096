package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/contacts-manager/internal/config"
	"github.com/iliyamo/contacts-manager/internal/database"
	"github.com/iliyamo/contacts-manager/internal/handler"
	"github.com/iliyamo/contacts-manager/internal/logging"
	"github.com/iliyamo/contacts-manager/internal/queue"
	"github.com/iliyamo/contacts-manager/internal/repository"
	"github.com/iliyamo/contacts-manager/internal/router"
	"github.com/iliyamo/contacts-manager/internal/service"
	"github.com/iliyamo/contacts-manager/internal/telemetry"
	"github.com/iliyamo/contacts-manager/internal/upload"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.IsProd())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, cfg.Env)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(sctx)
	}()

	db, err := database.Open(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		logger.Warn("redis unavailable, rate limiting and response cache disabled",
			zap.String("addr", cfg.Redis.Address()))
	} else {
		defer rdb.Close()
	}

	var events service.EventPublisher = queue.LogPublisher{Log: logger}
	if cfg.RabbitMQURL != "" {
		pub := queue.NewPublisher(cfg.RabbitMQURL, cfg.EventsExchange, logger)
		defer pub.Close()
		events = pub

		if cfg.AuditConsumer {
			audit, err := logging.NewFileLogger(cfg.AuditLogPath)
			if err != nil {
				return err
			}
			defer func() { _ = audit.Sync() }()
			consumer := &queue.AuditConsumer{
				URL:      cfg.RabbitMQURL,
				Exchange: cfg.EventsExchange,
				Audit:    audit,
				Log:      logger,
			}
			go func() {
				if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("audit consumer stopped", zap.Error(err))
				}
			}()
		}
	}

	photos, err := upload.NewPhotoStore(cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		return err
	}

	users := repository.NewUserRepo(db)
	contacts := repository.NewContactRepo(db)

	authSvc := service.NewAuthService(users, service.AuthConfig{
		Secret:     cfg.JWTSecret,
		TokenTTL:   cfg.TokenTTL,
		BcryptCost: cfg.BcryptCost,
	}, events, logger)
	contactSvc := service.NewContactService(contacts, users, events, logger)
	userSvc := service.NewUserService(users, events, logger)

	seedCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = authSvc.EnsureAdmin(seedCtx, cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword)
	cancel()
	if err != nil {
		return err
	}

	e := router.New(router.Deps{
		Config:   cfg,
		Log:      logger,
		Redis:    rdb,
		Verifier: authSvc,
		Auth:     handler.NewAuthHandler(authSvc, logger),
		Contacts: handler.NewContactHandler(contactSvc, photos, handler.NewValidator(), logger),
		Users:    handler.NewUserHandler(userSvc, logger),
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", ":"+cfg.Port), zap.String("env", cfg.Env), zap.String("db", cfg.DBDriver))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(sctx)
}
