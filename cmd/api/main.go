// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/flowchat/internal/auth"
	"github.com/capitalize-ai/flowchat/internal/config"
	"github.com/capitalize-ai/flowchat/internal/handler"
	natsclient "github.com/capitalize-ai/flowchat/internal/nats"
	"github.com/capitalize-ai/flowchat/internal/prediction"
	"github.com/capitalize-ai/flowchat/internal/service"
	"github.com/capitalize-ai/flowchat/internal/store"
	"github.com/capitalize-ai/flowchat/pkg/logger"
	"github.com/capitalize-ai/flowchat/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if err := run(cfg, log); err != nil {
		log.Error("server failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("starting API server", zap.String("store", cfg.StoreDriver))

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "flowchat-api", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// Chat events are optional.
	var natsClient *natsclient.Client
	var events service.EventPublisher
	if cfg.NATSURL != "" {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer natsClient.Close()

		publisher := natsclient.NewEventPublisher(natsClient)
		if err := publisher.EnsureStream(ctx); err != nil {
			return fmt.Errorf("failed to ensure stream: %w", err)
		}
		events = publisher
	}

	predictor, err := prediction.NewClient(prediction.Provider(cfg.PredictionProvider), prediction.Options{
		FlowiseHost:       cfg.FlowiseHost,
		FlowiseChatflowID: cfg.FlowiseChatflowID,
		FlowiseAPIKey:     cfg.FlowiseAPIKey,
		OpenAIAPIKey:      cfg.OpenAIAPIKey,
		AnthropicAPIKey:   cfg.AnthropicAPIKey,
		Model:             cfg.PredictionModel,
	})
	if err != nil {
		return fmt.Errorf("failed to create prediction client: %w", err)
	}

	var uploader handler.DocumentUploader
	if cfg.FlowiseDocStoreID != "" {
		flowise, err := prediction.NewFlowiseClient(prediction.FlowiseConfig{
			Host:   cfg.FlowiseHost,
			APIKey: cfg.FlowiseAPIKey,
		})
		if err != nil {
			return fmt.Errorf("failed to create document uploader: %w", err)
		}
		uploader = flowise
	}

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTExpiration)
	authSvc := service.NewAuthService(st, issuer, log)
	chatSvc := service.NewChatService(st, events, log)

	if err := authSvc.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return fmt.Errorf("failed to create admin account: %w", err)
	}

	router := handler.NewRouter(handler.RouterConfig{
		Health: handler.NewHealthHandler(st, natsClient),
		Auth:   handler.NewAuthHandler(authSvc, log),
		Chats:  handler.NewChatHandler(chatSvc, log),
		Prediction: handler.NewPredictionHandler(predictor, uploader, handler.DocumentConfig{
			StoreID: cfg.FlowiseDocStoreID,
			DocID:   cfg.FlowiseDocID,
		}, log),
		Issuer:            issuer,
		Logger:            log,
		CORSOrigins:       cfg.CORSOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		return store.NewSQLiteStore(cfg.SQLitePath)
	case config.StoreMongo:
		return store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
