package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/federicoroldos/sofull-site/internal/config"
	"github.com/federicoroldos/sofull-site/internal/infrastructure/captcha"
	"github.com/federicoroldos/sofull-site/internal/infrastructure/dynamo"
	"github.com/federicoroldos/sofull-site/internal/infrastructure/google"
	s3infra "github.com/federicoroldos/sofull-site/internal/infrastructure/s3"
	"github.com/federicoroldos/sofull-site/internal/infrastructure/smtp"
	"github.com/federicoroldos/sofull-site/internal/infrastructure/sns"
	transporthttp "github.com/federicoroldos/sofull-site/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}

	cfg := config.Load()
	setupLogger(cfg.AppEnv)

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	// S3-backed email templates; embedded defaults apply when the bucket
	// is unset or a template object is missing.
	var templates *s3infra.TemplateStore
	if cfg.TemplateBucket != "" {
		templates = s3infra.NewTemplateStore(s3infra.NewClient(cfg), cfg.TemplateBucket)
	} else {
		templates = s3infra.NewTemplateStore(nil, "")
		slog.Info("template bucket unset, using embedded templates")
	}

	// SNS outcome publishing is optional.
	var outcomes sns.OutcomePublisher
	if cfg.OutcomeTopicARN != "" {
		if pub, err := sns.NewPublisher(cfg); err == nil {
			outcomes = pub
		} else {
			slog.Warn("outcome publisher not available", "err", err)
		}
	}

	deps := &transporthttp.Deps{
		States:     dynamo.NewEmailStateRepo(dynamoClient, cfg.DynamoTables.EmailState),
		Mailer:     smtp.NewMailer(cfg),
		Templates:  templates,
		Outcomes:   outcomes,
		Assertions: google.NewVerifier(cfg.GoogleClientID),
		Captcha:    captcha.NewVerifier(cfg),
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("forced shutdown", "err", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func setupLogger(env string) {
	var h slog.Handler
	if env == "production" {
		h = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	slog.SetDefault(slog.New(h))
}
