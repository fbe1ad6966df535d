package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tareas/api/db"
	"tareas/api/internal/analytics"
	"tareas/api/internal/app"
	"tareas/api/internal/attachments"
	"tareas/api/internal/authpw"
	"tareas/api/internal/config"
	"tareas/api/internal/email"
	"tareas/api/internal/notify"
	"tareas/api/internal/report"
	"tareas/api/internal/search"
	"tareas/api/internal/session"
	"tareas/api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()

	database, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer database.Close()

	if err := store.ApplyMigrations(ctx, database, db.Migrations(cfg.MigrationsDir)); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(database)
	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !mailer.IsConfigured() {
		log.Printf("SMTP not configured; emails are skipped and reset tokens returned in responses")
	}

	deps := app.Deps{
		Store:   dataStore,
		Auth:    authpw.NewService(dataStore),
		Mailer:  mailer,
		Reports: report.NewService(),
		Notifier: notify.NewDispatcher(dataStore, notify.Options{
			Pusher:     notify.NewExpoClient(cfg.ExpoPushURL, cfg.ExpoPushToken),
			Mailer:     mailer,
			AppBaseURL: cfg.AppBaseURL,
			Retention:  cfg.NotificationRetention,
		}),
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for refresh tokens and the analytics cache")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		deps.Sessions = redisStore
		deps.Cache = analytics.NewRedisCache(redisStore.Client(), cfg.AnalyticsCacheTTL)
	} else {
		log.Printf("Using PostgreSQL for refresh tokens and an in-process analytics cache")
		deps.Cache = analytics.NewMemoryCache(cfg.AnalyticsCacheTTL, nil)
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	deps.Search = search.NewService(meiliClient, search.NewPgFTS(database.DB))

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		attachmentStore, err := attachments.New(ctx, attachments.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Printf("WARNING: attachments disabled: %v", err)
		} else {
			deps.Attachments = attachmentStore
		}
	}

	service := app.New(cfg, deps)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Tareas API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
