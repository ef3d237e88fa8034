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

	"talentpad/api/internal/app"
	"talentpad/api/internal/authpw"
	"talentpad/api/internal/config"
	"talentpad/api/internal/history"
	"talentpad/api/internal/media"
	"talentpad/api/internal/named"
	"talentpad/api/internal/oplog"
	"talentpad/api/internal/realtime"
	"talentpad/api/internal/session"
	"talentpad/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		log.Fatalf("failed to create repos dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	docLog := oplog.NewPostgresLog(db)
	authService := authpw.NewService(dataStore)
	historyService := history.New(cfg.ReposDir)
	hub := realtime.NewHub()

	var meiliClient *named.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = named.NewMeili(cfg.MeiliURL, cfg.MeiliAPIKey)
		defer meiliClient.Close()
	}
	namedService := named.NewService(dataStore, meiliClient)

	var service *app.Service
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for refresh token storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		service = app.New(cfg, docLog, dataStore, redisStore, authService)
	} else {
		log.Printf("Using PostgreSQL for refresh token storage")
		service = app.New(cfg, docLog, dataStore, dataStore, authService)
	}
	service.WithNamedEntities(namedService).
		WithHistory(historyService).
		WithBroadcaster(hub)

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		mediaService, err := media.New(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("object storage setup failed: %v", err)
		}
		service.WithMedia(mediaService)
	} else {
		log.Printf("Logo uploads disabled, no object storage configured")
	}

	httpServer := app.NewHTTPServer(service, hub, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Talentpad API listening on %s", cfg.Addr)
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
