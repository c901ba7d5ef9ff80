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

	"crux/api/internal/analysis"
	"crux/api/internal/app"
	"crux/api/internal/config"
	"crux/api/internal/docgen"
	"crux/api/internal/export"
	"crux/api/internal/gitrepo"
	"crux/api/internal/lineage"
	"crux/api/internal/marker"
	"crux/api/internal/search"
	"crux/api/internal/store"
	"crux/api/internal/syncer"
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
	contentRepos := gitrepo.New(cfg.ReposDir)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)

	var markers marker.Store
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for origin marker storage")
		redisMarkers, err := marker.NewRedisStore(cfg.RedisURL, cfg.MarkerTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		markers = redisMarkers
	} else {
		log.Printf("Using in-memory origin marker storage")
		markers = marker.NewMemoryStore(cfg.MarkerTTL)
	}
	defer markers.Close()

	var archiver *export.Archiver
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		archiver, err = export.NewArchiver(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Printf("WARNING: export archive unavailable: %v", err)
			archiver = nil
		}
	}
	exporter := export.NewService(archiver)

	generator := docgen.New()
	bus := analysis.NewBus()
	coordinator := syncer.New(dataStore, contentRepos, markers, generator, bus)
	lineageService := lineage.New(dataStore, contentRepos)

	service := app.NewService(dataStore, contentRepos, coordinator, lineageService, exporter, searchService, generator, bus, cfg.SyncToken)
	if err := service.Bootstrap(ctx); err != nil {
		log.Printf("WARNING: bootstrap error (will retry on next restart): %v", err)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Crux API listening on %s", cfg.Addr)
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
