package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jsguru-git/api/internal/cache"
	"github.com/jsguru-git/api/internal/config"
	"github.com/jsguru-git/api/internal/entries"
	"github.com/jsguru-git/api/internal/files"
	"github.com/jsguru-git/api/internal/gateway"
	"github.com/jsguru-git/api/internal/hooks"
	"github.com/jsguru-git/api/internal/schema"
	"github.com/jsguru-git/api/internal/system"
	"github.com/jsguru-git/api/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the content API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		logger, err := zap.NewProduction()
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer logger.Sync()

		db, dialect, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		store, err := openCacheStore(cfg)
		if err != nil {
			return err
		}
		responseCache := cache.NewResponseCache(store, cfg.Cache.TTL, logger)

		registry := schema.NewRegistryWithLoader(schema.NewSQLLoader(db))
		if err := registry.Refresh(cmd.Context()); err != nil {
			return fmt.Errorf("failed to load schema: %w", err)
		}

		emitter := hooks.NewEmitter()
		urls := files.NewURLResolver(cfg.Files.RootURL, cfg.Files.ThumbnailRootURL)
		system.NewHooks(registry, db, dialect, responseCache, urls, logger).Register(emitter)

		service := entries.New(db, registry, emitter, responseCache, dialect, logger)

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Mount("/items", web.NewItemsHandler(service, logger).Routes())

		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		server := &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("server listening", zap.String("addr", addr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case <-sigCh:
		}

		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	},
}

func openDatabase(cfg *config.Config) (*sql.DB, gateway.Dialect, error) {
	var driver string
	var dialect gateway.Dialect
	switch cfg.Database.Driver {
	case "postgres":
		driver = "pgx"
		dialect = gateway.DialectPostgres
	case "sqlite":
		driver = "sqlite3"
		dialect = gateway.DialectSQLite
	default:
		return nil, "", fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}

	db, err := sql.Open(driver, cfg.Database.URL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, dialect, nil
}

func openCacheStore(cfg *config.Config) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "redis":
		return cache.NewRedisStore(cache.RedisConfig{
			Addr:   cfg.Cache.RedisAddr,
			DB:     cfg.Cache.RedisDB,
			Config: cache.Config{DefaultTTL: cfg.Cache.TTL, Prefix: "contentd:"},
		})
	default:
		return cache.NewMemoryStoreWithConfig(cache.Config{
			DefaultTTL: cfg.Cache.TTL,
			Prefix:     "contentd:",
		}), nil
	}
}
