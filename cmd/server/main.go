// Package main is the entry point of the document service.
// @title Mongo ODM Document Service API
// @version 1.0
// @description Document CRUD, paginated search and GridFS file storage over MongoDB collections

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/unifiedui/mongo-odm/internal/api/handlers"
	"github.com/unifiedui/mongo-odm/internal/api/middleware"
	"github.com/unifiedui/mongo-odm/internal/api/routes"
	"github.com/unifiedui/mongo-odm/internal/config"
	"github.com/unifiedui/mongo-odm/internal/core/cache"
	"github.com/unifiedui/mongo-odm/internal/core/docdb"
	"github.com/unifiedui/mongo-odm/internal/core/vault"
	rediscache "github.com/unifiedui/mongo-odm/internal/infrastructure/cache/redis"
	"github.com/unifiedui/mongo-odm/internal/infrastructure/docdb/mongodb"
	dotenvvault "github.com/unifiedui/mongo-odm/internal/infrastructure/vault/dotenv"
	"github.com/unifiedui/mongo-odm/internal/logroute"
	"github.com/unifiedui/mongo-odm/internal/odm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	setupLogger(cfg.Log, os.Stderr)

	ctx := context.Background()

	// Resolve credentials held in the vault
	secrets, err := createVault(cfg.Vault)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize vault")
	}
	if secrets != nil {
		defer secrets.Close()
	}
	if err := resolveSecrets(ctx, secrets, cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to resolve secrets")
	}

	cacheClient, err := createCacheClient(cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize cache client")
	}
	if cacheClient != nil {
		defer cacheClient.Close()
	}

	docDBClient, err := createDocDBClient(ctx, cfg.DocDB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize document db client")
	}
	defer docDBClient.Close(ctx)

	if cfg.Log.Collection != "" {
		writer, err := logroute.NewWriter(&logroute.Config{
			Collection: docDBClient.Database().Collection(cfg.Log.Collection),
			BatchSize:  cfg.Log.BatchSize,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize log route")
		}
		defer func() {
			if err := writer.Flush(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to flush log route")
			}
		}()
		// The log route decodes JSON, so only stderr takes the console format.
		setupLogger(cfg.Log, os.Stderr, writer)
	}

	conn, err := odm.NewConnection(&odm.ConnectionConfig{
		Database:          docDBClient.Database(),
		CacheClient:       cacheClient,
		Logger:            &log.Logger,
		Server:            serverName(cfg.DocDB.URI),
		EnableProfiling:   cfg.DocDB.EnableProfiling,
		InvalidateOnWrite: cfg.DocDB.QueryCacheDuration > 0,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize connection")
	}
	if cfg.DocDB.QueryCacheDuration > 0 {
		if cacheClient == nil {
			log.Warn().Msg("query caching requested without a cache, ignoring")
		} else {
			conn.Cache(cfg.DocDB.QueryCacheDuration, math.MaxInt)
		}
	}

	registry, err := createRegistry(ctx, conn, cfg.DocDB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register collections")
	}

	files, err := odm.NewFileStore(conn, cfg.DocDB.FileBucket)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open file bucket")
	}

	gin.SetMode(cfg.Server.GinMode)
	router := setupRouter(cfg, cacheClient, docDBClient, registry, files)

	srv := &http.Server{
		Addr:    cfg.Server.Address(),
		Handler: router,
	}

	go func() {
		log.Info().Str("address", cfg.Server.Address()).Strs("collections", registry.Models()).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}

// setupLogger configures the global logger from the log configuration. The
// format applies to out; sinks always receive JSON events.
func setupLogger(cfg config.LogConfig, out io.Writer, sinks ...io.Writer) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	if len(sinks) > 0 {
		out = zerolog.MultiLevelWriter(append([]io.Writer{out}, sinks...)...)
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// createCacheClient creates a cache client based on the configuration. It
// returns nil when caching is disabled.
func createCacheClient(cfg config.CacheConfig) (cache.Client, error) {
	switch cache.Type(cfg.Type) {
	case cache.TypeRedis:
		return rediscache.NewClient(rediscache.Config{
			Host:       cfg.Host,
			Port:       cfg.Port,
			Password:   cfg.Password,
			DB:         cfg.DB,
			DefaultTTL: cfg.TTL,
			KeyPrefix:  cfg.KeyPrefix,
		})
	case cache.TypeNone:
		return nil, nil
	default:
		return nil, errors.New("unsupported cache type: " + cfg.Type)
	}
}

// createDocDBClient creates a document database client based on the configuration.
func createDocDBClient(ctx context.Context, cfg config.DocDBConfig) (docdb.Client, error) {
	switch docdb.Type(cfg.Type) {
	case docdb.TypeMongoDB, docdb.TypeCosmosDB:
		// CosmosDB speaks the MongoDB wire protocol.
		return mongodb.NewClient(ctx, &mongodb.ClientConfig{
			URI:          cfg.URI,
			DatabaseName: cfg.Database,
			WriteConcern: mongodb.WriteConcern{
				W:       cfg.WriteConcernW,
				Journal: cfg.WriteConcernJournal,
				Timeout: cfg.WriteConcernTimeout,
			},
		})
	default:
		return nil, errors.New("unsupported docdb type: " + cfg.Type)
	}
}

// createVault creates the secret store; "none" yields nil.
func createVault(cfg config.VaultConfig) (vault.Vault, error) {
	switch vault.Type(cfg.Type) {
	case vault.TypeDotEnv:
		v, err := dotenvvault.NewVault(cfg.File)
		if err != nil {
			return nil, err
		}
		return v, nil
	case vault.TypeNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported vault type: %s", cfg.Type)
	}
}

// resolveSecrets replaces vault references in the connection settings.
func resolveSecrets(ctx context.Context, v vault.Vault, cfg *config.Config) error {
	for name, value := range map[string]*string{
		"MONGODB_URI":    &cfg.DocDB.URI,
		"REDIS_PASSWORD": &cfg.Cache.Password,
	} {
		if !vault.IsReference(*value) {
			continue
		}
		if v == nil {
			return fmt.Errorf("%s references a secret but no vault is configured", name)
		}
		resolved, err := vault.Resolve(ctx, v, *value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*value = resolved
	}
	return nil
}

// createRegistry registers a model for every configured collection and
// creates the unique indexes backing its unique attributes. Collections that
// do not exist yet are reported; MongoDB creates them on first write.
func createRegistry(ctx context.Context, conn *odm.Connection, cfg config.DocDBConfig) (*odm.Registry, error) {
	existing := make(map[string]bool)
	names, listErr := conn.Database().ListCollectionNames(ctx)
	if listErr != nil {
		log.Warn().Err(listErr).Msg("failed to list collections")
	}
	for _, name := range names {
		existing[name] = true
	}

	registry := odm.NewRegistry(conn)
	for _, name := range cfg.Collections {
		if listErr == nil && !existing[name] {
			log.Info().Str("collection", name).Msg("collection does not exist yet")
		}

		def := odm.Definition{
			CollectionName: name,
			Versioned:      cfg.IsVersioned(name),
		}
		for _, field := range cfg.UniqueFields(name) {
			def.Rules = append(def.Rules, odm.Rule{
				Attributes: []string{field},
				Validator:  odm.NewUniqueValidator(),
			})
			def.Indexes = append(def.Indexes, docdb.IndexModel{
				Keys:   bson.D{{Key: field, Value: 1}},
				Name:   field + "_unique",
				Unique: true,
			})
		}

		model, err := registry.Register(def)
		if err != nil {
			return nil, err
		}
		if _, err := model.EnsureIndexes(ctx); err != nil {
			log.Warn().Err(err).Str("collection", name).Msg("failed to ensure indexes")
		}
	}
	return registry, nil
}

// newLoggingMiddleware logs successful health checks at debug level.
func newLoggingMiddleware() *middleware.LoggingMiddleware {
	return middleware.NewLoggingMiddlewareWithLogger(log.Logger).WithQuietPaths(
		routes.BasePath+"/health",
		routes.BasePath+"/ready",
		routes.BasePath+"/live",
	)
}

// serverName returns the host list of a connection URI.
func serverName(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Host == "" {
		return uri
	}
	return u.Host
}

// setupRouter creates and configures the Gin router.
func setupRouter(cfg *config.Config, cacheClient cache.Client, docDBClient docdb.Client, registry *odm.Registry, files *odm.FileStore) *gin.Engine {
	router := gin.New()

	corsCfg := middleware.DefaultCORSConfig(cfg.Server.CORSOrigins...)
	router.Use(middleware.NewCORSMiddleware(corsCfg))
	middleware.SetupCORSRoutes(router, corsCfg)

	routes.SetupWithMiddleware(router, &routes.Config{
		HealthHandler:    handlers.NewHealthHandler(cacheClient, docDBClient),
		DocumentsHandler: handlers.NewDocumentsHandler(registry),
		FilesHandler:     handlers.NewFilesHandler(files),
	}, newLoggingMiddleware(), middleware.NewErrorMiddleware())

	return router
}
