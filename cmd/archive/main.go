package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/caio-sobreiro/dicomarc/capability"
	"github.com/caio-sobreiro/dicomarc/config"
	"github.com/caio-sobreiro/dicomarc/identity"
	"github.com/caio-sobreiro/dicomarc/interfaces"
	"github.com/caio-sobreiro/dicomarc/query"
	"github.com/caio-sobreiro/dicomarc/retrieve"
	"github.com/caio-sobreiro/dicomarc/storage"
	"github.com/caio-sobreiro/dicomarc/store/memstore"
	"github.com/caio-sobreiro/dicomarc/store/mongostore"
	"github.com/caio-sobreiro/dicomarc/store/pgstore"
	"github.com/caio-sobreiro/dicomarc/types"
	"github.com/caio-sobreiro/dicomarc/web"
)

// backend is a match store the archive can search and retrieve from
type backend interface {
	query.Backend
	interfaces.InstanceLocator
}

func main() {
	configPath := flag.String("config", "", "Path to a YAML configuration file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}
	logger := config.NewLogger(os.Stdout, cfg.Logging)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = run(ctx, cfg, logger)
	switch {
	case err == nil:
		logger.Info("Archive shutdown complete")
	case errors.Is(err, context.Canceled):
		logger.Info("Archive stopped", "reason", err.Error())
	default:
		logger.Error("Archive terminated unexpectedly", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	filters, err := config.NewAttributeFilters(cfg.Archive)
	if err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.Archive.Capabilities == "redis" || cfg.Archive.Identities == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
	}

	caps, err := openCapabilities(ctx, cfg, rdb)
	if err != nil {
		return err
	}

	db, closeBackend, err := openBackend(ctx, cfg, filters, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	reader, closeStorage, err := openStorage(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStorage()

	svcOpts := []query.ServiceOption{
		query.WithLogger(logger),
		query.WithBaseURL(cfg.Archive.BaseURL),
		query.WithMatchUnknown(cfg.Archive.MatchUnknown),
		query.WithPersonNameCaseInsensitive(cfg.Archive.PersonNameCaseInsensitive),
	}
	switch cfg.Archive.Identities {
	case "static":
		groups := make([][]types.IDWithIssuer, 0, len(cfg.Archive.IdentityGroups))
		for _, g := range cfg.Archive.IdentityGroups {
			ids := make([]types.IDWithIssuer, 0, len(g))
			for _, s := range g {
				ids = append(ids, types.ParseIDWithIssuer(s))
			}
			groups = append(groups, ids)
		}
		svcOpts = append(svcOpts, query.WithIdentityResolver(identity.NewStatic(groups...)))
	case "redis":
		svcOpts = append(svcOpts, query.WithIdentityResolver(identity.NewRedis(rdb)))
	}
	search := query.NewService(db, caps, filters, svcOpts...)

	pipeline := retrieve.New(reader,
		retrieve.WithLogger(logger),
		retrieve.WithBulkDataThreshold(cfg.Archive.BulkDataThreshold),
		retrieve.WithJPEGQuality(cfg.Archive.JPEGQuality),
	)

	webOpts := []web.Option{
		web.WithLogger(logger),
		web.WithRateLimit(cfg.Server.RequestsPerMinute),
		web.WithCORSOrigins(cfg.Server.CORSOrigins...),
	}
	if cfg.Auth.Enabled {
		webOpts = append(webOpts, web.WithAuth(web.NewAuth(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.Claim)))
	}
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           web.NewServer(search, pipeline, db, caps, webOpts...).Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Archive listening", "addr", cfg.Server.Addr, "backend", cfg.Backend.Type, "storage", cfg.Storage.Type)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return ctx.Err()
}

func openCapabilities(ctx context.Context, cfg *config.Config, rdb *redis.Client) (interfaces.CapabilityLookup, error) {
	if cfg.Archive.Capabilities != "redis" {
		return capability.NewStatic(cfg.AEs...)
	}
	caps := capability.NewRedis(rdb)
	// Configured entries seed Redis; entries already there are overwritten.
	for i := range cfg.AEs {
		if err := caps.Put(ctx, &cfg.AEs[i]); err != nil {
			return nil, err
		}
	}
	return caps, nil
}

func openBackend(ctx context.Context, cfg *config.Config, filters *config.AttributeFilters, logger *slog.Logger) (backend, func(), error) {
	switch cfg.Backend.Type {
	case "postgres":
		db, err := pgstore.Open(ctx, cfg.Postgres.DSN,
			pgstore.WithLogger(logger),
			pgstore.WithFuzzyEncoder(filters.Fuzzy()),
			pgstore.WithRetrieveAETitle(cfg.Archive.RetrieveAETitle),
		)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Postgres.Migrate {
			if err := db.Migrate(ctx); err != nil {
				db.Close()
				return nil, nil, err
			}
		}
		return db, db.Close, nil
	case "mongo":
		db, err := mongostore.Open(ctx, cfg.Mongo.URI, cfg.Mongo.Database,
			mongostore.WithLogger(logger),
			mongostore.WithFuzzyEncoder(filters.Fuzzy()),
			mongostore.WithRetrieveAETitle(cfg.Archive.RetrieveAETitle),
		)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := db.Close(context.Background()); err != nil {
				logger.Warn("Failed to disconnect from mongo", "error", err)
			}
		}
		if cfg.Mongo.EnsureIndexes {
			if err := db.EnsureIndexes(ctx); err != nil {
				closeFn()
				return nil, nil, err
			}
		}
		return db, closeFn, nil
	}

	db := memstore.New(memstore.WithLogger(logger), memstore.WithRetrieveAETitle(cfg.Archive.RetrieveAETitle))
	if cfg.Backend.LoadDir != "" {
		n, err := db.LoadDir(ctx, cfg.Backend.LoadDir)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Loaded instances", "dir", cfg.Backend.LoadDir, "count", n)
	}
	return db, func() {}, nil
}

func openStorage(cfg *config.Config, logger *slog.Logger) (interfaces.StorageReader, func(), error) {
	if cfg.Storage.Type == "minio" {
		m, err := storage.NewMinio(storage.MinioConfig{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			UseSSL:    cfg.Minio.UseSSL,
			Region:    cfg.Minio.Region,
			Bucket:    cfg.Minio.Bucket,
			Prefix:    cfg.Minio.Prefix,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return m, func() {}, nil
	}
	fs, err := storage.NewFilesystem(cfg.Storage.Root, logger)
	if err != nil {
		return nil, nil, err
	}
	return fs, func() {
		if err := fs.Close(); err != nil {
			logger.Warn("Failed to close storage root", "error", err)
		}
	}, nil
}
