package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-harvester/internal/api"
	"github.com/JakeFAU/catalog-harvester/internal/collect"
	"github.com/JakeFAU/catalog-harvester/internal/config"
	headlessfetcher "github.com/JakeFAU/catalog-harvester/internal/fetcher/headless"
	"github.com/JakeFAU/catalog-harvester/internal/harvest"
	"github.com/JakeFAU/catalog-harvester/internal/hash/sha256"
	"github.com/JakeFAU/catalog-harvester/internal/sink/postgres"
	"github.com/JakeFAU/catalog-harvester/internal/sink/pubsub"
	"github.com/JakeFAU/catalog-harvester/internal/storage"
	"github.com/JakeFAU/catalog-harvester/internal/storage/gcs"
	"github.com/JakeFAU/catalog-harvester/internal/storage/local"
	"github.com/JakeFAU/catalog-harvester/internal/storage/memory"
)

const shutdownTimeout = 10 * time.Second

// externalSinks are the configured sinks besides the collection.
type externalSinks struct {
	sinks  []harvest.Sink
	closes []func()
}

func (e *externalSinks) Close() {
	for i := len(e.closes) - 1; i >= 0; i-- {
		e.closes[i]()
	}
}

// openSinks connects Postgres and Pub/Sub when they are configured.
func openSinks(ctx context.Context, cfg config.Config, runID string, logger *zap.Logger) (*externalSinks, error) {
	out := &externalSinks{}
	if dsn := cfg.DSN(); dsn != "" {
		store, err := postgres.NewProductStore(ctx, postgres.Config{
			DSN:      dsn,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
		}, sha256.New(), postgres.WithRunID(runID))
		if err != nil {
			return nil, err
		}
		out.closes = append(out.closes, store.Close)
		if cfg.DB.EnsureSchema {
			if err := store.EnsureSchema(ctx); err != nil {
				out.Close()
				return nil, err
			}
		}
		out.sinks = append(out.sinks, store)
		logger.Info("postgres sink enabled", zap.String("table", cfg.DB.Table))
	}
	if cfg.PubSub.ProjectID != "" {
		pub, err := pubsub.Dial(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName, runID)
		if err != nil {
			out.Close()
			return nil, err
		}
		out.closes = append(out.closes, pub.Close)
		out.sinks = append(out.sinks, pub)
		logger.Info("pubsub sink enabled", zap.String("topic", cfg.PubSub.TopicName))
	}
	return out, nil
}

// openOutputStore picks the artifact store: GCS, then the local directory,
// then memory.
func openOutputStore(ctx context.Context, cfg config.Config) (storage.BlobStore, func(), error) {
	switch {
	case cfg.Output.GCSBucket != "":
		store, err := gcs.Dial(ctx, gcs.Config{Bucket: cfg.Output.GCSBucket, Prefix: cfg.Output.GCSPrefix})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case cfg.Output.LocalDir != "":
		store, err := local.New(local.Config{BaseDir: cfg.Output.LocalDir})
		if err != nil {
			return nil, nil, fmt.Errorf("open output dir: %w", err)
		}
		return store, func() {}, nil
	default:
		return memory.NewBlobStore(), func() {}, nil
	}
}

// writeOutput uploads records as a JSON array to the configured store.
func writeOutput(ctx context.Context, cfg config.Config, records *collect.Collection, logger *zap.Logger) error {
	store, closeStore, err := openOutputStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	uri, err := storage.PutJSON(ctx, store, cfg.Output.Path, records)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	logger.Info("output written", zap.String("uri", uri), zap.Int("records", records.Len()))
	return nil
}

func newBrowser(cfg config.Config) (*headlessfetcher.Fetcher, error) {
	userAgent := cfg.Browser.UserAgent
	if userAgent == "" {
		userAgent = cfg.HTTP.UserAgent
	}
	browser, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		UserAgent:         userAgent,
		NavigationTimeout: cfg.NavTimeout(),
		RemoteURL:         cfg.Browser.CDPEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("init browser: %w", err)
	}
	return browser, nil
}

// statusServer runs the api handler until stopped. A nil statusServer is a
// disabled server.
type statusServer struct {
	api    *api.Server
	srv    *http.Server
	logger *zap.Logger
}

func startStatusServer(cfg config.Config, opts api.Options, logger *zap.Logger, onFailure func()) *statusServer {
	if cfg.Server.Port == 0 {
		return nil
	}
	opts.APIKey = cfg.HTTP.APIKey
	s := &statusServer{api: api.NewServer(opts, logger), logger: logger}
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           s.api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			onFailure()
		}
	}()
	s.api.SetReady(true)
	return s
}

func (s *statusServer) Stop() {
	if s == nil {
		return
	}
	s.api.SetReady(false)
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Error("server shutdown error", zap.Error(err))
	}
}
