// Package chunkrun harvests one chunk of categories sequentially inside a
// single supervised unit.
package chunkrun

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-harvester/internal/collect"
	"github.com/JakeFAU/catalog-harvester/internal/harvest"
)

// DefaultMaxPages bounds pagination per category.
const DefaultMaxPages = 500

// ErrSessionRequired is returned when no session factory is configured.
var ErrSessionRequired = errors.New("session factory is required")

// Listing is one page of a category listing.
type Listing struct {
	Title string
	Links []string
	// Next is the reference of the following page, empty on the last one.
	Next string
}

// Session is a scoped connection to a catalog, such as a browser tab.
type Session interface {
	// Listing loads one listing page. An empty pageRef means the first page.
	Listing(ctx context.Context, category harvest.Category, pageRef string) (Listing, error)
	// Detail loads an item page and extracts its record.
	Detail(ctx context.Context, category harvest.Category, link string) (harvest.Record, error)
	Close() error
}

// SessionFactory opens sessions.
type SessionFactory interface {
	Open(ctx context.Context) (Session, error)
}

// SessionFactoryFunc adapts a function to SessionFactory.
type SessionFactoryFunc func(ctx context.Context) (Session, error)

// Open calls f.
func (f SessionFactoryFunc) Open(ctx context.Context) (Session, error) {
	return f(ctx)
}

// Config tunes a Runner.
type Config struct {
	MaxPages int
}

// Stats summarizes one chunk run.
type Stats struct {
	Categories int
	Failed     int
	Pages      int
	Records    int
	Skipped    int
}

// Runner walks categories through a session and appends the extracted records.
type Runner struct {
	sessions SessionFactory
	records  collect.Appender
	cfg      Config
	logger   *zap.Logger
}

// New creates a Runner.
func New(sessions SessionFactory, records collect.Appender, cfg Config, logger *zap.Logger) *Runner {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		sessions: sessions,
		records:  records,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run harvests chunk. Its signature matches supervisor.EntryFunc. Only a session
// that cannot be opened, or a canceled context, makes it return an error.
func (r *Runner) Run(ctx context.Context, index int, chunk []harvest.Category) error {
	_, err := r.RunChunk(ctx, index, chunk)
	return err
}

// RunChunk is Run with statistics.
func (r *Runner) RunChunk(ctx context.Context, index int, chunk []harvest.Category) (Stats, error) {
	var stats Stats
	if r.sessions == nil {
		return stats, ErrSessionRequired
	}
	logger := r.logger.With(zap.Int("index", index))

	session, err := r.sessions.Open(ctx)
	if err != nil {
		return stats, fmt.Errorf("open session: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("close session", zap.Error(cerr))
		}
	}()

	for _, category := range chunk {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("chunk canceled: %w", err)
		}
		stats.Categories++
		if err := r.harvestCategory(ctx, session, category, &stats, logger); err != nil {
			stats.Failed++
			logger.Error("category failed", zap.Stringer("category", category), zap.Error(err))
		}
	}
	logger.Info("chunk finished",
		zap.Int("categories", stats.Categories),
		zap.Int("records", stats.Records),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed_categories", stats.Failed),
	)
	return stats, nil
}

func (r *Runner) harvestCategory(
	ctx context.Context,
	session Session,
	category harvest.Category,
	stats *Stats,
	logger *zap.Logger,
) error {
	logger = logger.With(zap.Stringer("category", category))
	seen := make(map[string]struct{})
	page := ""
	for n := 0; n < r.cfg.MaxPages; n++ {
		listing, err := session.Listing(ctx, category, page)
		if err != nil {
			if n == 0 {
				return fmt.Errorf("load listing: %w", err)
			}
			logger.Warn("listing page failed", zap.String("page", page), zap.Error(err))
			return nil
		}
		stats.Pages++
		logger.Debug("listing page loaded", zap.String("title", listing.Title), zap.Int("links", len(listing.Links)))

		for _, link := range listing.Links {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			record, err := session.Detail(ctx, category, link)
			if err != nil || record == nil {
				stats.Skipped++
				logger.Warn("item skipped", zap.String("link", link), zap.Error(err))
				continue
			}
			if _, ok := record[harvest.FieldCategory]; !ok {
				record[harvest.FieldCategory] = category.String()
			}
			r.records.Append(record)
			stats.Records++
		}

		if listing.Next == "" {
			return nil
		}
		if _, dup := seen[listing.Next]; dup {
			logger.Warn("pagination cycle detected", zap.String("page", listing.Next))
			return nil
		}
		seen[listing.Next] = struct{}{}
		page = listing.Next
	}
	logger.Warn("page limit reached", zap.Int("max_pages", r.cfg.MaxPages))
	return nil
}
