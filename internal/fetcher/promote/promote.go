// Package promote retries static fetches in a headless browser when the page
// looks client rendered.
package promote

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-harvester/internal/fetcher"
	"github.com/JakeFAU/catalog-harvester/internal/metrics"
)

// Detector decides whether a static response needs a browser.
type Detector interface {
	ShouldPromote(resp fetcher.Response) bool
}

// Fetcher probes with a static fetcher and promotes to a headless one.
type Fetcher struct {
	static   fetcher.Fetcher
	headless fetcher.Fetcher
	detect   Detector
	logger   *zap.Logger
}

// New wires the probe and promotion fetchers. A nil headless fetcher disables
// promotion; a nil detector uses NewHeuristic(0).
func New(static, headless fetcher.Fetcher, detect Detector, logger *zap.Logger) *Fetcher {
	if detect == nil {
		detect = NewHeuristic(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{static: static, headless: headless, detect: detect, logger: logger}
}

// Fetch returns the static response unless it is promoted. A failed promotion
// falls back to the static response.
func (f *Fetcher) Fetch(ctx context.Context, req fetcher.Request) (fetcher.Response, error) {
	resp, err := f.static.Fetch(ctx, req)
	if err != nil || f.headless == nil || !f.detect.ShouldPromote(resp) {
		return resp, err
	}
	rendered, err := f.headless.Fetch(ctx, req)
	if err != nil {
		metrics.ObservePromotion(metrics.StatusFailed)
		f.logger.Warn("headless promotion failed", zap.String("url", req.URL), zap.Error(err))
		return resp, nil
	}
	metrics.ObservePromotion(metrics.StatusOK)
	f.logger.Debug("promoted to headless", zap.String("url", req.URL))
	rendered.UsedHeadless = true
	return rendered, nil
}
