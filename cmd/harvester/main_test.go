package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-harvester/internal/api"
	"github.com/JakeFAU/catalog-harvester/internal/chunkrun"
	"github.com/JakeFAU/catalog-harvester/internal/collect"
	"github.com/JakeFAU/catalog-harvester/internal/config"
	collyfetcher "github.com/JakeFAU/catalog-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/catalog-harvester/internal/fetcher/promote"
	"github.com/JakeFAU/catalog-harvester/internal/fetcher/ratelimit"
	"github.com/JakeFAU/catalog-harvester/internal/harvest"
	"github.com/JakeFAU/catalog-harvester/internal/storage/local"
	"github.com/JakeFAU/catalog-harvester/internal/storage/memory"
)

func TestRootCommandTree(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	require.NotNil(t, root.PersistentFlags().Lookup("config"))

	names := map[string]bool{}
	for _, sub := range root.Commands() {
		names[sub.Name()] = sub.Hidden
	}
	require.Contains(t, names, "pipeline")
	require.Contains(t, names, "supervise")
	require.True(t, names["worker"], "worker is an internal entry point")
}

func TestWorkerArgsParseBack(t *testing.T) {
	t.Parallel()

	chunk := harvest.Categories("https://books.example.com/travel_2/index.html", "Poetry")
	args := workerArgs("/etc/harvester.yaml", 2, chunk)
	require.Equal(t, []string{
		"worker", "--index", "2", "--config", "/etc/harvester.yaml",
		"--category", "https://books.example.com/travel_2/index.html",
		"--category", "Poetry",
	}, args)

	root := newRootCmd()
	cmd, rest, err := root.Find(args)
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags(rest))

	index, err := cmd.Flags().GetInt("index")
	require.NoError(t, err)
	require.Equal(t, 2, index)
	categories, err := cmd.Flags().GetStringArray("category")
	require.NoError(t, err)
	require.Equal(t, []string{"https://books.example.com/travel_2/index.html", "Poetry"}, categories)
}

func TestWorkerArgsWithoutConfig(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"worker", "--index", "0"}, workerArgs("", 0, nil))
}

type listingSession struct {
	failOpen bool
	closed   bool
}

func (s *listingSession) Listing(_ context.Context, category harvest.Category, _ string) (chunkrun.Listing, error) {
	return chunkrun.Listing{Title: category.String(), Links: []string{"one", "two"}}, nil
}

func (s *listingSession) Detail(_ context.Context, category harvest.Category, link string) (harvest.Record, error) {
	if link == "two" && category == "Poetry" {
		return nil, errors.New("detail timeout")
	}
	return harvest.Record{harvest.FieldTitle: category.String() + "/" + link}, nil
}

func (s *listingSession) Close() error {
	s.closed = true
	return nil
}

func (s *listingSession) factory() chunkrun.SessionFactory {
	return chunkrun.SessionFactoryFunc(func(context.Context) (chunkrun.Session, error) {
		if s.failOpen {
			return nil, errors.New("browser unavailable")
		}
		return s, nil
	})
}

func TestRunWorkerStreamsRecords(t *testing.T) {
	t.Parallel()

	session := &listingSession{}
	var out bytes.Buffer
	err := runWorker(context.Background(), session.factory(), &out, 1, harvest.Categories("Travel", "Poetry"), zap.NewNop())
	require.NoError(t, err)
	require.True(t, session.closed)

	records := collect.New()
	n, err := collect.ReadStream(&out, records)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	titles := []string{}
	for _, r := range records.Snapshot() {
		titles = append(titles, r.String(harvest.FieldTitle))
	}
	require.Equal(t, []string{"Travel/one", "Travel/two", "Poetry/one"}, titles)
	require.Equal(t, harvest.Category("Poetry"), records.Snapshot()[2].Category())
}

func TestRunWorkerSessionFailure(t *testing.T) {
	t.Parallel()

	session := &listingSession{failOpen: true}
	err := runWorker(context.Background(), session.factory(), &bytes.Buffer{}, 0, harvest.Categories("Travel"), zap.NewNop())
	require.ErrorContains(t, err, "browser unavailable")
}

func TestOpenOutputStore(t *testing.T) {
	t.Parallel()

	store, closeStore, err := openOutputStore(context.Background(), config.Config{})
	require.NoError(t, err)
	defer closeStore()
	require.IsType(t, &memory.BlobStore{}, store)

	dir := t.TempDir()
	store, closeLocal, err := openOutputStore(context.Background(), config.Config{
		Output: config.OutputConfig{LocalDir: dir},
	})
	require.NoError(t, err)
	defer closeLocal()
	require.IsType(t, &local.BlobStore{}, store)
}

func TestWriteOutputWritesJSONArray(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := config.Config{Output: config.OutputConfig{Path: "books.json", LocalDir: dir}}
	records := collect.New()
	records.Append(harvest.Record{harvest.FieldTitle: "Sample Book", harvest.FieldCategory: "Travel"})

	require.NoError(t, writeOutput(context.Background(), cfg, records, zap.NewNop()))

	// #nosec G304 -- test reads from its own temp directory.
	data, err := os.ReadFile(filepath.Join(dir, "books.json"))
	require.NoError(t, err)
	require.JSONEq(t, `[{"title":"Sample Book","category":"Travel"}]`, string(data))
}

func TestOpenSinksNoneConfigured(t *testing.T) {
	t.Parallel()

	external, err := openSinks(context.Background(), config.Config{}, "run-1", zap.NewNop())
	require.NoError(t, err)
	defer external.Close()
	require.Empty(t, external.sinks)
}

func TestStatusServerDisabledOnPortZero(t *testing.T) {
	t.Parallel()

	s := startStatusServer(config.Config{}, api.Options{}, zap.NewNop(), func() {})
	require.Nil(t, s)
	s.Stop()
}

func TestCommandsRejectOtherSources(t *testing.T) {
	t.Parallel()

	err := runPipeline(context.Background(), config.Config{Harvest: config.HarvestConfig{Source: config.SourceBooks}}, zap.NewNop())
	require.ErrorContains(t, err, "pipeline harvests")

	err = runSupervise(context.Background(), config.Config{Harvest: config.HarvestConfig{Source: config.SourceVendr}}, "", zap.NewNop())
	require.ErrorContains(t, err, "supervise harvests")
}

func TestRunPipelineAgainstCatalog(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/categories/devops", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
<div class="vendor-card">
  <h2 class="vendor-title">Datadog</h2>
  <p class="vendor-description">Monitoring.</p>
  <a href="/marketplace/datadog">details</a>
</div>
<div class="vendor-card"><p>no name here</p></div>
</body></html>`))
	})
	mux.HandleFunc("/marketplace/datadog", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><span class="price-range">$10k - $20k</span></body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	cfg := config.Config{
		Harvest: config.HarvestConfig{Source: config.SourceVendr, Categories: []string{"DevOps", "Missing"}, BaseURL: srv.URL},
		Pipeline: config.PipelineConfig{
			Workers:              3,
			PullTimeout:          100 * time.Millisecond,
			ResultBuffer:         4,
			DiscoveryConcurrency: 2,
		},
		HTTP:   config.HTTPConfig{UserAgent: "harvester-test", TimeoutSeconds: 5},
		Output: config.OutputConfig{Path: "vendors.json", LocalDir: dir},
	}

	require.NoError(t, runPipeline(context.Background(), cfg, zap.NewNop()))

	// #nosec G304 -- test reads from its own temp directory.
	data, err := os.ReadFile(filepath.Join(dir, "vendors.json"))
	require.NoError(t, err)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out, 1)
	require.Equal(t, "Datadog", out[0][harvest.FieldName])
	require.Equal(t, "DevOps", out[0][harvest.FieldCategory])
	require.Equal(t, "$10k - $20k", out[0][harvest.FieldPriceRange])
	require.Equal(t, "Monitoring.", out[0][harvest.FieldDescription])
}

func TestPipelineFetcherLayers(t *testing.T) {
	t.Parallel()

	base := config.Config{HTTP: config.HTTPConfig{TimeoutSeconds: 5}}

	fetch, closeFetch, err := pipelineFetcher(base, zap.NewNop())
	require.NoError(t, err)
	closeFetch()
	require.IsType(t, &collyfetcher.Fetcher{}, fetch)

	paced := base
	paced.HTTP.RatePerSecond = 2
	fetch, closeFetch, err = pipelineFetcher(paced, zap.NewNop())
	require.NoError(t, err)
	closeFetch()
	require.IsType(t, &ratelimit.Fetcher{}, fetch)

	promoted := base
	promoted.Browser.Promote = true
	fetch, closeFetch, err = pipelineFetcher(promoted, zap.NewNop())
	require.NoError(t, err)
	closeFetch()
	require.IsType(t, &promote.Fetcher{}, fetch)
}
