package books

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-harvester/internal/chunkrun"
	"github.com/JakeFAU/catalog-harvester/internal/collect"
	"github.com/JakeFAU/catalog-harvester/internal/fetcher"
	"github.com/JakeFAU/catalog-harvester/internal/harvest"
)

const (
	homeURL    = "https://books.toscrape.com/index.html"
	travelURL  = "https://books.toscrape.com/catalogue/category/books/travel_2/index.html"
	travelPage = "https://books.toscrape.com/catalogue/category/books/travel_2/page-2.html"
	bookURL    = "https://books.toscrape.com/catalogue/sample-book_1/index.html"
	secondURL  = "https://books.toscrape.com/catalogue/second-book_2/index.html"
)

const homeHTML = `<html><body><div class="side_categories"><ul><li>
<a href="catalogue/category/books_1/index.html">Books</a>
<ul>
  <li><a href="catalogue/category/books/travel_2/index.html">Travel</a></li>
  <li><a href="catalogue/category/books/mystery_3/index.html">Mystery</a></li>
</ul></li></ul></div></body></html>`

const listingHTML = `<html><body>
<div class="page-header action"><h1>Travel</h1></div>
<article class="product_pod"><h3><a href="../../../sample-book_1/index.html">Sample Book</a></h3></article>
<ul class="pager"><li class="next"><a href="page-2.html">next</a></li></ul>
</body></html>`

const listingPage2HTML = `<html><body>
<div class="page-header action"><h1>Travel</h1></div>
<article class="product_pod"><h3><a href="../../../second-book_2/index.html">Second</a></h3></article>
<article class="product_pod"><h3><a href="../../../missing_9/index.html">Missing</a></h3></article>
</body></html>`

const bookHTML = `<html><body>
<div id="product_gallery"><img src="../../sample.jpg"></div>
<div class="product_main">
  <h1>Sample Book</h1>
  <p class="price_color">£19.99</p>
  <p class="instock availability">
     <i class="icon-ok"></i>
     In stock
  </p>
  <p class="star-rating Five"></p>
</div>
<div id="product_description" class="sub-header"><h2>Product Description</h2></div>
<p>A sample description.</p>
<table class="table table-striped">
  <tr><th>UPC</th><td>12345</td></tr>
</table>
</body></html>`

const secondHTML = `<html><body>
<div class="product_main"><h1>Second</h1><p class="price_color">£5.00</p><p class="star-rating One"></p></div>
</body></html>`

type fakePage struct {
	pages  map[string]string
	closed bool
}

func (p *fakePage) Render(_ context.Context, req fetcher.Request) (fetcher.Response, error) {
	body, ok := p.pages[req.URL]
	if !ok {
		return fetcher.Response{URL: req.URL, StatusCode: http.StatusNotFound}, nil
	}
	return fetcher.Response{URL: req.URL, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

func newFakePage() *fakePage {
	return &fakePage{pages: map[string]string{
		homeURL:    homeHTML,
		travelURL:  listingHTML,
		travelPage: listingPage2HTML,
		bookURL:    bookHTML,
		secondURL:  secondHTML,
	}}
}

func TestDiscoverCategories(t *testing.T) {
	t.Parallel()

	cats, err := DiscoverCategories(context.Background(), newFakePage(), homeURL)
	require.NoError(t, err)
	require.Equal(t, harvest.Categories(
		travelURL,
		"https://books.toscrape.com/catalogue/category/books/mystery_3/index.html",
	), cats)
}

func TestDiscoverCategoriesFailure(t *testing.T) {
	t.Parallel()

	_, err := DiscoverCategories(context.Background(), &fakePage{}, homeURL)
	require.ErrorContains(t, err, "status 404")
}

func TestSessionListing(t *testing.T) {
	t.Parallel()

	session, err := NewSessionFactory(func(context.Context) (Page, error) { return newFakePage(), nil }, nil).
		Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	listing, err := session.Listing(context.Background(), travelURL, "")
	require.NoError(t, err)
	require.Equal(t, "Travel", listing.Title)
	require.Equal(t, []string{bookURL}, listing.Links)
	require.Equal(t, travelPage, listing.Next)
}

func TestSessionDetailExtractsBook(t *testing.T) {
	t.Parallel()

	session, err := NewSessionFactory(func(context.Context) (Page, error) { return newFakePage(), nil }, nil).
		Open(context.Background())
	require.NoError(t, err)

	_, err = session.Listing(context.Background(), travelURL, "")
	require.NoError(t, err)
	record, err := session.Detail(context.Background(), travelURL, bookURL)
	require.NoError(t, err)
	require.Equal(t, harvest.Record{
		"title":               "Sample Book",
		"category":            "Travel",
		"price":               "£19.99",
		"rating":              "Five",
		"stock_availability":  "In stock",
		"image_url":           "https://books.toscrape.com/sample.jpg",
		"description":         "A sample description.",
		"product_information": map[string]string{"UPC": "12345"},
	}, record)
}

func TestSessionDetailDefaults(t *testing.T) {
	t.Parallel()

	session, err := NewSessionFactory(func(context.Context) (Page, error) { return newFakePage(), nil }, nil).
		Open(context.Background())
	require.NoError(t, err)

	record, err := session.Detail(context.Background(), "Unvisited", secondURL)
	require.NoError(t, err)
	require.Equal(t, harvest.Category("Unvisited"), record.Category())
	require.Equal(t, harvest.NotAvailable, record.String(harvest.FieldDescription))
	require.Equal(t, "One", record.String(FieldRating))

	_, err = session.Detail(context.Background(), travelURL, "https://books.toscrape.com/catalogue/missing_9/index.html")
	require.Error(t, err)
}

func TestOpenFailure(t *testing.T) {
	t.Parallel()

	_, err := NewSessionFactory(func(context.Context) (Page, error) { return nil, errors.New("no browser") }, nil).
		Open(context.Background())
	require.ErrorContains(t, err, "open page: no browser")
}

func TestChunkRunOverBrowserSession(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	factory := NewSessionFactory(func(context.Context) (Page, error) { return page, nil }, zap.NewNop())
	records := collect.New()
	stats, err := chunkrun.New(factory, records, chunkrun.Config{}, zap.NewNop()).
		RunChunk(context.Background(), 0, harvest.Categories(travelURL))
	require.NoError(t, err)
	require.True(t, page.closed)
	require.Equal(t, 2, stats.Pages)
	require.Equal(t, 2, stats.Records)
	require.Equal(t, 1, stats.Skipped)

	for _, rec := range records.Snapshot() {
		require.Equal(t, harvest.Category("Travel"), rec.Category())
	}
}
