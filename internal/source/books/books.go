// Package books harvests a paginated book catalog through a headless browser.
// It implements chunkrun.SessionFactory for the supervised model.
package books

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-harvester/internal/chunkrun"
	"github.com/JakeFAU/catalog-harvester/internal/fetcher"
	"github.com/JakeFAU/catalog-harvester/internal/fetcher/headless"
	"github.com/JakeFAU/catalog-harvester/internal/harvest"
)

// DefaultBaseURL is the catalog root.
const DefaultBaseURL = "https://books.toscrape.com"

// Record fields specific to this catalog.
const (
	FieldRating             = "rating"
	FieldStockAvailability  = "stock_availability"
	FieldImageURL           = "image_url"
	FieldProductInformation = "product_information"
)

// Page renders documents. A headless.Tab satisfies it.
type Page interface {
	Render(ctx context.Context, request fetcher.Request) (fetcher.Response, error)
	Close() error
}

// PageOpener opens a Page.
type PageOpener func(ctx context.Context) (Page, error)

// TabOpener opens pages as tabs of a headless browser.
func TabOpener(browser *headless.Fetcher) PageOpener {
	return func(ctx context.Context) (Page, error) {
		tab, err := browser.OpenTab(ctx)
		if err != nil {
			return nil, err
		}
		return tab, nil
	}
}

// SessionFactory opens browser-backed sessions.
type SessionFactory struct {
	open   PageOpener
	logger *zap.Logger
}

// NewSessionFactory creates a factory over open.
func NewSessionFactory(open PageOpener, logger *zap.Logger) *SessionFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionFactory{open: open, logger: logger}
}

// Open starts a session on a fresh page.
func (f *SessionFactory) Open(ctx context.Context) (chunkrun.Session, error) {
	page, err := f.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	return &Session{page: page, titles: map[harvest.Category]string{}, logger: f.logger}, nil
}

// Session walks category listings and book pages on a single page. Categories
// are listing URLs.
type Session struct {
	page   Page
	titles map[harvest.Category]string
	logger *zap.Logger
}

// Listing loads the first listing page of category, or pageRef when set.
func (s *Session) Listing(ctx context.Context, category harvest.Category, pageRef string) (chunkrun.Listing, error) {
	target := pageRef
	if target == "" {
		target = category.String()
	}
	doc, pageURL, err := s.load(ctx, target)
	if err != nil {
		return chunkrun.Listing{}, err
	}
	listing := parseListing(doc, pageURL)
	if listing.Title != "" {
		s.titles[category] = listing.Title
	}
	s.logger.Debug("listing loaded", zap.String("url", target), zap.String("title", listing.Title))
	return listing, nil
}

// Detail loads a book page. The record category is the listing heading.
func (s *Session) Detail(ctx context.Context, category harvest.Category, link string) (harvest.Record, error) {
	doc, pageURL, err := s.load(ctx, link)
	if err != nil {
		return nil, err
	}
	name := s.titles[category]
	if name == "" {
		name = category.String()
	}
	return parseBook(doc, pageURL, name)
}

// Close releases the page.
func (s *Session) Close() error {
	return s.page.Close()
}

func (s *Session) load(ctx context.Context, target string) (*goquery.Document, *url.URL, error) {
	resp, err := s.page.Render(ctx, fetcher.Request{URL: target})
	if err != nil {
		return nil, nil, fmt.Errorf("render %s: %w", target, err)
	}
	if !resp.OK() {
		return nil, nil, fmt.Errorf("render %s: status %d", target, resp.StatusCode)
	}
	pageURL, err := url.Parse(resp.URL)
	if err != nil || resp.URL == "" {
		pageURL, err = url.Parse(target)
		if err != nil {
			return nil, nil, fmt.Errorf("parse page url: %w", err)
		}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", target, err)
	}
	return doc, pageURL, nil
}

// DiscoverCategories lists the category URLs of the home page side navigation.
func DiscoverCategories(ctx context.Context, page Page, baseURL string) ([]harvest.Category, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	s := &Session{page: page}
	doc, pageURL, err := s.load(ctx, baseURL)
	if err != nil {
		return nil, fmt.Errorf("load home page: %w", err)
	}
	var out []harvest.Category
	doc.Find("div.side_categories ul li ul li a").Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok {
			if abs := resolve(pageURL, href); abs != "" {
				out = append(out, harvest.Category(abs))
			}
		}
	})
	return out, nil
}

func parseListing(doc *goquery.Document, pageURL *url.URL) chunkrun.Listing {
	listing := chunkrun.Listing{
		Title: strings.TrimSpace(doc.Find("div.page-header h1").First().Text()),
	}
	doc.Find("article.product_pod h3 a").Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok {
			if abs := resolve(pageURL, href); abs != "" {
				listing.Links = append(listing.Links, abs)
			}
		}
	})
	if href, ok := doc.Find("li.next a").First().Attr("href"); ok {
		listing.Next = resolve(pageURL, href)
	}
	return listing
}

func parseBook(doc *goquery.Document, pageURL *url.URL, category string) (harvest.Record, error) {
	product := doc.Find("div.product_main")
	title := strings.TrimSpace(product.Find("h1").First().Text())
	if title == "" {
		return nil, fmt.Errorf("book page %s has no title", pageURL)
	}

	rating := ""
	if class, ok := product.Find("p.star-rating").First().Attr("class"); ok {
		if fields := strings.Fields(class); len(fields) > 0 {
			rating = fields[len(fields)-1]
		}
	}

	image := ""
	if src, ok := doc.Find("div#product_gallery img").First().Attr("src"); ok {
		image = resolve(pageURL, src)
	}

	description := harvest.NotAvailable
	if doc.Find("#product_description").Length() > 0 {
		if text := strings.TrimSpace(doc.Find("#product_description ~ p").First().Text()); text != "" {
			description = text
		}
	}

	info := map[string]string{}
	doc.Find("table.table-striped tr").Each(func(_ int, row *goquery.Selection) {
		key := strings.TrimSpace(row.Find("th").First().Text())
		if key == "" {
			return
		}
		info[key] = strings.TrimSpace(row.Find("td").First().Text())
	})

	return harvest.Record{
		harvest.FieldTitle:       title,
		harvest.FieldCategory:    category,
		harvest.FieldPrice:       strings.TrimSpace(product.Find("p.price_color").First().Text()),
		FieldRating:              rating,
		FieldStockAvailability:   strings.Join(strings.Fields(product.Find("p.availability").First().Text()), " "),
		FieldImageURL:            image,
		harvest.FieldDescription: description,
		FieldProductInformation:  info,
	}, nil
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
