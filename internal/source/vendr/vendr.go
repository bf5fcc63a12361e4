// Package vendr harvests software vendor listings from static HTML category
// pages. It implements harvest.Discoverer and harvest.Transformer for the
// pipeline model.
package vendr

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-harvester/internal/fetcher"
	"github.com/JakeFAU/catalog-harvester/internal/harvest"
)

// DefaultBaseURL is the catalog root.
const DefaultBaseURL = "https://www.vendr.com"

// DefaultCategories are harvested when none are configured.
var DefaultCategories = []string{"DevOps", "IT Infrastructure", "Data Analytics and Management"}

const (
	blockSelector = "div[class*='vendor-card'], div[class*='vendor-item'], div[class*='product-card'], " +
		"li[class*='vendor-card'], li[class*='vendor-item'], li[class*='product-card']"
	nameSelector = "h2[class*='vendor-title'], h2[class*='title'], a[class*='vendor-name'], " +
		"a[class*='title'], span[class*='title'], h2"
	linkSelector        = "a[href*='/marketplace/'], a[href*='/vendor/']"
	descriptionSelector = "p[class*='description'], div[class*='description']"
	priceSelector       = "span[class*='price-range'], span[class*='price'], p[class*='price']"
)

// Source discovers product blocks per category and turns them into records.
type Source struct {
	fetch  fetcher.Fetcher
	base   *url.URL
	logger *zap.Logger
}

// New creates a Source rooted at baseURL, DefaultBaseURL when empty.
func New(fetch fetcher.Fetcher, baseURL string, logger *zap.Logger) (*Source, error) {
	if fetch == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{fetch: fetch, base: base, logger: logger}, nil
}

// CategoryURL returns the listing URL of category.
func (s *Source) CategoryURL(category harvest.Category) string {
	slug := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(category.String())), " ", "-")
	return s.base.JoinPath("categories", slug).String()
}

// Discover fetches the category listing and returns one item per product
// block. A non-2xx listing is an error.
func (s *Source) Discover(ctx context.Context, category harvest.Category) ([]harvest.WorkItem, error) {
	target := s.CategoryURL(category)
	s.logger.Info("fetching category", zap.String("url", target))
	resp, err := s.fetch.Fetch(ctx, fetcher.Request{URL: target})
	if err != nil {
		return nil, fmt.Errorf("fetch category %s: %w", category, err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("fetch category %s: status %d", category, resp.StatusCode)
	}
	items, err := s.parseListing(category, resp.Body)
	if err != nil {
		return nil, err
	}
	s.logger.Info("category discovered", zap.Stringer("category", category), zap.Int("items", len(items)))
	return items, nil
}

// Transform builds a record from a product block, consulting the detail page
// for the price range and a missing description.
func (s *Source) Transform(ctx context.Context, item harvest.WorkItem) (harvest.Record, error) {
	frag, err := parseFragment(item.Payload)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With(zap.Stringer("category", item.Category))
	if frag.name == "" {
		logger.Warn("product without name skipped")
		return nil, nil
	}

	if item.Ref == "" {
		logger.Warn("product without detail link skipped", zap.String("name", frag.name))
		return nil, nil
	}
	record := harvest.Record{
		harvest.FieldName:        frag.name,
		harvest.FieldCategory:    item.Category.String(),
		harvest.FieldPriceRange:  harvest.NotAvailable,
		harvest.FieldDescription: orNA(frag.description),
	}

	resp, err := s.fetch.Fetch(ctx, fetcher.Request{URL: item.Ref})
	if err != nil {
		return nil, fmt.Errorf("fetch detail %s: %w", item.Ref, err)
	}
	if !resp.OK() {
		logger.Warn("detail page unavailable", zap.String("url", item.Ref), zap.Int("status", resp.StatusCode))
		return nil, nil
	}
	detail, err := parseFragment(resp.Body)
	if err != nil {
		return nil, err
	}
	if detail.price != "" {
		record[harvest.FieldPriceRange] = detail.price
	}
	if frag.description == "" && detail.description != "" {
		record[harvest.FieldDescription] = detail.description
	}
	logger.Debug("parsed product", zap.String("name", frag.name))
	return record, nil
}

func (s *Source) parseListing(category harvest.Category, body []byte) ([]harvest.WorkItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse category %s: %w", category, err)
	}
	var items []harvest.WorkItem
	doc.Find(blockSelector).Each(func(_ int, block *goquery.Selection) {
		html, err := goquery.OuterHtml(block)
		if err != nil {
			return
		}
		item := harvest.WorkItem{Category: category, Payload: []byte(html)}
		if href, ok := block.Find(linkSelector).First().Attr("href"); ok {
			item.Ref = s.resolve(href)
		}
		items = append(items, item)
	})
	return items, nil
}

func (s *Source) resolve(href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return s.base.ResolveReference(ref).String()
}

type fragment struct {
	name        string
	description string
	price       string
}

func parseFragment(payload []byte) (fragment, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return fragment{}, fmt.Errorf("parse product: %w", err)
	}
	return fragment{
		name:        firstText(doc.Selection, nameSelector),
		description: firstText(doc.Selection, descriptionSelector),
		price:       firstText(doc.Selection, priceSelector),
	}, nil
}

func firstText(sel *goquery.Selection, selector string) string {
	var out string
	sel.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		out = strings.TrimSpace(s.Text())
		return out == ""
	})
	return out
}

func orNA(v string) string {
	if v == "" {
		return harvest.NotAvailable
	}
	return v
}
