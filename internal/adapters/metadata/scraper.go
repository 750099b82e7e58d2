package metadata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"relink/internal/domain"
	"relink/internal/infra/metrics"
)

const (
	userAgent       = "Mozilla/5.0 (compatible; ReLinkBot/1.0)"
	maxDocumentSize = 2 << 20
)

// Scraper читает превью из HTML-страницы: Open Graph, затем <title> и meta description.
type Scraper struct {
	http *http.Client
}

var _ domain.MetadataFetcher = (*Scraper)(nil)

// NewScraper создаёт скрейпер. Адреса внутренних сетей не запрашиваются.
func NewScraper(timeout time.Duration) *Scraper {
	return newScraper(timeout, publicTransport())
}

func newScraper(timeout time.Duration, transport http.RoundTripper) *Scraper {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Scraper{http: &http.Client{Timeout: timeout, Transport: transport}}
}

// Fetch реализует domain.MetadataFetcher.
func (s *Scraper) Fetch(ctx context.Context, rawURL string) (domain.LinkMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return domain.LinkMetadata{}, &domain.MetadataFetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	start := time.Now()
	resp, err := s.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("scraper", "get", domain.Hostname(rawURL), start, err)
		return domain.LinkMetadata{}, &domain.MetadataFetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %d", resp.StatusCode)
		metrics.ObserveNetworkRequest("scraper", "get", domain.Hostname(rawURL), start, err)
		return domain.LinkMetadata{}, &domain.MetadataFetchError{URL: rawURL, Err: err}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxDocumentSize))
	metrics.ObserveNetworkRequest("scraper", "get", domain.Hostname(rawURL), start, err)
	if err != nil {
		return domain.LinkMetadata{}, &domain.MetadataFetchError{URL: rawURL, Err: fmt.Errorf("parse html: %w", err)}
	}

	meta := domain.LinkMetadata{URL: rawURL}
	meta.Title = firstNonEmpty(
		metaContent(doc, "meta[property='og:title']"),
		metaContent(doc, "meta[name='twitter:title']"),
		strings.TrimSpace(doc.Find("head > title").First().Text()),
	)
	meta.Description = firstNonEmpty(
		metaContent(doc, "meta[property='og:description']"),
		metaContent(doc, "meta[name='description']"),
	)
	meta.Image = resolve(resp.Request.URL, firstNonEmpty(
		metaContent(doc, "meta[property='og:image']"),
		metaContent(doc, "meta[name='twitter:image']"),
	))
	if meta.Title == "" {
		return domain.LinkMetadata{}, &domain.MetadataFetchError{URL: rawURL, Err: fmt.Errorf("page has no title")}
	}
	return meta, nil
}

func metaContent(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().AttrOr("content", ""))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// resolve делает относительный адрес картинки абсолютным.
func resolve(base *url.URL, ref string) string {
	if ref == "" || base == nil {
		return ref
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}
