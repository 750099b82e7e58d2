package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"relink/internal/domain"
	"relink/internal/infra/metrics"
)

const defaultLinkPreviewURL = "https://api.linkpreview.net"

// LinkPreview получает превью через LinkPreview API.
type LinkPreview struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

var _ domain.MetadataFetcher = (*LinkPreview)(nil)

// NewLinkPreview создаёт клиента LinkPreview.
func NewLinkPreview(apiKey, baseURL string, timeout time.Duration) *LinkPreview {
	if baseURL == "" {
		baseURL = defaultLinkPreviewURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LinkPreview{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

type linkPreviewRequest struct {
	Q string `json:"q"`
}

type linkPreviewResponse struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
	URL         string `json:"url"`
}

// Fetch реализует domain.MetadataFetcher.
func (c *LinkPreview) Fetch(ctx context.Context, rawURL string) (domain.LinkMetadata, error) {
	if c.apiKey == "" {
		return domain.LinkMetadata{}, &domain.MetadataFetchError{URL: rawURL, Err: fmt.Errorf("linkpreview: api key is empty")}
	}
	body, err := json.Marshal(linkPreviewRequest{Q: rawURL})
	if err != nil {
		return domain.LinkMetadata{}, &domain.MetadataFetchError{URL: rawURL, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return domain.LinkMetadata{}, &domain.MetadataFetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Linkpreview-Api-Key", c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("linkpreview", "preview", "api", start, err)
		return domain.LinkMetadata{}, &domain.MetadataFetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("linkpreview: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		metrics.ObserveNetworkRequest("linkpreview", "preview", "api", start, err)
		return domain.LinkMetadata{}, &domain.MetadataFetchError{URL: rawURL, Err: err}
	}
	var out linkPreviewResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.ObserveNetworkRequest("linkpreview", "preview", "api", start, err)
		return domain.LinkMetadata{}, &domain.MetadataFetchError{URL: rawURL, Err: fmt.Errorf("decode response: %w", err)}
	}
	metrics.ObserveNetworkRequest("linkpreview", "preview", "api", start, nil)

	meta := domain.LinkMetadata{
		Title:       strings.TrimSpace(out.Title),
		Description: strings.TrimSpace(out.Description),
		Image:       strings.TrimSpace(out.Image),
		URL:         rawURL,
	}
	if meta.Title == "" {
		meta.Title = rawURL
	}
	return meta, nil
}
