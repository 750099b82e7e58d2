package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relink/internal/domain"
)

func TestLinkPreviewSendsKeyAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get("X-Linkpreview-Api-Key"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://example.com/post", body["q"])
		_ = json.NewEncoder(w).Encode(map[string]string{
			"title":       "Example post",
			"description": "About things",
			"image":       "https://example.com/img.png",
			"url":         "https://example.com/post",
		})
	}))
	defer srv.Close()

	meta, err := NewLinkPreview("secret", srv.URL, time.Second).Fetch(context.Background(), "https://example.com/post")
	require.NoError(t, err)
	assert.Equal(t, "Example post", meta.Title)
	assert.Equal(t, "About things", meta.Description)
	assert.Equal(t, "https://example.com/img.png", meta.Image)
}

func TestLinkPreviewErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewLinkPreview("secret", srv.URL, time.Second).Fetch(context.Background(), "https://example.com")
	var fetchErr *domain.MetadataFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "https://example.com", fetchErr.URL)
}

func TestScraperReadsOpenGraph(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head>
<title>Fallback title</title>
<meta property="og:title" content=" OG title ">
<meta name="description" content="Plain description">
<meta property="og:image" content="/cover.jpg">
</head><body></body></html>`))
	}))
	defer srv.Close()

	meta, err := newScraper(time.Second, http.DefaultTransport).Fetch(context.Background(), srv.URL+"/article")
	require.NoError(t, err)
	assert.Equal(t, "OG title", meta.Title)
	assert.Equal(t, "Plain description", meta.Description)
	assert.Equal(t, srv.URL+"/cover.jpg", meta.Image)
}

func TestScraperFallsBackToTitleTag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Only title</title></head></html>`))
	}))
	defer srv.Close()

	meta, err := newScraper(time.Second, http.DefaultTransport).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Only title", meta.Title)
}

type stubFetcher struct {
	meta domain.LinkMetadata
	err  error
	hits int
}

func (s *stubFetcher) Fetch(context.Context, string) (domain.LinkMetadata, error) {
	s.hits++
	return s.meta, s.err
}

func TestChainTriesNextSource(t *testing.T) {
	failing := &stubFetcher{err: errors.New("down")}
	working := &stubFetcher{meta: domain.LinkMetadata{Title: "ok"}}

	meta, err := NewChain(failing, nil, working).Fetch(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "ok", meta.Title)
	assert.Equal(t, 1, failing.hits)
	assert.Equal(t, 1, working.hits)
}

func TestFetchOrFallbackUsesHostname(t *testing.T) {
	failing := &stubFetcher{err: errors.New("down")}
	meta := FetchOrFallback(context.Background(), NewChain(failing), "https://news.example.org/a/b", zerolog.Nop())
	assert.Equal(t, "news.example.org", meta.Title)
	assert.Equal(t, "https://news.example.org/a/b", meta.URL)

	meta = FetchOrFallback(context.Background(), nil, "https://example.com/x", zerolog.Nop())
	assert.Equal(t, "example.com", meta.Title)

	_, err := NewChain().Fetch(context.Background(), "https://example.com")
	var fetchErr *domain.MetadataFetchError
	assert.ErrorAs(t, err, &fetchErr)
}

func TestScraperRefusesInternalAddresses(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte(`<html><head><title>secret</title></head></html>`))
	}))
	defer srv.Close()

	_, err := NewScraper(time.Second).Fetch(context.Background(), srv.URL)
	var fetchErr *domain.MetadataFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.ErrorIs(t, err, ErrInternalAddress)
	assert.Zero(t, hits)
}

func TestIsPublic(t *testing.T) {
	cases := map[string]bool{
		"93.184.216.34":    true,
		"2606:4700::1111":  true,
		"127.0.0.1":        false,
		"10.1.2.3":         false,
		"172.16.0.1":       false,
		"192.168.1.1":      false,
		"169.254.169.254":  false,
		"100.64.0.1":       false,
		"0.0.0.0":          false,
		"::1":              false,
		"fd00::1":          false,
		"fe80::1":          false,
		"::ffff:127.0.0.1": false,
	}
	for raw, want := range cases {
		assert.Equal(t, want, isPublic(netip.MustParseAddr(raw)), raw)
	}
}
