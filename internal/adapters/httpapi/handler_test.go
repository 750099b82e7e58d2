package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relink/internal/adapters/memstore"
	"relink/internal/domain"
	"relink/internal/infra/cache"
	httpinfra "relink/internal/infra/http"
	"relink/internal/usecase/connections"
	"relink/internal/usecase/feed"
	"relink/internal/usecase/posting"
	"relink/internal/usecase/profile"
	"relink/internal/usecase/vault"
)

const testSecret = "test-secret"

type apiFixture struct {
	router http.Handler
	store  *memstore.Store
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	logger := zerolog.Nop()
	store := memstore.New(nil)
	calendar := domain.NewPeriodCalendar(domain.PeriodMonth, time.UTC)
	memCache := cache.NewMemory(64, time.Now)
	invalidator := feed.NewInvalidator(memCache, logger)
	gate := posting.NewGate(store, store, calendar, time.Now, logger)

	h := New(Deps{
		Profiles:    profile.NewService(store, store, invalidator, time.Now, logger),
		Posts:       posting.NewService(store, store, gate, invalidator, nil, logger),
		Feed:        feed.NewService(store, store, gate, memCache, time.Minute, 10, logger),
		Connections: connections.NewService(store, store, nil, time.Now, logger),
		Vault:       vault.NewService(store, nil, gate, nil, time.Now, logger),
		AdminIDs:    "admin",
		Logger:      logger,
	})
	r := chi.NewRouter()
	h.Mount(r, httpinfra.NewTokenVerifier(testSecret, ""))
	return &apiFixture{router: r, store: store}
}

func (f *apiFixture) do(t *testing.T, user, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		token, err := httpinfra.IssueToken(testSecret, "", httpinfra.Identity{UserID: user, Email: user + "@example.com"}, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func monthlyBody() map[string]any {
	links := make([]map[string]string, domain.MonthlyLinkCount)
	for i := range links {
		links[i] = map[string]string{"url": fmt.Sprintf("https://example.com/%d", i)}
	}
	return map[string]any{"type": "monthly", "monthlyLinks": links}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	f := newAPI(t)
	rec := f.do(t, "", http.MethodGet, "/api/v1/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPostLifecycleOverHTTP(t *testing.T) {
	f := newAPI(t)

	rec := f.do(t, "a", http.MethodGet, "/api/v1/posts/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status posting.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Posted)

	bad := monthlyBody()
	bad["monthlyLinks"] = bad["monthlyLinks"].([]map[string]string)[:3]
	rec = f.do(t, "a", http.MethodPost, "/api/v1/posts", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, "a", http.MethodPost, "/api/v1/posts", monthlyBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var post domain.Post
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &post))

	rec = f.do(t, "a", http.MethodPost, "/api/v1/posts", monthlyBody())
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, "b", http.MethodDelete, "/api/v1/posts/"+post.ID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, "a", http.MethodDelete, "/api/v1/posts/"+post.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var deleted map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &deleted))
	assert.True(t, deleted["locked"])

	rec = f.do(t, "a", http.MethodDelete, "/api/v1/posts/"+post.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFeedOverHTTP(t *testing.T) {
	f := newAPI(t)
	require.Equal(t, http.StatusCreated, f.do(t, "b", http.MethodPost, "/api/v1/posts", monthlyBody()).Code)
	require.Equal(t, http.StatusCreated, f.do(t, "a", http.MethodPost, "/api/v1/friends/requests", map[string]string{"userId": "b"}).Code)
	require.Equal(t, http.StatusOK, f.do(t, "b", http.MethodPost, "/api/v1/friends/requests/a/accept", nil).Code)

	rec := f.do(t, "a", http.MethodGet, "/api/v1/feed?page=1&ids=a,b", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page domain.FeedPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.True(t, page.Locked)
	assert.Empty(t, page.Posts)

	require.Equal(t, http.StatusCreated, f.do(t, "a", http.MethodPost, "/api/v1/posts", monthlyBody()).Code)
	rec = f.do(t, "a", http.MethodGet, "/api/v1/feed?page=1&ids=a,b", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.False(t, page.Locked)
	require.Len(t, page.Posts, 2)
	assert.Equal(t, "a", page.Posts[0].UserID)

	rec = f.do(t, "a", http.MethodGet, "/api/v1/feed?page=2", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, "a", http.MethodGet, "/api/v1/feed?page=1&cursor=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, "a", http.MethodGet, "/api/v1/friends/b/status", nil)
	assert.JSONEq(t, `{"status":"friends"}`, rec.Body.String())
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	f := newAPI(t)
	rec := f.do(t, "a", http.MethodGet, "/api/v1/admin/posts", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	require.Equal(t, http.StatusCreated, f.do(t, "a", http.MethodPost, "/api/v1/posts", monthlyBody()).Code)
	rec = f.do(t, "admin", http.MethodPost, "/api/v1/admin/users/a/reset-posts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":1}`, rec.Body.String())
}

func TestPublicProfileWithoutAuth(t *testing.T) {
	f := newAPI(t)
	require.Equal(t, http.StatusOK, f.do(t, "a", http.MethodGet, "/api/v1/me", nil).Code)

	rec := f.do(t, "", http.MethodGet, "/api/v1/users/a/public", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "a@example.com")

	rec = f.do(t, "", http.MethodGet, "/api/v1/users/ghost/public", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVaultOverHTTP(t *testing.T) {
	f := newAPI(t)
	rec := f.do(t, "a", http.MethodPost, "/api/v1/vault/links", map[string]string{"url": "https://go.dev/doc"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var link domain.VaultLink
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &link))
	assert.Equal(t, "go.dev", link.Title)

	rec = f.do(t, "b", http.MethodDelete, "/api/v1/vault/links/"+link.ID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, "a", http.MethodPost, "/api/v1/vault/links", map[string]string{"url": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetadataFallsBackToHostname(t *testing.T) {
	f := newAPI(t)
	rec := f.do(t, "a", http.MethodPost, "/api/v1/metadata", map[string]string{"url": "https://news.example.org/a"})
	require.Equal(t, http.StatusOK, rec.Code)
	var meta domain.LinkMetadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, "news.example.org", meta.Title)
	assert.Equal(t, "https://news.example.org/a", meta.URL)

	rec = f.do(t, "a", http.MethodPost, "/api/v1/metadata", map[string]string{"url": "ftp://example.org"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		domain.ErrInvalidURL:                          http.StatusBadRequest,
		domain.ErrUnauthorized:                        http.StatusUnauthorized,
		domain.ErrForbidden:                           http.StatusForbidden,
		fmt.Errorf("шаг: %w", domain.ErrPostNotFound): http.StatusNotFound,
		domain.ErrAlreadyPosted:                       http.StatusConflict,
		errors.New("db down"):                         http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, StatusFor(err), err.Error())
	}
}
