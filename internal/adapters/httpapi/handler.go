// Package httpapi публикует операции ReLink через HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"relink/internal/domain"
	httpinfra "relink/internal/infra/http"
	"relink/internal/usecase/connections"
	"relink/internal/usecase/feed"
	"relink/internal/usecase/posting"
	"relink/internal/usecase/profile"
	"relink/internal/usecase/vault"
)

const maxBodyBytes = 1 << 20

// Deps: сервисы, которые обслуживает API.
type Deps struct {
	Profiles    *profile.Service
	Posts       *posting.Service
	Feed        *feed.Service
	Connections *connections.Service
	Vault       *vault.Service
	Metadata    domain.MetadataFetcher
	AdminIDs    string
	Logger      zerolog.Logger
}

// Handler связывает маршруты с сервисами.
type Handler struct {
	profiles *profile.Service
	posts    *posting.Service
	feed     *feed.Service
	conns    *connections.Service
	vault    *vault.Service
	metadata domain.MetadataFetcher
	adminIDs string
	log      zerolog.Logger
}

// New создаёт обработчик.
func New(deps Deps) *Handler {
	return &Handler{
		profiles: deps.Profiles,
		posts:    deps.Posts,
		feed:     deps.Feed,
		conns:    deps.Connections,
		vault:    deps.Vault,
		metadata: deps.Metadata,
		adminIDs: deps.AdminIDs,
		log:      deps.Logger,
	}
}

// Mount регистрирует маршруты /api/v1.
func (h *Handler) Mount(r chi.Router, verifier *httpinfra.TokenVerifier) {
	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/users/{id}/public", h.getPublicProfile)

		api.Group(func(protected chi.Router) {
			protected.Use(httpinfra.AuthMiddleware(verifier))
			protected.Use(h.ensureProfile)

			protected.Get("/me", h.getMe)
			protected.Patch("/me", h.updateMe)
			protected.Delete("/me", h.deleteMe)
			protected.Get("/me/activity", h.getActivity)
			protected.Get("/users/{id}/posts", h.listUserPosts)

			protected.Get("/vault/links", h.listLinks)
			protected.Post("/vault/links", h.saveLink)
			protected.Post("/vault/quick", h.quickSave)
			protected.Post("/vault/import", h.importText)
			protected.Patch("/vault/links/{id}", h.updateLink)
			protected.Delete("/vault/links/{id}", h.deleteLink)
			protected.Get("/vault/curate", h.curate)
			protected.Post("/metadata", h.fetchMetadata)

			protected.Get("/posts/status", h.periodStatus)
			protected.Post("/posts", h.createPost)
			protected.Delete("/posts/{id}", h.deletePost)
			protected.Post("/posts/{id}/like", h.toggleLike)
			protected.Post("/posts/{id}/comments", h.addComment)
			protected.Delete("/posts/{id}/comments/{commentID}", h.deleteComment)
			protected.Get("/feed", h.getFeed)

			protected.Get("/friends", h.listFriends)
			protected.Get("/friends/requests", h.listRequests)
			protected.Post("/friends/requests", h.sendRequest)
			protected.Post("/friends/requests/{id}/accept", h.acceptRequest)
			protected.Post("/friends/requests/{id}/reject", h.rejectRequest)
			protected.Get("/friends/{id}/status", h.friendshipStatus)

			protected.Route("/admin", func(admin chi.Router) {
				admin.Use(RequireAdmin(h.adminIDs))
				admin.Get("/posts", h.adminListPosts)
				admin.Delete("/posts/{id}", h.adminDeletePost)
				admin.Post("/users/{id}/reset-posts", h.adminResetPosts)
			})
		})
	})
}

// RequireAdmin пропускает только пользователей из списка администраторов.
func RequireAdmin(adminIDs string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := httpinfra.IdentityFrom(r.Context())
			if !ok || !domain.RoleFor(id.UserID, adminIDs).IsAdmin() {
				httpinfra.WriteJSON(w, http.StatusForbidden, httpinfra.ErrorResponse{Error: domain.ErrForbidden.Error()})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *Handler) ensureProfile(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := httpinfra.IdentityFrom(r.Context())
		if _, err := h.profiles.EnsureProfile(r.Context(), profile.Identity{UserID: id.UserID, Email: id.Email, Name: id.Name}); err != nil {
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userID(r *http.Request) string {
	id, _ := httpinfra.IdentityFrom(r.Context())
	return id.UserID
}

func decode(r *http.Request, dst any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return errBadRequest
	}
	return nil
}

var errBadRequest = errors.New("invalid request body")

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errBadRequest) {
		httpinfra.WriteJSON(w, http.StatusBadRequest, httpinfra.ErrorResponse{Error: err.Error()})
		return
	}
	status := StatusFor(err)
	msg := rootMessage(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("request_id", httpinfra.RequestID(r)).Str("path", r.URL.Path).Msg("api: ошибка обработки запроса")
		msg = "internal error"
	}
	httpinfra.WriteJSON(w, status, httpinfra.ErrorResponse{Error: msg})
}

// StatusFor переводит класс доменной ошибки в HTTP-статус.
func StatusFor(err error) int {
	switch domain.ErrorKind(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuthorization:
		if errors.Is(err, domain.ErrUnauthorized) {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// rootMessage отдаёт текст доменной ошибки без шагов обёртки.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func splitIDs(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
