package httpapi

import (
	"net/http"

	chi "github.com/go-chi/chi/v5"

	"relink/internal/adapters/metadata"
	"relink/internal/domain"
	httpinfra "relink/internal/infra/http"
	"relink/internal/usecase/posting"
	"relink/internal/usecase/profile"
	"relink/internal/usecase/vault"
)

func (h *Handler) getPublicProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.profiles.GetPublicProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) getMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.profiles.GetProfile(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toProfileResponse(user))
}

func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request) {
	var req profile.Update
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	user, err := h.profiles.UpdateProfile(r.Context(), userID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toProfileResponse(user))
}

func (h *Handler) deleteMe(w http.ResponseWriter, r *http.Request) {
	if err := h.profiles.DeleteProfile(r.Context(), userID(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request) {
	items, err := h.profiles.GetActivity(r.Context(), userID(r), queryInt(r, "limit", domain.DefaultActivityLimit))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"activity": items})
}

func (h *Handler) listUserPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.posts.ListUserPosts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"posts": nonNilPosts(posts)})
}

func (h *Handler) listLinks(w http.ResponseWriter, r *http.Request) {
	links, err := h.vault.ListLinks(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"links": links})
}

func (h *Handler) saveLink(w http.ResponseWriter, r *http.Request) {
	var req vault.NewLink
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	link, err := h.vault.SaveLink(r.Context(), userID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, link)
}

func (h *Handler) quickSave(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	link, err := h.vault.QuickSave(r.Context(), userID(r), req.URL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, link)
}

func (h *Handler) importText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	links, err := h.vault.ImportText(r.Context(), userID(r), req.Text)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, map[string]any{"links": links})
}

func (h *Handler) updateLink(w http.ResponseWriter, r *http.Request) {
	var req vault.LinkUpdate
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	link, err := h.vault.UpdateLink(r.Context(), chi.URLParam(r, "id"), userID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, link)
}

func (h *Handler) deleteLink(w http.ResponseWriter, r *http.Request) {
	if err := h.vault.DeleteLink(r.Context(), chi.URLParam(r, "id"), userID(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) curate(w http.ResponseWriter, r *http.Request) {
	links, err := h.vault.CurateCandidates(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"links": links})
}

func (h *Handler) fetchMetadata(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	u, err := domain.NormalizeURL(req.URL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, metadata.FetchOrFallback(r.Context(), h.metadata, u, h.log))
}

func (h *Handler) periodStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.posts.PeriodStatus(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) createPost(w http.ResponseWriter, r *http.Request) {
	var req posting.NewPost
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	post, err := h.posts.CreatePost(r.Context(), userID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, post)
}

func (h *Handler) deletePost(w http.ResponseWriter, r *http.Request) {
	locked, err := h.posts.DeletePost(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]bool{"locked": locked})
}

func (h *Handler) toggleLike(w http.ResponseWriter, r *http.Request) {
	liked, err := h.posts.ToggleLike(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]bool{"liked": liked})
}

func (h *Handler) addComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	comment, err := h.posts.AddComment(r.Context(), chi.URLParam(r, "id"), userID(r), req.Text)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, comment)
}

func (h *Handler) deleteComment(w http.ResponseWriter, r *http.Request) {
	err := h.posts.DeleteComment(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "commentID"), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.feed.GetFeedPosts(r.Context(), userID(r), queryInt(r, "page", 1), q.Get("cursor"), splitIDs(q.Get("ids")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) listFriends(w http.ResponseWriter, r *http.Request) {
	friends, err := h.conns.ListFriends(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"friends": friends})
}

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request) {
	pending, err := h.conns.ListPendingRequests(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"requests": pending})
}

func (h *Handler) sendRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	conn, err := h.conns.SendRequest(r.Context(), userID(r), req.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, toConnectionResponse(conn))
}

func (h *Handler) acceptRequest(w http.ResponseWriter, r *http.Request) {
	conn, err := h.conns.Accept(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toConnectionResponse(conn))
}

func (h *Handler) rejectRequest(w http.ResponseWriter, r *http.Request) {
	if err := h.conns.Reject(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) friendshipStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.conns.FriendshipStatus(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (h *Handler) adminListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.posts.ListAllPosts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"posts": nonNilPosts(posts)})
}

func (h *Handler) adminDeletePost(w http.ResponseWriter, r *http.Request) {
	if err := h.posts.AdminDeletePost(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) adminResetPosts(w http.ResponseWriter, r *http.Request) {
	n, err := h.posts.ResetUserPosts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]int{"deleted": n})
}
