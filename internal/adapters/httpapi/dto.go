package httpapi

import (
	"time"

	"relink/internal/domain"
)

type profileResponse struct {
	ID              string                `json:"id"`
	Email           string                `json:"email"`
	DisplayName     string                `json:"displayName"`
	PhotoURL        string                `json:"photoURL"`
	Bio             string                `json:"bio"`
	Connections     []string              `json:"connections"`
	PendingRequests []string              `json:"pendingRequests"`
	SentRequests    []string              `json:"sentRequests"`
	CurrentPost     *domain.PeriodPointer `json:"currentPost,omitempty"`
	CreatedAt       time.Time             `json:"createdAt"`
}

func toProfileResponse(u domain.User) profileResponse {
	return profileResponse{
		ID:              u.ID,
		Email:           u.Email,
		DisplayName:     u.DisplayName,
		PhotoURL:        u.PhotoURL,
		Bio:             u.Bio,
		Connections:     nonNil(u.Connections),
		PendingRequests: nonNil(u.PendingRequests),
		SentRequests:    nonNil(u.SentRequests),
		CurrentPost:     u.CurrentPost,
		CreatedAt:       u.CreatedAt,
	}
}

type connectionResponse struct {
	ID         string     `json:"id"`
	SenderID   string     `json:"senderId"`
	ReceiverID string     `json:"receiverId"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	AcceptedAt *time.Time `json:"acceptedAt,omitempty"`
}

func toConnectionResponse(c domain.Connection) connectionResponse {
	return connectionResponse{
		ID:         c.ID,
		SenderID:   c.SenderID,
		ReceiverID: c.ReceiverID,
		Status:     string(c.Status),
		CreatedAt:  c.CreatedAt,
		AcceptedAt: c.AcceptedAt,
	}
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func nonNilPosts(in []domain.Post) []domain.Post {
	if in == nil {
		return []domain.Post{}
	}
	return in
}
