package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relink/internal/domain"
)

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newStore(t *testing.T, users ...string) (*Store, *stepClock) {
	t.Helper()
	clock := &stepClock{t: time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)}
	s := New(clock.now)
	for _, id := range users {
		_, created, err := s.EnsureUser(context.Background(), domain.User{ID: id, Email: id + "@example.com"})
		require.NoError(t, err)
		require.True(t, created)
	}
	return s, clock
}

func TestCreatePostOnePerPeriod(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, "a")
	period := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	first, err := s.CreatePost(ctx, domain.Post{UserID: "a", Type: domain.PostTypeSingle, PeriodStart: period})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	require.False(t, first.CreatedAt.IsZero())

	_, err = s.CreatePost(ctx, domain.Post{UserID: "a", Type: domain.PostTypeSingle, PeriodStart: period})
	require.ErrorIs(t, err, domain.ErrAlreadyPosted)

	require.NoError(t, s.SoftDeletePost(ctx, first.ID))
	_, err = s.CreatePost(ctx, domain.Post{UserID: "a", Type: domain.PostTypeSingle, PeriodStart: period})
	require.NoError(t, err, "после мягкого удаления период снова свободен")

	deleted, err := s.GetPost(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, deleted.Deleted)
	assert.NotNil(t, deleted.DeletedAt)
}

func TestListFeedCursor(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, "a", "b", "c")
	var ids []string
	for i, author := range []string{"a", "b", "c", "a", "b"} {
		p, err := s.CreatePost(ctx, domain.Post{
			UserID:      author,
			PeriodStart: time.Date(2026, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	page, err := s.ListFeed(ctx, domain.FeedQuery{UserIDs: []string{"a", "b"}, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[4], page[0].ID)
	assert.Equal(t, ids[3], page[1].ID)

	last := page[1]
	next, err := s.ListFeed(ctx, domain.FeedQuery{
		UserIDs: []string{"a", "b"},
		After:   &domain.FeedCursor{CreatedAt: last.CreatedAt, ID: last.ID},
		Limit:   10,
	})
	require.NoError(t, err)
	require.Len(t, next, 2)
	assert.Equal(t, ids[1], next[0].ID)
	assert.Equal(t, ids[0], next[1].ID)
}

func TestConnectionLifecycleIsSymmetric(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, "a", "b")

	_, err := s.CreateRequest(ctx, "a", "b")
	require.NoError(t, err)
	_, err = s.CreateRequest(ctx, "b", "a")
	require.ErrorIs(t, err, domain.ErrRequestExists)

	a, _ := s.GetUser(ctx, "a")
	b, _ := s.GetUser(ctx, "b")
	assert.Equal(t, []string{"b"}, a.SentRequests)
	assert.Equal(t, []string{"a"}, b.PendingRequests)

	_, err = s.AcceptRequest(ctx, "a", "b")
	require.ErrorIs(t, err, domain.ErrRequestNotFound, "принять может только получатель")

	conn, err := s.AcceptRequest(ctx, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionAccepted, conn.Status)
	require.NotNil(t, conn.AcceptedAt)

	a, _ = s.GetUser(ctx, "a")
	b, _ = s.GetUser(ctx, "b")
	assert.Equal(t, []string{"b"}, a.Connections)
	assert.Equal(t, []string{"a"}, b.Connections)
	assert.Empty(t, a.SentRequests)
	assert.Empty(t, b.PendingRequests)

	_, err = s.CreateRequest(ctx, "a", "b")
	require.ErrorIs(t, err, domain.ErrAlreadyConnected)
}

func TestRejectRequestRemovesRecord(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, "a", "b")
	_, err := s.CreateRequest(ctx, "a", "b")
	require.NoError(t, err)

	require.NoError(t, s.RejectRequest(ctx, "b", "a"))
	_, found, err := s.FindBetween(ctx, "a", "b")
	require.NoError(t, err)
	assert.False(t, found)

	a, _ := s.GetUser(ctx, "a")
	b, _ := s.GetUser(ctx, "b")
	assert.Empty(t, a.SentRequests)
	assert.Empty(t, b.PendingRequests)
}

func TestDeleteUserCascades(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, "a", "b")
	_, err := s.CreateRequest(ctx, "a", "b")
	require.NoError(t, err)
	_, err = s.AcceptRequest(ctx, "b", "a")
	require.NoError(t, err)
	_, err = s.CreatePost(ctx, domain.Post{UserID: "a"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteUser(ctx, "a"))

	b, _ := s.GetUser(ctx, "b")
	assert.Empty(t, b.Connections)
	all, _ := s.ListAllPosts(ctx, 0)
	assert.Empty(t, all)
	_, err = s.GetUser(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestToggleLikeAndComments(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, "a")
	p, err := s.CreatePost(ctx, domain.Post{UserID: "a"})
	require.NoError(t, err)

	liked, err := s.ToggleLike(ctx, p.ID, "b")
	require.NoError(t, err)
	assert.True(t, liked)
	liked, err = s.ToggleLike(ctx, p.ID, "b")
	require.NoError(t, err)
	assert.False(t, liked)

	require.NoError(t, s.AppendComment(ctx, p.ID, domain.Comment{ID: "c1", Text: "hi", UserID: "b"}))
	require.ErrorIs(t, s.RemoveComment(ctx, p.ID, "missing"), domain.ErrCommentNotFound)
	require.NoError(t, s.RemoveComment(ctx, p.ID, "c1"))
	got, _ := s.GetPost(ctx, p.ID)
	assert.Empty(t, got.Comments)
}

func TestActivityNewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	for _, action := range []string{"one", "two", "three"} {
		require.NoError(t, s.RecordActivity(ctx, domain.Activity{UserID: "a", Action: action}))
	}
	require.NoError(t, s.RecordActivity(ctx, domain.Activity{UserID: "b", Action: "other"}))

	got, err := s.ListActivity(ctx, "a", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "three", got[0].Action)
	assert.Equal(t, "two", got[1].Action)

	require.NoError(t, s.DeleteUserActivity(ctx, "a"))
	got, _ = s.ListActivity(ctx, "a", 0)
	assert.Empty(t, got)
	other, _ := s.ListActivity(ctx, "b", 0)
	assert.Len(t, other, 1)
}
