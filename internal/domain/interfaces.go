package domain

import (
	"context"
	"time"
)

// Clock возвращает текущее время. Подменяется в тестах.
type Clock func() time.Time

// ProfileUpdate содержит изменяемые поля профиля; nil означает «не менять».
type ProfileUpdate struct {
	Email       *string
	DisplayName *string
	PhotoURL    *string
	Bio         *string
}

// UserConnections: три списка связей, хранящиеся в профиле.
type UserConnections struct {
	Connections     []string
	PendingRequests []string
	SentRequests    []string
}

// UserRepo управляет профилями.
type UserRepo interface {
	GetUser(ctx context.Context, id string) (User, error)
	GetUsers(ctx context.Context, ids []string) ([]User, error)
	// EnsureUser создаёт профиль, если его нет, и возвращает признак создания.
	EnsureUser(ctx context.Context, user User) (User, bool, error)
	// UpdateProfile обновляет поля профиля, создавая документ при отсутствии.
	UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (User, error)
	// SetCurrentPost записывает указатель периода; nil очищает его.
	SetCurrentPost(ctx context.Context, userID string, pointer *PeriodPointer) error
	SetUserConnections(ctx context.Context, userID string, conns UserConnections) error
	DeleteUser(ctx context.Context, id string) error
	ListUserIDs(ctx context.Context) ([]string, error)
}

// FeedCursor указывает на последний пост предыдущей страницы.
type FeedCursor struct {
	CreatedAt time.Time
	ID        string
}

// FeedQuery описывает выборку ленты.
type FeedQuery struct {
	UserIDs []string
	After   *FeedCursor
	Limit   int
}

// PostRepo управляет постами.
type PostRepo interface {
	// CreatePost сохраняет пост, назначая CreatedAt на стороне хранилища.
	// Возвращает ErrAlreadyPosted, если у автора уже есть неудалённый пост за этот период.
	CreatePost(ctx context.Context, post Post) (Post, error)
	// GetPost возвращает пост, в том числе мягко удалённый.
	GetPost(ctx context.Context, id string) (Post, error)
	FindUserPostInRange(ctx context.Context, userID string, from, to time.Time) (Post, bool, error)
	CountUserPostsInRange(ctx context.Context, userID string, from, to time.Time) (int, error)
	ListFeed(ctx context.Context, q FeedQuery) ([]Post, error)
	ListUserPosts(ctx context.Context, userID string) ([]Post, error)
	ListAllPosts(ctx context.Context, limit int) ([]Post, error)
	SoftDeletePost(ctx context.Context, id string) error
	HardDeletePost(ctx context.Context, id string) error
	DeleteUserPosts(ctx context.Context, userID string) (int, error)
	DeleteAllPosts(ctx context.Context) (int, error)
	// ToggleLike переключает лайк и возвращает новое состояние.
	ToggleLike(ctx context.Context, postID, userID string) (bool, error)
	AppendComment(ctx context.Context, postID string, comment Comment) error
	RemoveComment(ctx context.Context, postID, commentID string) error
}

// ConnectionRepo управляет заявками и дружбой. Каждый переход состояния
// записывает запись связи и списки в обоих профилях как одну операцию.
type ConnectionRepo interface {
	CreateRequest(ctx context.Context, senderID, receiverID string) (Connection, error)
	AcceptRequest(ctx context.Context, userID, requesterID string) (Connection, error)
	RejectRequest(ctx context.Context, userID, requesterID string) error
	FindBetween(ctx context.Context, a, b string) (Connection, bool, error)
	ListConnections(ctx context.Context, userID string) ([]Connection, error)
}

// LinkRepo управляет хранилищем ссылок пользователя.
type LinkRepo interface {
	SaveLink(ctx context.Context, link VaultLink) (VaultLink, error)
	GetLink(ctx context.Context, id string) (VaultLink, error)
	// ListLinks возвращает ссылки от новых к старым; нулевой since означает «все».
	ListLinks(ctx context.Context, userID string, since time.Time) ([]VaultLink, error)
	UpdateLink(ctx context.Context, link VaultLink) error
	DeleteLink(ctx context.Context, id string) error
}

// ActivityRepo хранит журнал действий пользователя.
type ActivityRepo interface {
	RecordActivity(ctx context.Context, activity Activity) error
	ListActivity(ctx context.Context, userID string, limit int) ([]Activity, error)
	DeleteUserActivity(ctx context.Context, userID string) error
}

// Cache: TTL-хранилище страниц ленты.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Invalidate удаляет ключи, подходящие под glob-шаблон, и возвращает их число.
	Invalidate(ctx context.Context, pattern string) (int, error)
}

// MetadataFetcher получает превью ссылки.
type MetadataFetcher interface {
	Fetch(ctx context.Context, url string) (LinkMetadata, error)
}

// PostingGate отвечает на вопрос, публиковал ли пользователь пост в текущем периоде.
type PostingGate interface {
	HasPostedThisPeriod(ctx context.Context, userID string) (bool, error)
}

// FeedInvalidator сбрасывает закэшированные страницы, где виден автор.
type FeedInvalidator interface {
	InvalidateAuthor(ctx context.Context, authorID string)
}
