package domain

import "time"

// PostType различает одиночный пост и подборку из нескольких ссылок.
type PostType string

const (
	// PostTypeSingle: пост из одной ссылки.
	PostTypeSingle PostType = "single"
	// PostTypeMonthly: подборка ровно из MonthlyLinkCount ссылок за период.
	PostTypeMonthly PostType = "monthly"
)

// MonthlyLinkCount: обязательное число ссылок в подборке.
const MonthlyLinkCount = 5

// User описывает профиль пользователя ReLink.
type User struct {
	ID              string
	Email           string
	DisplayName     string
	PhotoURL        string
	Bio             string
	Connections     []string
	PendingRequests []string
	SentRequests    []string
	CurrentPost     *PeriodPointer
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasConnection сообщает, есть ли id среди принятых связей пользователя.
func (u User) HasConnection(id string) bool {
	for _, c := range u.Connections {
		if c == id {
			return true
		}
	}
	return false
}

// PeriodPointer: денормализованный указатель на пост пользователя за период.
// Это кэш: источником истины всегда остаётся хранилище постов.
type PeriodPointer struct {
	PostID      string    `json:"postId"`
	PeriodStart time.Time `json:"periodStart"`
	Label       string    `json:"label"`
	Number      int       `json:"number"`
	Year        int       `json:"year"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// LinkEntry: ссылка внутри поста.
type LinkEntry struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Comment     string `json:"comment,omitempty"`
}

// Comment: комментарий к посту.
type Comment struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Post: опубликованный ReLink.
type Post struct {
	ID           string      `json:"id"`
	UserID       string      `json:"userId"`
	Type         PostType    `json:"type"`
	Link         *LinkEntry  `json:"link,omitempty"`
	MonthlyLinks []LinkEntry `json:"monthlyLinks,omitempty"`
	Title        string      `json:"title"`
	PeriodStart  time.Time   `json:"periodStart"`
	PeriodLabel  string      `json:"periodLabel"`
	Year         int         `json:"year"`
	Likes        []string    `json:"likes"`
	Comments     []Comment   `json:"comments"`
	Deleted      bool        `json:"-"`
	DeletedAt    *time.Time  `json:"-"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// LikedBy сообщает, лайкнул ли пользователь пост.
func (p Post) LikedBy(userID string) bool {
	for _, id := range p.Likes {
		if id == userID {
			return true
		}
	}
	return false
}

// FindComment возвращает комментарий по идентификатору.
func (p Post) FindComment(commentID string) (Comment, bool) {
	for _, c := range p.Comments {
		if c.ID == commentID {
			return c, true
		}
	}
	return Comment{}, false
}

// ConnectionStatus: состояние связи между двумя пользователями.
type ConnectionStatus string

const (
	ConnectionPending  ConnectionStatus = "pending"
	ConnectionAccepted ConnectionStatus = "accepted"
)

// Connection: запись о заявке в друзья или принятой дружбе.
type Connection struct {
	ID         string
	SenderID   string
	ReceiverID string
	Status     ConnectionStatus
	CreatedAt  time.Time
	AcceptedAt *time.Time
}

// Involves сообщает, участвует ли пользователь в связи.
func (c Connection) Involves(userID string) bool {
	return c.SenderID == userID || c.ReceiverID == userID
}

// Other возвращает второго участника связи.
func (c Connection) Other(userID string) string {
	if c.SenderID == userID {
		return c.ReceiverID
	}
	return c.SenderID
}

// FriendshipStatus: отношение между пользователем и другим пользователем.
type FriendshipStatus string

const (
	FriendshipFriends FriendshipStatus = "friends"
	FriendshipPending FriendshipStatus = "pending"
	FriendshipNone    FriendshipStatus = "none"
)

// VaultLink: ссылка, сохранённая пользователем в личное хранилище.
type VaultLink struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Image       string    `json:"image"`
	Comment     string    `json:"comment"`
	IsRead      bool      `json:"isRead"`
	CreatedAt   time.Time `json:"createdAt"`
}

// LinkMetadata: превью ссылки, полученное от сервиса метаданных.
type LinkMetadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
	URL         string `json:"url"`
}

// PublicProfile: публичная часть профиля.
type PublicProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL,omitempty"`
	Bio         string `json:"bio,omitempty"`
}

// Public возвращает публичное представление профиля.
func (u User) Public() PublicProfile {
	name := u.DisplayName
	if name == "" {
		name = u.Email
	}
	return PublicProfile{ID: u.ID, DisplayName: name, PhotoURL: u.PhotoURL, Bio: u.Bio}
}

// FeedPage: страница ленты.
type FeedPage struct {
	Posts      []Post `json:"posts"`
	NextCursor string `json:"nextCursor,omitempty"`
	Locked     bool   `json:"locked"`
	Page       int    `json:"page"`
}
