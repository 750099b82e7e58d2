package domain

import "errors"

// Ошибки валидации.
var (
	ErrInvalidURL       = errors.New("invalid url: expected an absolute http(s) link")
	ErrInvalidLinkCount = errors.New("monthly relink must contain exactly 5 links")
	ErrInvalidPostType  = errors.New("invalid post type")
	ErrEmptyComment     = errors.New("comment text is empty")
	ErrInvalidCursor    = errors.New("invalid feed cursor")
	ErrSelfConnection   = errors.New("cannot connect to yourself")
)

// Ошибки авторизации.
var (
	ErrUnauthorized = errors.New("authentication required")
	ErrForbidden    = errors.New("not authorized to perform this action")
)

// Ошибки состояния.
var (
	ErrAlreadyPosted    = errors.New("you have already shared a relink this period")
	ErrPostNotFound     = errors.New("post not found")
	ErrCommentNotFound  = errors.New("comment not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrLinkNotFound     = errors.New("link not found")
	ErrRequestNotFound  = errors.New("friend request not found")
	ErrAlreadyConnected = errors.New("users are already connected")
	ErrRequestExists    = errors.New("friend request already pending")
)

// Kind: класс ошибки.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindTransport     Kind = "transport"
)

var kinds = map[error]Kind{
	ErrInvalidURL:       KindValidation,
	ErrInvalidLinkCount: KindValidation,
	ErrInvalidPostType:  KindValidation,
	ErrEmptyComment:     KindValidation,
	ErrInvalidCursor:    KindValidation,
	ErrSelfConnection:   KindValidation,
	ErrUnauthorized:     KindAuthorization,
	ErrForbidden:        KindAuthorization,
	ErrAlreadyPosted:    KindConflict,
	ErrAlreadyConnected: KindConflict,
	ErrRequestExists:    KindConflict,
	ErrPostNotFound:     KindNotFound,
	ErrCommentNotFound:  KindNotFound,
	ErrUserNotFound:     KindNotFound,
	ErrLinkNotFound:     KindNotFound,
	ErrRequestNotFound:  KindNotFound,
}

// ErrorKind классифицирует ошибку; всё неизвестное считается транспортной ошибкой.
func ErrorKind(err error) Kind {
	if err == nil {
		return ""
	}
	for sentinel, kind := range kinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindTransport
}

// MetadataFetchError сообщает, что превью ссылки получить не удалось.
// Ошибка не фатальна: вызывающий подставляет hostname в качестве заголовка.
type MetadataFetchError struct {
	URL string
	Err error
}

func (e *MetadataFetchError) Error() string {
	return "failed to fetch link metadata for " + e.URL + ": " + e.Err.Error()
}

func (e *MetadataFetchError) Unwrap() error {
	return e.Err
}
