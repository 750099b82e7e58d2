package feed

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"relink/internal/domain"
)

// EncodeCursor кодирует последний пост страницы.
func EncodeCursor(post domain.Post) string {
	raw := fmt.Sprintf("%d:%s", post.CreatedAt.UnixNano(), post.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor разбирает курсор; любая ошибка превращается в ErrInvalidCursor.
func DecodeCursor(cursor string) (*domain.FeedCursor, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCursor, err)
	}
	nanos, id, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return nil, domain.ErrInvalidCursor
	}
	var ts int64
	if _, err := fmt.Sscanf(nanos, "%d", &ts); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCursor, err)
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCursor, err)
	}
	return &domain.FeedCursor{CreatedAt: time.Unix(0, ts).UTC(), ID: id}, nil
}
