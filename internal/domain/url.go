package domain

import (
	"net/url"
	"strings"
)

// NormalizeURL проверяет, что ссылка абсолютная http(s), и возвращает её без пробелов по краям.
func NormalizeURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return "", ErrInvalidURL
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return trimmed, nil
	}
	return "", ErrInvalidURL
}

// Hostname возвращает хост ссылки или саму строку, если её не удалось разобрать.
func Hostname(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}
