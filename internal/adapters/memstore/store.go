// Package memstore хранит данные ReLink в памяти процесса.
// Используется в тестах и при STORAGE_DRIVER=memory; семантика совпадает с Postgres-адаптером.
package memstore

import (
	"sync"
	"time"

	"relink/internal/domain"
)

// Store реализует все репозитории поверх map под одним мьютексом.
type Store struct {
	mu          sync.Mutex
	now         domain.Clock
	users       map[string]*domain.User
	posts       map[string]*domain.Post
	connections map[string]*domain.Connection
	links       map[string]*domain.VaultLink
	activities  []domain.Activity
	activitySeq int64
}

var (
	_ domain.UserRepo       = (*Store)(nil)
	_ domain.PostRepo       = (*Store)(nil)
	_ domain.ConnectionRepo = (*Store)(nil)
	_ domain.LinkRepo       = (*Store)(nil)
	_ domain.ActivityRepo   = (*Store)(nil)
)

// New создаёт пустое хранилище. nil clock означает time.Now.
func New(clock domain.Clock) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		now:         clock,
		users:       make(map[string]*domain.User),
		posts:       make(map[string]*domain.Post),
		connections: make(map[string]*domain.Connection),
		links:       make(map[string]*domain.VaultLink),
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func addUnique(list []string, id string) []string {
	for _, v := range list {
		if v == id {
			return list
		}
	}
	return append(list, id)
}

func remove(list []string, id string) []string {
	out := list[:0]
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
