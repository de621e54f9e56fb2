package banking

import (
	"context"
	"sync"
	"time"

	"shortstacks/models"
	"shortstacks/services/access"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memStore) Put(_ context.Context, key string, body []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = body
	m.types[key] = contentType
	return nil
}

func (m *memStore) PresignGet(_ context.Context, key string, expires time.Duration) (string, error) {
	return "https://bucket.example/" + key + "?expires=" + expires.String(), nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	delete(m.types, key)
	return nil
}

func principal(u models.User) access.Principal {
	return access.Principal{UserID: u.ID, Username: u.Username, Role: u.Role}
}
