package storage

import (
	"context"
	"net/url"
	"sort"
	"sync"
	"time"
)

// MemoryArchiveStore keeps archive objects in process memory. It backs the
// sweep when no object storage is configured.
type MemoryArchiveStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
}

// NewMemoryArchiveStore creates an empty store
func NewMemoryArchiveStore() *MemoryArchiveStore {
	return &MemoryArchiveStore{objects: make(map[string]memoryObject)}
}

// Put stores a copy of data under key
func (s *MemoryArchiveStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = memoryObject{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

// Exists reports whether key is present
func (s *MemoryArchiveStore) Exists(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}

// DownloadURL returns a memory:// link; it is only meaningful inside the process
func (s *MemoryArchiveStore) DownloadURL(_ context.Context, key string, expiresIn time.Duration) (string, time.Time, error) {
	if key == "" {
		return "", time.Time{}, ErrEmptyKey
	}
	expiresAt := time.Now().Add(expiresIn)
	u := url.URL{Scheme: "memory", Path: "/" + key, RawQuery: url.Values{"expires": {expiresAt.UTC().Format(time.RFC3339)}}.Encode()}
	return u.String(), expiresAt, nil
}

// Delete removes key
func (s *MemoryArchiveStore) Delete(_ context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// Get returns the stored bytes and content type of key
func (s *MemoryArchiveStore) Get(key string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	return obj.data, obj.contentType, ok
}

// Keys lists stored keys in order
func (s *MemoryArchiveStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
