package media

import (
	"context"
	"sync"
)

// MemoryStore keeps uploads in process. Objects are served from the app's own
// /media route; used when no bucket is configured, and by tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memObject
	baseURL string
}

type memObject struct {
	contentType string
	data        []byte
}

func NewMemoryStore(baseURL string) *MemoryStore {
	if baseURL == "" {
		baseURL = "/media/"
	}
	return &MemoryStore{objects: make(map[string]memObject), baseURL: baseURL}
}

func (s *MemoryStore) Save(_ context.Context, key, contentType string, data []byte) (string, error) {
	cp := make([]byte, len(data))
	copy(cp, data)
	s.mu.Lock()
	s.objects[key] = memObject{contentType: contentType, data: cp}
	s.mu.Unlock()
	return s.baseURL + key, nil
}

func (s *MemoryStore) Get(key string) (contentType string, data []byte, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return "", nil, false
	}
	return obj.contentType, obj.data, true
}
