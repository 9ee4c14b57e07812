package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"docvision-service/pkg/queue"
)

// StoredObject is what MemoryStore keeps per key
type StoredObject struct {
	Body        []byte
	ContentType string
	Metadata    map[string]string
}

// MemoryStore is an in-memory storage.ObjectStore
type MemoryStore struct {
	mu        sync.Mutex
	Objects   map[string]StoredObject
	Deleted   []string
	BaseURL   string
	UploadErr error
	DeleteErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{Objects: map[string]StoredObject{}, BaseURL: "https://storage.test"}
}

func (s *MemoryStore) Upload(_ context.Context, key string, body []byte, contentType string, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UploadErr != nil {
		return s.UploadErr
	}
	s.Objects[key] = StoredObject{Body: body, ContentType: contentType, Metadata: metadata}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Deleted = append(s.Deleted, key)
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	delete(s.Objects, key)
	return nil
}

func (s *MemoryStore) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("%s/%s?expires=%d", s.BaseURL, key, int(ttl.Seconds())), nil
}

// Keys lists the stored object keys
func (s *MemoryStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.Objects))
	for k := range s.Objects {
		keys = append(keys, k)
	}
	return keys
}

// RecordingProducer is a queue.Producer that remembers enqueued jobs
type RecordingProducer struct {
	mu   sync.Mutex
	Jobs []queue.ExtractionJob
	Err  error
}

func (p *RecordingProducer) Enqueue(_ context.Context, job queue.ExtractionJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Jobs = append(p.Jobs, job)
	return nil
}

func (p *RecordingProducer) Close() error {
	return nil
}
