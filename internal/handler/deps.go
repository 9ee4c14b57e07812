package handler

import (
	"time"

	"docvision-service/internal/service/ai"
	"docvision-service/pkg/queue"
	"docvision-service/pkg/storage"
)

// Dependencies are the collaborators shared by all handlers
type Dependencies struct {
	Storage        storage.ObjectStore
	AI             *ai.Registry
	Queue          queue.Producer
	PresignTTL     time.Duration
	MaxUploadBytes int64
}

var deps Dependencies

// Initialize wires the handler dependencies. Queue and AI may be nil.
func Initialize(d Dependencies) {
	if d.PresignTTL <= 0 {
		d.PresignTTL = time.Hour
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 50 << 20
	}
	deps = d
}
