// Package storage keeps generated audio and the podcast metadata cache.
package storage

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/srgchrksv/docpodcaster/models"
)

// ErrNotFound is returned when no finished podcast is cached for a document.
var ErrNotFound = errors.New("podcast metadata not found")

// MetadataStore caches generation results by document id.
type MetadataStore interface {
	Get(ctx context.Context, documentID string) (*models.PodcastMetadata, error)
	Put(ctx context.Context, meta models.PodcastMetadata) error
}

// Storage is an in-memory object store and metadata cache for local runs and tests.
type Storage struct {
	mu       sync.RWMutex
	objects  map[string][]byte
	metadata map[string]models.PodcastMetadata

	// BaseURL is prefixed to object keys to form the returned URL.
	BaseURL string
}

func NewStorage(baseURL string) *Storage {
	if baseURL == "" {
		baseURL = "memory://"
	}
	return &Storage{
		objects:  make(map[string][]byte),
		metadata: make(map[string]models.PodcastMetadata),
		BaseURL:  baseURL,
	}
}

// Upload stores a copy of data under key, replacing any previous object.
func (s *Storage) Upload(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.objects[key] = bytes.Clone(data)
	s.mu.Unlock()
	return s.BaseURL + key, nil
}

// Object returns the bytes stored under key.
func (s *Storage) Object(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	return data, ok
}

func (s *Storage) Get(ctx context.Context, documentID string) (*models.PodcastMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	meta, ok := s.metadata[documentID]
	s.mu.RUnlock()
	if !ok || meta.AudioURL == "" {
		return nil, ErrNotFound
	}
	return &meta, nil
}

func (s *Storage) Put(ctx context.Context, meta models.PodcastMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.metadata[meta.DocumentID] = meta
	s.mu.Unlock()
	return nil
}
