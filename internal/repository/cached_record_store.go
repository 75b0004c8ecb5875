package repository

import (
	"context"
	"errors"
	"time"

	"MotionPull/internal/domain/models"
	domrepo "MotionPull/internal/domain/repository"
	"MotionPull/pkg/cache"
	applogger "MotionPull/pkg/logger"
)

// CachedRecordStore keeps the newest record per resource in a cache in front
// of the backing store. Cache failures degrade to the store and are logged.
type CachedRecordStore struct {
	domrepo.RecordStore
	cache cache.Service
	ttl   time.Duration
	l     *applogger.Logger
}

func NewCachedRecordStore(store domrepo.RecordStore, c cache.Service, ttl time.Duration, l *applogger.Logger) *CachedRecordStore {
	return &CachedRecordStore{RecordStore: store, cache: c, ttl: ttl, l: l}
}

// LatestKey is the cache key holding a resource's newest record.
func LatestKey(resourceID string) string {
	return cache.GenerateKey("activity", "latest", cache.HashKey(resourceID))
}

func (s *CachedRecordStore) Store(ctx context.Context, r *models.ClassificationRecord) error {
	if err := s.RecordStore.Store(ctx, r); err != nil {
		return err
	}
	s.Remember(ctx, r)
	return nil
}

func (s *CachedRecordStore) StoreBatch(ctx context.Context, records []*models.ClassificationRecord) error {
	if err := s.RecordStore.StoreBatch(ctx, records); err != nil {
		return err
	}
	for _, r := range records {
		s.Remember(ctx, r)
	}
	return nil
}

// Remember caches r as the latest record unless a newer one is cached.
func (s *CachedRecordStore) Remember(ctx context.Context, r *models.ClassificationRecord) {
	if r == nil {
		return
	}
	key := LatestKey(r.ResourceID)

	var cur models.ClassificationRecord
	if err := s.cache.Get(ctx, key, &cur); err == nil && cur.Created > r.Created {
		return
	}
	if err := s.cache.Set(ctx, key, r, s.ttl); err != nil {
		s.l.Warn("cache latest record failed", applogger.String("resource", r.ResourceID), applogger.Error(err))
	}
}

func (s *CachedRecordStore) Latest(ctx context.Context, resourceID string) (*models.ClassificationRecord, error) {
	key := LatestKey(resourceID)

	var cached models.ClassificationRecord
	err := s.cache.Get(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.l.Warn("read latest from cache failed", applogger.String("resource", resourceID), applogger.Error(err))
	}

	r, err := s.RecordStore.Latest(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	s.Remember(ctx, r)
	return r, nil
}

var _ domrepo.RecordStore = (*CachedRecordStore)(nil)
