package infrastructure

import (
	"context"
	"sync"
	"time"

	"adreport/internal/domain"
	"adreport/pkg/logger"
)

type cachedSnapshot struct {
	snapshot  domain.Snapshot
	expiresAt time.Time
}

// SnapshotRepository is an in-memory domain.SnapshotCache with a fixed TTL.
type SnapshotRepository struct {
	data   map[string]cachedSnapshot
	ttl    time.Duration
	now    func() time.Time
	mutex  sync.RWMutex
	logger *logger.Logger
}

// creates a new snapshot repository
func NewSnapshotRepository(ttl time.Duration, logger *logger.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		data:   make(map[string]cachedSnapshot),
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

func (r *SnapshotRepository) Get(ctx context.Context, projectID string, date time.Time) (*domain.Snapshot, bool, error) {
	r.mutex.RLock()
	entry, ok := r.data[snapshotKey(projectID, date)]
	r.mutex.RUnlock()

	if !ok || r.now().After(entry.expiresAt) {
		return nil, false, nil
	}
	s := entry.snapshot
	return &s, true, nil
}

func (r *SnapshotRepository) Set(ctx context.Context, snapshot *domain.Snapshot) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := r.now()
	for key, entry := range r.data {
		if now.After(entry.expiresAt) {
			delete(r.data, key)
		}
	}
	r.data[snapshotKey(snapshot.ProjectID, snapshot.Date)] = cachedSnapshot{
		snapshot:  *snapshot,
		expiresAt: now.Add(r.ttl),
	}

	r.logger.WithContext(ctx).WithField("project_id", snapshot.ProjectID).Debug("Cached realtime snapshot in memory")
	return nil
}

func snapshotKey(projectID string, date time.Time) string {
	return "snapshot:" + projectID + ":" + domain.DateKey(date)
}
