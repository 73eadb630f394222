package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samirrijal/fieldmap/internal/core/domain"
	"github.com/samirrijal/fieldmap/internal/core/ports"
	"github.com/samirrijal/fieldmap/internal/pkg/metrics"
)

// SyncResult counts the changes found by one FieldSync poll.
type SyncResult struct {
	Created int
	Deleted int
}

// FieldSync detects fields added or removed on the field source by other
// writers. Each change is announced and its cache entries are dropped so map
// sessions re-frame. The first poll only records a baseline.
type FieldSync struct {
	source    ports.FieldRepository
	cache     ports.CacheService
	publisher ports.EventPublisher

	mu     sync.Mutex
	known  map[string]struct{}
	primed bool
}

// NewFieldSync creates a FieldSync. cache and publisher may be nil.
func NewFieldSync(source ports.FieldRepository, cache ports.CacheService, publisher ports.EventPublisher) *FieldSync {
	return &FieldSync{
		source:    source,
		cache:     cache,
		publisher: publisher,
		known:     make(map[string]struct{}),
	}
}

// Poll lists the source once and reports what changed since the last poll.
func (s *FieldSync) Poll(ctx context.Context) (SyncResult, error) {
	fields, err := s.source.List(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("list fields: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[string]struct{}, len(fields))
	var created []domain.Field
	for _, f := range fields {
		current[f.ID] = struct{}{}
		if _, ok := s.known[f.ID]; !ok {
			created = append(created, f)
		}
	}
	var deleted []string
	for id := range s.known {
		if _, ok := current[id]; !ok {
			deleted = append(deleted, id)
		}
	}
	s.known = current

	if !s.primed {
		s.primed = true
		return SyncResult{}, nil
	}

	res := SyncResult{Created: len(created), Deleted: len(deleted)}
	if res.Created+res.Deleted == 0 {
		return res, nil
	}

	if s.cache != nil {
		_ = s.cache.Delete(ctx, cacheKeyAllFields)
		for _, id := range deleted {
			_ = s.cache.Delete(ctx, cacheKeyFieldByID+id)
		}
	}

	for i := range created {
		metrics.FieldSyncChanges.WithLabelValues("created").Inc()
		if s.publisher == nil {
			continue
		}
		if err := s.publisher.PublishFieldCreated(ctx, &created[i]); err != nil {
			slog.WarnContext(ctx, "publish synced field failed", "field_id", created[i].ID, "error", err)
		}
	}
	for _, id := range deleted {
		metrics.FieldSyncChanges.WithLabelValues("deleted").Inc()
		if s.publisher == nil {
			continue
		}
		if err := s.publisher.PublishFieldDeleted(ctx, id); err != nil {
			slog.WarnContext(ctx, "publish synced deletion failed", "field_id", id, "error", err)
		}
	}
	return res, nil
}
