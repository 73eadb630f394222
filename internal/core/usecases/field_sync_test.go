package usecases_test

import (
	"context"
	"errors"
	"testing"

	"github.com/samirrijal/fieldmap/internal/core/domain"
	"github.com/samirrijal/fieldmap/internal/core/usecases"
)

func TestFieldSync_BaselineThenChanges(t *testing.T) {
	current := []domain.Field{testField("a", square(-2.93, 43.26, 100)), testField("b", square(-2.92, 43.26, 100))}
	repo := &mockFieldRepo{listFn: func(ctx context.Context) ([]domain.Field, error) { return current, nil }}
	cache := newMockCache()
	pub := &mockPublisher{}
	sync := usecases.NewFieldSync(repo, cache, pub)

	res, err := sync.Poll(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if res != (usecases.SyncResult{}) {
		t.Errorf("first poll should only record a baseline, got %+v", res)
	}
	if len(pub.created)+len(pub.deleted) != 0 || len(cache.deleted) != 0 {
		t.Error("baseline poll must not publish or invalidate")
	}

	current = []domain.Field{current[1], testField("c", square(-2.91, 43.26, 100))}
	res, err = sync.Poll(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if res.Created != 1 || res.Deleted != 1 {
		t.Errorf("expected 1 created and 1 deleted, got %+v", res)
	}
	if len(pub.created) != 1 || pub.created[0] != "c" {
		t.Errorf("expected created event for c, got %v", pub.created)
	}
	if len(pub.deleted) != 1 || pub.deleted[0] != "a" {
		t.Errorf("expected deleted event for a, got %v", pub.deleted)
	}
	if len(cache.deleted) != 2 {
		t.Errorf("expected list and a's entry invalidated, got %v", cache.deleted)
	}

	res, _ = sync.Poll(context.Background())
	if res != (usecases.SyncResult{}) {
		t.Errorf("unchanged poll reported %+v", res)
	}
}

func TestFieldSync_ListError(t *testing.T) {
	repo := &mockFieldRepo{listFn: func(ctx context.Context) ([]domain.Field, error) { return nil, errors.New("timeout") }}
	sync := usecases.NewFieldSync(repo, nil, nil)

	if _, err := sync.Poll(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
