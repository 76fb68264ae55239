package patternstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newLocalOnlyStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.json")
	return New(nil, path, 2*time.Second, nil)
}

func TestRecordAndGetBestLocal(t *testing.T) {
	s := newLocalOnlyStore(t)
	ctx := context.Background()

	s.Record(ctx, "invoice", "arial-12", 0.6)
	s.Record(ctx, "invoice", "times-10", 0.9)
	s.Record(ctx, "receipt", "courier-9", 0.95)

	best, ok := s.GetBest(ctx, "invoice")
	if !ok {
		t.Fatal("expected a best entry for invoice")
	}
	if best.AccuracyScore != 0.9 {
		t.Fatalf("expected best score 0.9, got %v", best.AccuracyScore)
	}
}

func TestGetBestAbsentDocType(t *testing.T) {
	s := newLocalOnlyStore(t)
	_, ok := s.GetBest(context.Background(), "nonexistent")
	if ok {
		t.Fatal("expected no entry for unseen doc type")
	}
}

func TestLocalCapEnforced(t *testing.T) {
	s := newLocalOnlyStore(t)
	ctx := context.Background()
	for i := 0; i < localCap+50; i++ {
		s.Record(ctx, "bulk", "font", float64(i)/float64(localCap+50))
	}
	s.mu.Lock()
	n := len(s.localCache)
	s.mu.Unlock()
	if n > localCap {
		t.Fatalf("expected local cache capped at %d entries, got %d", localCap, n)
	}
}

func TestHealthLocalWritable(t *testing.T) {
	s := newLocalOnlyStore(t)
	if !s.Health(context.Background()) {
		t.Fatal("expected healthy store with a writable local path")
	}
}

func TestHealthUnwritablePath(t *testing.T) {
	s := New(nil, "/nonexistent-dir-xyz/patterns.json", 2*time.Second, nil)
	if s.Health(context.Background()) {
		t.Fatal("expected unhealthy store with an unwritable local path")
	}
}

func TestHealthCached(t *testing.T) {
	s := newLocalOnlyStore(t)
	first := s.Health(context.Background())
	os.Remove(s.localPath)
	// With caching, a change right after shouldn't flip the cached result
	// within the TTL window.
	second := s.Health(context.Background())
	if first != second {
		t.Fatalf("expected cached health result to be stable, got %v then %v", first, second)
	}
}
