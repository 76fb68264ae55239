// Package patternstore records which font/layout patterns have yielded the
// highest-confidence OCR results per document type, and serves the best
// known pattern back to the engine's advanced path. It generalizes two
// teacher pieces: the cloud-backed persistence of mongodb.go (a
// mongo.Database handle, context-bounded queries) and the TTL-cached,
// double-checked-locking health memoization of
// internal/storage/cache.go's GetOrLoadMasterData, applied here to a
// cloud-primary/local-fallback durable key-value store instead of an
// in-memory master-data cache.
package patternstore

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	schemaVersion   = 1
	localCap        = 500
	healthCacheTTL  = 60 * time.Second
)

// Entry is one recorded pattern observation.
type Entry struct {
	SchemaVersion  int       `json:"schema_version" bson:"schema_version"`
	DocType        string    `json:"doc_type" bson:"doc_type"`
	FontMetadata   string    `json:"font_metadata" bson:"font_metadata"`
	AccuracyScore  float64   `json:"accuracy_score" bson:"accuracy_score"`
	RecordedAt     time.Time `json:"recorded_at" bson:"recorded_at"`
}

// Store is the cloud-primary/local-fallback pattern store.
type Store struct {
	collection *mongo.Collection // nil when cloud is not configured
	localPath  string
	writeDeadline time.Duration
	logger     *zap.Logger

	mu          sync.Mutex
	localCache  []Entry

	healthMu       sync.Mutex
	healthCachedAt time.Time
	healthCached   bool
}

// New builds a Store. collection may be nil if no cloud backend is
// configured; the store then runs purely on the local file.
func New(collection *mongo.Collection, localPath string, writeDeadline time.Duration, logger *zap.Logger) *Store {
	if writeDeadline <= 0 {
		writeDeadline = 2 * time.Second
	}
	return &Store{
		collection:    collection,
		localPath:     localPath,
		writeDeadline: writeDeadline,
		logger:        logger,
	}
}

// Record appends a local entry and, if configured, fires a fire-and-forget
// cloud upsert. Both legs are best-effort: neither error blocks the caller.
func (s *Store) Record(ctx context.Context, docType, fontMetadata string, accuracyScore float64) {
	entry := Entry{
		SchemaVersion: schemaVersion,
		DocType:       docType,
		FontMetadata:  fontMetadata,
		AccuracyScore: accuracyScore,
		RecordedAt:    time.Now(),
	}

	s.recordLocal(entry)

	if s.collection != nil {
		go s.recordCloud(entry)
	}
}

func (s *Store) recordLocal(entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.localCache == nil {
		s.localCache = s.loadLocalFile()
	}
	s.localCache = append(s.localCache, entry)
	if len(s.localCache) > localCap {
		s.localCache = s.localCache[len(s.localCache)-localCap:]
	}
	if err := s.saveLocalFile(s.localCache); err != nil && s.logger != nil {
		s.logger.Warn("pattern store local write failed", zap.Error(err))
	}
}

func (s *Store) recordCloud(entry Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeDeadline)
	defer cancel()

	filter := bson.M{"doc_type": entry.DocType, "font_metadata": entry.FontMetadata}
	update := bson.M{"$set": entry}
	opts := options.Update().SetUpsert(true)

	if _, err := s.collection.UpdateOne(ctx, filter, update, opts); err != nil && s.logger != nil {
		s.logger.Warn("pattern store cloud write failed", zap.Error(err))
	}
}

// GetBest returns the highest-accuracy entry recorded for docType. It tries
// the cloud backend first with a bounded timeout, falling back to a local
// scan on any error or absent row.
func (s *Store) GetBest(ctx context.Context, docType string) (Entry, bool) {
	if s.collection != nil {
		if entry, ok := s.getBestCloud(ctx, docType); ok {
			return entry, true
		}
	}
	return s.getBestLocal(docType)
}

func (s *Store) getBestCloud(ctx context.Context, docType string) (Entry, bool) {
	cctx, cancel := context.WithTimeout(ctx, s.writeDeadline)
	defer cancel()

	opts := options.FindOne().SetSort(bson.M{"accuracy_score": -1})
	var entry Entry
	err := s.collection.FindOne(cctx, bson.M{"doc_type": docType}, opts).Decode(&entry)
	if err != nil {
		return Entry{}, false
	}
	return entry, true
}

func (s *Store) getBestLocal(docType string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.localCache == nil {
		s.localCache = s.loadLocalFile()
	}

	var best Entry
	found := false
	for _, e := range s.localCache {
		if e.DocType != docType {
			continue
		}
		if !found || e.AccuracyScore > best.AccuracyScore {
			best = e
			found = true
		}
	}
	return best, found
}

// Health reports whether the store can serve requests: the cloud backend
// responds, or the local file path is writable. Cached for 60 seconds.
func (s *Store) Health(ctx context.Context) bool {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	if time.Since(s.healthCachedAt) < healthCacheTTL {
		return s.healthCached
	}

	healthy := s.probeHealth(ctx)
	s.healthCached = healthy
	s.healthCachedAt = time.Now()
	return healthy
}

func (s *Store) probeHealth(ctx context.Context) bool {
	if s.collection != nil {
		cctx, cancel := context.WithTimeout(ctx, s.writeDeadline)
		defer cancel()
		if err := s.collection.Database().Client().Ping(cctx, nil); err == nil {
			return true
		}
	}
	return s.localPathWritable()
}

func (s *Store) localPathWritable() bool {
	if s.localPath == "" {
		return false
	}
	f, err := os.OpenFile(s.localPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

func (s *Store) loadLocalFile() []Entry {
	data, err := os.ReadFile(s.localPath)
	if err != nil {
		return []Entry{}
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return []Entry{}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].RecordedAt.Before(entries[j].RecordedAt)
	})
	return entries
}

func (s *Store) saveLocalFile(entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return os.WriteFile(s.localPath, data, 0o644)
}
