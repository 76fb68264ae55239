// Package jobstore persists the durable job records the Queue Worker and
// the inbound /api/v1/extract surface share: QUEUED/PROCESSING/COMPLETED/
// FAILED lifecycle records keyed by job id. It generalizes the teacher's
// mongodb.go connection/collection pattern (context-bounded queries
// against a mongo.Database) from accounting master data to a single
// job-record collection, modeled after the status transitions in
// adverant's internal/queue/redis_consumer.go updateJobStatus.
package jobstore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusQueued     Status = "QUEUED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Job is the durable job record. It is stored in the jobs collection with
// the bare job id as its _id; no "job:" prefix is added to the key.
type Job struct {
	ID          string      `bson:"_id" json:"id"`
	Status      Status      `bson:"status" json:"status"`
	ImageURL    string      `bson:"image_url,omitempty" json:"image_url,omitempty"`
	ImageBytes  string      `bson:"image_bytes,omitempty" json:"image_bytes,omitempty"`
	ImagePath   string      `bson:"image_path,omitempty" json:"image_path,omitempty"`
	DocumentType string     `bson:"document_type,omitempty" json:"document_type,omitempty"`
	Result      interface{} `bson:"result,omitempty" json:"result,omitempty"`
	Error       string      `bson:"error,omitempty" json:"error,omitempty"`
	CreatedAt   time.Time   `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `bson:"updated_at" json:"updated_at"`
	CompletedAt *time.Time  `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	FailedAt    *time.Time  `bson:"failed_at,omitempty" json:"failed_at,omitempty"`
}

// Store is a Mongo-backed job record store.
type Store struct {
	collection *mongo.Collection
}

// New builds a Store over the given collection.
func New(collection *mongo.Collection) *Store {
	return &Store{collection: collection}
}

// Create inserts a new job in QUEUED state.
func (s *Store) Create(ctx context.Context, job *Job) error {
	now := time.Now()
	job.Status = StatusQueued
	job.CreatedAt = now
	job.UpdatedAt = now
	_, err := s.collection.InsertOne(ctx, job)
	return err
}

// Get loads a job by id. ok is false when the job does not exist.
func (s *Store) Get(ctx context.Context, id string) (Job, bool, error) {
	var job Job
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&job)
	if err == mongo.ErrNoDocuments {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, err
	}
	return job, true, nil
}

// MarkProcessing transitions a job to PROCESSING, stamping updated_at.
func (s *Store) MarkProcessing(ctx context.Context, id string) error {
	_, err := s.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"status": StatusProcessing, "updated_at": time.Now()},
	})
	return err
}

// MarkCompleted transitions a job to COMPLETED, attaching result and
// stamping completed_at.
func (s *Store) MarkCompleted(ctx context.Context, id string, result interface{}) error {
	now := time.Now()
	_, err := s.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"status":       StatusCompleted,
			"result":       result,
			"updated_at":   now,
			"completed_at": now,
		},
	})
	return err
}

// MarkFailed transitions a job to FAILED with the given error message,
// stamping failed_at.
func (s *Store) MarkFailed(ctx context.Context, id string, errMessage string) error {
	now := time.Now()
	_, err := s.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"status":     StatusFailed,
			"error":      errMessage,
			"updated_at": now,
			"failed_at":  now,
		},
	}, options.Update().SetUpsert(true))
	return err
}
