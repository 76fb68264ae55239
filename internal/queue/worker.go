// Package queue implements the at-least-once job worker: a blocking-pop
// loop over Redis that loads, processes, and finalizes job records. It
// generalizes the BRPop/reconnect/status-transition shape of adverant's
// internal/queue/redis_consumer.go (RedisConsumer.worker,
// processNextJob, updateJobStatus) from a PostgreSQL-backed file-process
// job to a Mongo-backed lifecycle keyed by the bare job id, and drops the
// retry/requeue branch since this worker's contract marks every outcome
// terminal on first attempt (COMPLETED or FAILED), never re-queuing.
package queue

import (
	"context"
	"encoding/base64"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ocrpipe/docintel/internal/engine"
	"github.com/ocrpipe/docintel/internal/jobstore"
)

const (
	popTimeout         = 5 * time.Second
	reconnectSleep     = 5 * time.Second
)

// Worker is a single-goroutine consumer of one queue. Horizontal scaling
// is achieved by running multiple Worker instances against the same
// queue name; ordering across instances is not guaranteed.
type Worker struct {
	redisClient *redis.Client
	jobs        *jobstore.Store
	eng         *engine.Engine
	queueName   string
	useRecon    bool
	maxUploadMB int
	logger      *zap.Logger
}

// New builds a Worker.
func New(redisClient *redis.Client, jobs *jobstore.Store, eng *engine.Engine, queueName string, useRecon bool, maxUploadMB int, logger *zap.Logger) *Worker {
	return &Worker{redisClient: redisClient, jobs: jobs, eng: eng, queueName: queueName, useRecon: useRecon, maxUploadMB: maxUploadMB, logger: logger}
}

// Run drives the blocking-pop loop until ctx is canceled. On connection
// loss it sleeps and reconnects rather than exiting.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.popAndProcess(ctx); err != nil {
			if err == redis.Nil {
				continue // pop timed out with nothing queued; loop immediately
			}
			if w.logger != nil {
				w.logger.Warn("queue connection error, reconnecting", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectSleep):
			}
		}
	}
}

func (w *Worker) popAndProcess(ctx context.Context) error {
	result, err := w.redisClient.BRPop(ctx, popTimeout, w.queueName).Result()
	if err != nil {
		return err
	}
	if len(result) < 2 {
		return nil
	}
	jobID := result[1]

	job, ok, err := w.jobs.Get(ctx, jobID)
	if err != nil {
		if w.logger != nil {
			w.logger.Warn("failed to load job", zap.String("job_id", jobID), zap.Error(err))
		}
		return nil
	}
	if !ok {
		if w.logger != nil {
			w.logger.Warn("job id popped but record missing, skipping", zap.String("job_id", jobID))
		}
		return nil
	}

	w.processJob(ctx, jobID, job)
	return nil
}

func (w *Worker) processJob(ctx context.Context, jobID string, job jobstore.Job) {
	if err := w.jobs.MarkProcessing(ctx, jobID); err != nil && w.logger != nil {
		w.logger.Warn("failed to mark job processing", zap.String("job_id", jobID), zap.Error(err))
	}

	data, resolveErr := resolveImageBytes(job)
	if resolveErr != "" {
		completion := map[string]interface{}{"error": resolveErr}
		if err := w.jobs.MarkCompleted(ctx, jobID, completion); err != nil && w.logger != nil {
			w.logger.Warn("failed to mark job completed", zap.String("job_id", jobID), zap.Error(err))
		}
		return
	}

	resp, err := w.safeProcess(ctx, data)
	if err != nil {
		if markErr := w.jobs.MarkFailed(ctx, jobID, err.Error()); markErr != nil && w.logger != nil {
			w.logger.Warn("failed to mark job failed", zap.String("job_id", jobID), zap.Error(markErr))
		}
		return
	}

	if err := w.jobs.MarkCompleted(ctx, jobID, resp); err != nil && w.logger != nil {
		w.logger.Warn("failed to mark job completed", zap.String("job_id", jobID), zap.Error(err))
	}
}

// safeProcess recovers a panic from the Engine so a single bad document
// never brings down the worker loop.
func (w *Worker) safeProcess(ctx context.Context, data []byte) (resp engine.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicToError(r)
		}
	}()
	return w.eng.Process(ctx, data, w.maxUploadMB, w.useRecon)
}

// resolveImageBytes prefers inline image_bytes (base64-decoded) over
// image_path (local file read). A missing or undecodable input yields a
// terminal-but-non-fatal error string rather than aborting the job.
func resolveImageBytes(job jobstore.Job) ([]byte, string) {
	if job.ImageBytes != "" {
		data, err := base64.StdEncoding.DecodeString(job.ImageBytes)
		if err != nil {
			return nil, "invalid_image_encoding"
		}
		return data, ""
	}
	if job.ImagePath != "" {
		data, err := os.ReadFile(job.ImagePath)
		if err != nil {
			return nil, "missing_input"
		}
		return data, ""
	}
	return nil, "missing_input"
}

func panicToError(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &panicError{r}
}

type panicError struct{ value interface{} }

func (p *panicError) Error() string { return "engine panicked during processing" }
