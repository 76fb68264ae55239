// Command worker drains the OCR job queue: one Redis BRPop loop per
// process, backed by the shared Engine and Mongo job store. Process
// topology mirrors the teacher's single HTTP-serving main.go, split
// into its own binary since the queue consumer and the HTTP API now
// scale independently.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ocrpipe/docintel/internal/bootstrap"
	"github.com/ocrpipe/docintel/internal/common"
	"github.com/ocrpipe/docintel/internal/queue"
)

func main() {
	if err := common.InitLogger(os.Getenv("ENVIRONMENT")); err != nil {
		panic(err)
	}
	logger := common.L()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialize worker", zap.Error(err))
	}
	defer app.Close(context.Background())

	worker := queue.New(app.Redis, app.JobStore, app.Engine, app.Cfg.QueueName, app.Cfg.EnableReconstruction, app.Cfg.MaxUploadMB, logger)

	logger.Info("worker starting", zap.String("queue", app.Cfg.QueueName))
	worker.Run(ctx)
	logger.Info("worker stopped")
}
