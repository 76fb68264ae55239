// Package bootstrap wires the collaborators shared by cmd/api and
// cmd/worker: Mongo/Redis/S3/Textract clients, the vision provider set,
// and the Engine itself. It generalizes the teacher's single main.go
// init sequence (InitMongoDB, gin.Default, router wiring) into a shared
// constructor both entry points call, since this module now has two
// processes instead of one.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/ocrpipe/docintel/internal/asyncocr"
	"github.com/ocrpipe/docintel/internal/capability"
	"github.com/ocrpipe/docintel/internal/confidence"
	"github.com/ocrpipe/docintel/internal/config"
	"github.com/ocrpipe/docintel/internal/engine"
	"github.com/ocrpipe/docintel/internal/eventtrigger"
	imagingpkg "github.com/ocrpipe/docintel/internal/imaging"
	"github.com/ocrpipe/docintel/internal/jobstore"
	"github.com/ocrpipe/docintel/internal/objectstore"
	"github.com/ocrpipe/docintel/internal/ocrbackend"
	"github.com/ocrpipe/docintel/internal/patternstore"
	"github.com/ocrpipe/docintel/internal/vision"
)

// App bundles every collaborator a process needs to serve requests or
// drain the queue.
type App struct {
	Cfg          *config.Config
	Logger       *zap.Logger
	Mongo        *mongo.Client
	Redis        *redis.Client
	Engine       *engine.Engine
	ObjectStore  *objectstore.Store
	AsyncOCR     *asyncocr.Adapter
	JobStore     *jobstore.Store
	PatternStore *patternstore.Store
	Capabilities *capability.Registry
	EventTrigger *eventtrigger.Handler
}

// New connects every backing service and assembles the Engine. Callers
// are responsible for calling Close when done.
func New(ctx context.Context, logger *zap.Logger) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	mongoClient, err := connectMongo(ctx, cfg.MongoURI)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	db := mongoClient.Database(cfg.MongoDBName)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	store := objectstore.New(s3.NewFromConfig(awsCfg), objectstore.Config{
		Bucket:      cfg.S3BucketName,
		MaxAttempts: cfg.AWSMaxRetries,
	}, logger)

	async := asyncocr.New(textract.NewFromConfig(awsCfg), cfg.AWSMaxRetries, logger)

	patterns := patternstore.New(
		db.Collection("learning_patterns"),
		cfg.LocalDataPath,
		time.Duration(cfg.CloudWriteDeadlineMS)*time.Millisecond,
		logger,
	)

	capabilities := capability.NewRegistry(imagingpkg.ProbeReconstruction, logger)

	visionSet := buildVisionSet(cfg, logger)

	eng := engine.New(engine.Config{
		MaxIterations:       cfg.OCRIterations,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
	}, confidence.New(), capabilities, visionSet, patterns, ocrFunc(), logger)

	jobs := jobstore.New(db.Collection("jobs"))
	trigger := eventtrigger.New(store, async, cfg.OutputPrefix, logger)

	return &App{
		Cfg:          cfg,
		Logger:       logger,
		Mongo:        mongoClient,
		Redis:        redisClient,
		Engine:       eng,
		ObjectStore:  store,
		AsyncOCR:     async,
		JobStore:     jobs,
		PatternStore: patterns,
		Capabilities: capabilities,
		EventTrigger: trigger,
	}, nil
}

// Close releases every backing connection. Errors are logged, not
// returned, since shutdown must proceed regardless.
func (a *App) Close(ctx context.Context) {
	if a.Mongo != nil {
		if err := a.Mongo.Disconnect(ctx); err != nil && a.Logger != nil {
			a.Logger.Warn("mongo disconnect failed", zap.Error(err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil && a.Logger != nil {
			a.Logger.Warn("redis close failed", zap.Error(err))
		}
	}
}

func connectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, err
	}
	return client, nil
}

func buildVisionSet(cfg *config.Config, logger *zap.Logger) *vision.Set {
	set := vision.NewSet(logger, vision.DefaultRetryPolicy)
	if cfg.GeminiAPIKey != "" {
		set.Register(vision.NewGeminiProvider(cfg.GeminiAPIKey, cfg.GeminiModel))
	}
	if cfg.MistralAPIKey != "" {
		set.Register(vision.NewMistralProvider(cfg.MistralAPIKey, cfg.MistralModel, set.Client()))
	}
	return set
}

func ocrFunc() engine.OCRFunc {
	backend := ocrbackend.New([]string{"eng"})
	return backend.Recognize
}
