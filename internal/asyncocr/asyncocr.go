// Package asyncocr wraps a cloud document-analysis service (AWS Textract)
// behind the pipeline's start/analyze/collect contract. The teacher never
// touches an async document-analysis API; the poll-then-paginate shape
// here is grounded on other_examples' GCP Vision provider
// (OCRFileInGCS's async batch-annotate submit, then read-back of result
// pages from a storage prefix) translated to Textract's
// StartDocumentAnalysis/GetDocumentAnalysis job model, with the
// teacher's bounded-retry-on-transient-failure style from
// internal/ai/gemini_retry.go applied to the start/analyze calls.
package asyncocr

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"go.uber.org/zap"

	"github.com/ocrpipe/docintel/internal/errs"
)

const (
	pollInterval    = 2 * time.Second
	maxPollAttempts = 30
)

// Block is a simplified Textract block, flattened across result pages.
type Block struct {
	BlockType  string
	Text       string
	Confidence float64
}

// Analysis is the result of a document-analysis call, sync or async.
type Analysis struct {
	Blocks []Block
}

// Adapter wraps a Textract client with the pipeline's retry and polling
// contract.
type Adapter struct {
	client      *textract.Client
	maxAttempts int
	logger      *zap.Logger
}

// New builds an Adapter. maxAttempts is the bounded-retry cap shared with
// the object store (default 3).
func New(client *textract.Client, maxAttempts int, logger *zap.Logger) *Adapter {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Adapter{client: client, maxAttempts: maxAttempts, logger: logger}
}

// StartAsync kicks off an asynchronous document-analysis job and returns
// its job id, or "" if the service could not accept the job after bounded
// retries.
func (a *Adapter) StartAsync(ctx context.Context, bucket, key string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		out, err := a.client.StartDocumentAnalysis(ctx, &textract.StartDocumentAnalysisInput{
			DocumentLocation: &types.DocumentLocation{
				S3Object: &types.S3Object{Bucket: aws.String(bucket), Name: aws.String(key)},
			},
			FeatureTypes: []types.FeatureType{types.FeatureTypeTables, types.FeatureTypeForms},
		})
		if err == nil {
			return aws.ToString(out.JobId), nil
		}
		lastErr = err
		if a.logger != nil {
			a.logger.Warn("start async OCR retrying", zap.Int("attempt", attempt), zap.Error(err))
		}
		if attempt < a.maxAttempts {
			time.Sleep(backoffDelay(attempt))
		}
	}
	return "", errs.Wrap(errs.KindTransient, "asyncocr.StartAsync", "failed to start job after retries", lastErr)
}

// AnalyzeSync runs synchronous document analysis with TABLES and FORMS
// features, retried up to maxAttempts times on transient failure.
func (a *Adapter) AnalyzeSync(ctx context.Context, bucket, key string) (Analysis, error) {
	var lastErr error
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		out, err := a.client.AnalyzeDocument(ctx, &textract.AnalyzeDocumentInput{
			Document: &types.Document{
				S3Object: &types.S3Object{Bucket: aws.String(bucket), Name: aws.String(key)},
			},
			FeatureTypes: []types.FeatureType{types.FeatureTypeTables, types.FeatureTypeForms},
		})
		if err == nil {
			return Analysis{Blocks: flattenBlocks(out.Blocks)}, nil
		}
		lastErr = err
		if a.logger != nil {
			a.logger.Warn("sync analyze retrying", zap.Int("attempt", attempt), zap.Error(err))
		}
		if attempt < a.maxAttempts {
			time.Sleep(backoffDelay(attempt))
		}
	}
	return Analysis{}, errs.Wrap(errs.KindTransient, "asyncocr.AnalyzeSync", "analysis failed after retries", lastErr)
}

// CollectResults polls an async job every 2 seconds up to 30 attempts. On
// terminal failure it surfaces the provider request id for diagnostics;
// on success it paginates through all result pages and concatenates
// blocks.
func (a *Adapter) CollectResults(ctx context.Context, jobID string) (Analysis, error) {
	var nextToken *string
	var allBlocks []Block
	var requestID string

	for attempt := 0; attempt < maxPollAttempts; attempt++ {
		out, err := a.client.GetDocumentAnalysis(ctx, &textract.GetDocumentAnalysisInput{
			JobId:     aws.String(jobID),
			NextToken: nextToken,
		})
		if err != nil {
			return Analysis{}, errs.Wrap(errs.KindTransport, "asyncocr.CollectResults", "poll failed", err)
		}
		if id, ok := awsmiddleware.GetRequestIDMetadata(out.ResultMetadata); ok {
			requestID = id
		}
		switch out.JobStatus {
		case types.JobStatusFailed:
			reason := aws.ToString(out.StatusMessage)
			return Analysis{}, errs.New(errs.KindTransient, "asyncocr.CollectResults",
				fmt.Sprintf("job %s failed (request_id=%s): %s", jobID, requestID, reason))
		case types.JobStatusPartialSuccess, types.JobStatusSucceeded:
			allBlocks = append(allBlocks, flattenBlocks(out.Blocks)...)
			if out.NextToken == nil {
				return Analysis{Blocks: allBlocks}, nil
			}
			nextToken = out.NextToken
			continue
		default: // IN_PROGRESS
			select {
			case <-ctx.Done():
				return Analysis{}, ctx.Err()
			case <-time.After(pollInterval):
			}
		}
	}

	return Analysis{}, errs.New(errs.KindTransient, "asyncocr.CollectResults",
		fmt.Sprintf("job %s timed out after %d poll attempts (request_id=%s)", jobID, maxPollAttempts, requestID))
}

func flattenBlocks(blocks []types.Block) []Block {
	out := make([]Block, 0, len(blocks))
	for _, b := range blocks {
		var confidence float64
		if b.Confidence != nil {
			confidence = float64(*b.Confidence)
		}
		out = append(out, Block{
			BlockType:  string(b.BlockType),
			Text:       aws.ToString(b.Text),
			Confidence: confidence,
		})
	}
	return out
}

func backoffDelay(attempt int) time.Duration {
	delay := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond
	if delay > 2*time.Second {
		delay = 2 * time.Second
	}
	return delay
}
