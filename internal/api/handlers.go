// Package api implements the HTTP surface: document submission, presigned
// uploads, job lookup, and health/capability probes. Route shape and
// graceful-shutdown wiring follow the teacher's cmd/api/main.go
// (CORS middleware, /health, timeout-bound http.Server), generalized from
// the teacher's two receipt-specific routes to the full external
// interface the pipeline exposes.
package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ocrpipe/docintel/internal/errs"
	"github.com/ocrpipe/docintel/internal/eventtrigger"
	"github.com/ocrpipe/docintel/internal/jobstore"
	"github.com/ocrpipe/docintel/internal/objectstore"
	"github.com/ocrpipe/docintel/internal/processor"
)

// Server bundles the collaborators the HTTP handlers depend on.
type Server struct {
	Dispatcher   *processor.Dispatcher
	ObjectStore  *objectstore.Store
	JobStore     *jobstore.Store
	Capabilities capabilityProbe
	EventTrigger *eventtrigger.Handler
	Logger       *zap.Logger
	MaxUploadMB  int
}

type capabilityProbe interface {
	ReconstructionAvailable() bool
	ReconstructionVersion() string
}

// Routes registers every handler on router.
func (s *Server) Routes(router *gin.Engine) {
	router.GET("/health", s.handleHealth)
	router.GET("/recon/status", s.handleReconStatus)
	router.POST("/ocr", s.handleOCR)
	router.POST("/presign", s.handlePresign)
	router.POST("/api/v1/extract", s.handleExtract)
	router.GET("/api/v1/jobs/:id", s.handleGetJob)
	router.POST("/events/batch", s.handleEventBatch)
}

// handleEventBatch accepts a batch of object-upload event records and
// routes each to the async or synchronous OCR path.
func (s *Server) handleEventBatch(c *gin.Context) {
	var body struct {
		Records []struct {
			Bucket string `json:"bucket"`
			Key    string `json:"key"`
		} `json:"records"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.EventTrigger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event trigger handler unavailable"})
		return
	}

	records := make([]eventtrigger.Record, 0, len(body.Records))
	for _, r := range body.Records {
		records = append(records, eventtrigger.Record{Bucket: r.Bucket, Key: r.Key})
	}

	result := s.EventTrigger.HandleBatch(c.Request.Context(), records, requestIDFor(c))
	status := http.StatusOK
	if result.Status != "ok" {
		status = http.StatusMultiStatus
	}
	c.JSON(status, result)
}

func (s *Server) handleHealth(c *gin.Context) {
	storeHealthy := true
	if s.ObjectStore != nil {
		storeHealthy = s.ObjectStore.Health(c.Request.Context())
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"service":      "docintel",
		"object_store": storeHealthy,
	})
}

func (s *Server) handleReconStatus(c *gin.Context) {
	if s.Capabilities == nil {
		c.JSON(http.StatusOK, gin.H{"available": false, "version": "not-installed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"available": s.Capabilities.ReconstructionAvailable(),
		"version":   s.Capabilities.ReconstructionVersion(),
	})
}

// handleOCR accepts a multipart image upload and runs the standard
// iterative pipeline, returning the response inline.
func (s *Server) handleOCR(c *gin.Context) {
	requestID := requestIDFor(c)
	data, filename, contentType, err := readUpload(c)
	if err != nil {
		respondErr(c, err)
		return
	}

	flags := processor.Flags{
		Reconstruct: c.Query("reconstruct") == "true",
	}
	result, err := s.Dispatcher.ProcessFile(c.Request.Context(), data, filename, contentType, flags, requestID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleExtract is the advanced-path sibling of handleOCR: it runs the
// AI-reconstruction-first flow with pattern-store lookups and falls back
// to the standard pipeline only on provider failure.
func (s *Server) handleExtract(c *gin.Context) {
	requestID := requestIDFor(c)
	data, filename, contentType, err := readUpload(c)
	if err != nil {
		respondErr(c, err)
		return
	}

	flags := processor.Flags{
		Advanced:  true,
		DocType:   c.PostForm("doc_type"),
		Preferred: c.PostForm("preferred_provider"),
	}
	result, err := s.Dispatcher.ProcessFile(c.Request.Context(), data, filename, contentType, flags, requestID)
	if err != nil {
		respondErr(c, err)
		return
	}

	if s.JobStore != nil {
		job := &jobstore.Job{ID: requestID, DocumentType: flags.DocType}
		if createErr := s.JobStore.Create(c.Request.Context(), job); createErr == nil {
			_ = s.JobStore.MarkCompleted(c.Request.Context(), requestID, result)
		}
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetJob(c *gin.Context) {
	id := c.Param("id")
	if s.JobStore == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job store unavailable"})
		return
	}
	job, ok, err := s.JobStore.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handlePresign(c *gin.Context) {
	var req struct {
		Key         string `json:"key" binding:"required"`
		ContentType string `json:"content_type" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ticket, err := s.ObjectStore.IssueUploadTicket(c.Request.Context(), req.Key, req.ContentType, 900)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func readUpload(c *gin.Context) (data []byte, filename, contentType string, err error) {
	file, header, ferr := c.Request.FormFile("file")
	if ferr != nil {
		return nil, "", "", errs.New(errs.KindInput, "api.readUpload", "missing file field")
	}
	defer file.Close()

	data, err = io.ReadAll(file)
	if err != nil {
		return nil, "", "", errs.Wrap(errs.KindInput, "api.readUpload", "failed to read upload", err)
	}
	return data, header.Filename, header.Header.Get("Content-Type"), nil
}

func requestIDFor(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

func respondErr(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if kind, ok := errs.KindOf(err); ok {
		switch kind {
		case errs.KindInput:
			status = http.StatusBadRequest
		case errs.KindConfiguration:
			status = http.StatusServiceUnavailable
		case errs.KindTransient, errs.KindTransport:
			status = http.StatusBadGateway
		}
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
