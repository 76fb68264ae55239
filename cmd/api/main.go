// Command api serves the inbound HTTP surface: document submission,
// presigned uploads, job lookup, and health/capability probes. Router
// setup, CORS middleware, and graceful shutdown follow the teacher's
// cmd/api/main.go almost line for line, generalized from two
// receipt-specific routes to the full external interface.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ocrpipe/docintel/internal/api"
	"github.com/ocrpipe/docintel/internal/bootstrap"
	"github.com/ocrpipe/docintel/internal/common"
	"github.com/ocrpipe/docintel/internal/processor"
	"github.com/ocrpipe/docintel/internal/ratelimit"
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
		logger.Fatal("failed to initialize api", zap.Error(err))
	}
	defer app.Close(context.Background())

	if app.Cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	dispatcher := processor.New(app.Engine, app.ObjectStore, app.Cfg.MaxUploadMB, app.Cfg.OutputPrefix, logger)
	server := &api.Server{
		Dispatcher:   dispatcher,
		ObjectStore:  app.ObjectStore,
		JobStore:     app.JobStore,
		Capabilities: app.Capabilities,
		EventTrigger: app.EventTrigger,
		Logger:       logger,
		MaxUploadMB:  app.Cfg.MaxUploadMB,
	}

	router := gin.Default()
	router.Use(corsMiddleware(app.Cfg.AllowedOrigins))
	router.Use(ratelimit.Middleware(ratelimit.New(12, 5*time.Second)))
	server.Routes(router)

	srv := &http.Server{
		Addr:           ":" + portOrDefault(),
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   3 * time.Minute,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Info("api starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down api")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("api stopped")
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowed["*"] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else if allowed[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-KEY, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func portOrDefault() string {
	if p := os.Getenv("PORT"); p != "" {
		return p
	}
	return "8080"
}
