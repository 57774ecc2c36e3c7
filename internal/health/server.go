// Package health serves the operator-facing HTTP endpoints of the relay daemon.
package health

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/insurance-relay/internal/metrics"
)

// StatusSource exposes the cycle counters.
type StatusSource interface {
	Snapshot() metrics.Snapshot
}

// BusyReporter tells whether a cycle is in flight.
type BusyReporter interface {
	Busy() bool
}

// HandlerConfig groups dependencies for the health routes.
type HandlerConfig struct {
	Stats       StatusSource
	Scheduler   BusyReporter
	InputQueue  string
	OutputQueue string
}

type statusResponse struct {
	metrics.Snapshot
	Busy        bool   `json:"busy"`
	InputQueue  string `json:"input_queue"`
	OutputQueue string `json:"output_queue"`
}

// NewRouter builds the gin engine with /health and /status.
func NewRouter(cfg HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/status", func(c *gin.Context) {
		resp := statusResponse{
			InputQueue:  cfg.InputQueue,
			OutputQueue: cfg.OutputQueue,
		}
		if cfg.Stats != nil {
			resp.Snapshot = cfg.Stats.Snapshot()
		}
		if cfg.Scheduler != nil {
			resp.Busy = cfg.Scheduler.Busy()
		}
		c.JSON(http.StatusOK, resp)
	})

	return r
}

// Serve runs handler on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("health server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
