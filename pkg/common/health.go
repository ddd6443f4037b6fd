// Package common provides shared utilities for the system.
package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/arl/statsviz"

	"github.com/ahrav/lropoller/pkg/common/logger"
)

// HealthServer implements health check endpoints for Kubernetes probes.
// Readiness follows the ready flag; liveness always answers 200 while the
// process runs.
type HealthServer struct {
	ready  *atomic.Bool
	mux    *http.ServeMux
	server *http.Server
	log    *logger.Logger
}

// NewHealthServer creates a health check server listening on addr. It does
// not start serving until Start is called.
func NewHealthServer(addr string, ready *atomic.Bool, log *logger.Logger) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		ready: ready,
		mux:   mux,
		log:   log,
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}

	mux.HandleFunc("/v1/readiness", hs.readinessHandler)
	mux.HandleFunc("/v1/health", hs.healthHandler)

	return hs
}

// EnableStatsviz mounts the live runtime dashboard under /debug/statsviz/.
// It must be called before Start.
func (h *HealthServer) EnableStatsviz() error {
	if err := statsviz.Register(h.mux); err != nil {
		return fmt.Errorf("registering statsviz: %w", err)
	}
	return nil
}

// Start serves the probe endpoints on a background goroutine.
func (h *HealthServer) Start(ctx context.Context) {
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.log.Error(ctx, "health server error", "error", err)
		}
	}()
}

// Shutdown stops the server.
func (h *HealthServer) Shutdown(ctx context.Context) error { return h.server.Shutdown(ctx) }

// Handler returns the probe handler.
func (h *HealthServer) Handler() http.Handler { return h.server.Handler }

// readinessHandler returns 503 until the ready flag is set.
func (h *HealthServer) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		http.Error(w, "Not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
