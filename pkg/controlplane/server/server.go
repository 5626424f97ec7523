/*
Copyright 2025 The Urumi Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package server is the HTTP boundary of the control plane. It carries no
// coordination logic: handlers validate input into typed commands, call the
// orchestrator and translate the error taxonomy into status codes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/audit"
	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/domains"
	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/metrics"
	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/stores"
	errutil "github.com/ThanishaDewangan/Urumi/pkg/controlplane/util/error"
)

// Server serves the control plane API.
type Server struct {
	logger  logr.Logger
	router  chi.Router
	stores  *stores.Service
	domains *domains.Manager
	audit   *audit.Log
	metrics *metrics.Metrics

	// cluster plus the label pair are needed by the metrics snapshot, which
	// tallies live namespace state on every scrape.
	cluster    client.Client
	labelKey   string
	labelValue string
}

// New builds the Server and mounts its routes.
func New(logger logr.Logger, svc *stores.Service, dm *domains.Manager, auditLog *audit.Log, m *metrics.Metrics, cluster client.Client, labelKey, labelValue string) *Server {
	s := &Server{
		logger:     logger,
		stores:     svc,
		domains:    dm,
		audit:      auditLog,
		metrics:    m,
		cluster:    cluster,
		labelKey:   labelKey,
		labelValue: labelValue,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/stores", func(r chi.Router) {
		r.Use(newRateLimiter().middleware)
		r.Get("/", s.handleListStores)
		r.Post("/", s.handleCreateStore)
		r.Get("/audit", s.handleAudit)
		r.Delete("/{id}", s.handleDeleteStore)
	})

	r.Route("/domains", func(r chi.Router) {
		r.Get("/", s.handleListDomains)
		r.Post("/", s.handleAttachDomain)
		r.Get("/{storeId}", s.handleGetDomain)
		r.Delete("/{storeId}", s.handleDetachDomain)
		r.Get("/{storeId}/verification", s.handleDomainVerification)
	})

	r.Get("/metrics", s.handleMetrics)
	r.Get("/healthz", s.handleHealthz)

	s.router = r
	return s
}

// Handler exposes the routed handler, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe runs the server until the context is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error(err, "Failed to encode response body")
	}
}

// writeError translates the error taxonomy into a status code. Anything
// without a canonical code is an internal error; the detail stays in the log.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errutil.CanonicalCode(err) {
	case errutil.BadRequest:
		status = http.StatusBadRequest
	case errutil.NotFound:
		status = http.StatusNotFound
	case errutil.Conflict:
		status = http.StatusConflict
	case errutil.CapacityExhausted:
		status = http.StatusTooManyRequests
	}

	if status == http.StatusInternalServerError {
		s.logger.Error(err, "Request failed")
		s.writeJSON(w, status, map[string]string{"error": "Internal Server Error"})
		return
	}

	var tagged errutil.Error
	errors.As(err, &tagged)
	s.writeJSON(w, status, map[string]string{"error": tagged.Msg})
}
