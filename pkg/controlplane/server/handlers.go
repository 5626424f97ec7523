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

package server

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/store"
	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/stores"
)

type createStoreRequest struct {
	Name   string `json:"name"`
	Engine string `json:"engine"`
}

func (s *Server) handleListStores(w http.ResponseWriter, r *http.Request) {
	list, err := s.stores.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateStore(w http.ResponseWriter, r *http.Request) {
	var req createStoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	// Reject unknown engines here so the orchestrator only ever sees the
	// declared variants.
	engine := store.Engine(req.Engine)
	if engine != store.EngineMedusa && engine != store.EngineWooCommerce {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "engine must be 'medusa' or 'woocommerce'"})
		return
	}

	name := req.Name
	if name == "" {
		name = "New Store"
	}

	created, err := s.stores.Create(r.Context(), stores.CreateCommand{
		Name:      name,
		Engine:    engine,
		Requester: clientIP(r),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteStore(w http.ResponseWriter, r *http.Request) {
	if err := s.stores.Delete(r.Context(), chi.URLParam(r, "id"), clientIP(r)); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if storeID := r.URL.Query().Get("storeId"); storeID != "" {
		s.writeJSON(w, http.StatusOK, s.audit.TailForStore(storeID))
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	s.writeJSON(w, http.StatusOK, s.audit.Tail(limit))
}

func (s *Server) handleListDomains(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.domains.List())
}

func (s *Server) handleGetDomain(w http.ResponseWriter, r *http.Request) {
	d, ok := s.domains.Get(chi.URLParam(r, "storeId"))
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "Custom domain not configured for this store"})
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

type attachDomainRequest struct {
	StoreID string `json:"storeId"`
	Domain  string `json:"domain"`
}

func (s *Server) handleAttachDomain(w http.ResponseWriter, r *http.Request) {
	var req attachDomainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	d, err := s.domains.Attach(r.Context(), req.StoreID, req.Domain)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleDetachDomain(w http.ResponseWriter, r *http.Request) {
	if err := s.domains.Detach(r.Context(), chi.URLParam(r, "storeId")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDomainVerification(w http.ResponseWriter, r *http.Request) {
	v, err := s.domains.Verify(chi.URLParam(r, "storeId"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.metrics.Collect(r.Context(), s.cluster, s.labelKey, s.labelValue)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
