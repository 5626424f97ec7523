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

// Package stores is the store lifecycle orchestrator: the create, list and
// delete operations that sequence validation, the provisioning lock, the
// namespace create and the resource provisioner, enforce global capacity and
// emit lifecycle events.
package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/audit"
	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/lock"
	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/metrics"
	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/provision"
	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/store"
	errutil "github.com/ThanishaDewangan/Urumi/pkg/controlplane/util/error"
)

// Config carries the orchestrator's slice of the process configuration.
type Config struct {
	NamespacePrefix string
	LabelKey        string
	LabelValue      string
	BaseDomain      string
	MaxStores       int
}

// Service orchestrates the store lifecycle.
type Service struct {
	client      client.Client
	cfg         Config
	lock        *lock.Lock
	provisioner *provision.Provisioner
	audit       *audit.Log
	metrics     *metrics.Metrics

	now   func() time.Time
	newID func() string
}

// NewService wires the orchestrator's collaborators.
func NewService(c client.Client, cfg Config, lk *lock.Lock, p *provision.Provisioner, auditLog *audit.Log, m *metrics.Metrics) *Service {
	return &Service{
		client:      c,
		cfg:         cfg,
		lock:        lk,
		provisioner: p,
		audit:       auditLog,
		metrics:     m,
		now:         time.Now,
		newID:       newStoreID,
	}
}

// newStoreID returns a short opaque id: the first group of a UUID.
func newStoreID() string {
	return uuid.NewString()[:8]
}

// CreateCommand is the validated input of Create.
type CreateCommand struct {
	Name      string
	Engine    store.Engine
	Requester string
}

// Create provisions a new store. The provisioning lock is held for the whole
// critical section and released on every exit path; the namespace create is
// the one atomic step that persists the record.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*store.Store, error) {
	logger := log.FromContext(ctx)

	switch cmd.Engine {
	case store.EngineMedusa:
	case store.EngineWooCommerce:
		return nil, errutil.Error{Code: errutil.BadRequest, Msg: "WooCommerce engine is not yet implemented"}
	default:
		return nil, errutil.Error{Code: errutil.BadRequest, Msg: fmt.Sprintf("unsupported engine %q", cmd.Engine)}
	}

	existing, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(existing) >= s.cfg.MaxStores {
		return nil, errutil.Error{
			Code: errutil.CapacityExhausted,
			Msg: fmt.Sprintf("Maximum store limit reached (%d). Please delete some stores before creating new ones.",
				s.cfg.MaxStores),
		}
	}

	id := s.newID()
	nsName := store.NamespaceName(s.cfg.NamespacePrefix, id)

	handle, err := s.lock.Acquire(ctx, id, cmd.Requester)
	if err != nil {
		return nil, fmt.Errorf("acquiring provisioning lock for store %s: %w", id, err)
	}
	defer handle.Release(ctx)

	ns := store.NewNamespace(id, cmd.Name, cmd.Engine, s.cfg.NamespacePrefix, s.cfg.LabelKey, s.cfg.LabelValue, s.now())
	if err := s.client.Create(ctx, ns); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return nil, errutil.Error{Code: errutil.Conflict, Msg: "Store namespace already exists"}
		}
		return nil, fmt.Errorf("creating namespace %s: %w", nsName, err)
	}

	if err := s.provisioner.Provision(ctx, nsName, id); err != nil {
		logger.Error(err, "Failed to provision store", "storeId", id)
		if perr := store.PatchStatus(ctx, s.client, nsName, store.StatusFailed, err.Error()); perr != nil {
			logger.Error(perr, "Failed to record provisioning failure", "storeId", id)
		} else {
			s.audit.Record(audit.Event{
				Action:    audit.ActionProvisioningFailed,
				StoreID:   id,
				StoreName: cmd.Name,
				Engine:    string(cmd.Engine),
				Reason:    err.Error(),
				IP:        cmd.Requester,
			})
		}
		return nil, err
	}

	s.metrics.IncStoresCreated()
	s.audit.Record(audit.Event{
		Action:    audit.ActionStoreCreated,
		StoreID:   id,
		StoreName: cmd.Name,
		Engine:    string(cmd.Engine),
		IP:        cmd.Requester,
	})

	created := &corev1.Namespace{}
	if err := s.client.Get(ctx, client.ObjectKey{Name: nsName}, created); err != nil {
		return nil, fmt.Errorf("reading back namespace %s: %w", nsName, err)
	}
	projected := store.FromNamespace(created, s.cfg.NamespacePrefix, s.cfg.LabelKey, s.cfg.BaseDomain)
	if projected == nil {
		return nil, errutil.Error{Code: errutil.Internal, Msg: "failed to build store from namespace"}
	}
	return projected, nil
}

// List projects every labeled namespace into a Store. Pure read.
func (s *Service) List(ctx context.Context) ([]store.Store, error) {
	namespaces := &corev1.NamespaceList{}
	if err := s.client.List(ctx, namespaces, client.MatchingLabels{s.cfg.LabelKey: s.cfg.LabelValue}); err != nil {
		return nil, fmt.Errorf("listing store namespaces: %w", err)
	}

	out := make([]store.Store, 0, len(namespaces.Items))
	for i := range namespaces.Items {
		if projected := store.FromNamespace(&namespaces.Items[i], s.cfg.NamespacePrefix, s.cfg.LabelKey, s.cfg.BaseDomain); projected != nil {
			out = append(out, *projected)
		}
	}
	return out, nil
}

// Delete removes the store namespace, cascading deletion of everything in
// it. Deleting a store that does not exist succeeds: delete is idempotent.
func (s *Service) Delete(ctx context.Context, id, requester string) error {
	nsName := store.NamespaceName(s.cfg.NamespacePrefix, id)

	// Best-effort read of the display name for the audit trail.
	var storeName string
	existing := &corev1.Namespace{}
	if err := s.client.Get(ctx, client.ObjectKey{Name: nsName}, existing); err == nil {
		storeName = existing.Annotations[store.AnnotationName]
	}

	ns := &corev1.Namespace{}
	ns.Name = nsName
	if err := s.client.Delete(ctx, ns); err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("deleting namespace %s: %w", nsName, err)
	}

	s.metrics.IncStoresDeleted()
	s.audit.Record(audit.Event{
		Action:    audit.ActionStoreDeleted,
		StoreID:   id,
		StoreName: storeName,
		IP:        requester,
	})
	return nil
}
