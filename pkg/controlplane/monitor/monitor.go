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

// Package monitor runs the health reconciliation loop: a periodic scan of
// every managed store that derives status from live workload state and
// drives the provisioning -> ready | failed state machine. Terminal states
// are never revisited; the provisioning deadline is enforced here, not in
// the provisioner.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/audit"
	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/store"
)

// DefaultInterval is the reconciliation tick period.
const DefaultInterval = 10 * time.Second

// Config carries the monitor's view of the persisted state layout.
type Config struct {
	NamespacePrefix     string
	LabelKey            string
	LabelValue          string
	ProvisioningTimeout time.Duration
}

// Monitor is the reconciliation loop. Construct with New, drive with Start
// and Stop; tests call reconcileAll directly for deterministic ticks.
type Monitor struct {
	client client.Client
	cfg    Config
	audit  *audit.Log

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}

	now func() time.Time
}

// New returns a Monitor over the given cluster client.
func New(c client.Client, cfg Config, auditLog *audit.Log) *Monitor {
	return &Monitor{
		client: c,
		cfg:    cfg,
		audit:  auditLog,
		done:   make(chan struct{}),
		now:    time.Now,
	}
}

// Start launches the loop, consuming the ticker until Stop is called or the
// context is cancelled. Subsequent calls are no-ops.
func (m *Monitor) Start(ctx context.Context, ticker Ticker) {
	m.startOnce.Do(func() {
		ctx, m.cancel = context.WithCancel(ctx)
		logger := log.FromContext(ctx).WithName("monitor")

		go func() {
			logger.Info("Status monitor started")
			defer func() {
				logger.Info("Status monitor stopped")
				ticker.Stop()
				close(m.done)
			}()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.Channel():
					m.reconcileAll(log.IntoContext(ctx, logger))
				}
			}
		}()
	})
}

// Stop cancels the loop and waits for the in-flight tick to finish.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		if m.cancel == nil {
			return
		}
		m.cancel()
		<-m.done
	})
}

// reconcileAll is one tick: scan every labeled namespace and evaluate it.
// Errors on an individual store are logged and do not abort the scan.
func (m *Monitor) reconcileAll(ctx context.Context) {
	logger := log.FromContext(ctx)

	namespaces := &corev1.NamespaceList{}
	if err := m.client.List(ctx, namespaces, client.MatchingLabels{m.cfg.LabelKey: m.cfg.LabelValue}); err != nil {
		logger.Error(err, "Failed to list store namespaces")
		return
	}

	for i := range namespaces.Items {
		ns := &namespaces.Items[i]
		storeID := ns.Annotations[store.AnnotationID]
		if storeID == "" {
			storeID = strings.TrimPrefix(ns.Name, m.cfg.NamespacePrefix)
		}
		if storeID == "" {
			continue
		}
		if err := m.reconcileStore(ctx, storeID); err != nil {
			logger.Error(err, "Failed to reconcile store status", "storeId", storeID)
		}
	}
}

// reconcileStore evaluates one store, short-circuiting in order: terminal
// status, provisioning deadline, live health probe.
func (m *Monitor) reconcileStore(ctx context.Context, storeID string) error {
	nsName := store.NamespaceName(m.cfg.NamespacePrefix, storeID)

	ns := &corev1.Namespace{}
	if err := m.client.Get(ctx, client.ObjectKey{Name: nsName}, ns); err != nil {
		if apierrors.IsNotFound(err) {
			// Deleted between the scan and the evaluation.
			return nil
		}
		return err
	}

	current := store.Status(ns.Annotations[store.AnnotationStatus])
	if current == store.StatusReady || current == store.StatusFailed {
		return nil
	}

	if createdAt := ns.Annotations[store.AnnotationCreatedAt]; createdAt != "" {
		created, err := time.Parse(time.RFC3339, createdAt)
		if err == nil && m.now().Sub(created) > m.cfg.ProvisioningTimeout {
			reason := fmt.Sprintf("Provisioning timeout after %d minutes", int(m.cfg.ProvisioningTimeout.Minutes()))
			if err := store.PatchStatus(ctx, m.client, nsName, store.StatusFailed, reason); err != nil {
				return err
			}
			m.audit.Record(audit.Event{
				Action:    audit.ActionProvisioningFailed,
				StoreID:   storeID,
				StoreName: ns.Annotations[store.AnnotationName],
				Engine:    ns.Annotations[store.AnnotationEngine],
				Reason:    reason,
			})
			return nil
		}
	}

	status, reason := m.checkHealth(ctx, nsName)
	return store.PatchStatus(ctx, m.client, nsName, status, reason)
}
