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

// Package domains manages custom storefront domains: an in-memory record per
// store plus a dedicated ingress carrying the customer's hostname and TLS
// configuration. Records are process-local and lost on restart.
package domains

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/store"
	errutil "github.com/ThanishaDewangan/Urumi/pkg/controlplane/util/error"
)

const customIngressName = "medusa-storefront-custom"

// DefaultVerifyAfter is how long after configuration a domain flips from
// pending to verified. Verification is simulated; a real deployment would
// check DNS.
const DefaultVerifyAfter = 5 * time.Second

var domainPattern = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)

// Status of a custom domain record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusError    Status = "error"
)

// Domain is one custom-domain record.
type Domain struct {
	StoreID     string `json:"storeId"`
	Domain      string `json:"domain"`
	CNAMETarget string `json:"cnameTarget"`
	Status      Status `json:"status"`
	CreatedAt   string `json:"createdAt"`
}

// Verification is the DNS setup guidance for a configured domain.
type Verification struct {
	Domain       string `json:"domain"`
	CNAMETarget  string `json:"cnameTarget"`
	RecordType   string `json:"recordType"`
	Instructions string `json:"instructions"`
}

// Manager owns the custom-domain records and the backing ingresses.
type Manager struct {
	client          client.Client
	namespacePrefix string
	baseDomain      string
	verifyAfter     time.Duration

	mu      sync.RWMutex
	domains map[string]Domain
}

// NewManager returns a Manager with the default verification delay.
func NewManager(c client.Client, namespacePrefix, baseDomain string) *Manager {
	return &Manager{
		client:          c,
		namespacePrefix: namespacePrefix,
		baseDomain:      baseDomain,
		verifyAfter:     DefaultVerifyAfter,
		domains:         make(map[string]Domain),
	}
}

// List returns every configured domain.
func (m *Manager) List() []Domain {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Domain, 0, len(m.domains))
	for _, d := range m.domains {
		out = append(out, d)
	}
	return out
}

// Get returns the domain configured for a store, if any.
func (m *Manager) Get(storeID string) (Domain, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.domains[storeID]
	return d, ok
}

// Attach configures a custom domain for a store: validates the hostname,
// checks the store exists, creates or updates the custom ingress and records
// the domain as pending until verification fires.
func (m *Manager) Attach(ctx context.Context, storeID, domain string) (Domain, error) {
	if storeID == "" || domain == "" {
		return Domain{}, errutil.Error{Code: errutil.BadRequest, Msg: "storeId and domain are required"}
	}
	if !domainPattern.MatchString(domain) {
		return Domain{}, errutil.Error{Code: errutil.BadRequest, Msg: "Invalid domain format"}
	}

	nsName := store.NamespaceName(m.namespacePrefix, storeID)
	ns := &corev1.Namespace{}
	if err := m.client.Get(ctx, client.ObjectKey{Name: nsName}, ns); err != nil {
		if apierrors.IsNotFound(err) {
			return Domain{}, errutil.Error{Code: errutil.NotFound, Msg: "Store not found"}
		}
		return Domain{}, fmt.Errorf("reading namespace %s: %w", nsName, err)
	}

	if err := m.ensureIngress(ctx, nsName, domain); err != nil {
		return Domain{}, err
	}

	record := Domain{
		StoreID:     storeID,
		Domain:      domain,
		CNAMETarget: fmt.Sprintf("store-%s.%s", storeID, m.baseDomain),
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}

	m.mu.Lock()
	m.domains[storeID] = record
	m.mu.Unlock()

	time.AfterFunc(m.verifyAfter, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if d, ok := m.domains[storeID]; ok && d.Domain == domain {
			d.Status = StatusVerified
			m.domains[storeID] = d
		}
	})

	return record, nil
}

// Detach removes the custom domain record and its ingress. A missing ingress
// is ignored; a missing record is NotFound.
func (m *Manager) Detach(ctx context.Context, storeID string) error {
	m.mu.Lock()
	_, ok := m.domains[storeID]
	m.mu.Unlock()
	if !ok {
		return errutil.Error{Code: errutil.NotFound, Msg: "Custom domain not configured"}
	}

	ingress := &networkingv1.Ingress{}
	ingress.Name = customIngressName
	ingress.Namespace = store.NamespaceName(m.namespacePrefix, storeID)
	if err := m.client.Delete(ctx, ingress); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("deleting custom domain ingress: %w", err)
	}

	m.mu.Lock()
	delete(m.domains, storeID)
	m.mu.Unlock()
	return nil
}

// Verify returns the DNS record a customer must create for their domain.
func (m *Manager) Verify(storeID string) (Verification, error) {
	m.mu.RLock()
	d, ok := m.domains[storeID]
	m.mu.RUnlock()
	if !ok {
		return Verification{}, errutil.Error{Code: errutil.NotFound, Msg: "Custom domain not configured"}
	}

	return Verification{
		Domain:      d.Domain,
		CNAMETarget: d.CNAMETarget,
		RecordType:  "CNAME",
		Instructions: fmt.Sprintf("Create a CNAME record for %s pointing to %s",
			d.Domain, d.CNAMETarget),
	}, nil
}

func (m *Manager) ensureIngress(ctx context.Context, nsName, domain string) error {
	spec := customIngressSpec(domain)

	existing := &networkingv1.Ingress{}
	err := m.client.Get(ctx, client.ObjectKey{Name: customIngressName, Namespace: nsName}, existing)
	if err == nil {
		existing.Spec = spec
		if err := m.client.Update(ctx, existing); err != nil {
			return fmt.Errorf("updating custom domain ingress: %w", err)
		}
		return nil
	}
	if !apierrors.IsNotFound(err) {
		return fmt.Errorf("reading custom domain ingress: %w", err)
	}

	ingress := &networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{
			Name:      customIngressName,
			Namespace: nsName,
			Annotations: map[string]string{
				"kubernetes.io/ingress.class":    "nginx",
				"cert-manager.io/cluster-issuer": "letsencrypt-prod",
			},
		},
		Spec: spec,
	}
	if err := m.client.Create(ctx, ingress); err != nil {
		return fmt.Errorf("creating custom domain ingress: %w", err)
	}
	return nil
}

func customIngressSpec(domain string) networkingv1.IngressSpec {
	return networkingv1.IngressSpec{
		Rules: []networkingv1.IngressRule{
			{
				Host: domain,
				IngressRuleValue: networkingv1.IngressRuleValue{
					HTTP: &networkingv1.HTTPIngressRuleValue{
						Paths: []networkingv1.HTTPIngressPath{
							{
								Path:     "/",
								PathType: ptr.To(networkingv1.PathTypePrefix),
								Backend: networkingv1.IngressBackend{
									Service: &networkingv1.IngressServiceBackend{
										Name: "medusa-storefront",
										Port: networkingv1.ServiceBackendPort{Number: 80},
									},
								},
							},
						},
					},
				},
			},
		},
		TLS: []networkingv1.IngressTLS{
			{
				Hosts:      []string{domain},
				SecretName: "tls-" + strings.ReplaceAll(domain, ".", "-"),
			},
		},
	}
}
