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

// Package provision materializes the fixed per-store infrastructure template
// inside an already-created namespace.
//
// The sequence is idempotent: every create tolerates AlreadyExists, so an
// attempt that failed partway can be retried from the top without erroring on
// the resources that already landed. The order is load-bearing: quota and
// limit range before workloads, the credentials secret before the database
// that references it, services before the ingresses that name them.
package provision

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// Config carries the template parameters of the provisioner.
type Config struct {
	BaseDomain       string
	StorageClassName string

	APIImage        string
	StorefrontImage string
	PostgresImage   string
}

// Provisioner creates the Medusa resource template for a store.
type Provisioner struct {
	client client.Client
	cfg    Config
}

// New returns a Provisioner writing through the given cluster client.
func New(c client.Client, cfg Config) *Provisioner {
	return &Provisioner{client: c, cfg: cfg}
}

// Provision creates the full template in dependency order. Any error other
// than AlreadyExists aborts the sequence and propagates to the caller, which
// records the failure against the store's status.
func (p *Provisioner) Provision(ctx context.Context, nsName, storeID string) error {
	logger := log.FromContext(ctx).WithValues("namespace", nsName, "storeId", storeID)

	password, err := generatePassword()
	if err != nil {
		return fmt.Errorf("generating database password: %w", err)
	}

	// On a re-run the secret create below is a no-op, so the password already
	// provisioned stays authoritative.
	objects := []client.Object{
		resourceQuota(nsName),
		limitRange(nsName),
		networkPolicy(nsName),
		credentialsSecret(nsName, password),
		dataVolumeClaim(nsName, p.cfg.StorageClassName),
		p.postgresStatefulSet(nsName),
		postgresService(nsName),
		p.apiDeployment(nsName),
		apiService(nsName),
		p.storefrontDeployment(nsName),
		storefrontService(nsName),
		storefrontIngress(nsName, storeID, p.cfg.BaseDomain),
		apiIngress(nsName, storeID, p.cfg.BaseDomain),
	}

	for _, obj := range objects {
		if err := p.create(ctx, obj); err != nil {
			return err
		}
	}

	logger.Info("Store resources provisioned")
	return nil
}

func (p *Provisioner) create(ctx context.Context, obj client.Object) error {
	if err := p.client.Create(ctx, obj); err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("creating %T %s: %w", obj, obj.GetName(), err)
	}
	return nil
}

// generatePassword derives a 20-character alphanumeric secret from random
// bytes.
func generatePassword() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	encoded := base64.StdEncoding.EncodeToString(raw)
	var b strings.Builder
	for _, r := range encoded {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() == 20 {
			break
		}
	}
	return b.String(), nil
}
