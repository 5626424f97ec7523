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

// Package config holds the environment-driven configuration surface of the
// control plane. Every knob has a default suitable for local development
// against a kind/minikube cluster.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config is the process configuration, populated from the environment.
type Config struct {
	// Port is the HTTP listening port.
	Port int `env:"PORT" envDefault:"4000"`

	// BaseDomain is the platform domain under which per-store hostnames
	// (store-<id>, admin-<id>, api-<id>) are derived.
	BaseDomain string `env:"BASE_DOMAIN" envDefault:"localtest.me"`

	// StoreNamespacePrefix prefixes the namespace name of every managed store.
	StoreNamespacePrefix string `env:"STORE_NAMESPACE_PREFIX" envDefault:"store-"`

	// StoreLabelKey/StoreLabelValue mark a namespace as a managed store.
	// Membership is decided by this label pair, never by the namespace name,
	// so unrelated cluster namespaces coexist safely.
	StoreLabelKey   string `env:"STORE_LABEL_KEY" envDefault:"store.urumi.ai/enabled"`
	StoreLabelValue string `env:"STORE_LABEL_VALUE" envDefault:"true"`

	// StorageClassName is the storage class for store volumes. Empty selects
	// the cluster default.
	StorageClassName string `env:"STORAGE_CLASS_NAME" envDefault:""`

	// MaxStores is the global capacity ceiling across all tenants.
	MaxStores int `env:"MAX_STORES" envDefault:"100"`

	// ProvisioningTimeoutMinutes bounds how long a store may stay in the
	// provisioning status before the monitor fails it.
	ProvisioningTimeoutMinutes int `env:"PROVISIONING_TIMEOUT_MINUTES" envDefault:"10"`

	// Workload images.
	MedusaAPIImage        string `env:"MEDUSA_API_IMAGE" envDefault:"nginx:alpine"`
	MedusaStorefrontImage string `env:"MEDUSA_STOREFRONT_IMAGE" envDefault:"nginx:alpine"`
	PostgresImage         string `env:"POSTGRES_IMAGE" envDefault:"postgres:15-alpine"`
}

// Load parses the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment configuration: %w", err)
	}
	return cfg, nil
}

// ProvisioningTimeout returns the provisioning deadline as a duration.
func (c *Config) ProvisioningTimeout() time.Duration {
	return time.Duration(c.ProvisioningTimeoutMinutes) * time.Minute
}
