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

// Package runner wires the control plane: configuration, cluster client,
// shared state objects (audit log, metrics, lock), the status monitor and
// the HTTP server.
package runner

import (
	"context"
	"flag"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/audit"
	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/config"
	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/domains"
	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/lock"
	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/metrics"
	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/monitor"
	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/provision"
	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/server"
	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/stores"
	"github.com/ThanishaDewangan/Urumi/version"
)

// Run starts the control plane and blocks until the context is cancelled.
func Run(ctx context.Context) error {
	opts := zap.Options{}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()
	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	logger := ctrl.Log.WithName("controlplane")
	logger.Info("Starting store control plane", "build", version.BuildRef, "commit", version.CommitSHA)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// In-cluster config when running inside Kubernetes, ~/.kube/config
	// otherwise.
	restConfig, err := ctrl.GetConfig()
	if err != nil {
		return fmt.Errorf("resolving cluster configuration: %w", err)
	}
	cluster, err := client.New(restConfig, client.Options{Scheme: clientgoscheme.Scheme})
	if err != nil {
		return fmt.Errorf("constructing cluster client: %w", err)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	auditLog := audit.NewLog(ctrl.Log.WithName("audit"), audit.DefaultCapacity)

	provisioner := provision.New(cluster, provision.Config{
		BaseDomain:       cfg.BaseDomain,
		StorageClassName: cfg.StorageClassName,
		APIImage:         cfg.MedusaAPIImage,
		StorefrontImage:  cfg.MedusaStorefrontImage,
		PostgresImage:    cfg.PostgresImage,
	})

	svc := stores.NewService(cluster, stores.Config{
		NamespacePrefix: cfg.StoreNamespacePrefix,
		LabelKey:        cfg.StoreLabelKey,
		LabelValue:      cfg.StoreLabelValue,
		BaseDomain:      cfg.BaseDomain,
		MaxStores:       cfg.MaxStores,
	}, lock.New(cluster, cfg.StoreNamespacePrefix), provisioner, auditLog, m)

	mon := monitor.New(cluster, monitor.Config{
		NamespacePrefix:     cfg.StoreNamespacePrefix,
		LabelKey:            cfg.StoreLabelKey,
		LabelValue:          cfg.StoreLabelValue,
		ProvisioningTimeout: cfg.ProvisioningTimeout(),
	}, auditLog)
	mon.Start(ctrl.LoggerInto(ctx, logger), monitor.NewTimeTicker(monitor.DefaultInterval))
	defer mon.Stop()

	srv := server.New(
		ctrl.Log.WithName("http"),
		svc,
		domains.NewManager(cluster, cfg.StoreNamespacePrefix, cfg.BaseDomain),
		auditLog,
		m,
		cluster,
		cfg.StoreLabelKey,
		cfg.StoreLabelValue,
	)
	return srv.ListenAndServe(ctx, fmt.Sprintf(":%d", cfg.Port))
}
