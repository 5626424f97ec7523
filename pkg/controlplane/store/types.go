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

// Package store defines the tenant record and its persistence mapping.
//
// There is no separate database: the tenant namespace is the record. Its
// existence is the record's existence, a label pair selects membership, and a
// fixed set of annotations carries every mutable field.
package store

import (
	"fmt"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Engine identifies the e-commerce stack a store runs.
type Engine string

const (
	EngineMedusa      Engine = "medusa"
	EngineWooCommerce Engine = "woocommerce"
)

// Status is the lifecycle state of a store. Provisioning is the initial
// state; ready and failed are terminal for the reconciler. Deleting is
// declared for API compatibility but currently never assigned: delete removes
// the namespace immediately.
type Status string

const (
	StatusProvisioning Status = "provisioning"
	StatusReady        Status = "ready"
	StatusFailed       Status = "failed"
	StatusDeleting     Status = "deleting"
)

// Annotation keys on the store namespace. AnnotationLock carries the
// provisioning lock token and is internal: it never surfaces in the Store
// projection.
const (
	AnnotationID        = "store.urumi.ai/id"
	AnnotationName      = "store.urumi.ai/name"
	AnnotationEngine    = "store.urumi.ai/engine"
	AnnotationCreatedAt = "store.urumi.ai/created-at"
	AnnotationUpdatedAt = "store.urumi.ai/updated-at"
	AnnotationStatus    = "store.urumi.ai/status"
	AnnotationReason    = "store.urumi.ai/reason"
	AnnotationLock      = "store.urumi.ai/provisioning-lock"
)

// Store is the externally visible tenant record, projected from the
// namespace that backs it.
type Store struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Engine    Engine `json:"engine"`
	Status    Status `json:"status"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`

	StorefrontURL string `json:"storefrontUrl,omitempty"`
	AdminURL      string `json:"adminUrl,omitempty"`
	APIURL        string `json:"apiUrl,omitempty"`

	// Reason is set only when Status is failed.
	Reason string `json:"reason,omitempty"`
}

// NamespaceName returns the deterministic namespace name for a store id.
func NamespaceName(prefix, id string) string {
	return prefix + id
}

// FromNamespace projects a namespace into a Store, or nil if the namespace
// does not carry the store label.
func FromNamespace(ns *corev1.Namespace, prefix, labelKey, baseDomain string) *Store {
	if ns.Labels[labelKey] == "" {
		return nil
	}

	annotations := ns.Annotations
	id := annotations[AnnotationID]
	if id == "" {
		id = strings.TrimPrefix(ns.Name, prefix)
	}
	name := annotations[AnnotationName]
	if name == "" {
		name = id
	}
	engine := Engine(annotations[AnnotationEngine])
	if engine == "" {
		engine = EngineMedusa
	}
	createdAt := annotations[AnnotationCreatedAt]
	if createdAt == "" {
		createdAt = time.Now().UTC().Format(time.RFC3339)
	}
	updatedAt := annotations[AnnotationUpdatedAt]
	if updatedAt == "" {
		updatedAt = createdAt
	}
	status := Status(annotations[AnnotationStatus])
	if status == "" {
		status = StatusProvisioning
	}

	return &Store{
		ID:            id,
		Name:          name,
		Engine:        engine,
		Status:        status,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
		StorefrontURL: fmt.Sprintf("https://store-%s.%s", id, baseDomain),
		AdminURL:      fmt.Sprintf("https://admin-%s.%s", id, baseDomain),
		APIURL:        fmt.Sprintf("https://api-%s.%s", id, baseDomain),
		Reason:        annotations[AnnotationReason],
	}
}

// NewNamespace builds the namespace object that records a new store, with
// the membership label and the initial provisioning annotations.
func NewNamespace(id, name string, engine Engine, prefix, labelKey, labelValue string, now time.Time) *corev1.Namespace {
	stamp := now.UTC().Format(time.RFC3339)
	return &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name: NamespaceName(prefix, id),
			Labels: map[string]string{
				labelKey: labelValue,
			},
			Annotations: map[string]string{
				AnnotationID:        id,
				AnnotationName:      name,
				AnnotationEngine:    string(engine),
				AnnotationCreatedAt: stamp,
				AnnotationUpdatedAt: stamp,
				AnnotationStatus:    string(StatusProvisioning),
			},
		},
	}
}
