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

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// PatchStatus writes a status transition as a minimal merge patch touching
// only the status, reason and updated-at annotations. Writers must never
// send the full metadata object: the monitor and the orchestrator patch the
// same namespace concurrently, and a full overwrite would clobber the other
// side's fields (the lock token in particular).
func PatchStatus(ctx context.Context, c client.Client, nsName string, status Status, reason string) error {
	annotations := map[string]interface{}{
		AnnotationStatus:    string(status),
		AnnotationUpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if reason != "" {
		annotations[AnnotationReason] = reason
	} else {
		// JSON merge patch deletes a key on explicit null.
		annotations[AnnotationReason] = nil
	}

	payload, err := json.Marshal(map[string]interface{}{
		"metadata": map[string]interface{}{
			"annotations": annotations,
		},
	})
	if err != nil {
		return fmt.Errorf("encoding status patch for namespace %s: %w", nsName, err)
	}

	ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: nsName}}
	if err := c.Patch(ctx, ns, client.RawPatch(types.MergePatchType, payload)); err != nil {
		return fmt.Errorf("patching status of namespace %s: %w", nsName, err)
	}
	return nil
}
