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

package monitor

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/store"
)

// checkHealth probes the workloads of one store namespace and derives a
// status. Workload readiness is checked before pod phase so the reason names
// the coarsest under-ready unit. A NotFound anywhere means the namespace is
// gone (failed); any other probe error reports provisioning rather than
// flapping to failed on a transient API error.
func (m *Monitor) checkHealth(ctx context.Context, nsName string) (store.Status, string) {
	deployments := &appsv1.DeploymentList{}
	if err := m.client.List(ctx, deployments, client.InNamespace(nsName)); err != nil {
		return classifyProbeError(err)
	}
	for i := range deployments.Items {
		d := &deployments.Items[i]
		desired := int32(1)
		if d.Spec.Replicas != nil {
			desired = *d.Spec.Replicas
		}
		if d.Status.ReadyReplicas < desired {
			return store.StatusProvisioning,
				fmt.Sprintf("Deployment %s not ready (%d/%d)", d.Name, d.Status.ReadyReplicas, desired)
		}
	}

	statefulSets := &appsv1.StatefulSetList{}
	if err := m.client.List(ctx, statefulSets, client.InNamespace(nsName)); err != nil {
		return classifyProbeError(err)
	}
	for i := range statefulSets.Items {
		s := &statefulSets.Items[i]
		desired := int32(1)
		if s.Spec.Replicas != nil {
			desired = *s.Spec.Replicas
		}
		if s.Status.ReadyReplicas < desired {
			return store.StatusProvisioning,
				fmt.Sprintf("StatefulSet %s not ready (%d/%d)", s.Name, s.Status.ReadyReplicas, desired)
		}
	}

	pods := &corev1.PodList{}
	if err := m.client.List(ctx, pods, client.InNamespace(nsName)); err != nil {
		return classifyProbeError(err)
	}
	for i := range pods.Items {
		pod := &pods.Items[i]
		switch pod.Status.Phase {
		case corev1.PodFailed, corev1.PodUnknown:
			return store.StatusFailed, fmt.Sprintf("Pod %s in %s state", pod.Name, pod.Status.Phase)
		case corev1.PodRunning:
		default:
			return store.StatusProvisioning, fmt.Sprintf("Pod %s in %s state", pod.Name, pod.Status.Phase)
		}

		if reason, ready := podReady(pod); !ready {
			return store.StatusProvisioning, fmt.Sprintf("Pod %s not ready: %s", pod.Name, reason)
		}
	}

	return store.StatusReady, ""
}

func podReady(pod *corev1.Pod) (string, bool) {
	for _, cond := range pod.Status.Conditions {
		if cond.Type != corev1.PodReady {
			continue
		}
		if cond.Status == corev1.ConditionTrue {
			return "", true
		}
		if cond.Reason != "" {
			return cond.Reason, false
		}
		return "Readiness probe not passed", false
	}
	return "Readiness probe not passed", false
}

func classifyProbeError(err error) (store.Status, string) {
	if apierrors.IsNotFound(err) {
		return store.StatusFailed, "Namespace not found"
	}
	return store.StatusProvisioning, "Checking resources..."
}
