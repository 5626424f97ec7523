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

package provision

import (
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/utils/ptr"
)

const (
	secretName        = "postgres-credentials"
	postgresName      = "postgres"
	apiName           = "medusa-api"
	storefrontName    = "medusa-storefront"
	dataVolumeName    = "data"
	postgresMountPath = "/var/lib/postgresql/data"
)

// nonRootSecurityContext hardens the HTTP workloads. Postgres runs as its own
// uid and keeps the image default.
func nonRootSecurityContext() *corev1.SecurityContext {
	return &corev1.SecurityContext{
		AllowPrivilegeEscalation: ptr.To(false),
		RunAsNonRoot:             ptr.To(true),
		RunAsUser:                ptr.To(int64(1000)),
		Capabilities: &corev1.Capabilities{
			Drop: []corev1.Capability{"ALL"},
		},
	}
}

func resourceQuota(nsName string) *corev1.ResourceQuota {
	return &corev1.ResourceQuota{
		ObjectMeta: metav1.ObjectMeta{Name: "store-quota", Namespace: nsName},
		Spec: corev1.ResourceQuotaSpec{
			Hard: corev1.ResourceList{
				"requests.cpu":           resource.MustParse("2"),
				"requests.memory":        resource.MustParse("4Gi"),
				"limits.cpu":             resource.MustParse("4"),
				"limits.memory":          resource.MustParse("8Gi"),
				"persistentvolumeclaims": resource.MustParse("3"),
				"requests.storage":       resource.MustParse("10Gi"),
			},
		},
	}
}

func limitRange(nsName string) *corev1.LimitRange {
	return &corev1.LimitRange{
		ObjectMeta: metav1.ObjectMeta{Name: "store-limits", Namespace: nsName},
		Spec: corev1.LimitRangeSpec{
			Limits: []corev1.LimitRangeItem{
				{
					Type: corev1.LimitTypeContainer,
					Default: corev1.ResourceList{
						corev1.ResourceCPU:    resource.MustParse("500m"),
						corev1.ResourceMemory: resource.MustParse("512Mi"),
					},
					DefaultRequest: corev1.ResourceList{
						corev1.ResourceCPU:    resource.MustParse("100m"),
						corev1.ResourceMemory: resource.MustParse("128Mi"),
					},
				},
			},
		},
	}
}

// networkPolicy is default-allow: tenant isolation comes from separate
// namespaces, not intra-namespace policy.
func networkPolicy(nsName string) *networkingv1.NetworkPolicy {
	return &networkingv1.NetworkPolicy{
		ObjectMeta: metav1.ObjectMeta{Name: "store-network-policy", Namespace: nsName},
		Spec: networkingv1.NetworkPolicySpec{
			PodSelector: metav1.LabelSelector{},
			PolicyTypes: []networkingv1.PolicyType{
				networkingv1.PolicyTypeIngress,
				networkingv1.PolicyTypeEgress,
			},
			Ingress: []networkingv1.NetworkPolicyIngressRule{{}},
			Egress:  []networkingv1.NetworkPolicyEgressRule{{}},
		},
	}
}

func credentialsSecret(nsName, password string) *corev1.Secret {
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: secretName, Namespace: nsName},
		Type:       corev1.SecretTypeOpaque,
		StringData: map[string]string{
			"POSTGRES_DB":       "medusa",
			"POSTGRES_USER":     "medusa",
			"POSTGRES_PASSWORD": password,
			"DATABASE_URL":      fmt.Sprintf("postgres://medusa:%s@postgres:5432/medusa", password),
		},
	}
}

func volumeClaimSpec(storageClassName string) corev1.PersistentVolumeClaimSpec {
	spec := corev1.PersistentVolumeClaimSpec{
		AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
		Resources: corev1.VolumeResourceRequirements{
			Requests: corev1.ResourceList{
				corev1.ResourceStorage: resource.MustParse("5Gi"),
			},
		},
	}
	if storageClassName != "" {
		spec.StorageClassName = ptr.To(storageClassName)
	}
	return spec
}

func dataVolumeClaim(nsName, storageClassName string) *corev1.PersistentVolumeClaim {
	return &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{Name: "postgres-data", Namespace: nsName},
		Spec:       volumeClaimSpec(storageClassName),
	}
}

func (p *Provisioner) postgresStatefulSet(nsName string) *appsv1.StatefulSet {
	labels := map[string]string{"app": postgresName}
	return &appsv1.StatefulSet{
		ObjectMeta: metav1.ObjectMeta{Name: postgresName, Namespace: nsName},
		Spec: appsv1.StatefulSetSpec{
			ServiceName: postgresName,
			Replicas:    ptr.To(int32(1)),
			Selector:    &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{
						{
							Name:  postgresName,
							Image: p.cfg.PostgresImage,
							Env: []corev1.EnvVar{
								secretEnv("POSTGRES_DB"),
								secretEnv("POSTGRES_USER"),
								secretEnv("POSTGRES_PASSWORD"),
							},
							Ports: []corev1.ContainerPort{{ContainerPort: 5432}},
							VolumeMounts: []corev1.VolumeMount{
								{Name: dataVolumeName, MountPath: postgresMountPath},
							},
							Resources: corev1.ResourceRequirements{
								Requests: corev1.ResourceList{
									corev1.ResourceCPU:    resource.MustParse("250m"),
									corev1.ResourceMemory: resource.MustParse("512Mi"),
								},
								Limits: corev1.ResourceList{
									corev1.ResourceCPU:    resource.MustParse("1000m"),
									corev1.ResourceMemory: resource.MustParse("2Gi"),
								},
							},
							ReadinessProbe: &corev1.Probe{
								ProbeHandler: corev1.ProbeHandler{
									Exec: &corev1.ExecAction{Command: []string{"pg_isready", "-U", "medusa"}},
								},
								InitialDelaySeconds: 5,
								PeriodSeconds:       5,
							},
							LivenessProbe: &corev1.Probe{
								ProbeHandler: corev1.ProbeHandler{
									Exec: &corev1.ExecAction{Command: []string{"pg_isready", "-U", "medusa"}},
								},
								InitialDelaySeconds: 30,
								PeriodSeconds:       10,
							},
						},
					},
				},
			},
			VolumeClaimTemplates: []corev1.PersistentVolumeClaim{
				{
					ObjectMeta: metav1.ObjectMeta{Name: dataVolumeName},
					Spec:       volumeClaimSpec(p.cfg.StorageClassName),
				},
			},
		},
	}
}

func postgresService(nsName string) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: postgresName, Namespace: nsName},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{"app": postgresName},
			Ports: []corev1.ServicePort{
				{Port: 5432, TargetPort: intstr.FromInt32(5432)},
			},
		},
	}
}

func (p *Provisioner) apiDeployment(nsName string) *appsv1.Deployment {
	labels := map[string]string{"app": apiName}
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: apiName, Namespace: nsName},
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To(int32(1)),
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{
						{
							Name:  apiName,
							Image: p.cfg.APIImage,
							Env: []corev1.EnvVar{
								secretEnv("DATABASE_URL"),
								{Name: "NODE_ENV", Value: "production"},
							},
							Ports: []corev1.ContainerPort{{ContainerPort: 80}},
							Resources: corev1.ResourceRequirements{
								Requests: corev1.ResourceList{
									corev1.ResourceCPU:    resource.MustParse("200m"),
									corev1.ResourceMemory: resource.MustParse("256Mi"),
								},
								Limits: corev1.ResourceList{
									corev1.ResourceCPU:    resource.MustParse("500m"),
									corev1.ResourceMemory: resource.MustParse("1Gi"),
								},
							},
							SecurityContext: nonRootSecurityContext(),
							ReadinessProbe: &corev1.Probe{
								ProbeHandler: corev1.ProbeHandler{
									HTTPGet: &corev1.HTTPGetAction{Path: "/", Port: intstr.FromInt32(80)},
								},
								InitialDelaySeconds: 10,
								PeriodSeconds:       5,
								FailureThreshold:    3,
							},
							LivenessProbe: &corev1.Probe{
								ProbeHandler: corev1.ProbeHandler{
									HTTPGet: &corev1.HTTPGetAction{Path: "/", Port: intstr.FromInt32(80)},
								},
								InitialDelaySeconds: 30,
								PeriodSeconds:       10,
							},
						},
					},
				},
			},
		},
	}
}

func apiService(nsName string) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: apiName, Namespace: nsName},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{"app": apiName},
			Ports: []corev1.ServicePort{
				{Port: 80, TargetPort: intstr.FromInt32(80)},
			},
		},
	}
}

func (p *Provisioner) storefrontDeployment(nsName string) *appsv1.Deployment {
	labels := map[string]string{"app": storefrontName}
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: storefrontName, Namespace: nsName},
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To(int32(1)),
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{
						{
							Name:  storefrontName,
							Image: p.cfg.StorefrontImage,
							Env: []corev1.EnvVar{
								{Name: "MEDUSA_BACKEND_URL", Value: "http://medusa-api"},
							},
							Ports: []corev1.ContainerPort{{ContainerPort: 80}},
							Resources: corev1.ResourceRequirements{
								Requests: corev1.ResourceList{
									corev1.ResourceCPU:    resource.MustParse("100m"),
									corev1.ResourceMemory: resource.MustParse("128Mi"),
								},
								Limits: corev1.ResourceList{
									corev1.ResourceCPU:    resource.MustParse("300m"),
									corev1.ResourceMemory: resource.MustParse("512Mi"),
								},
							},
							SecurityContext: nonRootSecurityContext(),
							ReadinessProbe: &corev1.Probe{
								ProbeHandler: corev1.ProbeHandler{
									HTTPGet: &corev1.HTTPGetAction{Path: "/", Port: intstr.FromInt32(80)},
								},
								InitialDelaySeconds: 10,
								PeriodSeconds:       5,
							},
							LivenessProbe: &corev1.Probe{
								ProbeHandler: corev1.ProbeHandler{
									HTTPGet: &corev1.HTTPGetAction{Path: "/", Port: intstr.FromInt32(80)},
								},
								InitialDelaySeconds: 30,
								PeriodSeconds:       10,
							},
						},
					},
				},
			},
		},
	}
}

func storefrontService(nsName string) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: storefrontName, Namespace: nsName},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{"app": storefrontName},
			Ports: []corev1.ServicePort{
				{Port: 80, TargetPort: intstr.FromInt32(80)},
			},
		},
	}
}

func ingressFor(nsName, name, host, serviceName string) *networkingv1.Ingress {
	return &networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: nsName},
		Spec: networkingv1.IngressSpec{
			Rules: []networkingv1.IngressRule{
				{
					Host: host,
					IngressRuleValue: networkingv1.IngressRuleValue{
						HTTP: &networkingv1.HTTPIngressRuleValue{
							Paths: []networkingv1.HTTPIngressPath{
								{
									Path:     "/",
									PathType: ptr.To(networkingv1.PathTypePrefix),
									Backend: networkingv1.IngressBackend{
										Service: &networkingv1.IngressServiceBackend{
											Name: serviceName,
											Port: networkingv1.ServiceBackendPort{Number: 80},
										},
									},
								},
							},
						},
					},
				},
			},
		},
	}
}

func storefrontIngress(nsName, storeID, baseDomain string) *networkingv1.Ingress {
	host := fmt.Sprintf("store-%s.%s", storeID, baseDomain)
	return ingressFor(nsName, storefrontName, host, storefrontName)
}

func apiIngress(nsName, storeID, baseDomain string) *networkingv1.Ingress {
	host := fmt.Sprintf("api-%s.%s", storeID, baseDomain)
	return ingressFor(nsName, apiName, host, apiName)
}

func secretEnv(key string) corev1.EnvVar {
	return corev1.EnvVar{
		Name: key,
		ValueFrom: &corev1.EnvVarSource{
			SecretKeyRef: &corev1.SecretKeySelector{
				LocalObjectReference: corev1.LocalObjectReference{Name: secretName},
				Key:                  key,
			},
		},
	}
}
