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

package domains

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	errutil "github.com/ThanishaDewangan/Urumi/pkg/controlplane/util/error"
)

const (
	testPrefix     = "store-"
	testBaseDomain = "urumi.test"
)

func newTestManager(objs ...client.Object) (*Manager, client.Client) {
	c := fake.NewClientBuilder().WithScheme(clientgoscheme.Scheme).WithObjects(objs...).Build()
	m := NewManager(c, testPrefix, testBaseDomain)
	m.verifyAfter = 10 * time.Millisecond
	return m, c
}

func storeNamespace(storeID string) *corev1.Namespace {
	return &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{Name: testPrefix + storeID},
	}
}

func TestAttach(t *testing.T) {
	m, c := newTestManager(storeNamespace("abc12345"))
	ctx := context.Background()

	d, err := m.Attach(ctx, "abc12345", "shop.example.com")
	require.NoError(t, err)

	assert.Equal(t, "abc12345", d.StoreID)
	assert.Equal(t, "shop.example.com", d.Domain)
	assert.Equal(t, "store-abc12345.urumi.test", d.CNAMETarget)
	assert.Equal(t, StatusPending, d.Status)
	assert.NotEmpty(t, d.CreatedAt)

	ingress := &networkingv1.Ingress{}
	require.NoError(t, c.Get(ctx, client.ObjectKey{Namespace: "store-abc12345", Name: customIngressName}, ingress))
	assert.Equal(t, "shop.example.com", ingress.Spec.Rules[0].Host)
	assert.Equal(t, "nginx", ingress.Annotations["kubernetes.io/ingress.class"])
	require.Len(t, ingress.Spec.TLS, 1)
	assert.Equal(t, "tls-shop-example-com", ingress.Spec.TLS[0].SecretName)

	// Simulated verification flips the record after the delay.
	require.Eventually(t, func() bool {
		got, ok := m.Get("abc12345")
		return ok && got.Status == StatusVerified
	}, time.Second, 5*time.Millisecond)
}

func TestAttachReplacesExistingIngress(t *testing.T) {
	m, c := newTestManager(storeNamespace("abc12345"))
	ctx := context.Background()

	_, err := m.Attach(ctx, "abc12345", "old.example.com")
	require.NoError(t, err)
	_, err = m.Attach(ctx, "abc12345", "new.example.com")
	require.NoError(t, err)

	ingress := &networkingv1.Ingress{}
	require.NoError(t, c.Get(ctx, client.ObjectKey{Namespace: "store-abc12345", Name: customIngressName}, ingress))
	assert.Equal(t, "new.example.com", ingress.Spec.Rules[0].Host)

	d, ok := m.Get("abc12345")
	require.True(t, ok)
	assert.Equal(t, "new.example.com", d.Domain)
}

func TestAttachValidation(t *testing.T) {
	m, _ := newTestManager(storeNamespace("abc12345"))
	ctx := context.Background()

	tests := []struct {
		name    string
		storeID string
		domain  string
	}{
		{name: "missing store id", storeID: "", domain: "shop.example.com"},
		{name: "missing domain", storeID: "abc12345", domain: ""},
		{name: "bare word", storeID: "abc12345", domain: "localhost"},
		{name: "scheme prefix", storeID: "abc12345", domain: "https://shop.example.com"},
		{name: "leading dash", storeID: "abc12345", domain: "-bad.example.com"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := m.Attach(ctx, test.storeID, test.domain)
			require.Error(t, err)
			assert.Equal(t, errutil.BadRequest, errutil.CanonicalCode(err))
		})
	}
}

func TestAttachStoreNotFound(t *testing.T) {
	m, _ := newTestManager()

	_, err := m.Attach(context.Background(), "missing1", "shop.example.com")
	require.Error(t, err)
	assert.Equal(t, errutil.NotFound, errutil.CanonicalCode(err))
}

func TestDetach(t *testing.T) {
	m, c := newTestManager(storeNamespace("abc12345"))
	ctx := context.Background()

	_, err := m.Attach(ctx, "abc12345", "shop.example.com")
	require.NoError(t, err)

	require.NoError(t, m.Detach(ctx, "abc12345"))

	err = c.Get(ctx, client.ObjectKey{Namespace: "store-abc12345", Name: customIngressName}, &networkingv1.Ingress{})
	assert.True(t, apierrors.IsNotFound(err))

	_, ok := m.Get("abc12345")
	assert.False(t, ok)
}

func TestDetachUnknownDomain(t *testing.T) {
	m, _ := newTestManager()

	err := m.Detach(context.Background(), "missing1")
	require.Error(t, err)
	assert.Equal(t, errutil.NotFound, errutil.CanonicalCode(err))
}

func TestVerify(t *testing.T) {
	m, _ := newTestManager(storeNamespace("abc12345"))

	_, err := m.Attach(context.Background(), "abc12345", "shop.example.com")
	require.NoError(t, err)

	v, err := m.Verify("abc12345")
	require.NoError(t, err)
	assert.Equal(t, "shop.example.com", v.Domain)
	assert.Equal(t, "store-abc12345.urumi.test", v.CNAMETarget)
	assert.Equal(t, "CNAME", v.RecordType)
	assert.Contains(t, v.Instructions, "shop.example.com")
	assert.Contains(t, v.Instructions, "store-abc12345.urumi.test")

	_, err = m.Verify("missing1")
	assert.Equal(t, errutil.NotFound, errutil.CanonicalCode(err))
}

func TestList(t *testing.T) {
	m, _ := newTestManager(storeNamespace("aaa11111"), storeNamespace("bbb22222"))
	ctx := context.Background()

	assert.Empty(t, m.List())

	_, err := m.Attach(ctx, "aaa11111", "a.example.com")
	require.NoError(t, err)
	_, err = m.Attach(ctx, "bbb22222", "b.example.com")
	require.NoError(t, err)

	assert.Len(t, m.List(), 2)
}
