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

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/audit"
	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/domains"
	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/lock"
	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/metrics"
	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/provision"
	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/store"
	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/stores"
)

const (
	testPrefix     = "store-"
	testLabelKey   = "store.urumi.ai/enabled"
	testLabelValue = "true"
	testBaseDomain = "urumi.test"
)

func newTestServer(t *testing.T, maxStores int, objs ...client.Object) (*Server, client.Client) {
	t.Helper()

	c := fake.NewClientBuilder().WithScheme(clientgoscheme.Scheme).WithObjects(objs...).Build()

	auditLog := audit.NewLog(logr.Discard(), 100)
	m := metrics.New(prometheus.NewRegistry())
	p := provision.New(c, provision.Config{
		BaseDomain:      testBaseDomain,
		APIImage:        "nginx:alpine",
		StorefrontImage: "nginx:alpine",
		PostgresImage:   "postgres:15-alpine",
	})
	svc := stores.NewService(c, stores.Config{
		NamespacePrefix: testPrefix,
		LabelKey:        testLabelKey,
		LabelValue:      testLabelValue,
		BaseDomain:      testBaseDomain,
		MaxStores:       maxStores,
	}, lock.New(c, testPrefix), p, auditLog, m)

	srv := New(
		logr.Discard(),
		svc,
		domains.NewManager(c, testPrefix, testBaseDomain),
		auditLog,
		m,
		c,
		testLabelKey,
		testLabelValue,
	)
	return srv, c
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func existingStore(storeID, status string) *corev1.Namespace {
	return &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name:   testPrefix + storeID,
			Labels: map[string]string{testLabelKey: testLabelValue},
			Annotations: map[string]string{
				store.AnnotationID:        storeID,
				store.AnnotationName:      "Existing",
				store.AnnotationEngine:    "medusa",
				store.AnnotationStatus:    status,
				store.AnnotationCreatedAt: "2026-01-02T03:04:05Z",
				store.AnnotationUpdatedAt: "2026-01-02T03:04:05Z",
			},
		},
	}
}

func TestCreateStoreEndpoint(t *testing.T) {
	srv, c := newTestServer(t, 10)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/stores", `{"name":"Acme","engine":"medusa"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created store.Store
	decode(t, rec, &created)
	assert.Len(t, created.ID, 8)
	assert.Equal(t, "Acme", created.Name)
	assert.Equal(t, store.StatusProvisioning, created.Status)
	assert.Equal(t, "https://store-"+created.ID+"."+testBaseDomain, created.StorefrontURL)

	ns := &corev1.Namespace{}
	require.NoError(t, c.Get(context.Background(), client.ObjectKey{Name: testPrefix + created.ID}, ns))
}

func TestCreateStoreDefaultsName(t *testing.T) {
	srv, _ := newTestServer(t, 10)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/stores", `{"engine":"medusa"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created store.Store
	decode(t, rec, &created)
	assert.Equal(t, "New Store", created.Name)
}

func TestCreateStoreRejectsBadEngine(t *testing.T) {
	srv, _ := newTestServer(t, 10)

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{
			name:    "unknown engine",
			body:    `{"name":"Shop","engine":"shopify"}`,
			wantMsg: "engine must be 'medusa' or 'woocommerce'",
		},
		{
			name:    "woocommerce is declared but unimplemented",
			body:    `{"name":"Shop","engine":"woocommerce"}`,
			wantMsg: "WooCommerce engine is not yet implemented",
		},
		{
			name:    "malformed body",
			body:    `{"name":`,
			wantMsg: "invalid request body",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rec := doJSON(t, srv.Handler(), http.MethodPost, "/stores", test.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var body map[string]string
			decode(t, rec, &body)
			assert.Equal(t, test.wantMsg, body["error"])
		})
	}
}

func TestCreateStoreCapacity(t *testing.T) {
	srv, _ := newTestServer(t, 1, existingStore("aaa11111", "ready"))

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/stores", `{"name":"Over","engine":"medusa"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var body map[string]string
	decode(t, rec, &body)
	assert.Contains(t, body["error"], "Maximum store limit reached (1)")
}

func TestListStoresEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, 10,
		existingStore("aaa11111", "ready"),
		existingStore("bbb22222", "provisioning"),
	)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/stores", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list []store.Store
	decode(t, rec, &list)
	assert.Len(t, list, 2)
}

func TestDeleteStoreEndpoint(t *testing.T) {
	srv, c := newTestServer(t, 10, existingStore("aaa11111", "ready"))

	rec := doJSON(t, srv.Handler(), http.MethodDelete, "/stores/aaa11111", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	err := c.Get(context.Background(), client.ObjectKey{Name: "store-aaa11111"}, &corev1.Namespace{})
	assert.Error(t, err)

	// Deleting again still succeeds.
	rec = doJSON(t, srv.Handler(), http.MethodDelete, "/stores/aaa11111", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAuditEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, 10)

	for _, name := range []string{"First", "Second"} {
		rec := doJSON(t, srv.Handler(), http.MethodPost, "/stores", `{"name":"`+name+`","engine":"medusa"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/stores/audit", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var events []audit.Event
	decode(t, rec, &events)
	require.Len(t, events, 2)
	assert.Equal(t, "Second", events[0].StoreName)
	assert.Equal(t, "First", events[1].StoreName)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/stores/audit?limit=1", "")
	decode(t, rec, &events)
	assert.Len(t, events, 1)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/stores/audit?storeId="+events[0].StoreID, "")
	decode(t, rec, &events)
	require.Len(t, events, 1)
	assert.Equal(t, "Second", events[0].StoreName)
}

func TestDomainEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, 10, existingStore("aaa11111", "ready"))

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/domains", `{"storeId":"aaa11111","domain":"shop.example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var d domains.Domain
	decode(t, rec, &d)
	assert.Equal(t, domains.StatusPending, d.Status)
	assert.Equal(t, "store-aaa11111.urumi.test", d.CNAMETarget)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/domains/aaa11111", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/domains/aaa11111/verification", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var v domains.Verification
	decode(t, rec, &v)
	assert.Equal(t, "CNAME", v.RecordType)

	rec = doJSON(t, srv.Handler(), http.MethodDelete, "/domains/aaa11111", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/domains/aaa11111", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDomainEndpointErrors(t *testing.T) {
	srv, _ := newTestServer(t, 10, existingStore("aaa11111", "ready"))

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/domains", `{"storeId":"aaa11111","domain":"not a domain"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/domains", `{"storeId":"missing1","domain":"shop.example.com"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodDelete, "/domains/missing1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, 10,
		existingStore("aaa11111", "ready"),
		existingStore("bbb22222", "failed"),
	)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/stores", `{"name":"Fresh","engine":"medusa"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot metrics.Snapshot
	decode(t, rec, &snapshot)
	assert.Equal(t, 3, snapshot.StoresTotal)
	assert.Equal(t, 1, snapshot.StoresReady)
	assert.Equal(t, 1, snapshot.StoresProvisioning)
	assert.Equal(t, 1, snapshot.StoresFailed)
	assert.Equal(t, float64(1), snapshot.StoresCreatedTotal)
}

func TestHealthzEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, 10)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, 10)
	handler := srv.Handler()

	var limited bool
	for i := 0; i < rateLimitRequests+1; i++ {
		rec := doJSON(t, handler, http.MethodGet, "/stores", "")
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			var body map[string]string
			decode(t, rec, &body)
			assert.Contains(t, body["error"], "Too many requests")
			break
		}
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.True(t, limited, "rate limit never tripped")

	// Other route groups are not limited.
	rec := doJSON(t, handler, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
