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

// Package lock serializes the provisioning critical section per store id.
//
// The lock is a token in an annotation on the store namespace, claimed with
// an optimistic resourceVersion-conditioned update: a concurrent writer that
// wins first causes a conflict, which counts as contention. The token embeds
// its acquisition epoch so abandoned locks can be detected and reclaimed.
// This is optimistic, not linearizable: under write contention acquisition is
// best-effort with bounded retries, degrading to a per-id in-process mutex
// that protects nothing across processes.
package lock

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/ThanishaDewangan/Urumi/pkg/controlplane/store"
)

const (
	// DefaultTimeout bounds the worst-case lock hold. A token older than this
	// is stale and may be force-acquired.
	DefaultTimeout = time.Minute

	// DefaultRetryDelay is the pause between contended acquisition attempts.
	DefaultRetryDelay = 500 * time.Millisecond

	// DefaultMaxAttempts bounds cluster-level acquisition attempts before the
	// in-process fallback takes over.
	DefaultMaxAttempts = 10

	// releaseGrace is how long before DefaultTimeout the auto-release timer
	// fires, so the annotation is gone before anyone treats it as stale.
	releaseGrace = 5 * time.Second
)

// Lock hands out per-store provisioning locks.
type Lock struct {
	client          client.Client
	namespacePrefix string

	timeout     time.Duration
	retryDelay  time.Duration
	maxAttempts int

	mu    sync.Mutex
	local map[string]*sync.Mutex
}

// New returns a Lock using the default timing parameters.
func New(c client.Client, namespacePrefix string) *Lock {
	return &Lock{
		client:          c,
		namespacePrefix: namespacePrefix,
		timeout:         DefaultTimeout,
		retryDelay:      DefaultRetryDelay,
		maxAttempts:     DefaultMaxAttempts,
		local:           make(map[string]*sync.Mutex),
	}
}

// Handle represents one acquisition. Release is idempotent.
type Handle struct {
	StoreID string

	lock     *Lock
	token    string
	fallback *sync.Mutex
	timer    *time.Timer
	once     sync.Once
}

// Acquire claims exclusive use of the store id, blocking through bounded
// retries under contention. If the store namespace does not exist yet (the
// first create for this id) there is no metadata to CAS against, so the
// in-process fallback is used directly. A stale token is force-acquired.
func (l *Lock) Acquire(ctx context.Context, storeID, requester string) (*Handle, error) {
	logger := log.FromContext(ctx).WithValues("storeId", storeID)
	nsName := store.NamespaceName(l.namespacePrefix, storeID)
	if requester == "" {
		requester = "system"
	}
	token := fmt.Sprintf("locked-by-%s-%d", requester, time.Now().UnixMilli())

	for attempt := 0; attempt < l.maxAttempts; attempt++ {
		ns := &corev1.Namespace{}
		err := l.client.Get(ctx, client.ObjectKey{Name: nsName}, ns)
		if apierrors.IsNotFound(err) {
			// Pre-creation case: first create for this id.
			return l.acquireFallback(storeID), nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading namespace %s for lock acquisition: %w", nsName, err)
		}

		if existing, held := ns.Annotations[store.AnnotationLock]; held {
			if !l.isStale(existing) {
				if err := sleep(ctx, l.retryDelay); err != nil {
					return nil, err
				}
				continue
			}
			logger.Info("Force releasing stale provisioning lock", "token", existing)
		}

		if ns.Annotations == nil {
			ns.Annotations = map[string]string{}
		}
		ns.Annotations[store.AnnotationLock] = token
		// The update is conditioned on the resourceVersion read above; a
		// conflict means another writer won first.
		if err := l.client.Update(ctx, ns); err != nil {
			if apierrors.IsConflict(err) {
				if err := sleep(ctx, l.retryDelay); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("claiming lock on namespace %s: %w", nsName, err)
		}

		logger.V(1).Info("Provisioning lock acquired", "requester", requester)
		h := &Handle{StoreID: storeID, lock: l, token: token}
		h.timer = time.AfterFunc(l.timeout-releaseGrace, func() {
			h.Release(context.Background())
		})
		return h, nil
	}

	logger.Info("Cluster lock attempts exhausted, using in-process fallback")
	return l.acquireFallback(storeID), nil
}

// Held reports whether a live (non-stale) lock token exists for the store id.
func (l *Lock) Held(ctx context.Context, storeID string) (bool, error) {
	ns := &corev1.Namespace{}
	err := l.client.Get(ctx, client.ObjectKey{Name: store.NamespaceName(l.namespacePrefix, storeID)}, ns)
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	token, held := ns.Annotations[store.AnnotationLock]
	if !held {
		return false, nil
	}
	return !l.isStale(token), nil
}

// Release removes the lock. Calling it more than once is a no-op after the
// first. A failure to reach the cluster is logged but never escalated: the
// token expires via the staleness timeout anyway.
func (h *Handle) Release(ctx context.Context) {
	h.once.Do(func() {
		if h.timer != nil {
			h.timer.Stop()
		}
		if h.fallback != nil {
			h.fallback.Unlock()
			return
		}
		h.lock.releaseCluster(ctx, h.StoreID)
	})
}

func (l *Lock) releaseCluster(ctx context.Context, storeID string) {
	logger := log.FromContext(ctx).WithValues("storeId", storeID)
	nsName := store.NamespaceName(l.namespacePrefix, storeID)

	ns := &corev1.Namespace{}
	if err := l.client.Get(ctx, client.ObjectKey{Name: nsName}, ns); err != nil {
		if !apierrors.IsNotFound(err) {
			logger.Error(err, "Failed to read namespace while releasing lock")
		}
		return
	}
	if _, held := ns.Annotations[store.AnnotationLock]; !held {
		return
	}
	delete(ns.Annotations, store.AnnotationLock)
	if err := l.client.Update(ctx, ns); err != nil {
		logger.Error(err, "Failed to release provisioning lock")
		return
	}
	logger.V(1).Info("Provisioning lock released")
}

// acquireFallback blocks on the per-id in-process mutex. Best effort only:
// it does not protect against other processes.
func (l *Lock) acquireFallback(storeID string) *Handle {
	l.mu.Lock()
	m, ok := l.local[storeID]
	if !ok {
		m = &sync.Mutex{}
		l.local[storeID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return &Handle{StoreID: storeID, lock: l, fallback: m}
}

// isStale reports whether the token's embedded epoch is older than the lock
// timeout. Unparseable tokens are treated as stale rather than wedging the
// store forever.
func (l *Lock) isStale(token string) bool {
	idx := strings.LastIndex(token, "-")
	if idx < 0 || idx == len(token)-1 {
		return true
	}
	millis, err := strconv.ParseInt(token[idx+1:], 10, 64)
	if err != nil {
		return true
	}
	return time.Since(time.UnixMilli(millis)) > l.timeout
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
