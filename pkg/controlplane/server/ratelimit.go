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
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Store mutation endpoints are limited to 100 requests per 15 minutes per
// client address.
const (
	rateLimitWindow   = 15 * time.Minute
	rateLimitRequests = 100
)

type rateLimiter struct {
	mu      sync.Mutex
	clients map[string]*rate.Limiter
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{clients: make(map[string]*rate.Limiter)}
}

func (rl *rateLimiter) limiterFor(addr string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, ok := rl.clients[addr]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(rateLimitWindow/rateLimitRequests), rateLimitRequests)
		rl.clients[addr] = limiter
	}
	return limiter
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.limiterFor(clientIP(r)).Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"Too many requests from this IP, please try again later."}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
