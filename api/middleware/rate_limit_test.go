package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type fakeLimiter struct {
	counts map[string]int64
}

func newFakeLimiter() *fakeLimiter {
	return &fakeLimiter{counts: make(map[string]int64)}
}

func (f *fakeLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	f.counts[scope]++
	count := f.counts[scope]
	return count <= limit, count, nil
}

func validateBody() *strings.Reader {
	return strings.NewReader(`{"key":"RFLX-AAAAA","device_fingerprint":"device-1"}`)
}

func TestRateLimitBlocksAfterIPLimit(t *testing.T) {
	limiter := newFakeLimiter()
	policy := NewRateLimitPolicy("validate", time.Minute, 2, 0)
	mw := RateLimit(policy, limiter, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/validate", validateBody())
		req.RemoteAddr = "10.0.0.1:1234"
		resp := httptest.NewRecorder()
		mw(handler).ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 got %d", i+1, resp.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/validate", validateBody())
	req.RemoteAddr = "10.0.0.1:1234"
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", resp.Code)
	}
}

func TestRateLimitCountsDevicesSeparately(t *testing.T) {
	limiter := newFakeLimiter()
	policy := NewRateLimitPolicy("validate", time.Minute, 0, 1)
	mw := RateLimit(policy, limiter, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	first := httptest.NewRequest(http.MethodPost, "/api/v1/validate", validateBody())
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, first)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	repeat := httptest.NewRequest(http.MethodPost, "/api/v1/validate", validateBody())
	resp = httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, repeat)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for repeated device got %d", resp.Code)
	}

	other := httptest.NewRequest(http.MethodPost, "/api/v1/validate",
		strings.NewReader(`{"key":"RFLX-AAAAA","device_fingerprint":"device-2"}`))
	resp = httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, other)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for a different device got %d", resp.Code)
	}
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	limiter := newFakeLimiter()
	policy := NewRateLimitPolicy("validate", 0, 0, 0)
	mw := RateLimit(policy, limiter, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/validate", validateBody())
		resp := httptest.NewRecorder()
		mw(handler).ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("expected pass-through got %d", resp.Code)
		}
	}
	if len(limiter.counts) != 0 {
		t.Fatalf("limiter should never be consulted when disabled")
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/validate", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.7" {
		t.Fatalf("expected forwarded ip, got %s", got)
	}

	bare := httptest.NewRequest(http.MethodPost, "/api/v1/validate", nil)
	bare.RemoteAddr = "10.0.0.9:4321"
	if got := clientIP(bare); got != "10.0.0.9" {
		t.Fatalf("expected remote host, got %s", got)
	}
}
