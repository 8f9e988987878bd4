package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/mivahub/mivahub-backend/pkg/logger"
)

func TestRequestIDAdoptsInboundHeader(t *testing.T) {
	var seen string
	h := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "upstream-42")
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	if seen != "upstream-42" {
		t.Fatalf("expected upstream id on context, got %q", seen)
	}
	if resp.Header().Get(requestIDHeader) != "upstream-42" {
		t.Fatalf("expected id echoed, got %q", resp.Header().Get(requestIDHeader))
	}
}

func TestRequestIDFallsBackToCorrelationHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(correlationIDHeader, "worker-corr-1")
	resp := httptest.NewRecorder()
	RequestID(nil)(okHandler()).ServeHTTP(resp, req)

	if got := resp.Header().Get(requestIDHeader); got != "worker-corr-1" {
		t.Fatalf("expected correlation id, got %q", got)
	}
}

func TestRequestIDRejectsMalformedHeader(t *testing.T) {
	for _, bad := range []string{"has space", strings.Repeat("a", maxRequestIDLength+1)} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestIDHeader, bad)
		resp := httptest.NewRecorder()
		RequestID(nil)(okHandler()).ServeHTTP(resp, req)

		got := resp.Header().Get(requestIDHeader)
		if _, err := uuid.Parse(got); err != nil {
			t.Fatalf("expected minted uuid for %q, got %q", bad, got)
		}
	}
}
