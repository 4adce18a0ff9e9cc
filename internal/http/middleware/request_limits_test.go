package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tendant/gymkeeper/internal/httputil"
)

// scanEcho decodes a scan body the way the feature handlers do.
func scanEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Credential string `json:"credential"`
		}
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		httputil.JSON(w, http.StatusOK, req)
	})
}

func TestRequestSizeLimit(t *testing.T) {
	credential := strings.Repeat("x", 200)
	body := `{"credential":"` + credential + `"}`

	tests := []struct {
		name       string
		maxBytes   int64
		wantStatus int
	}{
		{name: "under limit", maxBytes: 1024, wantStatus: http.StatusOK},
		{name: "exact limit", maxBytes: int64(len(body)), wantStatus: http.StatusOK},
		{name: "oversized scan", maxBytes: 64, wantStatus: http.StatusRequestEntityTooLarge},
		{name: "limit disabled", maxBytes: 0, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequestSizeLimit(tt.maxBytes)(scanEcho())
			req := httptest.NewRequest(http.MethodPost, "/v1/access/scan", strings.NewReader(body))
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("got status %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRequestSizeLimit_NoBody(t *testing.T) {
	called := false
	handler := RequestSizeLimit(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/locations/main/occupancy", nil)
	req.Body = nil
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !called || w.Code != http.StatusOK {
		t.Errorf("GET without body should pass through, got status %d", w.Code)
	}
}
