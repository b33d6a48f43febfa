package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type recordedStatuses struct {
	mu    sync.Mutex
	codes []int
}

func (r *recordedStatuses) RecordHTTPStatus(statusCode int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, statusCode)
}

func TestMetricsMiddleware_RecordsStatus(t *testing.T) {
	rec := &recordedStatuses{}

	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    int
	}{
		{"明示的な404", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) }, http.StatusNotFound},
		{"暗黙の200", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) }, http.StatusOK},
		{"書き込みなし", func(w http.ResponseWriter, r *http.Request) {}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec.codes = nil
			NewMetricsMiddleware(rec)(tt.handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/invites", nil))

			if len(rec.codes) != 1 || rec.codes[0] != tt.want {
				t.Errorf("recorded = %v, want [%d]", rec.codes, tt.want)
			}
		})
	}
}
