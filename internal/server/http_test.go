package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"imagescan/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
)

func TestHTTPServer_Routes(t *testing.T) {
	srv := NewHTTPServer(&conf.Server{}, log.DefaultLogger)

	for _, path := range []string{"/healthz", "/metrics"} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, rec.Code)
		}
	}
}
