package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/omnidesk/backend/internal/memdb"
)

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("dial tcp 10.0.0.5:5432: connection refused") }

func TestHealthz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name  string
		store Pinger
		code  int
	}{
		{name: "up", store: memdb.New(), code: http.StatusOK},
		{name: "down", store: downStore{}, code: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &Handler{Store: tc.store, Logger: zerolog.Nop()}
			r := gin.New()
			r.GET("/healthz", h.Healthz)

			req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, w.Code)
			}
			if tc.code != http.StatusOK && contains(w.Body.String(), "10.0.0.5") {
				t.Fatalf("health response leaks the cause: %s", w.Body.String())
			}
		})
	}
}
