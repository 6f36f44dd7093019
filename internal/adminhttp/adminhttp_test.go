package adminhttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/redlite/redlite/internal/notify"
	"github.com/redlite/redlite/internal/registry"
	"github.com/redlite/redlite/internal/storage"
)

func testStats(t *testing.T) Stats {
	eng, err := storage.Open(context.Background(), storage.Options{Backend: storage.BackendMemory}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	return Stats{
		Registry: registry.New(),
		Bus:      notify.NewBus(0),
		Engine:   eng,
	}
}

func TestHealthz(t *testing.T) {
	r := New(zap.NewNop(), testStats(t))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestDebugVars(t *testing.T) {
	r := New(zap.NewNop(), testStats(t))

	req := httptest.NewRequest(http.MethodGet, "/debug/vars", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"connections":0`)
}

func TestDebugClientsEmpty(t *testing.T) {
	r := New(zap.NewNop(), testStats(t))

	req := httptest.NewRequest(http.MethodGet, "/debug/clients", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, "[]", w.Body.String())
}

func TestSecurityHeaders(t *testing.T) {
	r := New(zap.NewNop(), testStats(t))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}
