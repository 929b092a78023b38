package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/sundial-care/sundial/internal/store"
	"github.com/sundial-care/sundial/pkg/core/types"
	"github.com/sundial-care/sundial/pkg/gateway/config"
)

type nullModel struct{}

func (nullModel) CreateCompletion(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	return &types.CompletionResponse{Text: "{}"}, nil
}

func newTestServer(t *testing.T, cfg config.Config) *Server {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "sundial.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(cfg, nil, st, nullModel{})
}

func TestServer_Healthz(t *testing.T) {
	s := newTestServer(t, config.Config{
		AuthMode: config.AuthModeRequired,
		APIKeys:  map[string]struct{}{"gw-key": {}},
	})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from healthz, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request id header missing")
	}
}

func TestServer_CallRequiresAuth(t *testing.T) {
	s := newTestServer(t, config.Config{
		AuthMode: config.AuthModeRequired,
		APIKeys:  map[string]struct{}{"gw-key": {}},
	})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/call", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without key, got %d", rec.Code)
	}
}

func TestServer_UnknownRouteIs404(t *testing.T) {
	s := newTestServer(t, config.Config{AuthMode: config.AuthModeDisabled})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
