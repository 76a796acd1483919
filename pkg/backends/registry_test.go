package backends

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/capstan/capstan/pkg/interfaces/conformance"
)

func fakeRegistry(t *testing.T, published map[string]bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if published[r.URL.Path] {
			w.Write([]byte(`{}`))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPRegistry_Conformance(t *testing.T) {
	srv := fakeRegistry(t, nil)
	conformance.RunRegistry(t, NewHTTPRegistry(srv.URL))
}

func TestHTTPRegistry_CheckPublished(t *testing.T) {
	srv := fakeRegistry(t, map[string]bool{"/core/1.1.0/json": true})
	registry := NewHTTPRegistry(srv.URL)
	ctx := context.Background()

	published, err := registry.CheckPublished(ctx, "core", "1.1.0")
	if err != nil {
		t.Fatalf("CheckPublished failed: %v", err)
	}
	if !published {
		t.Error("core@1.1.0 should be published")
	}

	published, err = registry.CheckPublished(ctx, "core", "1.2.0")
	if err != nil {
		t.Fatalf("CheckPublished failed: %v", err)
	}
	if published {
		t.Error("core@1.2.0 should not be published")
	}
}

func TestHTTPRegistry_ServerErrorIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	if _, err := NewHTTPRegistry(srv.URL).CheckPublished(context.Background(), "core", "1.0.0"); err == nil {
		t.Error("a 500 must surface as an error, not a published verdict")
	}
}
