package httpmetrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"":                           "/",
		"/api/appusers/johndoejr":    "/api/appusers/{username}",
		"/api/appusers/john/disable": "/api/appusers/{username}/disable",
		"/api/outbox/42":             "/api/outbox/{id}",
		"/api/outbox/reprocess":      "/api/outbox/reprocess",
		"/api/appusers":              "/api/appusers",
		"/other/123":                 "/other/{param}",
	}
	for in, want := range tests {
		if got := NormalizePath(in); got != want {
			t.Errorf("%q: expected %s, got %s", in, want, got)
		}
	}
}

func TestRoutePath_PrefersPattern(t *testing.T) {
	mux := http.NewServeMux()
	var seen string
	mux.HandleFunc("GET /api/appusers/{username}", func(w http.ResponseWriter, r *http.Request) {
		seen = routePath(r)
	})

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/appusers/johndoejr", nil))

	if seen != "/api/appusers/{username}" {
		t.Errorf("expected matched pattern, got %s", seen)
	}
}
