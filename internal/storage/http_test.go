package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cdot/Squirrel-sub002/internal/apperr"
)

func TestHTTPStatusMapping(t *testing.T) {
	var gotAuth, gotIfMatch, gotIfNone, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotIfMatch = r.Header.Get("If-Match")
		gotIfNone = r.Header.Get("If-None-Match")
		gotPath = r.URL.EscapedPath()
		switch r.Method {
		case http.MethodGet:
			http.Error(w, "missing", http.StatusNotFound)
		case http.MethodPut:
			_, _ = io.ReadAll(r.Body)
			if gotIfMatch != "" {
				http.Error(w, "stale", http.StatusPreconditionFailed)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	h, err := NewHTTP(srv.URL, WithToken("s3cret"))
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}
	ctx := context.Background()

	if _, err := h.Read(ctx, "my doc.json"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Read err = %v, want ErrNotFound", err)
	}
	if gotAuth != "Bearer s3cret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotPath != "/store/my%20doc.json" {
		t.Errorf("path = %q", gotPath)
	}

	if err := h.WriteIf(ctx, "doc", []byte("x"), "abc"); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("WriteIf err = %v, want ErrConflict", err)
	}
	if gotIfMatch != `"abc"` {
		t.Errorf("If-Match = %q", gotIfMatch)
	}

	if err := h.WriteIf(ctx, "doc", []byte("x"), ""); err != nil {
		t.Errorf("create: %v", err)
	}
	if gotIfNone != "*" {
		t.Errorf("If-None-Match = %q", gotIfNone)
	}
}

func TestNewHTTPRejectsBadURL(t *testing.T) {
	if _, err := NewHTTP("not a url"); !errors.Is(err, apperr.ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}
