package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/cdot/Squirrel-sub002/internal/apperr"
	"github.com/cdot/Squirrel-sub002/internal/checksum"
	"github.com/cdot/Squirrel-sub002/internal/storage"
)

// StoreHandler exposes a Provider as the opaque blob store remote
// replicas sync against, with ETag based optimistic concurrency.
type StoreHandler struct {
	store storage.Provider
	mu    sync.Mutex // orders precondition checks with writes
}

// NewStoreHandler serves store.
func NewStoreHandler(store storage.Provider) *StoreHandler {
	return &StoreHandler{store: store}
}

// objectName validates that the name is a plain name (no path separators,
// no traversal).
func objectName(r *http.Request) (string, bool) {
	name := chi.URLParam(r, "name")
	if name == "" || name == "." || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return "", false
	}
	return name, true
}

// List handles GET /store.
func (h *StoreHandler) List(w http.ResponseWriter, r *http.Request) {
	objs, err := h.store.List(r.Context())
	if err != nil {
		slog.Error("store list failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if objs == nil {
		objs = []storage.Object{}
	}
	writeJSON(w, http.StatusOK, StoreListResponse{Objects: objs})
}

// Get handles GET /store/{name}.
func (h *StoreHandler) Get(w http.ResponseWriter, r *http.Request) {
	name, ok := objectName(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid name"))
		return
	}
	data, err := h.store.Read(r.Context(), name)
	if err != nil {
		h.storeError(w, "read", name, err)
		return
	}
	tag := checksum.ETag(data)
	if inm := r.Header.Get("If-None-Match"); inm != "" && checksum.Match(inm, checksum.Sum(data)) {
		w.Header().Set("ETag", tag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("ETag", tag)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Put handles PUT /store/{name}. If-Match requires the current ETag;
// If-None-Match: * requires the object to be absent.
func (h *StoreHandler) Put(w http.ResponseWriter, r *http.Request) {
	name, ok := objectName(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid name"))
		return
	}
	data, err := readBody(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var current string
	existing, err := h.store.Read(r.Context(), name)
	switch {
	case err == nil:
		current = checksum.Sum(existing)
	case !errors.Is(err, apperr.ErrNotFound):
		h.storeError(w, "read", name, err)
		return
	}

	if r.Header.Get("If-None-Match") == "*" && current != "" {
		writeJSON(w, http.StatusPreconditionFailed, errorBody("object exists"))
		return
	}
	if im := r.Header.Get("If-Match"); im != "" && !checksum.Match(im, current) {
		writeJSON(w, http.StatusPreconditionFailed, errorBody("checksum mismatch"))
		return
	}

	if err := h.store.Write(r.Context(), name, data); err != nil {
		h.storeError(w, "write", name, err)
		return
	}
	w.Header().Set("ETag", checksum.ETag(data))
	if current == "" {
		w.WriteHeader(http.StatusCreated)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /store/{name}.
func (h *StoreHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name, ok := objectName(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid name"))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.store.Delete(r.Context(), name); err != nil {
		h.storeError(w, "delete", name, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *StoreHandler) storeError(w http.ResponseWriter, op, name string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrMalformed):
		writeJSON(w, http.StatusBadRequest, errorBody("invalid name"))
	default:
		slog.Error("store "+op+" failed", slog.String("name", name), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
