package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cdot/Squirrel-sub002/internal/apperr"
	"github.com/cdot/Squirrel-sub002/internal/hoard"
	"github.com/cdot/Squirrel-sub002/internal/importer"
	"github.com/cdot/Squirrel-sub002/internal/vault"
)

// Handler holds API route handlers.
type Handler struct {
	svc *vault.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *vault.Service) *Handler {
	return &Handler{svc: svc}
}

// nodePath extracts the tree path from the URL (everything after /nodes/).
// Keys are "/" separated; a key containing a slash arrives as %2F, in
// which case chi routes on the raw path and each key is unescaped here.
func nodePath(r *http.Request) (hoard.Path, error) {
	raw := strings.Trim(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return hoard.Path{}, nil
	}
	segs := strings.Split(raw, "/")
	path := make(hoard.Path, 0, len(segs))
	for _, s := range segs {
		if r.URL.RawPath != "" {
			key, err := url.PathUnescape(s)
			if err != nil {
				return nil, err
			}
			s = key
		}
		path = append(path, s)
	}
	return path, nil
}

// GetTree handles GET /tree.
//
//	@Summary		Get the whole tree
//	@Tags			tree
//	@Produce		json
//	@Success		200
//	@Security		BearerAuth
//	@Router			/tree [get]
func (h *Handler) GetTree(w http.ResponseWriter, _ *http.Request) {
	data, err := h.svc.TreeJSON()
	if err != nil {
		slog.Error("tree failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// GetNode handles GET /nodes/*.
//
//	@Summary		Get one node by path
//	@Tags			tree
//	@Produce		json
//	@Param			path	path		string	true	"Slash separated keys"
//	@Success		200		{object}	NodeResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes/{path} [get]
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	path, err := nodePath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid path"))
		return
	}
	n, err := h.svc.Node(path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get node failed", slog.String("path", path.String()), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, NodeResponse{Path: path.String(), Node: n})
}

// ListActions handles GET /actions.
//
//	@Summary		List actions not yet reconciled
//	@Tags			actions
//	@Produce		json
//	@Success		200	{object}	ActionListResponse
//	@Security		BearerAuth
//	@Router			/actions [get]
func (h *Handler) ListActions(w http.ResponseWriter, _ *http.Request) {
	actions := h.svc.Pending()
	if actions == nil {
		actions = []hoard.Action{}
	}
	writeJSON(w, http.StatusOK, ActionListResponse{Actions: actions, LastSync: h.svc.LastSync()})
}

// PlayAction handles POST /actions.
//
//	@Summary		Apply one action
//	@Description	An action without a time is stamped with the server clock.
//	@Tags			actions
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	ActionResponse
//	@Failure		400	{object}	errResponse
//	@Failure		409	{object}	ActionResponse
//	@Security		BearerAuth
//	@Router			/actions [post]
func (h *Handler) PlayAction(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(badActionMessage(err)))
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("empty body"))
		return
	}
	a, err := hoard.ParseAction(body, h.svc.Now())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(badActionMessage(err)))
		return
	}
	res, err := h.svc.Play(r.Context(), a)
	h.writeResult(w, res, err)
}

// Import handles POST /import.
//
//	@Summary		Graft a JSON or YAML document into the tree
//	@Tags			actions
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ImportRequest	true	"Document to import"
//	@Success		200		{object}	ActionResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	ActionResponse
//	@Security		BearerAuth
//	@Router			/import [post]
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Name == "" || req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name and content are required"))
		return
	}
	parent, err := decodeParent(req.Parent)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid parent"))
		return
	}
	format, err := importer.ParseFormat(req.Format)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	res, err := h.svc.Import(r.Context(), parent, req.Name, []byte(req.Content), format)
	h.writeResult(w, res, err)
}

// Sync handles POST /sync.
//
//	@Summary		Reconcile with the cloud copy
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	SyncResponse
//	@Failure		409	{object}	errResponse
//	@Failure		501	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Sync(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, rep)
	case errors.Is(err, vault.ErrNoCloud):
		writeJSON(w, http.StatusNotImplemented, errorBody("no cloud store configured"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("cloud document changed during sync"))
	default:
		slog.Error("sync failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody("sync failed"))
	}
}

// CheckAlarms handles POST /alarms/check.
//
//	@Summary		Ring every due alarm
//	@Tags			alarms
//	@Produce		json
//	@Success		200	{object}	AlarmsResponse
//	@Security		BearerAuth
//	@Router			/alarms/check [post]
func (h *Handler) CheckAlarms(w http.ResponseWriter, r *http.Request) {
	rung, err := h.svc.CheckAlarms(r.Context())
	resp := AlarmsResponse{Rung: rung}
	if err != nil {
		resp.Errors = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeResult(w http.ResponseWriter, res hoard.Result, err error) {
	switch {
	case errors.Is(err, apperr.ErrMalformed):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case err != nil:
		slog.Error("play failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	case !res.OK():
		writeJSON(w, http.StatusConflict, ActionResponse{Action: res.Action, Conflict: res.Conflict})
	default:
		writeJSON(w, http.StatusOK, ActionResponse{Action: res.Action})
	}
}

func badActionMessage(err error) string {
	if errors.Is(err, apperr.ErrMalformed) {
		return err.Error()
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return "body too large"
	}
	if errors.Is(err, io.EOF) {
		return "empty body"
	}
	return "invalid JSON body"
}

func decodeParent(raw json.RawMessage) (hoard.Path, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return hoard.Path{}, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return hoard.ParsePath(s), nil
	}
	var keys []string
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, err
	}
	return hoard.Path(keys), nil
}
