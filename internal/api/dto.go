package api

import (
	"encoding/json"

	"github.com/cdot/Squirrel-sub002/internal/hoard"
	"github.com/cdot/Squirrel-sub002/internal/storage"
	"github.com/cdot/Squirrel-sub002/internal/vault"
)

// ActionResponse is returned for an applied or conflicting action.
type ActionResponse struct {
	Action   hoard.Action `json:"action"`
	Conflict string       `json:"conflict,omitempty" example:"Cannot create 'Junk↘Burger': Node not found"`
}

// NodeResponse wraps a node with the path it was read from.
type NodeResponse struct {
	Path string      `json:"path" example:"Sites↘Bank"`
	Node *hoard.Node `json:"node"`
}

// ActionListResponse lists the actions not yet reconciled.
type ActionListResponse struct {
	Actions  []hoard.Action `json:"actions"`
	LastSync int64          `json:"last_sync"`
}

// ImportRequest grafts a JSON or YAML document into the tree. Parent is
// a key array or a separator-joined string; empty means the top level.
type ImportRequest struct {
	Parent  json.RawMessage `json:"parent,omitempty"`
	Name    string          `json:"name" example:"Bank" validate:"required"`
	Format  string          `json:"format,omitempty" example:"yaml"`
	Content string          `json:"content" example:"user: alice" validate:"required"`
}

// SyncResponse is the reconciliation summary.
type SyncResponse = vault.SyncReport

// AlarmsResponse lists the alarms rung by one scan.
type AlarmsResponse struct {
	Rung   []vault.Ring `json:"rung"`
	Errors string       `json:"errors,omitempty"`
}

// StoreListResponse lists stored blobs.
type StoreListResponse struct {
	Objects []storage.Object `json:"objects"`
}
