package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cdot/Squirrel-sub002/internal/apperr"
	"github.com/cdot/Squirrel-sub002/internal/checksum"
)

// HTTP implements Provider against the /store endpoints of a remote
// squirrel server.
type HTTP struct {
	base   string
	token  string
	client *http.Client
}

// HTTPOption configures an HTTP store.
type HTTPOption func(*HTTP)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) { h.client = c }
}

// WithToken sends token as a bearer credential.
func WithToken(token string) HTTPOption {
	return func(h *HTTP) { h.token = token }
}

// NewHTTP returns a store rooted at baseURL, e.g. https://host:8080.
func NewHTTP(baseURL string, opts ...HTTPOption) (*HTTP, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("storage: invalid base url %q: %w", baseURL, apperr.ErrMalformed)
	}
	h := &HTTP{
		base:   strings.TrimRight(u.String(), "/"),
		client: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *HTTP) objectURL(name string) string {
	return h.base + "/store/" + url.PathEscape(name)
}

func (h *HTTP) do(ctx context.Context, method, target string, body []byte, header http.Header) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	return h.client.Do(req)
}

// statusError maps a non-2xx response to a sentinel where one applies.
func statusError(op, name string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := strings.TrimSpace(string(msg))
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("storage: %s %s: %w", op, name, apperr.ErrNotFound)
	case http.StatusPreconditionFailed, http.StatusConflict:
		return fmt.Errorf("storage: %s %s: %w", op, name, apperr.ErrConflict)
	}
	return fmt.Errorf("storage: %s %s: unexpected status %d: %s", op, name, resp.StatusCode, detail)
}

func (h *HTTP) Read(ctx context.Context, name string) ([]byte, error) {
	resp, err := h.do(ctx, http.MethodGet, h.objectURL(name), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("read", name, resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", name, err)
	}
	return data, nil
}

func (h *HTTP) Write(ctx context.Context, name string, data []byte) error {
	return h.put(ctx, name, data, nil)
}

// WriteIf sends If-Match with the expected digest, or If-None-Match: *
// when the object must not exist yet.
func (h *HTTP) WriteIf(ctx context.Context, name string, data []byte, sum string) error {
	header := http.Header{}
	if sum == "" {
		header.Set("If-None-Match", "*")
	} else {
		header.Set("If-Match", `"`+sum+`"`)
	}
	return h.put(ctx, name, data, header)
}

func (h *HTTP) put(ctx context.Context, name string, data []byte, header http.Header) error {
	if data == nil {
		data = []byte{}
	}
	resp, err := h.do(ctx, http.MethodPut, h.objectURL(name), data, header)
	if err != nil {
		return fmt.Errorf("storage: write %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError("write", name, resp)
	}
	if tag := resp.Header.Get("ETag"); tag != "" && checksum.Unquote(tag) != checksum.Sum(data) {
		return fmt.Errorf("storage: write %s: server stored a different digest", name)
	}
	return nil
}

func (h *HTTP) Delete(ctx context.Context, name string) error {
	resp, err := h.do(ctx, http.MethodDelete, h.objectURL(name), nil, nil)
	if err != nil {
		return fmt.Errorf("storage: delete %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError("delete", name, resp)
	}
	return nil
}

func (h *HTTP) List(ctx context.Context) ([]Object, error) {
	resp, err := h.do(ctx, http.MethodGet, h.base+"/store", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("list", "", resp)
	}
	var out struct {
		Objects []Object `json:"objects"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("storage: list decode: %w", err)
	}
	return out.Objects, nil
}

var _ Conditional = (*HTTP)(nil)
