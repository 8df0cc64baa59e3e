// Package remote binds the docstore and feed contracts to a hosted document
// store: request/response CRUD over its REST API and a realtime websocket
// channel for the push-event stream.
package remote

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Sagarika311/roomsync/internal/docstore"
	"github.com/valyala/fasthttp"
)

const requestTimeout = 30 * time.Second

// Client is a thin JSON client for the store's REST API.
type Client struct {
	http     *fasthttp.Client
	endpoint string
	project  string
	key      string
}

// NewClient creates a client for the given endpoint. project and key are
// sent as headers on every request; the store's permission model consumes
// them.
func NewClient(endpoint, project, key string) *Client {
	return &Client{
		http:     &fasthttp.Client{},
		endpoint: endpoint,
		project:  project,
		key:      key,
	}
}

// do issues one JSON request and decodes the response into out (when
// non-nil). Error status codes map onto the docstore sentinels.
func (c *Client) do(method, path string, body, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.endpoint + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	req.Header.Set("X-Project", c.project)
	req.Header.Set("X-Key", c.key)

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		req.SetBody(payload)
	}

	if err := c.http.DoTimeout(req, resp, requestTimeout); err != nil {
		return fmt.Errorf("store request %s %s: %w", method, path, err)
	}
	if err := statusError(resp.StatusCode()); err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// statusError maps an HTTP status onto the docstore error taxonomy.
func statusError(code int) error {
	switch {
	case code < 400:
		return nil
	case code == fasthttp.StatusNotFound:
		return docstore.ErrNotFound
	case code == fasthttp.StatusConflict:
		return docstore.ErrAlreadyExists
	case code == fasthttp.StatusUnauthorized || code == fasthttp.StatusForbidden:
		return docstore.ErrUnauthorized
	default:
		return fmt.Errorf("store returned status %d", code)
	}
}

// encodePermissions renders the permission spec in the store's wire form.
func encodePermissions(p docstore.Permissions) []string {
	return []string{
		fmt.Sprintf("read(%q)", p.Read),
		fmt.Sprintf("update(%q)", p.Update),
		fmt.Sprintf("delete(%q)", p.Delete),
	}
}
