package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/Sagarika311/roomsync/internal/docstore"
	"github.com/valyala/fasthttp"
)

// Presence implements docstore.Presence against the REST API. The user id is
// the document id, so the store's id uniqueness resolves the upsert race.
type Presence struct {
	client     *Client
	collection string
}

// NewPresence creates the presence collection binding.
func NewPresence(c *Client, collection string) *Presence {
	return &Presence{client: c, collection: collection}
}

type createPresenceRequest struct {
	DocumentID  string       `json:"documentId"`
	Data        presenceData `json:"data"`
	Permissions []string     `json:"permissions"`
}

type presenceData struct {
	Username   string    `json:"username"`
	LastActive time.Time `json:"lastActive"`
}

type listPresenceResponse struct {
	Documents []docstore.PresenceDoc `json:"documents"`
}

func (p *Presence) Touch(ctx context.Context, userID string, lastActive time.Time) error {
	_ = ctx
	return p.client.do(fasthttp.MethodPatch,
		fmt.Sprintf("/collections/%s/documents/%s", p.collection, userID),
		map[string]any{"data": map[string]any{"lastActive": lastActive.UTC()}}, nil)
}

func (p *Presence) Create(ctx context.Context, doc docstore.PresenceDoc, perms docstore.Permissions) error {
	_ = ctx
	return p.client.do(fasthttp.MethodPost,
		fmt.Sprintf("/collections/%s/documents", p.collection),
		createPresenceRequest{
			DocumentID:  doc.UserID,
			Data:        presenceData{Username: doc.Username, LastActive: doc.LastActive.UTC()},
			Permissions: encodePermissions(perms),
		}, nil)
}

func (p *Presence) List(ctx context.Context) ([]docstore.PresenceDoc, error) {
	_ = ctx
	var resp listPresenceResponse
	err := p.client.do(fasthttp.MethodGet,
		fmt.Sprintf("/collections/%s/documents", p.collection), nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Documents, nil
}

func (p *Presence) Remove(ctx context.Context, userID string) error {
	_ = ctx
	return p.client.do(fasthttp.MethodDelete,
		fmt.Sprintf("/collections/%s/documents/%s", p.collection, userID), nil, nil)
}
