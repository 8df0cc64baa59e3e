package remote

import (
	"context"
	"fmt"

	"github.com/Sagarika311/roomsync/internal/docstore"
	"github.com/valyala/fasthttp"
)

// Messages implements docstore.Messages against the REST API.
type Messages struct {
	client     *Client
	collection string
}

// NewMessages creates the message collection binding.
func NewMessages(c *Client, collection string) *Messages {
	return &Messages{client: c, collection: collection}
}

type createMessageRequest struct {
	Data        messageData `json:"data"`
	Permissions []string    `json:"permissions"`
}

type messageData struct {
	AuthorID   string `json:"userId"`
	AuthorName string `json:"userName"`
	Content    string `json:"content"`
}

type listMessagesResponse struct {
	Documents []docstore.MessageDoc `json:"documents"`
}

func (m *Messages) Create(ctx context.Context, draft docstore.MessageDraft, perms docstore.Permissions) (*docstore.MessageDoc, error) {
	_ = ctx // the HTTP client enforces its own deadline
	var doc docstore.MessageDoc
	err := m.client.do(fasthttp.MethodPost,
		fmt.Sprintf("/collections/%s/documents", m.collection),
		createMessageRequest{
			Data: messageData{
				AuthorID:   draft.AuthorID,
				AuthorName: draft.AuthorName,
				Content:    draft.Content,
			},
			Permissions: encodePermissions(perms),
		},
		&doc)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (m *Messages) Update(ctx context.Context, id string, patch docstore.MessagePatch) error {
	_ = ctx
	data := map[string]any{}
	if patch.Content != nil {
		data["content"] = *patch.Content
	}
	if patch.Edited != nil {
		data["edited"] = *patch.Edited
	}
	if patch.ClearEditing {
		data["editingBy"] = nil
		data["editingByName"] = nil
	} else {
		if patch.SetEditingBy != nil {
			data["editingBy"] = *patch.SetEditingBy
		}
		if patch.SetEditingByName != nil {
			data["editingByName"] = *patch.SetEditingByName
		}
	}
	return m.client.do(fasthttp.MethodPatch,
		fmt.Sprintf("/collections/%s/documents/%s", m.collection, id),
		map[string]any{"data": data}, nil)
}

func (m *Messages) Delete(ctx context.Context, id string) error {
	_ = ctx
	return m.client.do(fasthttp.MethodDelete,
		fmt.Sprintf("/collections/%s/documents/%s", m.collection, id), nil, nil)
}

func (m *Messages) List(ctx context.Context, limit int) ([]docstore.MessageDoc, error) {
	_ = ctx
	var resp listMessagesResponse
	err := m.client.do(fasthttp.MethodGet,
		fmt.Sprintf("/collections/%s/documents?order=asc&limit=%d", m.collection, limit), nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Documents, nil
}
