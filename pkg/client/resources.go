package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gitdm/gitdm/internal/api"
)

type ListOptions struct {
	Page     int
	PageSize int
}

// List retrieves one page of a resource collection.
func (c *Client) List(ctx context.Context, resource api.Resource, opts ListOptions) (*api.Page, string, error) {
	ub := c.url().
		setPath(api.ResourceListRoute).
		setPathParam("resource", string(resource))
	if opts.Page > 0 {
		ub = ub.addQueryParam("page", opts.Page)
	}
	if opts.PageSize > 0 {
		ub = ub.addQueryParam("page_size", opts.PageSize)
	}

	var page api.Page
	correlation, err := c.get(ctx, ub.build(), &page)
	if err != nil {
		return nil, correlation, err
	}
	return &page, correlation, nil
}

// Get retrieves a single item of a resource collection.
func (c *Client) Get(ctx context.Context, resource api.Resource, id string) (json.RawMessage, string, error) {
	if id == "" {
		return nil, "", fmt.Errorf("id of %s must not be empty", resource)
	}
	var item json.RawMessage
	correlation, err := c.get(ctx, c.url().
		setPath(api.ResourceDetailRoute).
		setPathParam("resource", string(resource)).
		setPathParam("id", id).
		build(), &item)
	return item, correlation, err
}

// Create adds item to a resource collection and returns the stored item.
// item is encoded as JSON; a json.RawMessage is sent as is.
func (c *Client) Create(ctx context.Context, resource api.Resource, item any) (json.RawMessage, string, error) {
	var created json.RawMessage
	correlation, err := c.post(ctx, c.url().
		setPath(api.ResourceListRoute).
		setPathParam("resource", string(resource)).
		build(), item, &created)
	return created, correlation, err
}
