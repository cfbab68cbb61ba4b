package client

import (
	"context"

	"github.com/gitdm/gitdm/internal/api"
	"github.com/gitdm/gitdm/internal/audit"
)

// ListAudits retrieves the caller's latest token grants, limited to the specified number.
func (c *Client) ListAudits(ctx context.Context, limit uint) ([]audit.Entry, string, error) {
	ub := c.url().setPath(api.AuditRoute)
	if limit > 0 {
		ub = ub.addQueryParam("limit", limit)
	}
	var resp []audit.Entry
	correlation, err := c.get(ctx, ub.build(), &resp)
	return resp, correlation, err
}
