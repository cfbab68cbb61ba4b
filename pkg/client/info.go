package client

import (
	"context"

	"github.com/gitdm/gitdm/internal/api"
	"github.com/gitdm/gitdm/internal/buildinfo"
)

// Info returns the build information of a gitdm dev server.
func (c *Client) Info(ctx context.Context) (*buildinfo.Info, string, error) {
	var info buildinfo.Info
	correlation, err := c.get(ctx, c.url().
		setRootPath(api.AboutRoute).
		build(), &info)
	return &info, correlation, err
}

// Health reports whether the server answers its health check.
func (c *Client) Health(ctx context.Context) (string, error) {
	return c.get(ctx, c.url().
		setRootPath(api.HealthCheckRoute).
		build(), nil)
}
