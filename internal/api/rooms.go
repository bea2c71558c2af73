package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// GetGatewayStatus fetches the current gateway availability.
func (c *Client) GetGatewayStatus(ctx context.Context) (*GatewayStatusResponse, error) {
	var resp GatewayStatusResponse
	if err := c.get(ctx, "/gateway/status", nil, &resp); err != nil {
		return nil, fmt.Errorf("get gateway status: %w", err)
	}

	return &resp, nil
}

// ListRooms fetches a page of rooms.
func (c *Client) ListRooms(ctx context.Context, opts ListRoomsOptions) (*RoomsResponse, error) {
	query := url.Values{}

	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		query.Set("cursor", opts.Cursor)
	}
	if opts.Kind != "" {
		query.Set("kind", opts.Kind)
	}
	if opts.State != "" {
		query.Set("state", opts.State)
	}

	var resp RoomsResponse
	if err := c.get(ctx, "/rooms", query, &resp); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	return &resp, nil
}

// ListAllRooms fetches all rooms matching the given options by
// paginating through results. Uses DefaultPaginationTimeout (10m) if
// the context has no deadline.
func (c *Client) ListAllRooms(ctx context.Context, opts ListRoomsOptions) ([]APIRoom, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultPaginationTimeout)
		defer cancel()
	}

	var allRooms []APIRoom
	opts.Limit = 1000 // Max page size

	for {
		resp, err := c.ListRooms(ctx, opts)
		if err != nil {
			return nil, err
		}

		allRooms = append(allRooms, resp.Rooms...)

		if resp.Cursor == "" {
			break
		}
		opts.Cursor = resp.Cursor
	}

	return allRooms, nil
}

// GetRoom fetches a single room by kind and id.
func (c *Client) GetRoom(ctx context.Context, kind, id string) (*APIRoom, error) {
	var resp SingleRoomResponse
	if err := c.get(ctx, "/rooms/"+kind+"/"+id, nil, &resp); err != nil {
		return nil, fmt.Errorf("get room %s/%s: %w", kind, id, err)
	}
	return &resp.Room, nil
}
