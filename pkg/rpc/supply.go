package rpc

import (
	"context"
	"fmt"
)

// Supply returns the token supply at height.
func (c *HTTPClient) Supply(ctx context.Context, height uint64) (*Supply, error) {
	var out Supply
	if err := c.Call(ctx, supplyPath, NewQueryByHeightRequest(height), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Inflation returns the uPOKT minted by the block at height: total(h) - total(h-1).
func (c *HTTPClient) Inflation(ctx context.Context, height uint64) (int64, error) {
	if height == 0 {
		return 0, fmt.Errorf("inflation: height must be positive")
	}
	cur, err := c.Supply(ctx, height)
	if err != nil {
		return 0, err
	}
	prev, err := c.Supply(ctx, height-1)
	if err != nil {
		return 0, err
	}
	return int64(cur.Total) - int64(prev.Total), nil
}
