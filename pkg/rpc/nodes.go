package rpc

import (
	"context"
)

// Node is a staked servicer as returned by node/ and nodes/.
type Node struct {
	Address       string   `json:"address"`
	PublicKey     string   `json:"public_key"`
	Jailed        bool     `json:"jailed"`
	Status        int      `json:"status"`
	Tokens        Uint64   `json:"tokens"`
	ServiceURL    string   `json:"service_url"`
	Chains        []string `json:"chains"`
	UnstakingTime string   `json:"unstaking_time"`
	OutputAddress string   `json:"output_address"`

	// Code and Message are set instead of the fields above when the node is unknown at the height.
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Found reports whether the node existed at the queried height.
func (n *Node) Found() bool { return n.Code == 0 }

// Node returns the node registration of address at height. Unknown nodes come back with
// Found() == false rather than an error.
func (c *HTTPClient) Node(ctx context.Context, address string, height uint64) (*Node, error) {
	var out Node
	if err := c.Call(ctx, nodePath, NewQueryByHeightRequest(height).WithAddress(address), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// NodeBalance returns the staked tokens of address at height, 0 for unknown nodes.
func (c *HTTPClient) NodeBalance(ctx context.Context, address string, height uint64) (uint64, error) {
	n, err := c.Node(ctx, address, height)
	if err != nil {
		return 0, err
	}
	if !n.Found() {
		return 0, nil
	}
	return uint64(n.Tokens), nil
}

// OutputAddress returns the address rewards of a node are paid to: its output address
// when set, the node address otherwise.
func (c *HTTPClient) OutputAddress(ctx context.Context, address string, height uint64) (string, error) {
	n, err := c.Node(ctx, address, height)
	if err != nil {
		return "", err
	}
	if !n.Found() || n.OutputAddress == "" {
		return address, nil
	}
	return n.OutputAddress, nil
}

// Nodes returns every node registered at height.
func (c *HTTPClient) Nodes(ctx context.Context, height uint64) ([]Node, error) {
	return listPaged[Node](ctx, c, nodesPath, func(page, perPage int) any {
		return map[string]any{
			"height": height,
			"opts":   map[string]any{"page": page, "per_page": perPage},
		}
	})
}

// Balance returns the liquid balance of address at height.
func (c *HTTPClient) Balance(ctx context.Context, address string, height uint64) (uint64, error) {
	var out BalanceResponse
	if err := c.Call(ctx, balancePath, NewQueryByHeightRequest(height).WithAddress(address), &out); err != nil {
		return 0, err
	}
	return uint64(out.Balance), nil
}
