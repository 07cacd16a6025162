package rpc

import (
	"context"
	"fmt"
	"time"

	"github.com/thunderhead-labs/poktinfo/pkg/utils"
)

// Block is the subset of block/ the collector reads.
type Block struct {
	BlockID struct {
		Hash string `json:"hash"`
	} `json:"block_id"`
	Block struct {
		Header struct {
			ChainID         string    `json:"chain_id"`
			Height          Uint64    `json:"height"`
			Time            time.Time `json:"time"`
			NumTxs          Uint64    `json:"num_txs"`
			TotalTxs        Uint64    `json:"total_txs"`
			ProposerAddress string    `json:"proposer_address"`
		} `json:"header"`
	} `json:"block"`
}

// Height of the block.
func (b *Block) Height() uint64 { return uint64(b.Block.Header.Height) }

// Time of the block in UTC.
func (b *Block) Time() time.Time { return b.Block.Header.Time.UTC() }

// ChainHead returns the height of the chain head as seen by a pool endpoint.
func (c *HTTPClient) ChainHead(ctx context.Context) (uint64, error) {
	return c.head(ctx)
}

// MainHead returns the height of the chain head as seen by the main endpoint.
func (c *HTTPClient) MainHead(ctx context.Context) (uint64, error) {
	return c.head(ctx, UseMain())
}

func (c *HTTPClient) head(ctx context.Context, opts ...CallOption) (uint64, error) {
	var resp HeadBlock
	if err := c.Call(ctx, heightPath, map[string]any{}, &resp, opts...); err != nil {
		return 0, err
	}
	if resp.Height == 0 {
		return 0, fmt.Errorf("cannot probe head: zero height")
	}
	return uint64(resp.Height), nil
}

// HeadAt probes the head of a single endpoint with one attempt and no rotation.
// baseURL is the endpoint root, e.g. http://node1.example.com/.
func (c *HTTPClient) HeadAt(ctx context.Context, baseURL string) (uint64, error) {
	var resp HeadBlock
	if err := c.doJSON(ctx, utils.EnsureTrailingSlash(baseURL), heightPath, map[string]any{}, &resp); err != nil {
		return 0, err
	}
	return uint64(resp.Height), nil
}

// Block returns the block at height.
func (c *HTTPClient) Block(ctx context.Context, height uint64) (*Block, error) {
	var out Block
	if err := c.Call(ctx, blockPath, NewQueryByHeightRequest(height), &out); err != nil {
		return nil, err
	}
	if out.Height() != height {
		return nil, fmt.Errorf("block %d: endpoint answered height %d", height, out.Height())
	}
	return &out, nil
}

// BlockTime returns the UTC timestamp of the block at height.
func (c *HTTPClient) BlockTime(ctx context.Context, height uint64) (time.Time, error) {
	b, err := c.Block(ctx, height)
	if err != nil {
		return time.Time{}, err
	}
	return b.Time(), nil
}
