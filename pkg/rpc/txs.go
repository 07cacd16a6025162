package rpc

import (
	"context"
	"encoding/json"
	"fmt"
)

// Message types of interest.
const (
	MsgTypeProof = "pocketcore/proof"
	MsgTypeClaim = "pocketcore/claim"
	MsgTypeSend  = "pos/Send"
)

// Tx is a transaction as returned by blocktxs/ and accounttxs/.
type Tx struct {
	Hash     string `json:"hash"`
	Height   Uint64 `json:"height"`
	Index    int    `json:"index"`
	TxResult struct {
		Code        int    `json:"code"`
		Codespace   string `json:"codespace"`
		MessageType string `json:"message_type"`
		Signer      string `json:"signer"`
		Recipient   string `json:"recipient"`
	} `json:"tx_result"`
	StdTx struct {
		Memo string `json:"memo"`
		Msg  struct {
			Type  string          `json:"type"`
			Value json.RawMessage `json:"value"`
		} `json:"msg"`
	} `json:"stdTx"`
}

// Succeeded reports whether the transaction was applied.
func (t *Tx) Succeeded() bool { return t.TxResult.Code == 0 }

// ProofLeaf is the part of a proof message that identifies the session it proves.
type ProofLeaf struct {
	Blockchain         string `json:"blockchain"`
	SessionBlockHeight Uint64 `json:"session_block_height"`
	ServicerPubKey     string `json:"servicer_pub_key"`
}

// Proof decodes the leaf of a proof transaction.
func (t *Tx) Proof() (*ProofLeaf, error) {
	if t.StdTx.Msg.Type != MsgTypeProof {
		return nil, fmt.Errorf("tx %s is %q, not a proof", t.Hash, t.StdTx.Msg.Type)
	}
	var msg struct {
		Leaf struct {
			Value ProofLeaf `json:"value"`
		} `json:"leaf"`
	}
	if err := json.Unmarshal(t.StdTx.Msg.Value, &msg); err != nil {
		return nil, fmt.Errorf("decode proof %s: %w", t.Hash, err)
	}
	return &msg.Leaf.Value, nil
}

// BlockTxs returns every transaction of the block at height.
func (c *HTTPClient) BlockTxs(ctx context.Context, height uint64) ([]Tx, error) {
	return listPaged[Tx](ctx, c, blockTxsPath, func(page, perPage int) any {
		return map[string]any{"height": height, "page": page, "per_page": perPage}
	})
}

// AccountTxs returns the transactions of address, all of them when height is 0.
func (c *HTTPClient) AccountTxs(ctx context.Context, address string, height uint64) ([]Tx, error) {
	return listPaged[Tx](ctx, c, accountTxsPath, func(page, perPage int) any {
		return map[string]any{"address": address, "height": height, "page": page, "per_page": perPage}
	})
}
