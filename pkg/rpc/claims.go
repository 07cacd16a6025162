package rpc

import (
	"context"
)

// Claim is a pending relay claim as returned by nodeclaims/.
type Claim struct {
	FromAddress      string `json:"from_address"`
	EvidenceType     int    `json:"evidence_type"`
	ExpirationHeight Uint64 `json:"expiration_height"`
	TotalProofs      Uint64 `json:"total_proofs"`
	Header           struct {
		AppPublicKey  string `json:"app_public_key"`
		Chain         string `json:"chain"`
		SessionHeight Uint64 `json:"session_height"`
	} `json:"header"`
}

// ClaimKey identifies the session a claim or proof belongs to.
type ClaimKey struct {
	Address       string
	Chain         string
	SessionHeight uint64
}

// Key of the claim.
func (c *Claim) Key() ClaimKey {
	return ClaimKey{Address: c.FromAddress, Chain: c.Header.Chain, SessionHeight: uint64(c.Header.SessionHeight)}
}

// NodeClaims returns the claims pending at height, for every node when address is empty.
func (c *HTTPClient) NodeClaims(ctx context.Context, height uint64, address string) ([]Claim, error) {
	return listPaged[Claim](ctx, c, nodeClaimsPath, func(page, perPage int) any {
		return map[string]any{"height": height, "page": page, "per_page": perPage, "address": address}
	})
}
