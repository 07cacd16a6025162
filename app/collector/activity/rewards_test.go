package activity_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thunderhead-labs/poktinfo/app/collector/activity"
	"github.com/thunderhead-labs/poktinfo/pkg/rpc"
)

func proofTx(hash, signer, chain string, session uint64, code int) rpc.Tx {
	var tx rpc.Tx
	tx.Hash = hash
	tx.TxResult.Code = code
	tx.TxResult.Signer = signer
	tx.TxResult.MessageType = "proof"
	tx.StdTx.Msg.Type = rpc.MsgTypeProof
	tx.StdTx.Msg.Value = json.RawMessage(fmt.Sprintf(
		`{"leaf":{"type":"pocketcore/relay_proof","value":{"blockchain":%q,"session_block_height":"%d"}}}`, chain, session))
	return tx
}

func claim(address, chain string, session, proofs uint64) rpc.Claim {
	var c rpc.Claim
	c.FromAddress = address
	c.Header.Chain = chain
	c.Header.SessionHeight = rpc.Uint64(session)
	c.TotalProofs = rpc.Uint64(proofs)
	return c
}

func TestCollectRewardsWeighted(t *testing.T) {
	store := newFakeStore()
	chain := newFakeRPC()
	chain.weights = rpc.StakeWeightParams{
		WeightMultiplier: 1,
		FloorMultiplier:  15000e6,
		WeightCeiling:    60000e6,
		FloorExponent:    1,
	}
	chain.tokens["node-a"] = 30000e6

	var send rpc.Tx
	send.Hash = "send"
	send.StdTx.Msg.Type = rpc.MsgTypeSend

	h := uint64(70000)
	chain.txs[h] = []rpc.Tx{
		proofTx("p1", "node-a", "0021", 69996, 0),
		proofTx("p2", "node-a", "0001", 69996, 0),
		proofTx("failed", "node-a", "0021", 69992, 11),
		proofTx("orphan", "node-b", "0021", 69996, 0),
		send,
	}
	chain.claims[h-1] = []rpc.Claim{
		claim("node-a", "0021", 69996, 1000),
		claim("node-a", "0001", 69996, 10),
		claim("node-a", "0021", 69992, 5),
	}
	ac := newContext(t, store, chain)

	require.NoError(t, ac.CollectRewards(context.Background(), h))

	require.Len(t, store.rewards, 2)
	p1 := store.rewards["p1"]
	assert.Equal(t, "node-a", p1.Address)
	assert.Equal(t, "0021", p1.Chain)
	assert.Equal(t, uint64(1000), p1.Relays)
	assert.Equal(t, h, p1.Height)
	assert.Equal(t, 2.0, p1.StakeWeight)
	assert.InDelta(t, 1.78, p1.Rewards, 1e-9)
	assert.InDelta(t, 0.0178, store.rewards["p2"].Rewards, 1e-9)

	// tokens are fetched once per address
	assert.Equal(t, 1, chain.count("Node"))
}

func TestCollectRewardsBeforeRSCAL(t *testing.T) {
	store := newFakeStore()
	chain := newFakeRPC()
	h := rpc.RSCALFallbackHeight - 1
	chain.txs[h] = []rpc.Tx{proofTx("p1", "node-a", "0021", h-4, 0)}
	chain.claims[h-1] = []rpc.Claim{claim("node-a", "0021", h-4, 1000)}
	ac := newContext(t, store, chain)

	require.NoError(t, ac.CollectRewards(context.Background(), h))

	p1 := store.rewards["p1"]
	assert.Equal(t, 1.0, p1.StakeWeight)
	assert.InDelta(t, 0.89, p1.Rewards, 1e-9)
	assert.Zero(t, chain.count("Node"))
}

func TestCollectRewardsWithoutProofsSkipsClaims(t *testing.T) {
	store := newFakeStore()
	chain := newFakeRPC()
	ac := newContext(t, store, chain)

	require.NoError(t, ac.CollectRewards(context.Background(), 70000))
	assert.Empty(t, store.rewards)
	assert.Zero(t, chain.count("NodeClaims"))
}

func TestCollectRewardsHeightZero(t *testing.T) {
	ac := newContext(t, newFakeStore(), newFakeRPC())
	require.Error(t, ac.CollectRewards(context.Background(), 0))
}

func TestReward(t *testing.T) {
	assert.InDelta(t, 1.78, activity.Reward(1000, 1000, 2, 0.89), 1e-9)
	assert.Zero(t, activity.Reward(0, 1000, 2, 0.89))
}
