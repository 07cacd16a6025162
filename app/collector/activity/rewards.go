package activity

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
	"github.com/thunderhead-labs/poktinfo/pkg/rpc"
)

// uPOKT per POKT
const upoktPerPokt = 1e6

// rewardParams are the chain parameters that price the relays of one block.
type rewardParams struct {
	multiplier float64 // RelaysToTokensMultiplier, uPOKT per relay
	percentage float64 // servicer share after DAO and proposer cuts
	weighted   bool    // stake weighting active
	weights    rpc.StakeWeightParams
}

func (c *Context) rewardParamsAt(ctx context.Context, height uint64) (rewardParams, error) {
	var p rewardParams
	var err error
	if p.multiplier, err = c.RPC.RelaysToTokensMultiplier(ctx, height); err != nil {
		return p, fmt.Errorf("relays to tokens multiplier: %w", err)
	}
	if p.percentage, err = c.RPC.RewardPercentage(ctx, height); err != nil {
		return p, fmt.Errorf("reward percentage: %w", err)
	}
	if height >= c.RPC.RSCALHeight(ctx, height) {
		p.weighted = true
		if p.weights, err = c.RPC.StakeWeight(ctx, height); err != nil {
			return p, fmt.Errorf("stake weight params: %w", err)
		}
	}
	return p, nil
}

// CollectRewards prices every successful proof of block height against the claim it
// settles (claims pending at height-1, matched by servicer, chain and session height)
// and stores one immutable reward row per proof.
func (c *Context) CollectRewards(ctx context.Context, height uint64) error {
	if height == 0 {
		return fmt.Errorf("no rewards at height 0")
	}

	txs, err := c.RPC.BlockTxs(ctx, height)
	if err != nil {
		return fmt.Errorf("block txs: %w", err)
	}

	type proof struct {
		tx  rpc.Tx
		key rpc.ClaimKey
	}
	var proofs []proof
	for _, tx := range txs {
		if tx.StdTx.Msg.Type != rpc.MsgTypeProof || !tx.Succeeded() {
			continue
		}
		leaf, err := tx.Proof()
		if err != nil {
			c.Logger.Warn("Skipping undecodable proof", zap.String("tx", tx.Hash), zap.Error(err))
			continue
		}
		proofs = append(proofs, proof{tx: tx, key: rpc.ClaimKey{
			Address:       tx.TxResult.Signer,
			Chain:         leaf.Blockchain,
			SessionHeight: uint64(leaf.SessionBlockHeight),
		}})
	}
	if len(proofs) == 0 {
		return nil
	}

	claims, err := c.RPC.NodeClaims(ctx, height-1, "")
	if err != nil {
		return fmt.Errorf("claims at %d: %w", height-1, err)
	}
	claimed := make(map[rpc.ClaimKey]uint64, len(claims))
	for i := range claims {
		claimed[claims[i].Key()] = uint64(claims[i].TotalProofs)
	}

	params, err := c.rewardParamsAt(ctx, height)
	if err != nil {
		return err
	}

	weights := map[string]float64{}
	rewards := make([]models.RewardInfo, 0, len(proofs))
	for _, p := range proofs {
		relays, ok := claimed[p.key]
		if !ok {
			c.Logger.Warn("Proof without a matching claim",
				zap.String("tx", p.tx.Hash),
				zap.String("address", p.key.Address),
				zap.String("chain", p.key.Chain),
				zap.Uint64("session_height", p.key.SessionHeight))
			continue
		}

		weight := 1.0
		if params.weighted {
			w, cached := weights[p.key.Address]
			if !cached {
				node, err := c.RPC.Node(ctx, p.key.Address, height-1)
				if err != nil {
					return fmt.Errorf("node %s: %w", p.key.Address, err)
				}
				w = params.weights.Weight(uint64(node.Tokens))
				weights[p.key.Address] = w
			}
			weight = w
		}

		rewards = append(rewards, models.RewardInfo{
			TxHash:          p.tx.Hash,
			Height:          height,
			Address:         p.key.Address,
			Chain:           p.key.Chain,
			Relays:          relays,
			TokenMultiplier: params.multiplier,
			Percentage:      params.percentage,
			StakeWeight:     weight,
			Rewards:         Reward(relays, params.multiplier, weight, params.percentage),
		})
	}

	if err := c.Store.InsertRewards(ctx, rewards); err != nil {
		return err
	}
	c.Logger.Debug("Rewards collected", zap.Uint64("height", height), zap.Int("proofs", len(rewards)))
	return nil
}

// Reward is the POKT minted to a servicer for relays.
func Reward(relays uint64, multiplier, weight, percentage float64) float64 {
	return float64(relays) * multiplier * weight * percentage / upoktPerPokt
}
