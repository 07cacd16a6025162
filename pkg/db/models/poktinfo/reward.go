package poktinfo

const RewardsInfoTableName = "rewards_info"

// RewardInfo is the reward minted for one accepted proof. Rows are immutable.
type RewardInfo struct {
	TxHash          string  `json:"tx_hash"`
	Height          uint64  `json:"height"`
	Address         string  `json:"address"`
	Rewards         float64 `json:"rewards"` // POKT
	Chain           string  `json:"chain"`
	Relays          uint64  `json:"relays"`
	TokenMultiplier float64 `json:"token_multiplier"`
	Percentage      float64 `json:"percentage"`
	StakeWeight     float64 `json:"stake_weight"`
}
