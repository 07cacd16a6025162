package rpc

// Query paths, relative to <endpoint>v1/query/.
const (
	queryPrefix = "v1/query/"

	heightPath     = "height/"
	blockPath      = "block/"
	nodePath       = "node/"
	nodesPath      = "nodes/"
	balancePath    = "balance/"
	supplyPath     = "supply/"
	blockTxsPath   = "blocktxs/"
	accountTxsPath = "accounttxs/"
	nodeClaimsPath = "nodeclaims/"
	paramPath      = "param/"
	allParamsPath  = "allparams/"
)

// Governance parameter keys.
const (
	ParamUpgrade                  = "gov/upgrade"
	ParamDAOAllocation            = "pos/DAOAllocation"
	ParamProposerPercentage       = "pos/ProposerPercentage"
	ParamRelaysToTokensMultiplier = "pos/RelaysToTokensMultiplier"
	ParamServicerStakeWeightMult  = "pos/ServicerStakeWeightMultiplier"
	ParamServicerStakeFloorMult   = "pos/ServicerStakeFloorMultiplier"
	ParamServicerStakeWeightCeil  = "pos/ServicerStakeWeightCeiling"
	ParamServicerStakeFloorExp    = "pos/ServicerStakeFloorMultiplierExponent"
)
