package poktinfo

import (
	"time"
)

const NodesInfoTableName = "nodes_info"

// NodeInfo is one version of a node registration. EndHeight is nil while the version is current.
type NodeInfo struct {
	ID          int64     `json:"id"`
	Address     string    `json:"address"`
	URL         string    `json:"url"`
	Domain      string    `json:"domain"`
	Subdomain   string    `json:"subdomain"`
	Chains      []string  `json:"chains"`
	Height      uint64    `json:"height"` // height the version was observed at
	StartHeight uint64    `json:"start_height"`
	EndHeight   *uint64   `json:"end_height,omitempty"`
	IsStaked    bool      `json:"is_staked"`
	DateCreated time.Time `json:"date_created"`
}

// Current reports whether this version is still open.
func (n *NodeInfo) Current() bool {
	return n.EndHeight == nil
}
