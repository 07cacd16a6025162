package poktinfo

const (
	CacheSetTableName     = "cache_set"
	CacheSetNodeTableName = "cache_set_node"
)

// CacheSet is a named group of node addresses that reports are computed for.
type CacheSet struct {
	ID         int64  `json:"id"`
	UserID     string `json:"user_id"`
	Name       string `json:"set_name"`
	IsPublic   bool   `json:"is_public"`
	IsInternal bool   `json:"is_internal"`
	IsActive   bool   `json:"is_active"`
}

// CacheSetNode is a membership version of an address in a cache set.
type CacheSetNode struct {
	CacheSetID  int64   `json:"cache_set_id"`
	Address     string  `json:"address"`
	StartHeight uint64  `json:"start_height"`
	EndHeight   *uint64 `json:"end_height,omitempty"`
}
