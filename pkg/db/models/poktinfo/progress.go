package poktinfo

import (
	"fmt"
	"time"
)

const (
	ServicesStateTableName      = "services_state"
	ServicesStateRangeTableName = "services_state_range"
	CacheSetStateRangeTableName = "cache_set_state_range_entry"
)

// Status of a recorded unit of work.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFail    Status = "fail"
)

// HeightRange is an inclusive start / exclusive end window of heights.
type HeightRange struct {
	Start uint64 `json:"start_height"`
	End   uint64 `json:"end_height"`
}

func (r HeightRange) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// ServiceState is the result of a per-height unit.
type ServiceState struct {
	Service   string    `json:"service"`
	Height    uint64    `json:"height"`
	Status    Status    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ServiceStateRange is the result of a range unit.
type ServiceStateRange struct {
	Service   string      `json:"service"`
	Range     HeightRange `json:"range"`
	Status    Status      `json:"status"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// CacheSetStateRange is the result of a cache-set rollup unit.
type CacheSetStateRange struct {
	CacheSetID int64       `json:"cache_set_id"`
	Service    string      `json:"service"`
	Range      HeightRange `json:"range"`
	Interval   string      `json:"interval"`
	Status     Status      `json:"status"`
	UpdatedAt  time.Time   `json:"updated_at"`
}
