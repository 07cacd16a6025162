package poktinfo

import (
	"time"
)

const LocationInfoTableName = "location_info"

// LocationInfo is one version of the geolocation of a node host. RanFrom scopes the
// observation to the region it was collected from; empty means unscoped.
type LocationInfo struct {
	ID          int64     `json:"id"`
	Address     string    `json:"address"`
	IP          string    `json:"ip"`
	Height      uint64    `json:"height"`
	StartHeight uint64    `json:"start_height"`
	EndHeight   *uint64   `json:"end_height,omitempty"`
	City        string    `json:"city"`
	Continent   string    `json:"continent"`
	Country     string    `json:"country"`
	Region      string    `json:"region"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	ISP         string    `json:"isp"`
	Org         string    `json:"org"`
	AS          string    `json:"as"`
	RanFrom     string    `json:"ran_from"`
	DateCreated time.Time `json:"date_created"`
}

func (l *LocationInfo) Current() bool {
	return l.EndHeight == nil
}
