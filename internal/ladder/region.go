package ladder

import (
	"fmt"
	"strings"
)

// Region is an independent upstream partition of the ladder API.
type Region int

const (
	RegionUS Region = 1
	RegionEU Region = 2
	RegionKR Region = 3
	RegionCN Region = 5
)

// Regions lists every known region in scheduling order.
var Regions = []Region{RegionUS, RegionKR, RegionEU, RegionCN}

var regionNames = map[Region]string{
	RegionUS: "US",
	RegionEU: "EU",
	RegionKR: "KR",
	RegionCN: "CN",
}

var regionBaseURLs = map[Region]string{
	RegionUS: "https://us.api.blizzard.com/",
	RegionEU: "https://eu.api.blizzard.com/",
	RegionKR: "https://kr.api.blizzard.com/",
	RegionCN: "https://gateway.battlenet.com.cn/",
}

// regionClusters groups regions that share one upstream backend when the API
// runs on degraded infrastructure.
var regionClusters = map[Region]string{
	RegionUS: "americas-asia",
	RegionCN: "americas-asia",
	RegionKR: "europe-korea",
	RegionEU: "europe-korea",
}

// ID returns the numeric region id used in upstream URLs.
func (r Region) ID() int { return int(r) }

func (r Region) String() string {
	if name, ok := regionNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Region(%d)", int(r))
}

// BaseURL returns the default upstream base URL, always ending in a slash.
func (r Region) BaseURL() string {
	return regionBaseURLs[r]
}

// DefaultCluster returns the shared-infrastructure cluster the region belongs to.
func (r Region) DefaultCluster() string {
	return regionClusters[r]
}

// Valid reports whether r is one of the known regions.
func (r Region) Valid() bool {
	_, ok := regionNames[r]
	return ok
}

// ParseRegion resolves a region by its name, case-insensitively.
func ParseRegion(s string) (Region, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for r, name := range regionNames {
		if name == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown region %q", s)
}
