package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ryanbastic/go-ladderwatch/internal/ladder"
)

// RegionEntry describes one upstream region in the region file.
type RegionEntry struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
	Cluster string `json:"cluster"`
}

// RegionConfig is the optional region file. Regions missing from the file are
// not updated.
type RegionConfig struct {
	Regions []RegionEntry `json:"regions"`
}

// RegionSettings is a validated region entry.
type RegionSettings struct {
	Region  ladder.Region
	BaseURL string
	Cluster string
}

// DefaultRegions returns every known region with its default upstream URL and
// shared-infrastructure cluster.
func DefaultRegions() []RegionSettings {
	out := make([]RegionSettings, 0, len(ladder.Regions))
	for _, r := range ladder.Regions {
		out = append(out, RegionSettings{Region: r, BaseURL: r.BaseURL(), Cluster: r.DefaultCluster()})
	}
	return out
}

// ResolveRegions loads the region file at path, or returns the defaults when
// path is empty.
func ResolveRegions(path string) ([]RegionSettings, error) {
	if path == "" {
		return DefaultRegions(), nil
	}
	cfg, err := LoadRegionConfig(path)
	if err != nil {
		return nil, err
	}
	return cfg.Settings()
}

// LoadRegionConfig reads a JSON region file.
func LoadRegionConfig(path string) (*RegionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read region config: %w", err)
	}

	var cfg RegionConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse region config: %w", err)
	}
	return &cfg, nil
}

// Settings validates the file and resolves defaults for omitted fields.
func (c *RegionConfig) Settings() ([]RegionSettings, error) {
	if len(c.Regions) == 0 {
		return nil, fmt.Errorf("region config: no regions defined")
	}

	seen := make(map[ladder.Region]bool, len(c.Regions))
	out := make([]RegionSettings, 0, len(c.Regions))

	for i, e := range c.Regions {
		r, err := ladder.ParseRegion(e.Name)
		if err != nil {
			return nil, fmt.Errorf("region config: entry #%d: %w", i, err)
		}
		if seen[r] {
			return nil, fmt.Errorf("region config: region %s is defined more than once", r)
		}
		seen[r] = true

		base := e.BaseURL
		if base == "" {
			base = r.BaseURL()
		}
		u, err := url.Parse(base)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("region config: region %s has invalid base_url %q", r, e.BaseURL)
		}
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}

		cluster := e.Cluster
		if cluster == "" {
			cluster = r.DefaultCluster()
		}

		out = append(out, RegionSettings{Region: r, BaseURL: base, Cluster: cluster})
	}

	return out, nil
}
