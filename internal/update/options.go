package update

import (
	"time"

	"github.com/ryanbastic/go-ladderwatch/internal/config"
	"github.com/ryanbastic/go-ladderwatch/internal/ladder"
	"github.com/ryanbastic/go-ladderwatch/internal/watermark"
)

// Options holds the scheduling policy of the orchestrator.
type Options struct {
	Regions []config.RegionSettings
	Queues  []ladder.QueueType

	MinCycleGap           time.Duration
	MatchUpdateFrame      time.Duration
	ForcedScanFrame       time.Duration
	MaintenanceFrequent   time.Duration
	MaintenanceInfrequent time.Duration
	HeavyStatsFrame       time.Duration
	HeavyStatsPolicy      string

	// SharedUpstream merges regions of one cluster into a single sequential
	// batch to reduce load on a shared backend.
	SharedUpstream bool
	StaleAfter     time.Duration
	WorkerExtra    int

	MatchLookback      time.Duration
	MatchBatchLimit    int
	MatchRetention     time.Duration
	TeamStateRetention time.Duration
	ArchiveRetention   time.Duration
}

// OptionsFromConfig builds Options from the environment configuration.
func OptionsFromConfig(cfg config.Config, regions []config.RegionSettings) Options {
	return Options{
		Regions:               regions,
		Queues:                ladder.QueueTypes,
		MinCycleGap:           cfg.MinCycleGap,
		MatchUpdateFrame:      cfg.MatchUpdateFrame,
		ForcedScanFrame:       cfg.ForcedScanFrame,
		MaintenanceFrequent:   cfg.MaintenanceFrequent,
		MaintenanceInfrequent: cfg.MaintenanceInfrequent,
		HeavyStatsFrame:       cfg.HeavyStatsFrame,
		HeavyStatsPolicy:      cfg.HeavyStatsPolicy,
		SharedUpstream:        cfg.SharedUpstream,
		StaleAfter:            cfg.StaleAfter,
		WorkerExtra:           cfg.WorkerExtra,
		MatchLookback:         cfg.MatchLookback,
		MatchBatchLimit:       cfg.MatchBatchLimit,
		MatchRetention:        cfg.MatchRetention,
		TeamStateRetention:    cfg.TeamStateRetention,
		ArchiveRetention:      cfg.ArchiveRetention,
	}
}

func (o *Options) setDefaults() {
	if len(o.Regions) == 0 {
		o.Regions = config.DefaultRegions()
	}
	if len(o.Queues) == 0 {
		o.Queues = ladder.QueueTypes
	}
	if o.HeavyStatsPolicy == "" {
		o.HeavyStatsPolicy = config.HeavyStatsBestEffort
	}
	if o.WorkerExtra < 0 {
		o.WorkerExtra = 0
	}
	if o.MatchLookback <= 0 {
		o.MatchLookback = 24 * time.Hour
	}
	if o.MatchBatchLimit <= 0 {
		o.MatchBatchLimit = 5000
	}
}

// batches partitions the regions into units that run concurrently. Without a
// shared upstream every region is its own batch; otherwise regions of one
// cluster run one after another inside a single batch.
func (o *Options) batches() [][]ladder.Region {
	if !o.SharedUpstream {
		out := make([][]ladder.Region, 0, len(o.Regions))
		for _, r := range o.Regions {
			out = append(out, []ladder.Region{r.Region})
		}
		return out
	}

	index := make(map[string]int)
	var out [][]ladder.Region
	for _, r := range o.Regions {
		i, ok := index[r.Cluster]
		if !ok {
			i = len(out)
			index[r.Cluster] = i
			out = append(out, nil)
		}
		out[i] = append(out[i], r.Region)
	}
	return out
}

// Frames maps each scheduled watermark to the interval after which it is due.
func (o Options) Frames() map[string]time.Duration {
	return map[string]time.Duration{
		watermark.ExternalName(watermark.GlobalScope): o.MinCycleGap,
		watermark.ForcedScan:                          o.ForcedScanFrame,
		watermark.MatchUpdated:                        o.MatchUpdateFrame,
		watermark.HeavyStats:                          o.HeavyStatsFrame,
		watermark.MaintenanceFrequent:                 o.MaintenanceFrequent,
		watermark.MaintenanceInfrequent:               o.MaintenanceInfrequent,
	}
}
