package update

import (
	"context"
	"fmt"
	"time"

	"github.com/ryanbastic/go-ladderwatch/internal/watermark"
)

// RegionStatus is the freshness of one region.
type RegionStatus struct {
	Region      string
	LastUpdate  *time.Time
	LastAttempt *time.Time
	LastError   string
	Stale       bool
}

// Status is the freshness report served to health reporters.
type Status struct {
	LastUpdate     *time.Time
	SharedUpstream bool
	Running        bool
	LastCycle      *CycleReport
	Regions        []RegionStatus
}

// Status reports the last confirmed update of every region. A region is
// stale when it was never updated, its last attempt failed, or its last
// update is older than the configured staleness window.
func (o *Orchestrator) Status(ctx context.Context) (Status, error) {
	global, err := o.tracker.Get(ctx, watermark.ExternalName(watermark.GlobalScope))
	if err != nil {
		return Status{}, fmt.Errorf("load global watermark: %w", err)
	}
	now := o.tracker.Now()
	st := Status{
		LastUpdate:     global,
		SharedUpstream: o.opts.SharedUpstream,
		Running:        o.running.Load(),
	}

	o.mu.Lock()
	if o.lastCycle != nil {
		c := *o.lastCycle
		st.LastCycle = &c
	}
	attempts := make(map[string]regionState, len(o.regions))
	for r, s := range o.regions {
		attempts[r.String()] = *s
	}
	o.mu.Unlock()

	for _, rs := range o.opts.Regions {
		name := rs.Region.String()
		last, err := o.tracker.Get(ctx, watermark.ExternalName(name))
		if err != nil {
			return Status{}, fmt.Errorf("load %s watermark: %w", name, err)
		}
		r := RegionStatus{Region: name, LastUpdate: last}
		if a, ok := attempts[name]; ok {
			at := a.lastAttempt
			r.LastAttempt = &at
			r.LastError = a.lastError
		}
		r.Stale = last == nil || r.LastError != "" ||
			(o.opts.StaleAfter > 0 && now.Sub(*last) > o.opts.StaleAfter)
		st.Regions = append(st.Regions, r)
	}
	return st, nil
}

// SnapshotSeasonState records the hourly player, team and game counts.
func (o *Orchestrator) SnapshotSeasonState(ctx context.Context) error {
	at := o.tracker.Now().Truncate(time.Hour)
	if err := o.write(ctx, func(ctx context.Context) error {
		return o.maintainer.MergeSeasonState(ctx, at)
	}); err != nil {
		return fmt.Errorf("snapshot season state: %w", err)
	}
	o.logger.Info("season state snapshot recorded", "at", at)
	return nil
}
