package api

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ryanbastic/go-ladderwatch/internal/update"
)

// StatusSource reports ladder freshness.
type StatusSource interface {
	Status(ctx context.Context) (update.Status, error)
}

// WatermarkSource lists persisted watermarks.
type WatermarkSource interface {
	List(ctx context.Context) (map[string]*time.Time, error)
	Now() time.Time
}

// --- Huma Input/Output types ---

type RegionStatusResponse struct {
	Region      string     `json:"region" doc:"Region code" example:"EU"`
	LastUpdate  *time.Time `json:"last_update,omitempty" doc:"Start of the last cycle that refreshed the region"`
	LastAttempt *time.Time `json:"last_attempt,omitempty" doc:"Start of the last update attempt since process start"`
	LastError   string     `json:"last_error,omitempty" doc:"Error of the last attempt"`
	Stale       bool       `json:"stale" doc:"Region data is behind"`
}

type CycleResponse struct {
	ID            string            `json:"id" doc:"Cycle ID" format:"uuid"`
	Begin         time.Time         `json:"begin" doc:"Cycle start"`
	DurationMs    int64             `json:"duration_ms" doc:"Cycle duration in milliseconds"`
	Phases        map[string]string `json:"phases,omitempty" doc:"Outcome per phase that ran"`
	FailedRegions []string          `json:"failed_regions,omitempty" doc:"Regions that failed to update"`
}

type StatusResponse struct {
	LastUpdate     *time.Time             `json:"last_update,omitempty" doc:"Last confirmed global update"`
	SharedUpstream bool                   `json:"shared_upstream" doc:"Regions of one cluster are updated sequentially"`
	Running        bool                   `json:"running" doc:"A cycle is in progress"`
	LastCycle      *CycleResponse         `json:"last_cycle,omitempty" doc:"Last cycle that ran in this process"`
	Regions        []RegionStatusResponse `json:"regions" doc:"Per-region freshness"`
}

type GetStatusInput struct{}

type GetStatusOutput struct {
	Body StatusResponse
}

type WatermarkResponse struct {
	Name       string     `json:"name" doc:"Watermark name" example:"match.updated"`
	Value      *time.Time `json:"value,omitempty" doc:"Last advance, absent if never"`
	AgeSeconds *float64   `json:"age_seconds,omitempty" doc:"Seconds since the last advance"`
	Frame      string     `json:"frame,omitempty" doc:"Interval after which the watermark is due" example:"50m0s"`
	Due        *bool      `json:"due,omitempty" doc:"Whether the next cycle runs the work behind the watermark"`
}

type ListWatermarksInput struct{}

type ListWatermarksOutput struct {
	Body []WatermarkResponse
}

// --- Handlers ---

type StatusHandler struct {
	source StatusSource
}

func NewStatusHandler(source StatusSource) *StatusHandler {
	return &StatusHandler{source: source}
}

type WatermarkHandler struct {
	source WatermarkSource
	frames map[string]time.Duration
}

func NewWatermarkHandler(source WatermarkSource, frames map[string]time.Duration) *WatermarkHandler {
	return &WatermarkHandler{source: source, frames: frames}
}

func registerStatusRoutes(api huma.API, h *StatusHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/v1/status",
		Summary:     "Ladder freshness per region",
		Tags:        []string{"status"},
	}, h.GetStatus)
}

func registerWatermarkRoutes(api huma.API, h *WatermarkHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "list-watermarks",
		Method:      http.MethodGet,
		Path:        "/v1/watermarks",
		Summary:     "List tracked watermarks",
		Tags:        []string{"status"},
	}, h.ListWatermarks)
}

func (h *StatusHandler) GetStatus(ctx context.Context, _ *GetStatusInput) (*GetStatusOutput, error) {
	st, err := h.source.Status(ctx)
	if err != nil {
		return nil, huma.Error503ServiceUnavailable("status unavailable", err)
	}

	resp := StatusResponse{
		LastUpdate:     st.LastUpdate,
		SharedUpstream: st.SharedUpstream,
		Running:        st.Running,
		Regions:        make([]RegionStatusResponse, 0, len(st.Regions)),
	}
	for _, r := range st.Regions {
		resp.Regions = append(resp.Regions, RegionStatusResponse{
			Region:      r.Region,
			LastUpdate:  r.LastUpdate,
			LastAttempt: r.LastAttempt,
			LastError:   r.LastError,
			Stale:       r.Stale,
		})
	}
	if c := st.LastCycle; c != nil {
		cr := &CycleResponse{
			ID:         c.ID.String(),
			Begin:      c.Begin,
			DurationMs: c.Duration.Milliseconds(),
			Phases:     c.Phases,
		}
		for _, r := range c.Regions {
			if r.Err != nil {
				cr.FailedRegions = append(cr.FailedRegions, r.Region.String())
			}
		}
		resp.LastCycle = cr
	}
	return &GetStatusOutput{Body: resp}, nil
}

func (h *WatermarkHandler) ListWatermarks(ctx context.Context, _ *ListWatermarksInput) (*ListWatermarksOutput, error) {
	values, err := h.source.List(ctx)
	if err != nil {
		return nil, huma.Error503ServiceUnavailable("watermarks unavailable", err)
	}
	merged := make(map[string]*time.Time, len(values)+len(h.frames))
	for name := range h.frames {
		merged[name] = nil
	}
	for name, v := range values {
		merged[name] = v
	}
	values = merged

	now := h.source.Now()
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	slices.Sort(names)

	resp := make([]WatermarkResponse, 0, len(names))
	for _, name := range names {
		v := values[name]
		wr := WatermarkResponse{Name: name, Value: v}
		if v != nil {
			age := now.Sub(*v).Seconds()
			wr.AgeSeconds = &age
		}
		if frame, ok := h.frames[name]; ok {
			due := v == nil || now.Sub(*v) >= frame
			wr.Frame = frame.String()
			wr.Due = &due
		}
		resp = append(resp, wr)
	}
	return &ListWatermarksOutput{Body: resp}, nil
}
