package blizzard

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryanbastic/go-ladderwatch/internal/ladder"
)

func seasonBody(id int, start, end time.Time) string {
	endStr := ""
	if !end.IsZero() {
		endStr = fmt.Sprintf("%d", end.Unix())
	}
	return fmt.Sprintf(`{"id":%d,"number":1,"year":2024,"startDate":"%d","endDate":"%s"}`, id, start.Unix(), endStr)
}

func TestDiscoverLatest_StopsAtFirstNotFound(t *testing.T) {
	g := newFakeGetter()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for id := 28; id <= 31; id++ {
		g.responses[fmt.Sprintf("data/sc2/season/%d", id)] = seasonBody(id, start, time.Time{})
	}
	// A later id exists but must never be reached.
	g.responses["data/sc2/season/33"] = seasonBody(33, start, time.Time{})

	p := NewSeasonProbe(g, 28, discardLogger())
	s, err := p.DiscoverLatest(context.Background(), ladder.RegionEU)
	require.NoError(t, err)

	assert.Equal(t, 31, s.ID)
	assert.Equal(t, ladder.RegionEU, s.Region)
	assert.Equal(t, []string{
		"data/sc2/season/28",
		"data/sc2/season/29",
		"data/sc2/season/30",
		"data/sc2/season/31",
		"data/sc2/season/32",
	}, g.Calls())
}

func TestDiscoverLatest_FirstProbeFails(t *testing.T) {
	g := newFakeGetter()
	p := NewSeasonProbe(g, 28, discardLogger())

	_, err := p.DiscoverLatest(context.Background(), ladder.RegionKR)
	require.Error(t, err)

	var nsf *NoSeasonFoundError
	require.ErrorAs(t, err, &nsf)
	assert.Equal(t, ladder.RegionKR, nsf.Region)
	assert.Equal(t, 28, nsf.First)
	assert.True(t, IsNotFound(err), "underlying cause is kept")
}

func TestDiscoverLatest_TransientErrorMidProbeIsSurfaced(t *testing.T) {
	g := newFakeGetter()
	g.responses["data/sc2/season/28"] = seasonBody(28, time.Now(), time.Time{})
	g.errors["data/sc2/season/29"] = &APIError{StatusCode: http.StatusServiceUnavailable, URL: "s/29"}

	p := NewSeasonProbe(g, 28, discardLogger())
	_, err := p.DiscoverLatest(context.Background(), ladder.RegionUS)
	require.Error(t, err)

	var nsf *NoSeasonFoundError
	assert.NotErrorAs(t, err, &nsf)
	assert.True(t, IsTransient(err))
}

func TestCurrentOrLatest_PrefersCurrentEndpoint(t *testing.T) {
	g := newFakeGetter()
	g.responses["sc2/ladder/season/1"] = `{"seasonId":60,"number":2,"year":2024,"startDate":1700000000}`

	p := NewSeasonProbe(g, 28, discardLogger())
	s, current, err := p.CurrentOrLatest(context.Background(), ladder.RegionUS)
	require.NoError(t, err)

	assert.Equal(t, 60, s.ID)
	assert.True(t, current)
	assert.Equal(t, []string{"sc2/ladder/season/1"}, g.Calls())
}

func TestCurrentOrLatest_FallsBackToProbe(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		end         time.Time
		wantCurrent bool
	}{
		{"active season", time.Time{}, true},
		{"ended season", now.Add(-time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newFakeGetter()
			g.errors["sc2/ladder/season/2"] = &APIError{StatusCode: http.StatusInternalServerError}
			g.responses["data/sc2/season/28"] = seasonBody(28, now.Add(-90*24*time.Hour), now.Add(-30*24*time.Hour))
			g.responses["data/sc2/season/29"] = seasonBody(29, now.Add(-30*24*time.Hour), tt.end)

			p := NewSeasonProbe(g, 28, discardLogger())
			p.now = func() time.Time { return now }

			s, current, err := p.CurrentOrLatest(context.Background(), ladder.RegionEU)
			require.NoError(t, err)
			assert.Equal(t, 29, s.ID)
			assert.Equal(t, tt.wantCurrent, current)
		})
	}
}

func TestCurrentOrLatest_BothFail(t *testing.T) {
	g := newFakeGetter()
	g.errors["sc2/ladder/season/3"] = &APIError{StatusCode: http.StatusBadGateway}

	p := NewSeasonProbe(g, 28, discardLogger())
	_, _, err := p.CurrentOrLatest(context.Background(), ladder.RegionKR)

	var nsf *NoSeasonFoundError
	require.ErrorAs(t, err, &nsf)
}
