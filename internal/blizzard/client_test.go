package blizzard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryanbastic/go-ladderwatch/internal/circuitbreaker"
	"github.com/ryanbastic/go-ladderwatch/internal/ladder"
	"github.com/ryanbastic/go-ladderwatch/internal/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate ...func(*Options)) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts := Options{
		BaseURLs:        map[ladder.Region]string{},
		RetryMax:        3,
		RetryMinBackoff: time.Millisecond,
		RetryMaxBackoff: 5 * time.Millisecond,
		Logger:          discardLogger(),
	}
	for _, r := range ladder.Regions {
		opts.BaseURLs[r] = srv.URL
	}
	for _, m := range mutate {
		m(&opts)
	}
	return NewClient(opts)
}

func TestGet_DecodesBodyAndSendsHeaders(t *testing.T) {
	var accept, agent, path string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		accept, agent, path = r.Header.Get("Accept"), r.Header.Get("User-Agent"), r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"seasonId":57,"number":3,"year":2023,"startDate":"1690000000"}`))
	})

	var dto seasonDTO
	require.NoError(t, c.Get(context.Background(), ladder.RegionEU, "/sc2/ladder/season/2", &dto))

	assert.Equal(t, "application/json", accept)
	assert.Equal(t, "ladderwatch/1.0", agent)
	assert.Equal(t, "/sc2/ladder/season/2", path)
	s := dto.toSeason(ladder.RegionEU)
	assert.Equal(t, 57, s.ID)
	assert.Equal(t, time.Unix(1690000000, 0).UTC(), s.Start)
	assert.True(t, s.End.IsZero())
}

func TestGet_RetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})

	err := c.Get(context.Background(), ladder.RegionUS, "data/sc2/season/30", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestGet_GivesUpAfterRetryBudget(t *testing.T) {
	var attempts atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := c.Get(context.Background(), ladder.RegionUS, "data/sc2/season/30", nil)
	require.Error(t, err)
	assert.Equal(t, int32(4), attempts.Load(), "one call plus three retries")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.True(t, IsTransient(err))
}

func TestGet_ClientErrorsAreNotRetried(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var attempts atomic.Int32
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				w.WriteHeader(status)
			})

			err := c.Get(context.Background(), ladder.RegionKR, "data/sc2/ladder/1", nil)
			require.Error(t, err)
			assert.Equal(t, int32(1), attempts.Load())
			assert.False(t, IsTransient(err))
			assert.Equal(t, status == http.StatusNotFound, IsNotFound(err))
		})
	}
}

func TestGet_InvalidJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	})

	var dto leagueDTO
	err := c.Get(context.Background(), ladder.RegionUS, "data/sc2/league/1/201/0/0", &dto)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestGet_BreakerOpensOnTransientFailuresOnly(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNotFound)
	var attempts atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(int(status.Load()))
	}, func(o *Options) {
		o.RetryMax = 0
		o.BreakerMaxFailures = 2
		o.BreakerReset = time.Hour
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.True(t, IsNotFound(c.Get(ctx, ladder.RegionCN, "x", nil)))
	}
	assert.Equal(t, "closed", c.BreakerStates()["CN"])

	status.Store(http.StatusBadGateway)
	_ = c.Get(ctx, ladder.RegionCN, "x", nil)
	_ = c.Get(ctx, ladder.RegionCN, "x", nil)
	before := attempts.Load()

	err := c.Get(ctx, ladder.RegionCN, "x", nil)
	require.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, before, attempts.Load(), "open breaker issues no request")
	assert.Equal(t, "open", c.BreakerStates()["CN"])

	// Other regions keep working.
	status.Store(http.StatusOK)
	require.NoError(t, c.Get(ctx, ladder.RegionUS, "x", nil))
}

func TestGet_RateLimiterHonoursContext(t *testing.T) {
	var attempts atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		_, _ = w.Write([]byte(`{}`))
	}, func(o *Options) {
		o.RequestsPerSecond = 1
		o.RetryMax = 0
	})

	require.NoError(t, c.Get(context.Background(), ladder.RegionUS, "x", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Get(ctx, ladder.RegionUS, "x", nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load(), "second request is held by the limiter")
}

func TestGet_RecordsUpstreamMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewLadder(reg)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, func(o *Options) { o.Metrics = m })

	_ = c.Get(context.Background(), ladder.RegionEU, "x", nil)

	count, err := testutil.GatherAndCount(reg, "ladderwatch_upstream_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewHTTPClient_NoCredentials(t *testing.T) {
	assert.Nil(t, NewHTTPClient(context.Background(), "", "", "http://token", time.Second, time.Second))
}

func TestNewHTTPClient_FetchesBearerToken(t *testing.T) {
	var gotAuth atomic.Value
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer api.Close()

	token := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok123","token_type":"bearer","expires_in":3600}`))
	}))
	defer token.Close()

	hc := NewHTTPClient(context.Background(), "id", "secret", token.URL, time.Second, time.Second)
	require.NotNil(t, hc)

	c := NewClient(Options{
		BaseURLs:   map[ladder.Region]string{ladder.RegionUS: api.URL},
		HTTPClient: hc,
		Logger:     discardLogger(),
	})
	require.NoError(t, c.Get(context.Background(), ladder.RegionUS, "x", nil))
	assert.Equal(t, "Bearer tok123", gotAuth.Load())
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(ErrInvalidLeague))
	assert.True(t, IsTransient(errors.New("connection reset")))
	assert.True(t, IsTransient(circuitbreaker.ErrCircuitOpen))
	assert.True(t, IsTransient(&APIError{StatusCode: 503}))
	assert.False(t, IsTransient(&APIError{StatusCode: 400}))
}
