package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/ryanbastic/go-ladderwatch/internal/ladder"
	"github.com/ryanbastic/go-ladderwatch/internal/storage"
)

type mockLadder struct {
	since  time.Time
	after  *storage.Cursor
	limit  int
	page   *storage.CharacterPage
	states []storage.SeasonState
	err    error

	region ladder.Region
	season int
}

func (m *mockLadder) CharactersPlayedSince(_ context.Context, since time.Time, after *storage.Cursor, limit int) (*storage.CharacterPage, error) {
	m.since, m.after, m.limit = since, after, limit
	if m.err != nil {
		return nil, m.err
	}
	return m.page, nil
}

func (m *mockLadder) SeasonStates(_ context.Context, region ladder.Region, season int) ([]storage.SeasonState, error) {
	m.region, m.season = region, season
	return m.states, m.err
}

func charactersURL(q url.Values) string {
	return "/v1/characters?" + q.Encode()
}

func TestListCharacters_FirstPage(t *testing.T) {
	next := &storage.Cursor{LastPlayed: testNow, Region: 2, Realm: 1, ID: 7}
	source := &mockLadder{page: &storage.CharacterPage{
		Characters: []storage.PlayedCharacter{{
			Character:  ladder.Character{Region: ladder.RegionEU, Realm: 1, ID: 7, Name: "Serral"},
			LastPlayed: testNow,
		}},
		NextCursor: next,
	}}
	server := NewServer(testLogger(), Deps{Ladder: source})

	since := testNow.Add(-time.Hour)
	req := httptest.NewRequest(http.MethodGet, charactersURL(url.Values{
		"since": {since.Format(time.RFC3339)},
		"limit": {"10"},
	}), nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d\nbody: %s", w.Code, w.Body.String())
	}
	if !source.since.Equal(since) || source.limit != 10 || source.after != nil {
		t.Errorf("query: since=%v limit=%d after=%v", source.since, source.limit, source.after)
	}

	var resp ListCharactersOutput
	if err := json.NewDecoder(w.Body).Decode(&resp.Body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Body.Characters) != 1 || resp.Body.Characters[0].Region != "EU" || resp.Body.Characters[0].Name != "Serral" {
		t.Errorf("characters: got %+v", resp.Body.Characters)
	}

	cur, err := storage.DecodeCursor(resp.Body.NextCursor)
	if err != nil {
		t.Fatalf("next_cursor: %v", err)
	}
	if cur.ID != 7 || cur.Region != 2 {
		t.Errorf("next_cursor: got %+v", cur)
	}
}

func TestListCharacters_FollowsCursor(t *testing.T) {
	source := &mockLadder{page: &storage.CharacterPage{}}
	server := NewServer(testLogger(), Deps{Ladder: source})

	token, err := (&storage.Cursor{LastPlayed: testNow, Region: 1, Realm: 2, ID: 99}).Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, charactersURL(url.Values{
		"since":  {testNow.Format(time.RFC3339)},
		"cursor": {token},
	}), nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d\nbody: %s", w.Code, w.Body.String())
	}
	if source.after == nil || source.after.ID != 99 {
		t.Errorf("cursor not passed through: %+v", source.after)
	}
	if source.limit != 100 {
		t.Errorf("default limit: got %d, want 100", source.limit)
	}
}

func TestListCharacters_BadRequests(t *testing.T) {
	server := NewServer(testLogger(), Deps{Ladder: &mockLadder{page: &storage.CharacterPage{}}})
	since := testNow.Format(time.RFC3339)

	tests := []struct {
		name  string
		query url.Values
	}{
		{"missing since", url.Values{}},
		{"bad cursor", url.Values{"since": {since}, "cursor": {"%%%"}}},
		{"bad since", url.Values{"since": {"yesterday"}}},
		{"limit too large", url.Values{"since": {since}, "limit": {"5000"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, charactersURL(tt.query), nil)
			w := httptest.NewRecorder()
			server.ServeHTTP(w, req)

			if w.Code < 400 || w.Code >= 500 {
				t.Errorf("status: got %d, want 4xx\nbody: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestListCharacters_StoreError(t *testing.T) {
	server := NewServer(testLogger(), Deps{Ladder: &mockLadder{err: errors.New("timeout")}})

	req := httptest.NewRequest(http.MethodGet, charactersURL(url.Values{"since": {testNow.Format(time.RFC3339)}}), nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestListSeasonStates(t *testing.T) {
	source := &mockLadder{states: []storage.SeasonState{
		{Region: ladder.RegionKR, Season: 60, PeriodStart: testNow, Players: 10, Teams: 12, Games: 300},
	}}
	server := NewServer(testLogger(), Deps{Ladder: source})

	req := httptest.NewRequest(http.MethodGet, "/v1/regions/kr/seasons/60/states", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d\nbody: %s", w.Code, w.Body.String())
	}
	if source.region != ladder.RegionKR || source.season != 60 {
		t.Errorf("query: region=%v season=%d", source.region, source.season)
	}

	var resp []SeasonStateResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 1 || resp[0].Games != 300 {
		t.Errorf("states: got %+v", resp)
	}
}

func TestListSeasonStates_UnknownRegion(t *testing.T) {
	server := NewServer(testLogger(), Deps{Ladder: &mockLadder{}})

	req := httptest.NewRequest(http.MethodGet, "/v1/regions/mars/seasons/60/states", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusNotFound)
	}
}
