package update

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ryanbastic/go-ladderwatch/internal/blizzard"
	"github.com/ryanbastic/go-ladderwatch/internal/config"
	"github.com/ryanbastic/go-ladderwatch/internal/ladder"
	"github.com/ryanbastic/go-ladderwatch/internal/storage"
	"github.com/ryanbastic/go-ladderwatch/internal/watermark"
)

var errUpstream = errors.New("upstream unavailable")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeSeasons struct {
	mu       sync.Mutex
	errs     map[ladder.Region]error
	current  bool
	inFlight int
	maxSeen  int
	delay    time.Duration
}

func (f *fakeSeasons) CurrentOrLatest(_ context.Context, region ladder.Region) (ladder.Season, bool, error) {
	f.mu.Lock()
	err := f.errs[region]
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.mu.Unlock()

	time.Sleep(f.delay)

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
	if err != nil {
		return ladder.Season{}, false, err
	}
	return ladder.Season{Region: region, ID: 60, Year: 2024, Number: 3}, f.current, nil
}

// fakeLadders serves one gold 1v1 division per region and empty leagues for
// every other key.
type fakeLadders struct {
	mu   sync.Mutex
	errs map[ladder.Region]error
}

func (f *fakeLadders) FetchSnapshot(_ context.Context, season ladder.Season, key ladder.LeagueKey, _ bool) (ladder.LeagueSnapshot, error) {
	f.mu.Lock()
	err := f.errs[season.Region]
	f.mu.Unlock()
	if err != nil {
		return ladder.LeagueSnapshot{}, err
	}
	snap := ladder.LeagueSnapshot{Season: season, League: ladder.League{Region: season.Region, Key: key}}
	if key.Queue != ladder.Queue1v1 || key.League != ladder.LeagueGold {
		return snap, nil
	}
	div := ladder.Division{ID: 1, LadderID: 100}
	snap.League.Tiers = []ladder.Tier{{ID: 0, Divisions: []ladder.Division{div}}}
	snap.Ladders = []ladder.DivisionLadder{{Division: div, Ladder: ladder.Ladder{
		LadderID: 100,
		Teams:    []ladder.Team{{ID: 1, Wins: 3}},
	}}}
	return snap, nil
}

type leagueSave struct {
	Region ladder.Region
	Key    ladder.LeagueKey
	UC     watermark.UpdateContext
}

type fakeStore struct {
	mu         sync.Mutex
	events     []string
	seasons    []ladder.Season
	leagues    []leagueSave
	characters []ladder.Character
	histories  []ladder.MatchHistory
	matchErr   error
	seasonErrs map[ladder.Region]error
	leagueErrs map[ladder.Region]error
	pageSize   int
	panicOn    string
	since      time.Time
}

func (s *fakeStore) SaveSeason(_ context.Context, season ladder.Season) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.seasonErrs[season.Region]; err != nil {
		return err
	}
	s.seasons = append(s.seasons, season)
	s.events = append(s.events, "season")
	return nil
}

func (s *fakeStore) SaveLeague(_ context.Context, snap ladder.LeagueSnapshot, uc watermark.UpdateContext) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.leagueErrs[snap.Season.Region]; err != nil {
		return 0, err
	}
	s.leagues = append(s.leagues, leagueSave{Region: snap.Season.Region, Key: snap.League.Key, UC: uc})
	s.events = append(s.events, "league")
	n := 0
	for _, l := range snap.Ladders {
		n += len(l.Ladder.Teams)
	}
	return n, nil
}

func (s *fakeStore) CharactersPlayedSince(_ context.Context, since time.Time, after *storage.Cursor, limit int) (*storage.CharacterPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicOn == "characters" {
		panic("characters exploded")
	}
	s.events = append(s.events, "characters")
	s.since = since

	start := 0
	if after != nil {
		start = int(after.ID)
	}
	size := limit
	if s.pageSize > 0 && s.pageSize < size {
		size = s.pageSize
	}
	page := &storage.CharacterPage{}
	end := min(start+size, len(s.characters))
	for _, c := range s.characters[start:end] {
		page.Characters = append(page.Characters, storage.PlayedCharacter{Character: c, LastPlayed: since})
	}
	if end < len(s.characters) {
		page.NextCursor = &storage.Cursor{LastPlayed: since, ID: int64(end)}
	}
	return page, nil
}

func (s *fakeStore) SaveMatches(_ context.Context, histories []ladder.MatchHistory) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "matches")
	if s.matchErr != nil {
		return 0, s.matchErr
	}
	s.histories = append(s.histories, histories...)
	n := 0
	for _, h := range histories {
		n += len(h.Matches)
	}
	return n, nil
}

// failingSaves rejects watermark writes that touch name.
type failingSaves struct {
	*watermark.MemoryStore
	mu   sync.Mutex
	name string
	err  error
}

func (s *failingSaves) Save(ctx context.Context, values map[string]*time.Time) error {
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	if _, ok := values[s.name]; ok && err != nil {
		return err
	}
	return s.MemoryStore.Save(ctx, values)
}

func (s *failingSaves) clear() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
}

func (s *fakeStore) leagueSaves(region ladder.Region) []leagueSave {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []leagueSave
	for _, l := range s.leagues {
		if l.Region == region {
			out = append(out, l)
		}
	}
	return out
}

type fakeMatches struct {
	mu      sync.Mutex
	fetched []ladder.Character
	errs    map[int64]error
}

func (f *fakeMatches) FetchMatches(ctx context.Context, chars []ladder.Character) <-chan blizzard.MatchResult {
	out := make(chan blizzard.MatchResult)
	go func() {
		defer close(out)
		for _, c := range chars {
			if ctx.Err() != nil {
				return
			}
			f.mu.Lock()
			f.fetched = append(f.fetched, c)
			err := f.errs[c.ID]
			f.mu.Unlock()
			r := blizzard.MatchResult{Character: c, Err: err}
			if err == nil {
				r.Matches = []ladder.Match{{Map: "Alcyone LE", Decision: "WIN"}}
			}
			out <- r
		}
	}()
	return out
}

type fakeMaintainer struct {
	mu         sync.Mutex
	calls      []string
	fail       map[string]error
	maxSeason  int
	reindexed  []string
	archivedAt time.Time
	seasonAt   time.Time
}

func (m *fakeMaintainer) record(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
	return m.fail[name]
}

func (m *fakeMaintainer) MaxSeason(context.Context) (int, error) {
	return m.maxSeason, m.record("max_season")
}

func (m *fakeMaintainer) MergeQueueStats(context.Context, int) error {
	return m.record("merge_queue_stats")
}

func (m *fakeMaintainer) ArchiveTeamStates(_ context.Context, since time.Time) (int64, error) {
	m.mu.Lock()
	m.archivedAt = since
	m.mu.Unlock()
	return 0, m.record("archive_team_states")
}

func (m *fakeMaintainer) CleanArchive(context.Context, time.Time) (int64, error) {
	return 0, m.record("clean_archive")
}

func (m *fakeMaintainer) RemoveExpiredTeamStates(context.Context, time.Time) (int64, error) {
	return 0, m.record("remove_expired_team_states")
}

func (m *fakeMaintainer) PurgeExpiredMatches(context.Context, time.Time) (int64, error) {
	return 0, m.record("purge_expired_matches")
}

func (m *fakeMaintainer) MergeSeasonState(_ context.Context, at time.Time) error {
	m.mu.Lock()
	m.seasonAt = at
	m.mu.Unlock()
	return m.record("merge_season_state")
}

func (m *fakeMaintainer) Vacuum(context.Context) error  { return m.record("vacuum") }
func (m *fakeMaintainer) Analyze(context.Context) error { return m.record("analyze") }

func (m *fakeMaintainer) Reindex(_ context.Context, index string) error {
	m.mu.Lock()
	m.reindexed = append(m.reindexed, index)
	m.mu.Unlock()
	return m.record("reindex")
}

func (m *fakeMaintainer) called(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == name {
			n++
		}
	}
	return n
}

type harness struct {
	orch       *Orchestrator
	clock      *fakeClock
	tracker    *watermark.Tracker
	seasons    *fakeSeasons
	ladders    *fakeLadders
	store      *fakeStore
	matches    *fakeMatches
	maintainer *fakeMaintainer
}

func regionSettings(regions ...ladder.Region) []config.RegionSettings {
	out := make([]config.RegionSettings, 0, len(regions))
	for _, r := range regions {
		out = append(out, config.RegionSettings{Region: r, BaseURL: r.BaseURL(), Cluster: r.DefaultCluster()})
	}
	return out
}

func testOptions(regions ...ladder.Region) Options {
	return Options{
		Regions:               regionSettings(regions...),
		MinCycleGap:           210 * time.Second,
		MatchUpdateFrame:      50 * time.Minute,
		ForcedScanFrame:       2 * time.Hour,
		MaintenanceFrequent:   48 * time.Hour,
		MaintenanceInfrequent: 240 * time.Hour,
		HeavyStatsFrame:       24 * time.Hour,
		StaleAfter:            15 * time.Minute,
		WorkerExtra:           2,
		MatchRetention:        720 * time.Hour,
		TeamStateRetention:    2160 * time.Hour,
		ArchiveRetention:      8760 * time.Hour,
	}
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	tracker := watermark.NewTracker(watermark.NewMemoryStore(), watermark.WithClock(clock.Now))
	writer := storage.NewWriter(4, logger)
	t.Cleanup(writer.Close)

	h := &harness{
		clock:      clock,
		tracker:    tracker,
		seasons:    &fakeSeasons{current: true, errs: map[ladder.Region]error{}},
		ladders:    &fakeLadders{errs: map[ladder.Region]error{}},
		store:      &fakeStore{seasonErrs: map[ladder.Region]error{}, leagueErrs: map[ladder.Region]error{}},
		matches:    &fakeMatches{errs: map[int64]error{}},
		maintainer: &fakeMaintainer{maxSeason: 60, fail: map[string]error{}},
	}
	h.orch = New(opts, Deps{
		Seasons:    h.seasons,
		Ladders:    h.ladders,
		Matches:    h.matches,
		Store:      h.store,
		Maintainer: h.maintainer,
		Tracker:    tracker,
		Writer:     writer,
		Logger:     logger,
	})
	return h
}

// useWatermarks swaps the tracker for one backed by store.
func (h *harness) useWatermarks(store watermark.Store) {
	h.tracker = watermark.NewTracker(store, watermark.WithClock(h.clock.Now))
	h.orch.tracker = h.tracker
}

func (h *harness) watermark(t *testing.T, name string) *time.Time {
	t.Helper()
	v, err := h.tracker.Get(context.Background(), name)
	if err != nil {
		t.Fatalf("get %s: %v", name, err)
	}
	return v
}
