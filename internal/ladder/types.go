package ladder

import "time"

// Season is a bounded window of ladder activity. IDs increase monotonically
// per region.
type Season struct {
	Region Region    `json:"region"`
	ID     int       `json:"id"`
	Year   int       `json:"year"`
	Number int       `json:"number"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// Active reports whether now falls inside the season window. A zero end time
// means the season has not been closed yet.
func (s Season) Active(now time.Time) bool {
	if !s.Start.IsZero() && now.Before(s.Start) {
		return false
	}
	return s.End.IsZero() || now.Before(s.End)
}

// League is one league of a season with its tiers and divisions.
type League struct {
	Region Region    `json:"region"`
	Key    LeagueKey `json:"key"`
	Tiers  []Tier    `json:"tiers"`
}

// Empty reports whether the league has no divisions.
func (l League) Empty() bool {
	for _, t := range l.Tiers {
		if len(t.Divisions) > 0 {
			return false
		}
	}
	return true
}

// Divisions flattens the league's tiers.
func (l League) Divisions() []TierDivision {
	var out []TierDivision
	for _, t := range l.Tiers {
		for _, d := range t.Divisions {
			out = append(out, TierDivision{Tier: t.ID, Division: d})
		}
	}
	return out
}

// Tier is a rating band inside a league.
type Tier struct {
	ID        int        `json:"id"`
	MinRating int        `json:"min_rating"`
	MaxRating int        `json:"max_rating"`
	Divisions []Division `json:"divisions"`
}

// Division is a group of teams sharing one ladder.
type Division struct {
	ID          int64 `json:"id"`
	LadderID    int64 `json:"ladder_id"`
	MemberCount int   `json:"member_count"`
}

// TierDivision is a division annotated with its tier.
type TierDivision struct {
	Tier     int
	Division Division
}

// Ladder is one division's roster.
type Ladder struct {
	LadderID int64  `json:"ladder_id"`
	Teams    []Team `json:"teams"`
}

// Team is a ladder entry.
type Team struct {
	ID         int64     `json:"id"`
	Rating     int       `json:"rating"`
	Wins       int       `json:"wins"`
	Losses     int       `json:"losses"`
	Ties       int       `json:"ties"`
	Points     int       `json:"points"`
	LastPlayed time.Time `json:"last_played"`
	Members    []Member  `json:"members"`
}

// Games returns the total number of games the team played.
func (t Team) Games() int { return t.Wins + t.Losses + t.Ties }

// Member is a character on a team.
type Member struct {
	Character Character `json:"character"`
	Race      string    `json:"race,omitempty"`
}

// Character is a player profile within a region and realm.
type Character struct {
	Region Region `json:"region"`
	Realm  int    `json:"realm"`
	ID     int64  `json:"id"`
	Name   string `json:"name"`
}

// Match is one entry of a character's match history.
type Match struct {
	Date     time.Time `json:"date"`
	Map      string    `json:"map"`
	Type     string    `json:"type"`
	Decision string    `json:"decision"`
	Speed    string    `json:"speed"`
}

// DivisionLadder pairs a division with its fetched roster.
type DivisionLadder struct {
	Tier     int
	Division Division
	Ladder   Ladder
}

// LeagueSnapshot is everything fetched for one league in a single cycle. It
// is persisted as one unit.
type LeagueSnapshot struct {
	Season  Season
	League  League
	Ladders []DivisionLadder
}

// MatchHistory is the fetched match history of one character.
type MatchHistory struct {
	Character Character
	Matches   []Match
}
