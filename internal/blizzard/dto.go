package blizzard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ryanbastic/go-ladderwatch/internal/ladder"
)

// epochSeconds decodes unix timestamps sent either as numbers or as strings.
type epochSeconds int64

func (e *epochSeconds) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*e = 0
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("epoch seconds %q: %w", b, err)
	}
	*e = epochSeconds(n)
	return nil
}

func (e epochSeconds) Time() time.Time {
	if e == 0 {
		return time.Time{}
	}
	return time.Unix(int64(e), 0).UTC()
}

// seasonDTO covers both season payloads: the data endpoint uses "id" and the
// current-season endpoint uses "seasonId".
type seasonDTO struct {
	ID        int          `json:"id"`
	SeasonID  int          `json:"seasonId"`
	Number    int          `json:"number"`
	Year      int          `json:"year"`
	StartDate epochSeconds `json:"startDate"`
	EndDate   epochSeconds `json:"endDate"`
}

func (d seasonDTO) toSeason(region ladder.Region) ladder.Season {
	id := d.ID
	if id == 0 {
		id = d.SeasonID
	}
	return ladder.Season{
		Region: region,
		ID:     id,
		Year:   d.Year,
		Number: d.Number,
		Start:  d.StartDate.Time(),
		End:    d.EndDate.Time(),
	}
}

type leagueDTO struct {
	Tiers []struct {
		ID        int `json:"id"`
		MinRating int `json:"min_rating"`
		MaxRating int `json:"max_rating"`
		Divisions []struct {
			ID          int64 `json:"id"`
			LadderID    int64 `json:"ladder_id"`
			MemberCount int   `json:"member_count"`
		} `json:"division"`
	} `json:"tier"`
}

func (d leagueDTO) toLeague(region ladder.Region, key ladder.LeagueKey) ladder.League {
	l := ladder.League{Region: region, Key: key, Tiers: make([]ladder.Tier, 0, len(d.Tiers))}
	for _, t := range d.Tiers {
		tier := ladder.Tier{ID: t.ID, MinRating: t.MinRating, MaxRating: t.MaxRating}
		for _, div := range t.Divisions {
			tier.Divisions = append(tier.Divisions, ladder.Division{
				ID:          div.ID,
				LadderID:    div.LadderID,
				MemberCount: div.MemberCount,
			})
		}
		l.Tiers = append(l.Tiers, tier)
	}
	return l
}

type ladderDTO struct {
	Teams []struct {
		ID         int64        `json:"id"`
		Rating     int          `json:"rating"`
		Wins       int          `json:"wins"`
		Losses     int          `json:"losses"`
		Ties       int          `json:"ties"`
		Points     int          `json:"points"`
		LastPlayed epochSeconds `json:"last_played_time_stamp"`
		Members    []struct {
			LegacyLink struct {
				ID    int64  `json:"id"`
				Realm int    `json:"realm"`
				Name  string `json:"name"`
			} `json:"legacy_link"`
			PlayedRaceCount []struct {
				Race  json.RawMessage `json:"race"`
				Count int             `json:"count"`
			} `json:"played_race_count"`
		} `json:"member"`
	} `json:"team"`
}

func (d ladderDTO) toLadder(region ladder.Region, ladderID int64) ladder.Ladder {
	out := ladder.Ladder{LadderID: ladderID, Teams: make([]ladder.Team, 0, len(d.Teams))}
	for _, t := range d.Teams {
		team := ladder.Team{
			ID:         t.ID,
			Rating:     t.Rating,
			Wins:       t.Wins,
			Losses:     t.Losses,
			Ties:       t.Ties,
			Points:     t.Points,
			LastPlayed: t.LastPlayed.Time(),
		}
		for _, m := range t.Members {
			member := ladder.Member{Character: ladder.Character{
				Region: region,
				Realm:  m.LegacyLink.Realm,
				ID:     m.LegacyLink.ID,
				Name:   m.LegacyLink.Name,
			}}
			best := -1
			for _, rc := range m.PlayedRaceCount {
				if rc.Count > best {
					best = rc.Count
					member.Race = raceName(rc.Race)
				}
			}
			team.Members = append(team.Members, member)
		}
		out.Teams = append(out.Teams, team)
	}
	return out
}

// raceName accepts a plain string or a localized object.
func raceName(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var localized map[string]string
	if err := json.Unmarshal(raw, &localized); err == nil {
		if v, ok := localized["en_US"]; ok {
			return v
		}
		for _, v := range localized {
			return v
		}
	}
	return ""
}

type matchesDTO struct {
	Matches []struct {
		Map      string       `json:"map"`
		Type     string       `json:"type"`
		Decision string       `json:"decision"`
		Speed    string       `json:"speed"`
		Date     epochSeconds `json:"date"`
	} `json:"matches"`
}

func (d matchesDTO) toMatches() []ladder.Match {
	out := make([]ladder.Match, 0, len(d.Matches))
	for _, m := range d.Matches {
		out = append(out, ladder.Match{
			Date:     m.Date.Time(),
			Map:      m.Map,
			Type:     m.Type,
			Decision: m.Decision,
			Speed:    m.Speed,
		})
	}
	return out
}
