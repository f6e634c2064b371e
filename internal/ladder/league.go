package ladder

import "fmt"

// TeamFormat is the number and arrangement of players on a team.
type TeamFormat int

const (
	Format1v1 TeamFormat = iota + 1
	Format2v2
	Format3v3
	Format4v4
	FormatArchon
)

// QueueType is the upstream queue identifier.
type QueueType int

const (
	Queue1v1    QueueType = 201
	Queue2v2    QueueType = 202
	Queue3v3    QueueType = 203
	Queue4v4    QueueType = 204
	QueueArchon QueueType = 206
)

// QueueTypes lists the queues of the current game version in update order.
var QueueTypes = []QueueType{Queue1v1, Queue2v2, Queue3v3, Queue4v4, QueueArchon}

// Format returns the team format served by the queue.
func (q QueueType) Format() TeamFormat {
	switch q {
	case Queue1v1:
		return Format1v1
	case Queue2v2:
		return Format2v2
	case Queue3v3:
		return Format3v3
	case Queue4v4:
		return Format4v4
	case QueueArchon:
		return FormatArchon
	}
	return 0
}

func (q QueueType) String() string {
	switch q {
	case Queue1v1:
		return "1v1"
	case Queue2v2:
		return "2v2"
	case Queue3v3:
		return "3v3"
	case Queue4v4:
		return "4v4"
	case QueueArchon:
		return "archon"
	}
	return fmt.Sprintf("QueueType(%d)", int(q))
}

// TeamType distinguishes pre-arranged teams from randomly matched ones.
type TeamType int

const (
	TeamArranged TeamType = 0
	TeamRandom   TeamType = 1
)

// TeamTypes lists all team types.
var TeamTypes = []TeamType{TeamArranged, TeamRandom}

func (t TeamType) String() string {
	if t == TeamRandom {
		return "random"
	}
	return "arranged"
}

// LeagueType is the competitive league, bronze through grandmaster.
type LeagueType int

const (
	LeagueBronze LeagueType = iota
	LeagueSilver
	LeagueGold
	LeaguePlatinum
	LeagueDiamond
	LeagueMaster
	LeagueGrandmaster
)

// LeagueTypes lists all leagues from lowest to highest.
var LeagueTypes = []LeagueType{
	LeagueBronze, LeagueSilver, LeagueGold, LeaguePlatinum,
	LeagueDiamond, LeagueMaster, LeagueGrandmaster,
}

func (l LeagueType) String() string {
	names := [...]string{"bronze", "silver", "gold", "platinum", "diamond", "master", "grandmaster"}
	if l >= 0 && int(l) < len(names) {
		return names[l]
	}
	return fmt.Sprintf("LeagueType(%d)", int(l))
}

// IsValidCombination reports whether the upstream serves the given league for
// the queue and team type. Random teams only exist in formats without fixed
// per-slot composition, and grandmaster only exists for 1v1 and archon.
func IsValidCombination(league LeagueType, queue QueueType, teamType TeamType) bool {
	format := queue.Format()
	if teamType == TeamRandom && (format == FormatArchon || format == Format1v1) {
		return false
	}
	return league != LeagueGrandmaster || format == FormatArchon || format == Format1v1
}

// LeagueKey identifies one league request.
type LeagueKey struct {
	Season   int
	Queue    QueueType
	TeamType TeamType
	League   LeagueType
}

// Valid reports whether the key names a league the upstream serves.
func (k LeagueKey) Valid() bool {
	return IsValidCombination(k.League, k.Queue, k.TeamType)
}

func (k LeagueKey) String() string {
	return fmt.Sprintf("%d/%s/%s/%s", k.Season, k.Queue, k.TeamType, k.League)
}

// LeagueKeys expands every valid league of a season for the given queues.
func LeagueKeys(season int, queues []QueueType) []LeagueKey {
	var keys []LeagueKey
	for _, q := range queues {
		for _, tt := range TeamTypes {
			for _, lt := range LeagueTypes {
				k := LeagueKey{Season: season, Queue: q, TeamType: tt, League: lt}
				if k.Valid() {
					keys = append(keys, k)
				}
			}
		}
	}
	return keys
}
