// Package storage persists ladder data in PostgreSQL.
package storage

import (
	"errors"
	"time"

	"github.com/ryanbastic/go-ladderwatch/internal/ladder"
)

// ErrInvalidCursor is returned for a pagination token that cannot be decoded.
var ErrInvalidCursor = errors.New("invalid cursor")

// CharacterPage is one page of characters ordered by last played time.
type CharacterPage struct {
	Characters []PlayedCharacter
	NextCursor *Cursor
}

// PlayedCharacter is a character with the time it last played a ladder game.
type PlayedCharacter struct {
	ladder.Character
	LastPlayed time.Time
}

// SeasonState is the hourly activity snapshot of one region's season.
type SeasonState struct {
	Region      ladder.Region
	Season      int
	PeriodStart time.Time
	Players     int64
	Teams       int64
	Games       int64
}
