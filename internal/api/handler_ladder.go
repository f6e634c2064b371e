package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ryanbastic/go-ladderwatch/internal/ladder"
	"github.com/ryanbastic/go-ladderwatch/internal/storage"
)

// LadderSource reads synced ladder data.
type LadderSource interface {
	CharactersPlayedSince(ctx context.Context, since time.Time, after *storage.Cursor, limit int) (*storage.CharacterPage, error)
	SeasonStates(ctx context.Context, region ladder.Region, season int) ([]storage.SeasonState, error)
}

// --- Huma Input/Output types ---

type ListCharactersInput struct {
	Since  string `query:"since" doc:"Only characters that played at or after this RFC 3339 time" required:"true"`
	Cursor string `query:"cursor" doc:"Pagination token from a previous page"`
	Limit  int    `query:"limit" doc:"Page size" default:"100" minimum:"1" maximum:"1000"`
}

type CharacterResponse struct {
	Region     string    `json:"region" doc:"Region code" example:"US"`
	Realm      int       `json:"realm" doc:"Realm number"`
	ID         int64     `json:"id" doc:"Character ID"`
	Name       string    `json:"name,omitempty" doc:"Character name"`
	LastPlayed time.Time `json:"last_played" doc:"Last ladder game"`
}

type ListCharactersOutput struct {
	Body struct {
		Characters []CharacterResponse `json:"characters"`
		NextCursor string              `json:"next_cursor,omitempty" doc:"Token for the next page, absent on the last page"`
	}
}

type ListSeasonStatesInput struct {
	Region string `path:"region" doc:"Region code" example:"EU"`
	Season int    `path:"season" doc:"Season ID" minimum:"1"`
}

type SeasonStateResponse struct {
	PeriodStart time.Time `json:"period_start" doc:"Start of the hour"`
	Players     int64     `json:"players"`
	Teams       int64     `json:"teams"`
	Games       int64     `json:"games"`
}

type ListSeasonStatesOutput struct {
	Body []SeasonStateResponse
}

// --- Handler ---

type LadderHandler struct {
	source LadderSource
	logger *slog.Logger
}

func NewLadderHandler(source LadderSource, logger *slog.Logger) *LadderHandler {
	return &LadderHandler{source: source, logger: logger}
}

func registerLadderRoutes(api huma.API, h *LadderHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "list-characters",
		Method:      http.MethodGet,
		Path:        "/v1/characters",
		Summary:     "List recently active characters",
		Tags:        []string{"ladder"},
	}, h.ListCharacters)

	huma.Register(api, huma.Operation{
		OperationID: "list-season-states",
		Method:      http.MethodGet,
		Path:        "/v1/regions/{region}/seasons/{season}/states",
		Summary:     "Hourly activity of a season",
		Tags:        []string{"ladder"},
	}, h.ListSeasonStates)
}

func (h *LadderHandler) ListCharacters(ctx context.Context, input *ListCharactersInput) (*ListCharactersOutput, error) {
	since, err := time.Parse(time.RFC3339, input.Since)
	if err != nil {
		return nil, huma.Error400BadRequest("since must be an RFC 3339 time")
	}

	var after *storage.Cursor
	if input.Cursor != "" {
		c, err := storage.DecodeCursor(input.Cursor)
		if err != nil {
			return nil, huma.Error400BadRequest("invalid cursor")
		}
		after = c
	}

	page, err := h.source.CharactersPlayedSince(ctx, since, after, input.Limit)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidCursor) {
			return nil, huma.Error400BadRequest("invalid cursor")
		}
		h.logger.Error("list characters failed", "error", err)
		return nil, huma.Error500InternalServerError("failed to list characters")
	}

	out := &ListCharactersOutput{}
	out.Body.Characters = make([]CharacterResponse, 0, len(page.Characters))
	for _, c := range page.Characters {
		out.Body.Characters = append(out.Body.Characters, CharacterResponse{
			Region:     c.Region.String(),
			Realm:      c.Realm,
			ID:         c.ID,
			Name:       c.Name,
			LastPlayed: c.LastPlayed,
		})
	}
	if page.NextCursor != nil {
		token, err := page.NextCursor.Encode()
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to encode cursor")
		}
		out.Body.NextCursor = token
	}
	return out, nil
}

func (h *LadderHandler) ListSeasonStates(ctx context.Context, input *ListSeasonStatesInput) (*ListSeasonStatesOutput, error) {
	region, err := ladder.ParseRegion(input.Region)
	if err != nil {
		return nil, huma.Error404NotFound("unknown region")
	}

	states, err := h.source.SeasonStates(ctx, region, input.Season)
	if err != nil {
		h.logger.Error("list season states failed", "region", region.String(), "season", input.Season, "error", err)
		return nil, huma.Error500InternalServerError("failed to list season states")
	}

	resp := make([]SeasonStateResponse, 0, len(states))
	for _, s := range states {
		resp = append(resp, SeasonStateResponse{
			PeriodStart: s.PeriodStart,
			Players:     s.Players,
			Teams:       s.Teams,
			Games:       s.Games,
		})
	}
	return &ListSeasonStatesOutput{Body: resp}, nil
}
