package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/canopy-network/hyperboard/pkg/ledger"
	"github.com/canopy-network/hyperboard/pkg/points/leaderboard"
)

// HandlePlayers ranks players by points accrued up to asOf.
// Query parameters:
//   - asOf: unix seconds (default now)
//   - structureId: restrict to one hyperstructure
//   - limit, cursor: page through ranks (cursor is the last rank already seen)
func (c *Controller) HandlePlayers(w http.ResponseWriter, r *http.Request) {
	c.handleBoard(w, r, func(ctx context.Context, asOf int64, structure *ledger.StructureID) (leaderboard.Board, error) {
		return c.App.Aggregator.RankPlayers(ctx, asOf, structure)
	})
}

// HandleGroups ranks groups using the membership loaded with the snapshot. Same parameters
// as HandlePlayers.
func (c *Controller) HandleGroups(w http.ResponseWriter, r *http.Request) {
	c.handleBoard(w, r, func(ctx context.Context, asOf int64, structure *ledger.StructureID) (leaderboard.Board, error) {
		return c.App.Aggregator.RankGroups(ctx, asOf, nil, structure)
	})
}

type rankFunc func(ctx context.Context, asOf int64, structure *ledger.StructureID) (leaderboard.Board, error)

func (c *Controller) handleBoard(w http.ResponseWriter, r *http.Request, rank rankFunc) {
	asOf, err := c.parseAsOf(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	structure, err := parseStructureFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := parsePageSpec(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	board, err := rank(r.Context(), asOf, structure)
	if errors.Is(err, leaderboard.ErrNoSnapshot) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ranking failed")
		return
	}

	writeJSON(w, http.StatusOK, paginate(board, page))
}
