package controller

import (
	"net/http"
	"strconv"

	"github.com/canopy-network/hyperboard/pkg/points/leaderboard"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// pageSpec selects a window of a ranked board. Cursor is the last rank already seen.
type pageSpec struct {
	Limit  int
	Cursor int
}

func parsePageSpec(r *http.Request) (pageSpec, error) {
	qs := r.URL.Query()
	limit := defaultLimit
	if v := qs.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return pageSpec{}, errInvalidLimit
		}
		limit = min(n, maxLimit)
	}

	var cursor int
	if v := qs.Get("cursor"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return pageSpec{}, errInvalidCursor
		}
		cursor = n
	}

	return pageSpec{Limit: limit, Cursor: cursor}, nil
}

type boardPage struct {
	leaderboard.Board
	Total      int  `json:"total"`
	Limit      int  `json:"limit"`
	NextCursor *int `json:"nextCursor,omitempty"`
}

// paginate returns the entries ranked after page.Cursor, at most page.Limit of them.
func paginate(board leaderboard.Board, page pageSpec) boardPage {
	out := boardPage{Board: board, Total: len(board.Entries), Limit: page.Limit}

	entries := board.Entries
	if page.Cursor >= len(entries) {
		entries = []leaderboard.Entry{}
	} else {
		entries = entries[page.Cursor:]
	}
	if len(entries) > page.Limit {
		entries = entries[:page.Limit]
		next := entries[len(entries)-1].Rank
		out.NextCursor = &next
	}
	out.Entries = entries
	return out
}

var (
	errInvalidLimit  = &parseError{msg: "invalid limit"}
	errInvalidCursor = &parseError{msg: "invalid cursor"}
)

type parseError struct{ msg string }

func (e *parseError) Error() string { return e.msg }
