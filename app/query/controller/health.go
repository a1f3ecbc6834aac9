package controller

import (
	"net/http"
)

// HandleHealth reports ok once a ledger snapshot is installed and the optional cache answers.
func (c *Controller) HandleHealth(w http.ResponseWriter, r *http.Request) {
	view := c.App.Aggregator.Snapshot()
	if view == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading", "error": "no ledger snapshot loaded"})
		return
	}

	if c.App.RedisClient != nil {
		if err := c.App.RedisClient.Health(r.Context()); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "errored", "error": "cache connection error"})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "version": view.Version()})
}
