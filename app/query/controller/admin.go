package controller

import (
	"net/http"

	"go.uber.org/zap"
)

// HandleRefresh reloads the ledger snapshot immediately instead of waiting for the cron.
func (c *Controller) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := c.App.Refresh(r.Context()); err != nil {
		c.App.Logger.Error("Manual ledger refresh failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "refresh failed")
		return
	}

	view := c.App.Aggregator.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "version": view.Version()})
}
