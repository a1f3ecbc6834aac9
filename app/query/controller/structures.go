package controller

import (
	"net/http"

	"github.com/canopy-network/hyperboard/pkg/ledger"
	"github.com/gorilla/mux"
)

type shareResponse struct {
	StructureID ledger.StructureID `json:"structureId"`
	Identity    ledger.Identity    `json:"identity"`
	Share       float64            `json:"share"`
}

// HandleOwners returns the owners of the latest epoch of a structure.
func (c *Controller) HandleOwners(w http.ResponseWriter, r *http.Request) {
	id, err := pathStructureID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if c.App.Aggregator.Snapshot() == nil {
		writeError(w, http.StatusServiceUnavailable, "no ledger snapshot loaded")
		return
	}

	owners, ok := c.App.Aggregator.CurrentOwners(id)
	if !ok {
		writeError(w, http.StatusNotFound, "structure has no recorded epochs")
		return
	}
	writeJSON(w, http.StatusOK, owners)
}

// HandleShare returns an identity's share of a structure in the latest epoch (0 when absent).
func (c *Controller) HandleShare(w http.ResponseWriter, r *http.Request) {
	id, err := pathStructureID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	identity := mux.Vars(r)["identity"]
	if identity == "" {
		writeError(w, http.StatusBadRequest, errMissingIdentity.Error())
		return
	}
	if c.App.Aggregator.Snapshot() == nil {
		writeError(w, http.StatusServiceUnavailable, "no ledger snapshot loaded")
		return
	}

	writeJSON(w, http.StatusOK, shareResponse{
		StructureID: id,
		Identity:    ledger.Identity(identity),
		Share:       c.App.Aggregator.ShareOf(ledger.Identity(identity), id),
	})
}
