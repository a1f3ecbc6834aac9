package controller

import (
	"net/http"
	"strconv"

	"github.com/canopy-network/hyperboard/pkg/ledger"
	"github.com/gorilla/mux"
)

var (
	errInvalidAsOf      = &parseError{msg: "invalid asOf, must be a unix timestamp in seconds"}
	errInvalidStructure = &parseError{msg: "invalid structure id"}
	errMissingIdentity  = &parseError{msg: "missing identity"}
)

// parseAsOf reads the asOf query parameter, defaulting to the current time.
func (c *Controller) parseAsOf(r *http.Request) (int64, error) {
	v := r.URL.Query().Get("asOf")
	if v == "" {
		return c.Now().Unix(), nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, errInvalidAsOf
	}
	return n, nil
}

// parseStructureFilter reads the optional structureId query parameter.
func parseStructureFilter(r *http.Request) (*ledger.StructureID, error) {
	v := r.URL.Query().Get("structureId")
	if v == "" {
		return nil, nil
	}
	id, err := parseStructureID(v)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseStructureID(v string) (ledger.StructureID, error) {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, errInvalidStructure
	}
	return ledger.StructureID(n), nil
}

func pathStructureID(r *http.Request) (ledger.StructureID, error) {
	return parseStructureID(mux.Vars(r)["id"])
}
