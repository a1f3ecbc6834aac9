package controller

import (
	"net/http"
	"time"

	"github.com/canopy-network/hyperboard/app/query/types"
	"github.com/canopy-network/hyperboard/pkg/utils"
	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"
)

type Controller struct {
	App *types.App
	// AdminToken is accepted as a bearer token on admin routes; empty disables it.
	AdminToken string
	// JWTSecret verifies HS256 session tokens; empty disables them.
	JWTSecret []byte
	Now       func() time.Time
}

// NewController returns a new controller.
func NewController(app *types.App) *Controller {
	return &Controller{
		App:        app,
		AdminToken: utils.Env("ADMIN_TOKEN", ""),
		JWTSecret:  []byte(utils.Env("JWT_SECRET", "")),
		Now:        time.Now,
	}
}

// WithCORS is a middleware that adds CORS headers to the response.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodPost+", "+http.MethodOptions)

		// Fast-path the preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	r.Handle("/health", http.HandlerFunc(c.HandleHealth)).Methods(http.MethodGet)

	r.HandleFunc("/leaderboard/players", c.HandlePlayers).Methods(http.MethodGet)
	r.HandleFunc("/leaderboard/groups", c.HandleGroups).Methods(http.MethodGet)

	r.HandleFunc("/structures/{id}/owners", c.HandleOwners).Methods(http.MethodGet)
	r.HandleFunc("/structures/{id}/shares/{identity}", c.HandleShare).Methods(http.MethodGet)

	r.Handle("/admin/refresh", c.RequireAdmin(http.HandlerFunc(c.HandleRefresh))).Methods(http.MethodPost)

	return r, nil
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
