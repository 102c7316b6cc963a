// Package health exposes the liveness and readiness endpoints every
// component process mounts, following the teacher framework's convention of
// a small health-check surface independent of the module it's attached to.
package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Checker reports readiness as database connectivity; it checks nothing
// else before a process accepts traffic.
type Checker struct {
	db *sql.DB
}

func New(db *sql.DB) *Checker {
	return &Checker{db: db}
}

// Mount attaches /healthz (always 200 once the process is up) and /readyz
// (200 only if the database is reachable).
func (c *Checker) Mount(r chi.Router) {
	r.Get("/healthz", c.handleHealthz)
	r.Get("/readyz", c.handleReadyz)
}

func (c *Checker) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (c *Checker) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"database": err.Error()})
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
