package audit

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gocodealone/taskrecur/internal/ids"
)

// Mount attaches the operator-facing activity feed endpoint. The task
// replay endpoint lives on the gateway, since replaying means re-publishing
// from the tasks table the gateway owns.
func (r *Recorder) Mount(router chi.Router) {
	router.Get("/admin/users/{user_id}/activity", r.handleActivity)
}

func (r *Recorder) handleActivity(w http.ResponseWriter, req *http.Request) {
	userID, err := ids.Parse(chi.URLParam(req, "user_id"))
	if err != nil {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return
	}
	limit := 50
	if v := req.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	records, err := r.ListActivity(req.Context(), userID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(records)
}
