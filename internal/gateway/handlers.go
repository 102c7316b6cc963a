package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gocodealone/taskrecur/internal/apperr"
	"github.com/gocodealone/taskrecur/internal/auth"
	"github.com/gocodealone/taskrecur/internal/domain"
	"github.com/gocodealone/taskrecur/internal/eventenvelope"
	"github.com/gocodealone/taskrecur/internal/ids"
)

// Mount attaches the task resource routes to r. Every route authenticates
// via auth.Middleware upstream and then checks the path's user_id against
// the authenticated principal here, per §5's authorization rule.
func (g *Gateway) Mount(r chi.Router) {
	r.Route("/users/{user_id}/tasks", func(r chi.Router) {
		r.Post("/", g.handleCreate)
		r.Route("/{task_id}", func(r chi.Router) {
			r.Get("/", g.handleGet)
			r.Patch("/", g.handleUpdate)
			r.Delete("/", g.handleDelete)
			r.Post("/complete", g.handleComplete)
		})
	})
}

// MountAdmin attaches the operator-only replay route. It is authenticated
// the same way as the rest of the surface but does not check the path
// against the caller's own user_id — any authenticated principal may ask
// for a task to be replayed, the operational equivalent of "kick this
// message again."
func (g *Gateway) MountAdmin(r chi.Router) {
	r.Post("/admin/tasks/{task_id}/replay", g.handleReplay)
}

func (g *Gateway) handleReplay(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.FromContext(r.Context()); !ok {
		writeError(w, http.StatusUnauthorized, apperr.ErrMissingToken)
		return
	}
	taskID, err := ids.Parse(chi.URLParam(r, "task_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	t, err := g.Replay(r.Context(), taskID)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeTask(w, http.StatusOK, t)
}

func (g *Gateway) principalFor(w http.ResponseWriter, r *http.Request) (ids.ID, bool) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, apperr.ErrMissingToken)
		return ids.ID{}, false
	}
	pathUserID, err := ids.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return ids.ID{}, false
	}
	if pathUserID != principal.UserID {
		writeError(w, http.StatusForbidden, apperr.ErrPrincipalMismatch)
		return ids.ID{}, false
	}
	return pathUserID, true
}

func (g *Gateway) handleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := g.principalFor(w, r)
	if !ok {
		return
	}
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	t, err := g.CreateTask(r.Context(), userID, req)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeTask(w, http.StatusCreated, t)
}

func (g *Gateway) handleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := g.principalFor(w, r)
	if !ok {
		return
	}
	taskID, err := ids.Parse(chi.URLParam(r, "task_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	t, err := g.GetTask(r.Context(), userID, taskID)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeTask(w, http.StatusOK, t)
}

func (g *Gateway) handleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := g.principalFor(w, r)
	if !ok {
		return
	}
	taskID, err := ids.Parse(chi.URLParam(r, "task_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req UpdateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	t, err := g.UpdateTask(r.Context(), userID, taskID, req)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeTask(w, http.StatusOK, t)
}

func (g *Gateway) handleComplete(w http.ResponseWriter, r *http.Request) {
	userID, ok := g.principalFor(w, r)
	if !ok {
		return
	}
	taskID, err := ids.Parse(chi.URLParam(r, "task_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req := CompleteTaskRequest{IsCompleted: true}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	t, err := g.SetCompleted(r.Context(), userID, taskID, req.IsCompleted)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeTask(w, http.StatusOK, t)
}

func (g *Gateway) handleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := g.principalFor(w, r)
	if !ok {
		return
	}
	taskID, err := ids.Parse(chi.URLParam(r, "task_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := g.DeleteTask(r.Context(), userID, taskID); err != nil {
		writeAppErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeTask(w http.ResponseWriter, status int, t domain.Task) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(eventenvelope.SnapshotOf(t))
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

// writeAppErr maps an apperr.Error kind to its HTTP status, per §7's
// boundary translation table.
func writeAppErr(w http.ResponseWriter, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	switch ae.Kind {
	case apperr.KindValidation:
		writeError(w, http.StatusBadRequest, err)
	case apperr.KindAuthorization:
		writeError(w, http.StatusForbidden, err)
	case apperr.KindNotFound:
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
