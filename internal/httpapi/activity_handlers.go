package httpapi

import (
	"net/http"
	"strings"

	"emutabaah.org/internal/audit"
	"emutabaah.org/internal/ids"
	"emutabaah.org/internal/policy"
	"emutabaah.org/internal/store"
)

type activityRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Target   int    `json:"target"`
	Unit     string `json:"unit"`
}

func (a *API) handleActivitiesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listActivities(w, r)
	case http.MethodPost:
		a.createActivity(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleActivityResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/activities/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodPut:
		a.updateActivity(w, r, id)
	case http.MethodDelete:
		a.deleteActivity(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) listActivities(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireSession(w, r); !ok {
		return
	}
	items, err := a.store.Activities().List(r.Context())
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if items == nil {
		items = []*store.Activity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) createActivity(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	if !s.Actor().IsAdmin() {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	var req activityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}
	if req.Target < 0 {
		writeError(w, r, http.StatusBadRequest, "target must be >= 0")
		return
	}
	act := &store.Activity{
		ID:        ids.New(),
		Name:      name,
		Category:  strings.TrimSpace(req.Category),
		Target:    req.Target,
		Unit:      strings.TrimSpace(req.Unit),
		CreatedBy: s.UserID,
	}
	if err := a.store.Activities().Create(r.Context(), act); err != nil {
		handleStoreError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "activity.create", map[string]any{
		"activity_id": act.ID,
		"name":        act.Name,
	})
	writeJSON(w, http.StatusCreated, map[string]any{"activity": act})
}

func (a *API) updateActivity(w http.ResponseWriter, r *http.Request, id string) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	act, err := a.store.Activities().Find(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if !policy.CanActOnOwned(s.Actor(), policy.Target{ID: act.ID, CreatedBy: act.CreatedBy}) {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	var req activityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		act.Name = name
	}
	if req.Target < 0 {
		writeError(w, r, http.StatusBadRequest, "target must be >= 0")
		return
	}
	act.Category = strings.TrimSpace(req.Category)
	act.Target = req.Target
	act.Unit = strings.TrimSpace(req.Unit)
	if err := a.store.Activities().Update(r.Context(), act); err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": act})
}

func (a *API) deleteActivity(w http.ResponseWriter, r *http.Request, id string) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	act, err := a.store.Activities().Find(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if !policy.CanActOnOwned(s.Actor(), policy.Target{ID: act.ID, CreatedBy: act.CreatedBy}) {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	if err := a.store.Activities().Delete(r.Context(), id); err != nil {
		handleStoreError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "activity.delete", map[string]any{"activity_id": id})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
