package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"emutabaah.org/internal/audit"
	"emutabaah.org/internal/ids"
	"emutabaah.org/internal/policy"
	"emutabaah.org/internal/store"
)

type teamSessionRequest struct {
	HospitalID string `json:"hospitalId"`
	Title      string `json:"title"`
	HeldAt     string `json:"heldAt"`
}

func (a *API) handleTeamSessionsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listTeamSessions(w, r)
	case http.MethodPost:
		a.createTeamSession(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleTeamSessionResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/team-attendance/sessions/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	a.deleteTeamSession(w, r, id)
}

func (a *API) listTeamSessions(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	hospitalIDs, done := a.visibleHospitalsFor(w, r, s.Actor(), s.UserID)
	if done {
		return
	}
	items, err := a.store.TeamSessions().List(r.Context(), hospitalIDs)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if items == nil {
		items = []*store.TeamSession{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// visibleHospitalsFor resolves the hospital scope used by list endpoints.
// Super-admins get the unrestricted nil set; admins their managed set; plain
// users their own hospital. done is true when the response was already sent
// (empty managed set or a store failure).
func (a *API) visibleHospitalsFor(w http.ResponseWriter, r *http.Request, actor policy.Actor, userID string) ([]string, bool) {
	switch actor.Role {
	case policy.RoleSuperAdmin:
		return nil, false
	case policy.RoleAdmin:
		if len(actor.ManagedHospitalIDs) == 0 {
			writeJSON(w, http.StatusOK, map[string]any{"items": []any{}})
			return nil, true
		}
		return actor.ManagedHospitalIDs, false
	default:
		emp, err := a.store.Employees().Find(r.Context(), userID)
		if err != nil {
			handleStoreError(w, r, err)
			return nil, true
		}
		return []string{emp.HospitalID}, false
	}
}

func (a *API) createTeamSession(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	actor := s.Actor()
	if !actor.IsAdmin() {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}

	var req teamSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	hospitalID := strings.TrimSpace(req.HospitalID)
	title := strings.TrimSpace(req.Title)
	if hospitalID == "" || title == "" {
		writeError(w, r, http.StatusBadRequest, "hospitalId and title are required")
		return
	}
	if actor.Role == policy.RoleAdmin && !policy.InScope(actor, hospitalID) {
		writeError(w, r, http.StatusForbidden, "hospital is outside your managed set")
		return
	}
	heldAt := time.Now().UTC()
	if raw := strings.TrimSpace(req.HeldAt); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "heldAt must be RFC 3339")
			return
		}
		heldAt = parsed.UTC()
	}
	if _, err := a.store.Hospitals().Find(r.Context(), hospitalID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusBadRequest, "unknown hospital")
			return
		}
		handleStoreError(w, r, err)
		return
	}

	ts := &store.TeamSession{
		ID:         ids.New(),
		HospitalID: hospitalID,
		Title:      title,
		HeldAt:     heldAt,
		CreatedBy:  s.UserID,
	}
	if err := a.store.TeamSessions().Create(r.Context(), ts); err != nil {
		handleStoreError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "team_session.create", map[string]any{
		"session_id":  ts.ID,
		"hospital_id": hospitalID,
	})
	writeJSON(w, http.StatusCreated, map[string]any{"session": ts})
}

func (a *API) deleteTeamSession(w http.ResponseWriter, r *http.Request, id string) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	ts, err := a.store.TeamSessions().Find(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if !policy.CanActOnOwned(s.Actor(), policy.Target{ID: ts.ID, CreatedBy: ts.CreatedBy}) {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	if err := a.store.TeamSessions().Delete(r.Context(), id); err != nil {
		handleStoreError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "team_session.delete", map[string]any{"session_id": id})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
