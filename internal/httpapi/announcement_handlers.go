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

type announcementRequest struct {
	Title      string `json:"title"`
	Body       string `json:"body"`
	HospitalID string `json:"hospitalId"`
	StartsAt   string `json:"startsAt"`
	EndsAt     string `json:"endsAt"`
}

func (a *API) handleAnnouncementsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listAnnouncements(w, r)
	case http.MethodPost:
		a.createAnnouncement(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAnnouncementResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/announcements/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodPut:
		a.updateAnnouncement(w, r, id)
	case http.MethodDelete:
		a.deleteAnnouncement(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}

// listAnnouncements shows only currently-active rows to plain users; admins
// see their full scoped history with ?all=true.
func (a *API) listAnnouncements(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	actor := s.Actor()
	hospitalIDs, done := a.visibleHospitalsFor(w, r, actor, s.UserID)
	if done {
		return
	}
	activeOnly := true
	if actor.IsAdmin() && r.URL.Query().Get("all") == "true" {
		activeOnly = false
	}
	items, err := a.store.Announcements().List(r.Context(), hospitalIDs, activeOnly, time.Now().UTC())
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if items == nil {
		items = []*store.Announcement{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) createAnnouncement(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	actor := s.Actor()
	if !actor.IsAdmin() {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}

	var req announcementRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ann, err := a.buildAnnouncement(actor, req)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if actor.Role == policy.RoleAdmin {
		// Admins publish per hospital; only super-admins broadcast globally.
		if ann.HospitalID == "" {
			writeError(w, r, http.StatusForbidden, "global announcements require super-admin")
			return
		}
		if !policy.InScope(actor, ann.HospitalID) {
			writeError(w, r, http.StatusForbidden, "hospital is outside your managed set")
			return
		}
	}
	ann.ID = ids.New()
	ann.CreatedBy = s.UserID
	if err := a.store.Announcements().Create(r.Context(), ann); err != nil {
		handleStoreError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "announcement.create", map[string]any{
		"announcement_id": ann.ID,
		"hospital_id":     ann.HospitalID,
	})
	writeJSON(w, http.StatusCreated, map[string]any{"announcement": ann})
}

func (a *API) buildAnnouncement(actor policy.Actor, req announcementRequest) (*store.Announcement, error) {
	title := strings.TrimSpace(req.Title)
	body := strings.TrimSpace(req.Body)
	if title == "" || body == "" {
		return nil, errors.New("title and body are required")
	}
	startsAt := time.Now().UTC()
	if raw := strings.TrimSpace(req.StartsAt); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, errors.New("startsAt must be RFC 3339")
		}
		startsAt = parsed.UTC()
	}
	endsAt := startsAt.Add(7 * 24 * time.Hour)
	if raw := strings.TrimSpace(req.EndsAt); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, errors.New("endsAt must be RFC 3339")
		}
		endsAt = parsed.UTC()
	}
	if !endsAt.After(startsAt) {
		return nil, errors.New("endsAt must be after startsAt")
	}
	return &store.Announcement{
		Title:      title,
		Body:       body,
		HospitalID: strings.TrimSpace(req.HospitalID),
		StartsAt:   startsAt,
		EndsAt:     endsAt,
	}, nil
}

func (a *API) updateAnnouncement(w http.ResponseWriter, r *http.Request, id string) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	ann, err := a.store.Announcements().Find(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	actor := s.Actor()
	if !policy.CanActOnOwned(actor, policy.Target{ID: ann.ID, CreatedBy: ann.CreatedBy}) {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}

	var req announcementRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := a.buildAnnouncement(actor, req)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ann.Title = updated.Title
	ann.Body = updated.Body
	ann.StartsAt = updated.StartsAt
	ann.EndsAt = updated.EndsAt
	if err := a.store.Announcements().Update(r.Context(), ann); err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"announcement": ann})
}

func (a *API) deleteAnnouncement(w http.ResponseWriter, r *http.Request, id string) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	ann, err := a.store.Announcements().Find(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if !policy.CanActOnOwned(s.Actor(), policy.Target{ID: ann.ID, CreatedBy: ann.CreatedBy}) {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	if err := a.store.Announcements().Delete(r.Context(), id); err != nil {
		handleStoreError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "announcement.delete", map[string]any{"announcement_id": id})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
