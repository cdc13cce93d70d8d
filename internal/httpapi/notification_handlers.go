package httpapi

import (
	"net/http"
	"strings"
	"time"

	"emutabaah.org/internal/audit"
	"emutabaah.org/internal/ids"
	"emutabaah.org/internal/policy"
	"emutabaah.org/internal/store"
)

type broadcastRequest struct {
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	HospitalIDs []string `json:"hospitalIds"`
}

func (a *API) handleNotificationsList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	items, err := a.store.Notifications().ListByRecipient(r.Context(), s.UserID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if items == nil {
		items = []*store.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleNotificationResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/notifications/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "read" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	// MarkRead is scoped to the caller; another employee's notification id
	// reads as missing.
	if err := a.store.Notifications().MarkRead(r.Context(), parts[0], s.UserID, time.Now().UTC()); err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleNotificationBroadcast fans a message out to every active employee of
// the targeted hospitals, intersected with the admin's managed set.
func (a *API) handleNotificationBroadcast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	actor := s.Actor()
	if !actor.IsAdmin() {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}

	var req broadcastRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	title := strings.TrimSpace(req.Title)
	body := strings.TrimSpace(req.Body)
	if title == "" || body == "" {
		writeError(w, r, http.StatusBadRequest, "title and body are required")
		return
	}

	var requested []string
	for _, id := range req.HospitalIDs {
		if id = strings.TrimSpace(id); id != "" {
			requested = append(requested, id)
		}
	}
	hospitalIDs := policy.VisibleHospitals(actor, requested)
	if actor.Role == policy.RoleAdmin && len(hospitalIDs) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"recipients": 0})
		return
	}

	recipients, err := a.store.Notifications().RecipientsByHospitals(r.Context(), hospitalIDs)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if len(recipients) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"recipients": 0})
		return
	}

	batch := make([]*store.Notification, 0, len(recipients))
	for _, recipientID := range recipients {
		batch = append(batch, &store.Notification{
			ID:          ids.New(),
			RecipientID: recipientID,
			Title:       title,
			Body:        body,
		})
	}
	if err := a.store.Notifications().CreateBatch(r.Context(), batch); err != nil {
		handleStoreError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "notification.broadcast", map[string]any{
		"recipients": len(batch),
		"hospitals":  len(hospitalIDs),
	})
	writeJSON(w, http.StatusOK, map[string]any{"recipients": len(batch)})
}
