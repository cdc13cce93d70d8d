package httpapi

import (
	"net/http"
	"strings"

	"emutabaah.org/internal/audit"
	"emutabaah.org/internal/ids"
	"emutabaah.org/internal/policy"
	"emutabaah.org/internal/store"
)

type hospitalRequest struct {
	Name    string `json:"name"`
	City    string `json:"city"`
	Address string `json:"address"`
}

func (a *API) handleHospitalsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listHospitals(w, r)
	case http.MethodPost:
		a.createHospital(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleHospitalResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/hospitals/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getHospital(w, r, id)
	case http.MethodPut:
		a.updateHospital(w, r, id)
	case http.MethodDelete:
		a.deleteHospital(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) listHospitals(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	actor := s.Actor()

	// Admins see their managed set; everyone else gets the full directory,
	// which carries no sensitive data and feeds selection dropdowns.
	var ids []string
	if actor.Role == policy.RoleAdmin {
		if len(actor.ManagedHospitalIDs) == 0 {
			writeJSON(w, http.StatusOK, map[string]any{"items": []*store.Hospital{}})
			return
		}
		ids = actor.ManagedHospitalIDs
	}
	items, err := a.store.Hospitals().List(r.Context(), ids)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if items == nil {
		items = []*store.Hospital{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) getHospital(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireSession(w, r); !ok {
		return
	}
	h, err := a.store.Hospitals().Find(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hospital": h})
}

func (a *API) createHospital(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	if s.Role != policy.RoleSuperAdmin {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	var req hospitalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}
	h := &store.Hospital{
		ID:      ids.New(),
		Name:    name,
		City:    strings.TrimSpace(req.City),
		Address: strings.TrimSpace(req.Address),
	}
	if err := a.store.Hospitals().Create(r.Context(), h); err != nil {
		handleStoreError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "hospital.create", map[string]any{
		"hospital_id": h.ID,
		"name":        h.Name,
	})
	writeJSON(w, http.StatusCreated, map[string]any{"hospital": h})
}

func (a *API) updateHospital(w http.ResponseWriter, r *http.Request, id string) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	if s.Role != policy.RoleSuperAdmin {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	h, err := a.store.Hospitals().Find(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	var req hospitalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		h.Name = name
	}
	h.City = strings.TrimSpace(req.City)
	h.Address = strings.TrimSpace(req.Address)
	if err := a.store.Hospitals().Update(r.Context(), h); err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hospital": h})
}

func (a *API) deleteHospital(w http.ResponseWriter, r *http.Request, id string) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	if s.Role != policy.RoleSuperAdmin {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	if err := a.store.Hospitals().Delete(r.Context(), id); err != nil {
		handleStoreError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "hospital.delete", map[string]any{"hospital_id": id})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
