package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"emutabaah.org/internal/audit"
	"emutabaah.org/internal/ids"
	"emutabaah.org/internal/password"
	"emutabaah.org/internal/policy"
	"emutabaah.org/internal/session"
	"emutabaah.org/internal/store"
)

type createEmployeeRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Name       string `json:"name"`
	NIP        string `json:"nip"`
	HospitalID string `json:"hospitalId"`
	Position   string `json:"position"`
}

type updateEmployeeRequest struct {
	Name         *string `json:"name"`
	Position     *string `json:"position"`
	PhotoURL     *string `json:"photoUrl"`
	SignatureURL *string `json:"signatureUrl"`
	HospitalID   *string `json:"hospitalId"`
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

type updateActiveRequest struct {
	Active bool `json:"active"`
}

type managedHospitalsRequest struct {
	HospitalIDs []string `json:"hospitalIds"`
}

func (a *API) handleEmployeesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listEmployees(w, r)
	case http.MethodPost:
		a.createEmployee(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleEmployeeResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/employees/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]
	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			a.getEmployee(w, r, id)
		case http.MethodPut:
			a.updateEmployee(w, r, id)
		case http.MethodDelete:
			a.deleteEmployee(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
		}
	case len(parts) == 2 && parts[1] == "role":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		a.updateEmployeeRole(w, r, id)
	case len(parts) == 2 && parts[1] == "active":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		a.updateEmployeeActive(w, r, id)
	case len(parts) == 2 && parts[1] == "managed-hospitals":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		a.updateManagedHospitals(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// listEmployees intersects the requested hospital filter with the actor's
// managed set before the query runs. An admin whose intersection is empty
// gets an empty list, never an error.
func (a *API) listEmployees(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	actor := s.Actor()
	if !actor.IsAdmin() {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}

	var requested []string
	if raw := strings.TrimSpace(r.URL.Query().Get("hospitalId")); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				requested = append(requested, id)
			}
		}
	}
	visible := policy.VisibleHospitals(actor, requested)
	if actor.Role == policy.RoleAdmin && len(visible) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"items": []*store.Employee{}})
		return
	}

	filter := store.EmployeeFilter{
		HospitalIDs: visible,
		Query:       strings.TrimSpace(r.URL.Query().Get("q")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("role")); raw != "" {
		filter.Role = policy.ParseRole(raw)
	}

	items, err := a.store.Employees().List(r.Context(), filter)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if items == nil {
		items = []*store.Employee{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) createEmployee(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	actor := s.Actor()
	if !actor.IsAdmin() {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}

	var req createEmployeeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	name := strings.TrimSpace(req.Name)
	nip := strings.TrimSpace(req.NIP)
	hospitalID := strings.TrimSpace(req.HospitalID)
	if email == "" || name == "" || nip == "" || hospitalID == "" {
		writeError(w, r, http.StatusBadRequest, "email, name, nip and hospitalId are required")
		return
	}
	if actor.Role == policy.RoleAdmin && !policy.InScope(actor, hospitalID) {
		writeError(w, r, http.StatusForbidden, "hospital is outside your managed set")
		return
	}
	hash, err := password.Hash(req.Password)
	if err != nil {
		if errors.Is(err, password.ErrTooShort) {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	id := ids.New()
	if err := a.store.Employees().CreateIdentity(r.Context(), &store.Identity{
		ID: id, Email: email, PasswordHash: hash,
	}); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			writeErrorCode(w, r, http.StatusConflict, "email is already registered", "duplicate_email")
			return
		}
		handleStoreError(w, r, err)
		return
	}
	emp := &store.Employee{
		ID:         id,
		NIP:        nip,
		Email:      email,
		Name:       name,
		Role:       policy.RoleUser,
		HospitalID: hospitalID,
		Position:   strings.TrimSpace(req.Position),
		IsActive:   true,
	}
	if err := a.store.Employees().CreateProfile(r.Context(), emp); err != nil {
		if delErr := a.store.Employees().DeleteIdentity(r.Context(), id); delErr != nil {
			writeErrorCode(w, r, http.StatusInternalServerError,
				"employee creation failed and rollback did not complete", "rollback_failed")
			return
		}
		if errors.Is(err, store.ErrAlreadyExists) {
			writeErrorCode(w, r, http.StatusConflict, "nip is already registered", "duplicate_nip")
			return
		}
		handleStoreError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "employee.create", map[string]any{
		"employee_id": id,
		"hospital_id": hospitalID,
	})
	writeJSON(w, http.StatusCreated, map[string]any{"employee": emp})
}

func (a *API) getEmployee(w http.ResponseWriter, r *http.Request, id string) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	emp, err := a.store.Employees().Find(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if !a.canSeeEmployee(s, emp) {
		// Scope-denied single fetch reads the same as a missing row.
		writeErrorCode(w, r, http.StatusNotFound, "resource not found", "not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employee": emp})
}

func (a *API) canSeeEmployee(s *session.Session, emp *store.Employee) bool {
	if s.UserID == emp.ID {
		return true
	}
	actor := s.Actor()
	switch actor.Role {
	case policy.RoleSuperAdmin:
		return true
	case policy.RoleAdmin:
		return policy.InScope(actor, emp.HospitalID)
	default:
		return false
	}
}

func (a *API) updateEmployee(w http.ResponseWriter, r *http.Request, id string) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	emp, err := a.store.Employees().Find(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if !a.canSeeEmployee(s, emp) {
		writeErrorCode(w, r, http.StatusNotFound, "resource not found", "not_found")
		return
	}
	actor := s.Actor()
	target := policy.Target{ID: emp.ID, Role: emp.Role, HospitalID: emp.HospitalID}
	if !policy.CanModifyProfile(actor, target) {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}

	var req updateEmployeeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			writeError(w, r, http.StatusBadRequest, "name must not be empty")
			return
		}
		emp.Name = strings.TrimSpace(*req.Name)
	}
	if req.Position != nil {
		emp.Position = strings.TrimSpace(*req.Position)
	}
	if req.PhotoURL != nil {
		emp.PhotoURL = strings.TrimSpace(*req.PhotoURL)
	}
	if req.SignatureURL != nil {
		emp.SignatureURL = strings.TrimSpace(*req.SignatureURL)
	}
	if req.HospitalID != nil {
		// Moving an employee between hospitals is an admin action bound to the
		// actor's scope on both ends.
		newHospital := strings.TrimSpace(*req.HospitalID)
		if newHospital == "" {
			writeError(w, r, http.StatusBadRequest, "hospitalId must not be empty")
			return
		}
		if !actor.IsAdmin() {
			writeError(w, r, http.StatusForbidden, "permission denied")
			return
		}
		if actor.Role == policy.RoleAdmin && !policy.InScope(actor, newHospital) {
			writeError(w, r, http.StatusForbidden, "hospital is outside your managed set")
			return
		}
		emp.HospitalID = newHospital
	}

	if err := a.store.Employees().UpdateProfile(r.Context(), emp); err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employee": emp})
}

func (a *API) deleteEmployee(w http.ResponseWriter, r *http.Request, id string) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	emp, err := a.store.Employees().Find(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if !a.canSeeEmployee(s, emp) {
		writeErrorCode(w, r, http.StatusNotFound, "resource not found", "not_found")
		return
	}
	actor := s.Actor()
	target := policy.Target{ID: emp.ID, Role: emp.Role, HospitalID: emp.HospitalID}
	if !policy.CanDeleteEmployee(actor, target) {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	if err := a.store.Employees().Delete(r.Context(), id); err != nil {
		handleStoreError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "employee.delete", map[string]any{
		"employee_id": id,
		"hospital_id": emp.HospitalID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) updateEmployeeRole(w http.ResponseWriter, r *http.Request, id string) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	emp, err := a.store.Employees().Find(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if !a.canSeeEmployee(s, emp) {
		writeErrorCode(w, r, http.StatusNotFound, "resource not found", "not_found")
		return
	}

	var req updateRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	newRole := policy.ParseRole(req.Role)
	actor := s.Actor()
	target := policy.Target{ID: emp.ID, Role: emp.Role, HospitalID: emp.HospitalID}
	if !policy.CanModifyRole(actor, target, newRole) {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	if err := a.store.Employees().UpdateRole(r.Context(), id, newRole); err != nil {
		handleStoreError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "employee.role.update", map[string]any{
		"employee_id": id,
		"old_role":    string(emp.Role),
		"new_role":    string(newRole),
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) updateEmployeeActive(w http.ResponseWriter, r *http.Request, id string) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	emp, err := a.store.Employees().Find(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if !a.canSeeEmployee(s, emp) {
		writeErrorCode(w, r, http.StatusNotFound, "resource not found", "not_found")
		return
	}

	var req updateActiveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	actor := s.Actor()
	target := policy.Target{ID: emp.ID, Role: emp.Role, HospitalID: emp.HospitalID}
	// Deactivation gates like deletion: a soft delete must not be an easier path.
	if !policy.CanDeleteEmployee(actor, target) {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	if err := a.store.Employees().SetActive(r.Context(), id, req.Active); err != nil {
		handleStoreError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "employee.active.update", map[string]any{
		"employee_id": id,
		"active":      req.Active,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) updateManagedHospitals(w http.ResponseWriter, r *http.Request, id string) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	actor := s.Actor()
	if actor.Role != policy.RoleSuperAdmin {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	emp, err := a.store.Employees().Find(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if emp.Role != policy.RoleAdmin {
		writeError(w, r, http.StatusBadRequest, "managed hospitals apply to admins only")
		return
	}

	var req managedHospitalsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	cleaned := make([]string, 0, len(req.HospitalIDs))
	for _, hid := range req.HospitalIDs {
		if hid = strings.TrimSpace(hid); hid != "" {
			cleaned = append(cleaned, hid)
		}
	}
	if err := a.store.Employees().SetManagedHospitals(r.Context(), id, cleaned); err != nil {
		handleStoreError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "employee.managed_hospitals.update", map[string]any{
		"employee_id": id,
		"count":       len(cleaned),
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
