package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"emutabaah.org/internal/audit"
	"emutabaah.org/internal/ids"
	"emutabaah.org/internal/obs"
	"emutabaah.org/internal/password"
	"emutabaah.org/internal/policy"
	"emutabaah.org/internal/store"
	"emutabaah.org/internal/token"
)

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type registerRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Name       string `json:"name"`
	NIP        string `json:"nip"`
	HospitalID string `json:"hospitalId"`
	Position   string `json:"position"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "identifier and password are required")
		return
	}

	emp, err := a.store.Employees().FindByIdentifier(r.Context(), identifier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		handleStoreError(w, r, err)
		return
	}
	if err := password.Verify(emp.PasswordHash, req.Password); err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !emp.IsActive {
		writeError(w, r, http.StatusForbidden, "account is inactive")
		return
	}

	signed, _, err := a.codec.Issue(token.Payload{
		UserID:             emp.ID,
		Email:              emp.Email,
		Name:               emp.Name,
		NIP:                emp.NIP,
		Role:               emp.Role,
		ManagedHospitalIDs: emp.ManagedHospitalIDs,
	})
	if err != nil {
		obs.Error("session issue failed", map[string]any{"error": err.Error()})
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	a.sessions.Write(w, signed)

	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"employee_id": emp.ID,
		"role":        string(emp.Role),
	})
	writeJSON(w, http.StatusOK, map[string]any{"employee": emp})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.sessions.Clear(w)
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	emp, err := a.store.Employees().Find(r.Context(), s.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// The employee behind the session is gone; the cookie is dead weight.
			a.sessions.Clear(w)
			writeError(w, r, http.StatusUnauthorized, "session no longer valid")
			return
		}
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employee": emp})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	signed, expiresAt, err := a.codec.Issue(token.Payload{
		UserID:             s.UserID,
		Email:              s.Email,
		Name:               s.Name,
		NIP:                s.NIP,
		Role:               s.Role,
		ManagedHospitalIDs: s.ManagedHospitalIDs,
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	a.sessions.Write(w, signed)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"expiresAt": expiresAt.Format(time.RFC3339),
	})
}

// handleRegister creates the identity record and then the profile. The two
// live in different tables without a shared transaction, so a failed profile
// insert triggers a compensating identity delete.
func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	name := strings.TrimSpace(req.Name)
	nip := strings.TrimSpace(req.NIP)
	hospitalID := strings.TrimSpace(req.HospitalID)
	if email == "" || !strings.Contains(email, "@") {
		writeError(w, r, http.StatusBadRequest, "a valid email is required")
		return
	}
	if name == "" || nip == "" || hospitalID == "" {
		writeError(w, r, http.StatusBadRequest, "name, nip and hospitalId are required")
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
	if _, err := a.store.Hospitals().Find(r.Context(), hospitalID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusBadRequest, "unknown hospital")
			return
		}
		handleStoreError(w, r, err)
		return
	}

	id := ids.New()
	identity := &store.Identity{ID: id, Email: email, PasswordHash: hash}
	if err := a.store.Employees().CreateIdentity(r.Context(), identity); err != nil {
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
		profileErr := err
		if delErr := a.store.Employees().DeleteIdentity(r.Context(), id); delErr != nil {
			// Both steps failed; the identity row is orphaned until cleanup.
			obs.Error("registration rollback failed", map[string]any{
				"identity_id":  id,
				"create_error": profileErr.Error(),
				"delete_error": delErr.Error(),
			})
			writeErrorCode(w, r, http.StatusInternalServerError,
				"registration failed and rollback did not complete", "rollback_failed")
			return
		}
		if errors.Is(profileErr, store.ErrAlreadyExists) {
			writeErrorCode(w, r, http.StatusConflict, "nip is already registered", "duplicate_nip")
			return
		}
		handleStoreError(w, r, profileErr)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"employee_id": id,
		"hospital_id": hospitalID,
	})
	writeJSON(w, http.StatusCreated, map[string]any{"employee": emp})
}
