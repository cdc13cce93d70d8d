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

const dateLayout = "2006-01-02"

type attendanceEntry struct {
	EmployeeID string `json:"employeeId,omitempty"`
	ActivityID string `json:"activityId"`
	Date       string `json:"date"`
	Count      int    `json:"count"`
	Notes      string `json:"notes"`
}

type attendanceBatchRequest struct {
	Entries []attendanceEntry `json:"entries"`
}

func (a *API) handleAttendanceSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	s, ok := requireSession(w, r)
	if !ok {
		return
	}

	var req attendanceEntry
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := a.buildAttendance(r, s.UserID, req)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.store.Attendance().Upsert(r.Context(), rec); err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attendance": rec})
}

// handleAttendanceBatch lets an admin report on behalf of staff. Every entry
// must name an employee inside the actor's managed set; one out-of-scope
// entry rejects the whole batch before anything is written.
func (a *API) handleAttendanceBatch(w http.ResponseWriter, r *http.Request) {
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

	var req attendanceBatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Entries) == 0 {
		writeError(w, r, http.StatusBadRequest, "entries are required")
		return
	}
	if len(req.Entries) > 200 {
		writeError(w, r, http.StatusBadRequest, "at most 200 entries per batch")
		return
	}

	records := make([]*store.Attendance, 0, len(req.Entries))
	for _, entry := range req.Entries {
		employeeID := strings.TrimSpace(entry.EmployeeID)
		if employeeID == "" {
			writeError(w, r, http.StatusBadRequest, "employeeId is required for batch entries")
			return
		}
		emp, err := a.store.Employees().Find(r.Context(), employeeID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, r, http.StatusBadRequest, "unknown employee "+employeeID)
				return
			}
			handleStoreError(w, r, err)
			return
		}
		if actor.Role == policy.RoleAdmin && !policy.InScope(actor, emp.HospitalID) {
			writeError(w, r, http.StatusForbidden, "employee is outside your managed set")
			return
		}
		rec, err := a.buildAttendance(r, employeeID, entry)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		records = append(records, rec)
	}

	for _, rec := range records {
		if err := a.store.Attendance().Upsert(r.Context(), rec); err != nil {
			handleStoreError(w, r, err)
			return
		}
	}
	_ = audit.LogEvent(r.Context(), "attendance.batch", map[string]any{
		"count": len(records),
	})
	writeJSON(w, http.StatusOK, map[string]any{"submitted": len(records)})
}

func (a *API) buildAttendance(r *http.Request, employeeID string, entry attendanceEntry) (*store.Attendance, error) {
	activityID := strings.TrimSpace(entry.ActivityID)
	if activityID == "" {
		return nil, errors.New("activityId is required")
	}
	if entry.Count < 0 {
		return nil, errors.New("count must be >= 0")
	}
	date := time.Now().UTC().Truncate(24 * time.Hour)
	if raw := strings.TrimSpace(entry.Date); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return nil, errors.New("date must be formatted yyyy-mm-dd")
		}
		date = parsed
	}
	if _, err := a.store.Activities().Find(r.Context(), activityID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errors.New("unknown activity")
		}
		return nil, err
	}
	return &store.Attendance{
		ID:         ids.New(),
		EmployeeID: employeeID,
		ActivityID: activityID,
		Date:       date,
		Count:      entry.Count,
		Notes:      strings.TrimSpace(entry.Notes),
	}, nil
}

// handleAttendanceList defaults to the caller's own reports. Admins may widen
// via employeeId or hospitalId filters, intersected with their managed set.
func (a *API) handleAttendanceList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	actor := s.Actor()
	q := r.URL.Query()

	filter := store.AttendanceFilter{EmployeeID: s.UserID}
	if employeeID := strings.TrimSpace(q.Get("employeeId")); employeeID != "" && employeeID != s.UserID {
		if !actor.IsAdmin() {
			writeError(w, r, http.StatusForbidden, "permission denied")
			return
		}
		emp, err := a.store.Employees().Find(r.Context(), employeeID)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		if actor.Role == policy.RoleAdmin && !policy.InScope(actor, emp.HospitalID) {
			writeErrorCode(w, r, http.StatusNotFound, "resource not found", "not_found")
			return
		}
		filter.EmployeeID = employeeID
	}
	if raw := strings.TrimSpace(q.Get("hospitalId")); raw != "" && actor.IsAdmin() {
		var requested []string
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				requested = append(requested, id)
			}
		}
		visible := policy.VisibleHospitals(actor, requested)
		if actor.Role == policy.RoleAdmin && len(visible) == 0 {
			writeJSON(w, http.StatusOK, map[string]any{"items": []*store.Attendance{}})
			return
		}
		filter.EmployeeID = ""
		filter.HospitalIDs = visible
	}
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		from, err := time.Parse(dateLayout, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "from must be formatted yyyy-mm-dd")
			return
		}
		filter.From = from
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		to, err := time.Parse(dateLayout, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "to must be formatted yyyy-mm-dd")
			return
		}
		filter.To = to
	}

	items, err := a.store.Attendance().List(r.Context(), filter)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if items == nil {
		items = []*store.Attendance{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
