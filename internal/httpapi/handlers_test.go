package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"emutabaah.org/internal/password"
	"emutabaah.org/internal/policy"
	"emutabaah.org/internal/session"
	"emutabaah.org/internal/store"
	"emutabaah.org/internal/token"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	store   *memStore
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	codec, err := token.NewCodec("test-secret", false)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	ms := newMemStore()
	api := New(Options{
		Store:    ms,
		Codec:    codec,
		Sessions: session.NewAccessor(codec, false),
		Ready:    ReadyProbe{},
		Version:  "test",
	})
	api.rateBurst = 1000
	api.ratePerSec = 1000

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &apiClient{baseURL: srv.URL, client: client, store: ms, t: t}
}

func (c *apiClient) seedHospital(id, name string) {
	c.t.Helper()
	c.store.hospitals[id] = &store.Hospital{ID: id, Name: name}
}

func (c *apiClient) seedEmployee(id, email, nip, pass string, role policy.Role, hospitalID string, active bool, managed ...string) {
	c.t.Helper()
	hash, err := password.Hash(pass)
	if err != nil {
		c.t.Fatalf("hash password: %v", err)
	}
	c.store.identities[id] = &store.Identity{ID: id, Email: email, PasswordHash: hash}
	c.store.employees[id] = &store.Employee{
		ID:           id,
		NIP:          nip,
		Email:        email,
		Name:         "Employee " + id,
		Role:         role,
		HospitalID:   hospitalID,
		IsActive:     active,
		PasswordHash: hash,
	}
	if len(managed) > 0 {
		c.store.managed[id] = managed
	}
}

func (c *apiClient) do(method, path string, body any) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) login(identifier, pass string) *http.Response {
	c.t.Helper()
	return c.do(http.MethodPost, "/api/auth/login", map[string]any{
		"identifier": identifier,
		"password":   pass,
	})
}

func (c *apiClient) mustLogin(identifier, pass string) {
	c.t.Helper()
	resp := c.login(identifier, pass)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("login status: %d", resp.StatusCode)
	}
}

func (c *apiClient) sessionCookie() *http.Cookie {
	c.t.Helper()
	u, _ := url.Parse(c.baseURL)
	for _, ck := range c.client.Jar.Cookies(u) {
		if ck.Name == session.CookieName {
			return ck
		}
	}
	return nil
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestLoginActiveEmployee(t *testing.T) {
	api := newTestAPI(t)
	api.seedHospital("H1", "RS Harapan")
	api.seedEmployee("E1", "siti@example.com", "1001", "rahasia-kuat", policy.RoleUser, "H1", true)

	resp := api.login("siti@example.com", "rahasia-kuat")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	emp, ok := body["employee"].(map[string]any)
	if !ok {
		t.Fatalf("response missing employee: %v", body)
	}
	if emp["id"] != "E1" {
		t.Fatalf("unexpected employee id: %v", emp["id"])
	}
	if _, has := emp["passwordHash"]; has {
		t.Fatalf("password hash leaked in response")
	}
	if api.sessionCookie() == nil {
		t.Fatalf("session cookie not set")
	}
	for _, ck := range resp.Cookies() {
		if ck.Name == session.CookieName && !ck.HttpOnly {
			t.Fatalf("session cookie must be HttpOnly")
		}
	}
}

func TestLoginInactiveEmployee(t *testing.T) {
	api := newTestAPI(t)
	api.seedHospital("H1", "RS Harapan")
	api.seedEmployee("E1", "siti@example.com", "1001", "rahasia-kuat", policy.RoleUser, "H1", false)

	resp := api.login("siti@example.com", "rahasia-kuat")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if api.sessionCookie() != nil {
		t.Fatalf("no cookie may be set for an inactive account")
	}
}

func TestLoginBadPassword(t *testing.T) {
	api := newTestAPI(t)
	api.seedHospital("H1", "RS Harapan")
	api.seedEmployee("E1", "siti@example.com", "1001", "rahasia-kuat", policy.RoleUser, "H1", true)

	resp := api.login("siti@example.com", "salah-total")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestLoginByNIP(t *testing.T) {
	api := newTestAPI(t)
	api.seedHospital("H1", "RS Harapan")
	api.seedEmployee("E1", "siti@example.com", "1001", "rahasia-kuat", policy.RoleUser, "H1", true)

	resp := api.login("1001", "rahasia-kuat")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestEmployeeListScopedToManagedSet(t *testing.T) {
	api := newTestAPI(t)
	api.seedHospital("H1", "RS Satu")
	api.seedHospital("H2", "RS Dua")
	api.seedEmployee("A1", "admin@example.com", "2001", "rahasia-kuat", policy.RoleAdmin, "H1", true, "H1")
	api.seedEmployee("E1", "satu@example.com", "1001", "rahasia-kuat", policy.RoleUser, "H1", true)
	api.seedEmployee("E2", "dua@example.com", "1002", "rahasia-kuat", policy.RoleUser, "H2", true)
	api.mustLogin("admin@example.com", "rahasia-kuat")

	// Requesting H2 must silently collapse to the managed set (H1).
	resp := api.do(http.MethodGet, "/api/employees?hospitalId=H2", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decode[struct {
		Items []store.Employee `json:"items"`
	}](t, resp)
	for _, e := range body.Items {
		if e.HospitalID != "H1" {
			t.Fatalf("employee outside managed set leaked: %s in %s", e.ID, e.HospitalID)
		}
	}
	if len(body.Items) == 0 {
		t.Fatalf("expected the managed hospital's employees, got none")
	}
}

func TestActivityDeleteByPeerAdmin(t *testing.T) {
	api := newTestAPI(t)
	api.seedHospital("H1", "RS Satu")
	api.seedEmployee("X", "pemilik@example.com", "2001", "rahasia-kuat", policy.RoleAdmin, "H1", true, "H1")
	api.seedEmployee("Y", "peer@example.com", "2002", "rahasia-kuat", policy.RoleAdmin, "H1", true, "H1")
	api.store.activities["ACT1"] = &store.Activity{ID: "ACT1", Name: "Tilawah", CreatedBy: "X"}
	api.mustLogin("peer@example.com", "rahasia-kuat")

	resp := api.do(http.MethodDelete, "/api/activities/ACT1", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if _, ok := api.store.activities["ACT1"]; !ok {
		t.Fatalf("record must be unchanged after a denied delete")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	api := newTestAPI(t)
	api.seedHospital("H1", "RS Satu")
	api.seedEmployee("E1", "siti@example.com", "1001", "rahasia-kuat", policy.RoleUser, "H1", true)

	identities := api.store.identityCount()
	employees := api.store.employeeCount()

	resp := api.do(http.MethodPost, "/api/auth/register", map[string]any{
		"email":      "siti@example.com",
		"password":   "rahasia-kuat",
		"name":       "Siti Kedua",
		"nip":        "9999",
		"hospitalId": "H1",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if body["code"] != "duplicate_email" {
		t.Fatalf("expected duplicate_email code, got %v", body["code"])
	}
	if api.store.identityCount() != identities {
		t.Fatalf("orphaned identity left behind")
	}
	if api.store.employeeCount() != employees {
		t.Fatalf("profile created despite conflict")
	}
}

func TestRegisterRollsBackIdentityOnProfileFailure(t *testing.T) {
	api := newTestAPI(t)
	api.seedHospital("H1", "RS Satu")
	api.seedEmployee("E1", "siti@example.com", "1001", "rahasia-kuat", policy.RoleUser, "H1", true)

	identities := api.store.identityCount()

	// New email, duplicate NIP: identity creation succeeds, profile fails.
	resp := api.do(http.MethodPost, "/api/auth/register", map[string]any{
		"email":      "baru@example.com",
		"password":   "rahasia-kuat",
		"name":       "Pegawai Baru",
		"nip":        "1001",
		"hospitalId": "H1",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	if api.store.identityCount() != identities {
		t.Fatalf("compensating identity delete did not run")
	}
}

func TestMeAndLogout(t *testing.T) {
	api := newTestAPI(t)
	api.seedHospital("H1", "RS Satu")
	api.seedEmployee("E1", "siti@example.com", "1001", "rahasia-kuat", policy.RoleUser, "H1", true)
	api.mustLogin("siti@example.com", "rahasia-kuat")

	resp := api.do(http.MethodGet, "/api/auth/me", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status: %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if emp, ok := body["employee"].(map[string]any); !ok || emp["id"] != "E1" {
		t.Fatalf("unexpected me payload: %v", body)
	}

	resp = api.do(http.MethodPost, "/api/auth/logout", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status: %d", resp.StatusCode)
	}

	resp = api.do(http.MethodGet, "/api/auth/me", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", resp.StatusCode)
	}

	// With the cookie gone the gate treats a second logout as unauthenticated.
	resp = api.do(http.MethodPost, "/api/auth/logout", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("second logout status: %d", resp.StatusCode)
	}
}

func TestRefreshExtendsSession(t *testing.T) {
	api := newTestAPI(t)
	api.seedHospital("H1", "RS Satu")
	api.seedEmployee("E1", "siti@example.com", "1001", "rahasia-kuat", policy.RoleUser, "H1", true)
	api.mustLogin("siti@example.com", "rahasia-kuat")

	resp := api.do(http.MethodPost, "/api/auth/refresh", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status: %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	raw, ok := body["expiresAt"].(string)
	if !ok {
		t.Fatalf("refresh response missing expiresAt: %v", body)
	}
	expiresAt, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		t.Fatalf("parse expiresAt: %v", err)
	}
	if remaining := time.Until(expiresAt); remaining < 7*time.Hour {
		t.Fatalf("refresh did not extend the session: %s left", remaining)
	}
}

func TestScopeDeniedSingleFetchReads404(t *testing.T) {
	api := newTestAPI(t)
	api.seedHospital("H1", "RS Satu")
	api.seedHospital("H2", "RS Dua")
	api.seedEmployee("A1", "admin@example.com", "2001", "rahasia-kuat", policy.RoleAdmin, "H1", true, "H1")
	api.seedEmployee("E2", "dua@example.com", "1002", "rahasia-kuat", policy.RoleUser, "H2", true)
	api.mustLogin("admin@example.com", "rahasia-kuat")

	resp := api.do(http.MethodGet, "/api/employees/E2", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for out-of-scope fetch, got %d", resp.StatusCode)
	}
}

func TestAdminCannotPromoteToAdmin(t *testing.T) {
	api := newTestAPI(t)
	api.seedHospital("H1", "RS Satu")
	api.seedEmployee("A1", "admin@example.com", "2001", "rahasia-kuat", policy.RoleAdmin, "H1", true, "H1")
	api.seedEmployee("E1", "satu@example.com", "1001", "rahasia-kuat", policy.RoleUser, "H1", true)
	api.mustLogin("admin@example.com", "rahasia-kuat")

	resp := api.do(http.MethodPut, "/api/employees/E1/role", map[string]any{"role": "admin"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if api.store.employees["E1"].Role != policy.RoleUser {
		t.Fatalf("role must be unchanged after a denied update")
	}
}

func TestSuperAdminPromotesUser(t *testing.T) {
	api := newTestAPI(t)
	api.seedHospital("H1", "RS Satu")
	api.seedEmployee("S1", "root@example.com", "3001", "rahasia-kuat", policy.RoleSuperAdmin, "H1", true)
	api.seedEmployee("E1", "satu@example.com", "1001", "rahasia-kuat", policy.RoleUser, "H1", true)
	api.mustLogin("root@example.com", "rahasia-kuat")

	resp := api.do(http.MethodPut, "/api/employees/E1/role", map[string]any{"role": "admin"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if api.store.employees["E1"].Role != policy.RoleAdmin {
		t.Fatalf("role was not updated")
	}

	resp = api.do(http.MethodPut, "/api/employees/E1/managed-hospitals", map[string]any{
		"hospitalIds": []string{"H1"},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("managed-hospitals status: %d", resp.StatusCode)
	}
	if got := api.store.managed["E1"]; len(got) != 1 || got[0] != "H1" {
		t.Fatalf("managed set not stored: %v", got)
	}
}

func TestAttendanceSubmitUpserts(t *testing.T) {
	api := newTestAPI(t)
	api.seedHospital("H1", "RS Satu")
	api.seedEmployee("E1", "siti@example.com", "1001", "rahasia-kuat", policy.RoleUser, "H1", true)
	api.store.activities["ACT1"] = &store.Activity{ID: "ACT1", Name: "Tilawah", CreatedBy: "S1"}
	api.mustLogin("siti@example.com", "rahasia-kuat")

	submit := func(count int) *http.Response {
		return api.do(http.MethodPost, "/api/attendance/submit", map[string]any{
			"activityId": "ACT1",
			"date":       "2026-08-29",
			"count":      count,
		})
	}

	resp := submit(1)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit status: %d", resp.StatusCode)
	}
	resp = submit(3)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second submit status: %d", resp.StatusCode)
	}

	resp = api.do(http.MethodGet, "/api/attendance?from=2026-08-29&to=2026-08-29", nil)
	body := decode[struct {
		Items []store.Attendance `json:"items"`
	}](t, resp)
	if len(body.Items) != 1 {
		t.Fatalf("upsert must keep one row per (employee, activity, date); got %d", len(body.Items))
	}
	if body.Items[0].Count != 3 {
		t.Fatalf("last write must win; count = %d", body.Items[0].Count)
	}
}

func TestAttendanceBatchRejectsOutOfScope(t *testing.T) {
	api := newTestAPI(t)
	api.seedHospital("H1", "RS Satu")
	api.seedHospital("H2", "RS Dua")
	api.seedEmployee("A1", "admin@example.com", "2001", "rahasia-kuat", policy.RoleAdmin, "H1", true, "H1")
	api.seedEmployee("E2", "dua@example.com", "1002", "rahasia-kuat", policy.RoleUser, "H2", true)
	api.store.activities["ACT1"] = &store.Activity{ID: "ACT1", Name: "Tilawah"}
	api.mustLogin("admin@example.com", "rahasia-kuat")

	resp := api.do(http.MethodPost, "/api/attendance/batch", map[string]any{
		"entries": []map[string]any{
			{"employeeId": "E2", "activityId": "ACT1", "date": "2026-08-29", "count": 1},
		},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if len(api.store.attendance) != 0 {
		t.Fatalf("nothing may be written for an out-of-scope batch")
	}
}

func TestNotificationMarkReadScopedToRecipient(t *testing.T) {
	api := newTestAPI(t)
	api.seedHospital("H1", "RS Satu")
	api.seedEmployee("E1", "siti@example.com", "1001", "rahasia-kuat", policy.RoleUser, "H1", true)
	api.seedEmployee("E2", "dua@example.com", "1002", "rahasia-kuat", policy.RoleUser, "H1", true)
	api.store.notifications["N1"] = &store.Notification{ID: "N1", RecipientID: "E2", Title: "Hai"}
	api.mustLogin("siti@example.com", "rahasia-kuat")

	resp := api.do(http.MethodPost, "/api/notifications/N1/read", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("another employee's notification must read as missing; got %d", resp.StatusCode)
	}
	if api.store.notifications["N1"].ReadAt != nil {
		t.Fatalf("notification must stay unread")
	}
}

func TestBroadcastScopesToManagedHospitals(t *testing.T) {
	api := newTestAPI(t)
	api.seedHospital("H1", "RS Satu")
	api.seedHospital("H2", "RS Dua")
	api.seedEmployee("A1", "admin@example.com", "2001", "rahasia-kuat", policy.RoleAdmin, "H1", true, "H1")
	api.seedEmployee("E1", "satu@example.com", "1001", "rahasia-kuat", policy.RoleUser, "H1", true)
	api.seedEmployee("E2", "dua@example.com", "1002", "rahasia-kuat", policy.RoleUser, "H2", true)
	api.mustLogin("admin@example.com", "rahasia-kuat")

	resp := api.do(http.MethodPost, "/api/notifications/broadcast", map[string]any{
		"title": "Pengumuman",
		"body":  "Rapat besok pagi.",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("broadcast status: %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	// A1 and E1 are in H1; E2 must not receive anything.
	if got := body["recipients"].(float64); got != 2 {
		t.Fatalf("expected 2 recipients, got %v", got)
	}
	for _, n := range api.store.notifications {
		if n.RecipientID == "E2" {
			t.Fatalf("broadcast leaked outside the managed set")
		}
	}
}

func TestUploadReportsDisabled(t *testing.T) {
	api := newTestAPI(t)
	api.seedHospital("H1", "RS Satu")
	api.seedEmployee("E1", "siti@example.com", "1001", "rahasia-kuat", policy.RoleUser, "H1", true)
	api.mustLogin("siti@example.com", "rahasia-kuat")

	resp := api.do(http.MethodPost, "/api/upload", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without object storage, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(http.MethodGet, "/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status: %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if body["service"] != "mutabaah-api" {
		t.Fatalf("unexpected healthz payload: %v", body)
	}

	resp = api.do(http.MethodGet, "/readyz", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz status: %d", resp.StatusCode)
	}
}

func TestRequestIDEcho(t *testing.T) {
	api := newTestAPI(t)
	resp := api.do(http.MethodGet, "/healthz", nil)
	resp.Body.Close()
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("request id header missing")
	}
}
