// Package httpapi is the HTTP layer: routing, the request gate, middleware
// and the resource handlers. Every privileged handler runs the same sequence:
// session, coarse role check, minimal target fetch, policy decision, and only
// then the store call.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/rs/cors"

	"emutabaah.org/internal/content"
	"emutabaah.org/internal/obs"
	"emutabaah.org/internal/session"
	"emutabaah.org/internal/storage"
	"emutabaah.org/internal/store"
	"emutabaah.org/internal/token"
)

// ReadyProbe checks backing-service readiness (database ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options carries the collaborators the API needs.
type Options struct {
	Store    store.Store
	Codec    *token.Codec
	Sessions *session.Accessor
	Content  *content.Client
	Uploads  *storage.Uploader
	Ready    ReadyProbe
	Version  string

	CORSOrigins []string
}

// API is the HTTP layer.
type API struct {
	mux      *http.ServeMux
	store    store.Store
	codec    *token.Codec
	sessions *session.Accessor
	content  *content.Client
	uploads  *storage.Uploader
	ready    ReadyProbe
	version  string

	corsOrigins []string
	rateBurst   int
	ratePerSec  int
	maxBody     int64
}

func New(opts Options) *API {
	a := &API{
		mux:         http.NewServeMux(),
		store:       opts.Store,
		codec:       opts.Codec,
		sessions:    opts.Sessions,
		content:     opts.Content,
		uploads:     opts.Uploads,
		ready:       opts.Ready,
		version:     opts.Version,
		corsOrigins: opts.CORSOrigins,
		rateBurst:   50,
		ratePerSec:  25,
		maxBody:     5 << 20,
	}

	// health/ready/metrics
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("/api/auth/login", a.handleLogin)
	a.mux.HandleFunc("/api/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/api/auth/me", a.handleMe)
	a.mux.HandleFunc("/api/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/api/auth/register", a.handleRegister)

	// resources
	a.mux.HandleFunc("/api/employees", a.handleEmployeesCollection)
	a.mux.HandleFunc("/api/employees/", a.handleEmployeeResource)
	a.mux.HandleFunc("/api/hospitals", a.handleHospitalsCollection)
	a.mux.HandleFunc("/api/hospitals/", a.handleHospitalResource)
	a.mux.HandleFunc("/api/activities", a.handleActivitiesCollection)
	a.mux.HandleFunc("/api/activities/", a.handleActivityResource)
	a.mux.HandleFunc("/api/attendance", a.handleAttendanceList)
	a.mux.HandleFunc("/api/attendance/submit", a.handleAttendanceSubmit)
	a.mux.HandleFunc("/api/attendance/batch", a.handleAttendanceBatch)
	a.mux.HandleFunc("/api/team-attendance/sessions", a.handleTeamSessionsCollection)
	a.mux.HandleFunc("/api/team-attendance/sessions/", a.handleTeamSessionResource)
	a.mux.HandleFunc("/api/announcements", a.handleAnnouncementsCollection)
	a.mux.HandleFunc("/api/announcements/", a.handleAnnouncementResource)
	a.mux.HandleFunc("/api/notifications", a.handleNotificationsList)
	a.mux.HandleFunc("/api/notifications/broadcast", a.handleNotificationBroadcast)
	a.mux.HandleFunc("/api/notifications/", a.handleNotificationResource)

	// content proxies
	a.mux.HandleFunc("/api/content/prayer-times", a.handlePrayerTimes)
	a.mux.HandleFunc("/api/content/quran/", a.handleSurah)

	// uploads
	a.mux.HandleFunc("/api/upload", a.handleUpload)

	// pages (the gate redirects between these)
	a.mux.HandleFunc("/login", a.loginPage)
	a.mux.HandleFunc("/", a.indexPage)

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withGate(h)
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = a.corsHandler(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// corsHandler allows the configured browser origins. Credentials stay on
// because the session rides in a cookie.
func (a *API) corsHandler(next http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   a.corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           600,
	})
	return c.Handler(next)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "mutabaah-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) indexPage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<!doctype html><title>Mutabaah</title><p>Mutabaah dashboard.</p>"))
}

func (a *API) loginPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<!doctype html><title>Login</title><p>Sign in to Mutabaah.</p>"))
}
