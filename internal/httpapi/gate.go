package httpapi

import (
	"net/http"
	"strings"

	"emutabaah.org/internal/session"
)

// Paths reachable without a session. Content proxies stay public so the
// login page can show prayer times before sign-in.
var publicAPIPaths = []string{
	"/api/auth/login",
	"/api/auth/register",
	"/api/content/prayer-times",
}

var publicAPIPrefixes = []string{
	"/api/content/quran/",
}

var opsPaths = []string{
	"/healthz",
	"/readyz",
	"/metrics",
}

var staticPrefixes = []string{
	"/assets/",
	"/static/",
}

const loginPath = "/login"

// withGate is the request gate. It resolves the session once, attaches it to
// the context, and decides between pass, 401 and redirect. Verification
// failures are identical to "no session": the gate fails closed and never
// answers 500.
func (a *API) withGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if hasPrefix(r.URL.Path, staticPrefixes) || isPath(r.URL.Path, opsPaths) {
			next.ServeHTTP(w, r)
			return
		}

		s := a.sessions.Read(r)
		if s != nil {
			r = r.WithContext(session.WithSession(r.Context(), s))
		}

		if strings.HasPrefix(r.URL.Path, "/api/") {
			if isPath(r.URL.Path, publicAPIPaths) || hasPrefix(r.URL.Path, publicAPIPrefixes) {
				next.ServeHTTP(w, r)
				return
			}
			if s == nil {
				writeError(w, r, http.StatusUnauthorized, "authentication required")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		// Page paths.
		if s == nil && r.URL.Path != loginPath {
			http.Redirect(w, r, loginPath, http.StatusFound)
			return
		}
		if s != nil && r.URL.Path == loginPath {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isPath(path string, list []string) bool {
	for _, p := range list {
		if path == p {
			return true
		}
	}
	return false
}

func hasPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// requireSession returns the gate-attached session. The gate guarantees it
// for private API paths; a miss here means a routing mistake, answered 401.
func requireSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, ok := session.FromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	return s, true
}
