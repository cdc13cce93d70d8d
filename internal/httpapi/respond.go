package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"emutabaah.org/internal/content"
	"emutabaah.org/internal/store"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the error envelope. The optional store code and the
// request id ride along when present.
func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeErrorCode(w, r, code, msg, "")
}

func writeErrorCode(w http.ResponseWriter, r *http.Request, code int, msg, errCode string) {
	payload := map[string]any{
		"error": msg,
	}
	if errCode != "" {
		payload["code"] = errCode
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeErrorCode(w, r, http.StatusNotFound, "resource not found", "not_found")
	case errors.Is(err, store.ErrAlreadyExists):
		writeErrorCode(w, r, http.StatusConflict, "resource already exists", "duplicate")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func handleContentError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, content.ErrBadRequest):
		writeError(w, r, http.StatusBadRequest, "invalid content request")
	case errors.Is(err, content.ErrUpstream):
		writeErrorCode(w, r, http.StatusBadGateway, "content provider unavailable", "upstream")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
