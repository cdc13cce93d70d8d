package httpapi

import (
	"bytes"
	"io"
	"net/http"
	"path"
	"strings"

	"emutabaah.org/internal/audit"
	"emutabaah.org/internal/ids"
)

const maxUploadBytes = 5 << 20

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

var uploadKinds = map[string]bool{
	"photo":     true,
	"signature": true,
}

// handleUpload accepts one multipart image and stores it under
// {kind}/{employee}/{ulid}{ext}. The content type is sniffed from the bytes,
// not trusted from the client header.
func (a *API) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	if a.uploads == nil || !a.uploads.Enabled() {
		writeErrorCode(w, r, http.StatusServiceUnavailable, "uploads are not configured", "uploads_disabled")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "multipart body required, 5 MiB maximum")
		return
	}
	kind := strings.TrimSpace(r.FormValue("kind"))
	if !uploadKinds[kind] {
		writeError(w, r, http.StatusBadRequest, "kind must be photo or signature")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		writeError(w, r, http.StatusBadRequest, "could not read file")
		return
	}
	head = head[:n]
	contentType := http.DetectContentType(head)
	ext, allowed := imageExtensions[contentType]
	if !allowed {
		writeError(w, r, http.StatusBadRequest, "only jpeg, png and webp images are accepted")
		return
	}

	key := path.Join(kind, s.UserID, ids.New()+ext)
	url, err := a.uploads.Put(r.Context(), key, contentType, io.MultiReader(bytes.NewReader(head), file))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "upload failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "upload.put", map[string]any{
		"kind": kind,
		"key":  key,
	})
	writeJSON(w, http.StatusCreated, map[string]any{"url": url})
}
