package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lunadev/shellmux/internal/fileutil"
)

type checksumRequest struct {
	Path      string `json:"path"`
	Algorithm string `json:"algorithm"`
}

// FileChecksum computes a checksum of a local file for the UI caller.
func FileChecksum(w http.ResponseWriter, r *http.Request) {
	var req checksumRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	sum, err := fileutil.Checksum(req.Path, req.Algorithm)
	if err != nil {
		if errors.Is(err, fileutil.ErrUnsupported) {
			writeError(w, http.StatusBadRequest, "Unsupported checksum algorithm")
			return
		}
		writeError(w, http.StatusInternalServerError, "Checksum failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"checksum": sum})
}

// TempPath hands out a fresh temp-file path with the requested extension.
func TempPath(w http.ResponseWriter, r *http.Request) {
	extension := r.URL.Query().Get("extension")
	writeJSON(w, http.StatusOK, map[string]string{
		"path": fileutil.TempPath(extension),
	})
}
