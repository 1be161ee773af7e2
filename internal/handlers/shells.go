package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lunadev/shellmux/internal/config"
	"github.com/lunadev/shellmux/internal/registry"
	"github.com/lunadev/shellmux/internal/shell"
)

// parseTokenParam rebuilds the canonical token string from the {conn} and
// {chan} URL segments and decodes it. The canonical form embeds a '/', so
// the two halves route as separate path segments.
func parseTokenParam(w http.ResponseWriter, r *http.Request) (shell.Token, bool) {
	raw := chi.URLParam(r, "conn") + "/" + chi.URLParam(r, "chan")
	token, err := shell.ParseToken(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session token")
		return shell.Token{}, false
	}
	return token, true
}

func lookupShell(w http.ResponseWriter, token shell.Token) (*shell.Shell, bool) {
	sh, err := Shells.Get(token)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
		} else {
			writeError(w, http.StatusInternalServerError, "Session lookup failed")
		}
		return nil, false
	}
	return sh, true
}

// ListShells returns metadata for every live session.
func ListShells(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"shells": Shells.List()})
}

// GetShellInfo returns one session's metadata snapshot.
func GetShellInfo(w http.ResponseWriter, r *http.Request) {
	token, ok := parseTokenParam(w, r)
	if !ok {
		return
	}
	sh, ok := lookupShell(w, token)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sh.Info())
}

type screenResponse struct {
	Rows   []string `json:"rows"`
	Cursor [2]int   `json:"cursor"`
}

// GetShellScreen renders the session's current screen at the requested
// width. Succeeds even for disconnected sessions, returning the last-known
// content.
func GetShellScreen(w http.ResponseWriter, r *http.Request) {
	token, ok := parseTokenParam(w, r)
	if !ok {
		return
	}
	sh, ok := lookupShell(w, token)
	if !ok {
		return
	}

	cols := queryInt(r, "cols", config.Cfg.ShellDefaultCols)
	rows := queryInt(r, "rows", config.Cfg.ShellDefaultRows)

	buf, err := sh.Screen(cols, rows)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render screen")
		return
	}

	resp := screenResponse{Rows: make([]string, len(buf.Rows)), Cursor: buf.Cursor}
	for i, row := range buf.Rows {
		resp.Rows[i] = string(row)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CloseShell closes the session's channel. Idempotent at the actor level;
// once the protocol loop has exited and the registry entry is gone the
// endpoint reports 404 instead.
func CloseShell(w http.ResponseWriter, r *http.Request) {
	token, ok := parseTokenParam(w, r)
	if !ok {
		return
	}
	sh, ok := lookupShell(w, token)
	if !ok {
		return
	}
	if err := sh.Close(); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to close session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
