package handlers

import "net/http"

// HealthCheck reports liveness plus basic counters.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"sessions":    Shells.Count(),
		"connections": SSHMgr.Count(),
	})
}
