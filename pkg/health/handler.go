package health

import (
	"encoding/json"
	"net/http"
)

// Handler serves the readiness report. Unhealthy maps to 503 so load
// balancers pull the instance; degraded still serves traffic.
func Handler(m *Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sys := m.CheckAll(r.Context())
		code := http.StatusOK
		if sys.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(sys)
	})
}

// LiveHandler answers liveness probes without touching dependencies.
func LiveHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
}
