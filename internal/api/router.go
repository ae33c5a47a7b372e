package api

import (
	"github.com/gorilla/mux"

	"walkin-queue-coordinator/internal/realtime"
	"walkin-queue-coordinator/pkg/health"
	"walkin-queue-coordinator/pkg/metrics"
)

// NewRouter wires the HTTP surface. The websocket endpoint authenticates
// in-band (first frame), so it sits outside the bearer middleware.
// checks may be nil; /healthz then answers liveness only.
func NewRouter(h *Handlers, auth *Auth, limits *RateLimits, bus *realtime.Bus, checks *health.Manager, metricsEnabled bool, metricsPath string) *mux.Router {
	r := mux.NewRouter()

	r.Handle("/healthz", health.LiveHandler()).Methods("GET")
	if checks != nil {
		r.Handle("/health", health.Handler(checks)).Methods("GET")
	}

	if metricsEnabled {
		r.Handle(metricsPath, metrics.Handler()).Methods("GET")
	}

	r.HandleFunc("/ws", bus.HandleWS)

	api := r.PathPrefix("/").Subrouter()
	api.Use(auth.Middleware)
	api.Use(limits.GeneralMiddleware)

	api.HandleFunc("/queues", h.CreateQueue).Methods("POST")
	api.HandleFunc("/queues/{id}", h.GetQueue).Methods("GET")
	api.HandleFunc("/queues/{id}", h.DeleteQueue).Methods("DELETE")
	api.HandleFunc("/queues/{id}/notify", h.NotifyQueue).Methods("POST")
	api.HandleFunc("/queues/{id}/checkin", h.CheckIn).Methods("POST")
	api.HandleFunc("/queues/{id}/verify-arrival", h.VerifyArrival).Methods("POST")
	api.HandleFunc("/queues/{id}/status", h.UpdateStatus).Methods("PUT")

	api.HandleFunc("/venues/{id}/queue", h.VenueQueue).Methods("GET")
	api.HandleFunc("/venues/{id}/pending-verifications", h.PendingVerifications).Methods("GET")

	api.HandleFunc("/users/{id}/reputation", h.GetReputation).Methods("GET")
	api.HandleFunc("/users/{id}/checkin-history", h.CheckInHistory).Methods("GET")
	api.HandleFunc("/users/{id}/push-subscriptions", h.CreatePushSubscription).Methods("POST")
	api.HandleFunc("/users/{id}/push-subscriptions", h.DeletePushSubscription).Methods("DELETE")

	return r
}
