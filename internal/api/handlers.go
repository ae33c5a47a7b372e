package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"

	"walkin-queue-coordinator/internal/domain"
	"walkin-queue-coordinator/internal/models"
	"walkin-queue-coordinator/internal/queue"
	"walkin-queue-coordinator/internal/reputation"
	errs "walkin-queue-coordinator/pkg/errors"
	"walkin-queue-coordinator/pkg/logging"
)

// Handlers carries the dependencies of the HTTP handlers.
type Handlers struct {
	svc    *queue.Service
	reps   *reputation.Store
	repo   domain.Repository
	limits *RateLimits
	clock  clockwork.Clock
	log    *logging.Logger
}

func NewHandlers(svc *queue.Service, reps *reputation.Store, repo domain.Repository, limits *RateLimits, clock clockwork.Clock, log *logging.Logger) *Handlers {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Handlers{svc: svc, reps: reps, repo: repo, limits: limits, clock: clock, log: log.WithComponent("api")}
}

func (h *Handlers) actor(r *http.Request) (queue.Actor, error) {
	userID, role, ok := PrincipalFromContext(r.Context())
	if !ok {
		return queue.Actor{}, errs.New(errs.CodeUnauthorized, "api.actor", "no principal in context", nil)
	}
	return queue.Actor{UserID: userID, Role: role}, nil
}

type createQueueBody struct {
	VenueID       string   `json:"venueId"`
	ServiceIDs    []string `json:"serviceIds"`
	TotalPrice    float64  `json:"totalPrice"`
	AppliedOffers []string `json:"appliedOffers"`
}

// CreateQueue handles POST /queues.
func (h *Handlers) CreateQueue(w http.ResponseWriter, r *http.Request) {
	const op = "api.CreateQueue"
	actor, err := h.actor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if actor.Role != models.RoleCustomer {
		writeError(w, errs.New(errs.CodeForbidden, op, "only customers enrol", nil))
		return
	}
	var body createQueueBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	venueID, err := requireID(op, "venueId", body.VenueID)
	if err != nil {
		writeError(w, err)
		return
	}
	for i, s := range body.ServiceIDs {
		body.ServiceIDs[i] = clean(s)
	}
	e, err := h.svc.Enrol(r.Context(), actor.UserID, venueID, body.ServiceIDs, body.TotalPrice, body.AppliedOffers)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// DeleteQueue handles DELETE /queues/{id}: the customer leaves the queue.
func (h *Handlers) DeleteQueue(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	e, err := h.svc.Cancel(r.Context(), mux.Vars(r)["id"], actor.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// GetQueue handles GET /queues/{id}.
func (h *Handlers) GetQueue(w http.ResponseWriter, r *http.Request) {
	const op = "api.GetQueue"
	actor, err := h.actor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	e, err := h.svc.GetEntry(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if e.UserID != actor.UserID {
		venue, verr := h.repo.GetVenueCtx(r.Context(), e.VenueID)
		if verr != nil || venue.OwnerUserID != actor.UserID {
			writeError(w, errs.New(errs.CodeForbidden, op, "not the customer or venue owner", nil))
			return
		}
	}
	writeJSON(w, http.StatusOK, e)
}

type notifyBody struct {
	EstimatedMinutes int    `json:"estimatedMinutes"`
	Message          string `json:"message"`
}

// NotifyQueue handles POST /queues/{id}/notify.
func (h *Handlers) NotifyQueue(w http.ResponseWriter, r *http.Request) {
	const op = "api.NotifyQueue"
	actor, err := h.actor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	queueID := mux.Vars(r)["id"]
	var body notifyBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := validateWindow(op, body.EstimatedMinutes); err != nil {
		writeError(w, err)
		return
	}
	if allowed, retryAfter := h.limits.Notify.Allow(queueID); !allowed {
		writeError(w, rateLimited(op, retryAfter))
		return
	}
	e, err := h.svc.Notify(r.Context(), queueID, actor, body.EstimatedMinutes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

type checkInResponse struct {
	Queue          *models.QueueEntry `json:"queue"`
	Verified       bool               `json:"verified"`
	AutoApproved   bool               `json:"autoApproved"`
	RequiresReview bool               `json:"requiresReview"`
	Reason         string             `json:"reason"`
	DistanceMeters *int               `json:"distanceMeters,omitempty"`
}

// CheckIn handles POST /queues/{id}/checkin.
func (h *Handlers) CheckIn(w http.ResponseWriter, r *http.Request) {
	const op = "api.CheckIn"
	actor, err := h.actor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if actor.Role != models.RoleCustomer {
		writeError(w, errs.New(errs.CodeForbidden, op, "only customers check in", nil))
		return
	}
	queueID := mux.Vars(r)["id"]
	if allowed, retryAfter := h.limits.CheckIn.Allow(actor.UserID + "|" + queueID); !allowed {
		writeError(w, rateLimited(op, retryAfter))
		return
	}
	var body locationBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	loc, err := body.toLocation(op)
	if err != nil {
		writeError(w, err)
		return
	}
	e, decision, err := h.svc.CheckIn(r.Context(), queueID, actor.UserID, loc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checkInResponse{
		Queue:          e,
		Verified:       decision.Verified,
		AutoApproved:   decision.AutoApproved,
		RequiresReview: decision.RequiresReview,
		Reason:         decision.Reason,
		DistanceMeters: decision.DistanceMeters,
	})
}

type verifyArrivalBody struct {
	Confirmed bool   `json:"confirmed"`
	Notes     string `json:"notes"`
}

// VerifyArrival handles POST /queues/{id}/verify-arrival.
func (h *Handlers) VerifyArrival(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body verifyArrivalBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	e, err := h.svc.VerifyArrival(r.Context(), mux.Vars(r)["id"], actor, body.Confirmed, clean(body.Notes))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

type updateStatusBody struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

// UpdateStatus handles PUT /queues/{id}/status.
func (h *Handlers) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body updateStatusBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	e, err := h.svc.UpdateStatus(r.Context(), mux.Vars(r)["id"], models.Status(body.Status), actor, clean(body.Notes))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// requireVenueOwner loads the venue and checks the actor owns it.
func (h *Handlers) requireVenueOwner(r *http.Request, op, venueID string) error {
	actor, err := h.actor(r)
	if err != nil {
		return err
	}
	venue, err := h.repo.GetVenueCtx(r.Context(), venueID)
	if err != nil {
		return err
	}
	if actor.Role != models.RoleVenueOwner || venue.OwnerUserID != actor.UserID {
		return errs.New(errs.CodeNotVenueOwner, op, "actor does not own the venue", nil)
	}
	return nil
}

// VenueQueue handles GET /venues/{id}/queue.
func (h *Handlers) VenueQueue(w http.ResponseWriter, r *http.Request) {
	const op = "api.VenueQueue"
	venueID := mux.Vars(r)["id"]
	if err := h.requireVenueOwner(r, op, venueID); err != nil {
		writeError(w, err)
		return
	}
	entries, err := h.svc.VenueQueue(r.Context(), venueID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"venueId": venueID, "queues": entries})
}

// PendingVerifications handles GET /venues/{id}/pending-verifications.
func (h *Handlers) PendingVerifications(w http.ResponseWriter, r *http.Request) {
	const op = "api.PendingVerifications"
	venueID := mux.Vars(r)["id"]
	if err := h.requireVenueOwner(r, op, venueID); err != nil {
		writeError(w, err)
		return
	}
	entries, err := h.svc.PendingVerifications(r.Context(), venueID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"venueId": venueID, "pending": entries})
}

// GetReputation handles GET /users/{id}/reputation. Operator-facing.
func (h *Handlers) GetReputation(w http.ResponseWriter, r *http.Request) {
	const op = "api.GetReputation"
	actor, err := h.actor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	userID := mux.Vars(r)["id"]
	if actor.Role != models.RoleVenueOwner && actor.UserID != userID {
		writeError(w, errs.New(errs.CodeForbidden, op, "reputation is operator-facing", nil))
		return
	}
	rep, err := h.reps.Get(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// CheckInHistory handles GET /users/{id}/checkin-history?limit&offset.
func (h *Handlers) CheckInHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.CheckInHistory"
	actor, err := h.actor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	userID := mux.Vars(r)["id"]
	if actor.Role != models.RoleVenueOwner && actor.UserID != userID {
		writeError(w, errs.New(errs.CodeForbidden, op, "history is operator-facing", nil))
		return
	}
	limit := queryInt(r, "limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	logs, total, err := h.repo.GetCheckInHistoryCtx(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": logs, "total": total, "limit": limit, "offset": offset,
	})
}

type pushSubscriptionBody struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// CreatePushSubscription handles POST /users/{id}/push-subscriptions.
func (h *Handlers) CreatePushSubscription(w http.ResponseWriter, r *http.Request) {
	const op = "api.CreatePushSubscription"
	actor, err := h.actor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if actor.UserID != mux.Vars(r)["id"] {
		writeError(w, errs.New(errs.CodeForbidden, op, "subscriptions are self-service", nil))
		return
	}
	var body pushSubscriptionBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Endpoint == "" || body.Keys.P256dh == "" || body.Keys.Auth == "" {
		writeError(w, errs.New(errs.CodeMissingRequiredField, op, "endpoint and keys are required", nil))
		return
	}
	sub := &models.PushSubscription{
		ID:        uuid.NewString(),
		UserID:    actor.UserID,
		Endpoint:  body.Endpoint,
		P256dh:    body.Keys.P256dh,
		Auth:      body.Keys.Auth,
		CreatedAt: h.clock.Now().UTC(),
	}
	if err := h.repo.CreatePushSubscriptionCtx(r.Context(), sub); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

type deleteSubscriptionBody struct {
	Endpoint string `json:"endpoint"`
}

// DeletePushSubscription handles DELETE /users/{id}/push-subscriptions.
func (h *Handlers) DeletePushSubscription(w http.ResponseWriter, r *http.Request) {
	const op = "api.DeletePushSubscription"
	actor, err := h.actor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if actor.UserID != mux.Vars(r)["id"] {
		writeError(w, errs.New(errs.CodeForbidden, op, "subscriptions are self-service", nil))
		return
	}
	var body deleteSubscriptionBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.DeletePushSubscriptionCtx(r.Context(), actor.UserID, body.Endpoint); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
