// Package queue orchestrates the entry lifecycle: enrolment, notification,
// check-in, verification, positions and the background sweeps.
package queue

import (
	"walkin-queue-coordinator/internal/models"
	errs "walkin-queue-coordinator/pkg/errors"
)

// transitions enumerates the permitted status moves. Anything absent is an
// InvalidStatusTransition. Terminal states have no successors.
var transitions = map[models.Status][]models.Status{
	models.StatusWaiting:             {models.StatusNotified, models.StatusNoShow},
	models.StatusNotified:            {models.StatusPendingVerification, models.StatusNearby, models.StatusNoShow},
	models.StatusPendingVerification: {models.StatusNearby, models.StatusNotified, models.StatusNoShow},
	models.StatusNearby:              {models.StatusInProgress, models.StatusNoShow},
	models.StatusInProgress:          {models.StatusCompleted, models.StatusNoShow},
	models.StatusCompleted:           {},
	models.StatusNoShow:              {},
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to models.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidNext returns the statuses reachable from the given one.
func ValidNext(from models.Status) []models.Status {
	return append([]models.Status(nil), transitions[from]...)
}

// invalidTransition builds the 409-mapped error carrying the valid successor
// list so clients can correct themselves.
func invalidTransition(op string, from, to models.Status) *errs.Error {
	valid := make([]string, 0, len(transitions[from]))
	for _, s := range transitions[from] {
		valid = append(valid, string(s))
	}
	return errs.NewUser(errs.CodeInvalidStatusTransition, op,
		"cannot move from "+string(from)+" to "+string(to),
		"this queue entry cannot change to "+string(to)+" right now", nil).
		WithDetail("currentStatus", string(from)).
		WithDetail("requestedStatus", string(to)).
		WithDetail("validStatuses", valid)
}
