package queue

import (
	"testing"

	"walkin-queue-coordinator/internal/models"
	errs "walkin-queue-coordinator/pkg/errors"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to models.Status }{
		{models.StatusWaiting, models.StatusNotified},
		{models.StatusWaiting, models.StatusNoShow},
		{models.StatusNotified, models.StatusPendingVerification},
		{models.StatusNotified, models.StatusNearby},
		{models.StatusNotified, models.StatusNoShow},
		{models.StatusPendingVerification, models.StatusNearby},
		{models.StatusPendingVerification, models.StatusNotified},
		{models.StatusPendingVerification, models.StatusNoShow},
		{models.StatusNearby, models.StatusInProgress},
		{models.StatusNearby, models.StatusNoShow},
		{models.StatusInProgress, models.StatusCompleted},
		{models.StatusInProgress, models.StatusNoShow},
	}
	for _, c := range allowed {
		if !CanTransition(c.from, c.to) {
			t.Fatalf("%s -> %s should be allowed", c.from, c.to)
		}
	}

	denied := []struct{ from, to models.Status }{
		{models.StatusWaiting, models.StatusCompleted},
		{models.StatusWaiting, models.StatusInProgress},
		{models.StatusWaiting, models.StatusNearby},
		{models.StatusNotified, models.StatusCompleted},
		{models.StatusNearby, models.StatusCompleted},
		{models.StatusCompleted, models.StatusNoShow},
		{models.StatusNoShow, models.StatusWaiting},
		{models.StatusCompleted, models.StatusWaiting},
	}
	for _, c := range denied {
		if CanTransition(c.from, c.to) {
			t.Fatalf("%s -> %s should be denied", c.from, c.to)
		}
	}
}

func TestTerminalStatesHaveNoSuccessors(t *testing.T) {
	if len(ValidNext(models.StatusCompleted)) != 0 || len(ValidNext(models.StatusNoShow)) != 0 {
		t.Fatalf("terminal states must be immutable")
	}
}

func TestInvalidTransitionDetails(t *testing.T) {
	err := invalidTransition("queue.test", models.StatusWaiting, models.StatusCompleted)
	if !errs.IsCode(err, errs.CodeInvalidStatusTransition) {
		t.Fatalf("wrong code: %v", err)
	}
	valid, ok := err.Details["validStatuses"].([]string)
	if !ok {
		t.Fatalf("missing validStatuses detail: %+v", err.Details)
	}
	if len(valid) != 2 || valid[0] != "notified" || valid[1] != "no-show" {
		t.Fatalf("validStatuses = %v", valid)
	}
}
