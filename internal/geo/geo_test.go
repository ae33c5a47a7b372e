package geo

import (
	"testing"

	"walkin-queue-coordinator/internal/models"
	errs "walkin-queue-coordinator/pkg/errors"
)

func TestValidateBounds(t *testing.T) {
	bad := []models.Location{
		{Latitude: 91, Longitude: 0},
		{Latitude: -91, Longitude: 0},
		{Latitude: 0, Longitude: 181},
		{Latitude: 0, Longitude: -181},
	}
	for _, loc := range bad {
		err := Validate(loc)
		if err == nil {
			t.Fatalf("expected error for %+v", loc)
		}
		if !errs.IsCode(err, errs.CodeInvalidCoordinates) {
			t.Fatalf("expected InvalidCoordinates, got %v", err)
		}
	}
	if err := Validate(models.Location{Latitude: 90, Longitude: -180}); err != nil {
		t.Fatalf("boundary coordinates should validate: %v", err)
	}
}

func TestValidateAccuracy(t *testing.T) {
	acc := 1500.0
	err := Validate(models.Location{Latitude: 0, Longitude: 0, Accuracy: &acc})
	if !errs.IsCode(err, errs.CodeInvalidCoordinates) {
		t.Fatalf("expected InvalidCoordinates for accuracy 1500, got %v", err)
	}
	ok := 25.0
	if err := Validate(models.Location{Latitude: 0, Longitude: 0, Accuracy: &ok}); err != nil {
		t.Fatalf("accuracy 25 should validate: %v", err)
	}
}

func TestDistanceMeters(t *testing.T) {
	// MG Road to Cubbon Park area, Bengaluru; roughly 930-940m.
	a := models.Location{Latitude: 12.9716, Longitude: 77.5946}
	b := models.Location{Latitude: 12.9800, Longitude: 77.5946}
	d, err := DistanceMeters(a, b)
	if err != nil {
		t.Fatalf("DistanceMeters: %v", err)
	}
	if d < 920 || d > 945 {
		t.Fatalf("distance = %d, want ~934", d)
	}
}

func TestDistanceMetersZero(t *testing.T) {
	a := models.Location{Latitude: 48.8566, Longitude: 2.3522}
	d, err := DistanceMeters(a, a)
	if err != nil {
		t.Fatalf("DistanceMeters: %v", err)
	}
	if d != 0 {
		t.Fatalf("identical points should be 0m apart, got %d", d)
	}
}

func TestDistanceMetersRejectsInvalid(t *testing.T) {
	a := models.Location{Latitude: 12.9716, Longitude: 77.5946}
	bad := models.Location{Latitude: 123, Longitude: 0}
	if _, err := DistanceMeters(a, bad); !errs.IsCode(err, errs.CodeInvalidCoordinates) {
		t.Fatalf("expected InvalidCoordinates, got %v", err)
	}
	if _, err := DistanceMeters(bad, a); !errs.IsCode(err, errs.CodeInvalidCoordinates) {
		t.Fatalf("expected InvalidCoordinates, got %v", err)
	}
}
