// Package geo computes great-circle distances between coordinates.
package geo

import (
	"math"

	"walkin-queue-coordinator/internal/models"
	errs "walkin-queue-coordinator/pkg/errors"
)

// earthRadiusMeters is the mean Earth radius used by the haversine formula.
const earthRadiusMeters = 6371000.0

// maxAccuracyMeters is the largest reported GPS accuracy we accept.
const maxAccuracyMeters = 1000.0

// Validate checks coordinate bounds and, when present, reported accuracy.
func Validate(loc models.Location) error {
	if loc.Latitude < -90 || loc.Latitude > 90 {
		return errs.New(errs.CodeInvalidCoordinates, "geo.Validate", "latitude out of range", nil).
			WithDetail("latitude", loc.Latitude)
	}
	if loc.Longitude < -180 || loc.Longitude > 180 {
		return errs.New(errs.CodeInvalidCoordinates, "geo.Validate", "longitude out of range", nil).
			WithDetail("longitude", loc.Longitude)
	}
	if loc.Accuracy != nil && (*loc.Accuracy < 0 || *loc.Accuracy > maxAccuracyMeters) {
		return errs.New(errs.CodeInvalidCoordinates, "geo.Validate", "accuracy out of range", nil).
			WithDetail("accuracy", *loc.Accuracy)
	}
	return nil
}

// DistanceMeters returns the haversine distance between a and b, rounded to
// the nearest meter. Both inputs are validated first.
func DistanceMeters(a, b models.Location) (int, error) {
	if err := Validate(a); err != nil {
		return 0, err
	}
	if err := Validate(b); err != nil {
		return 0, err
	}

	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return int(math.Round(earthRadiusMeters * c)), nil
}
