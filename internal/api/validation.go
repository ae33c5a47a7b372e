package api

import (
	"encoding/json"
	"io"
	"net/http"

	"walkin-queue-coordinator/internal/models"
	errs "walkin-queue-coordinator/pkg/errors"
	"walkin-queue-coordinator/pkg/utils"
)

// maxBodyBytes caps request bodies; the API only ever takes small JSON.
const maxBodyBytes = 64 << 10

// validWindows are the notification windows an operator may pick.
var validWindows = map[int]bool{5: true, 10: true, 15: true, 20: true}

func decodeBody(r *http.Request, v any) error {
	const op = "api.decodeBody"
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errs.NewUser(errs.CodeInvalidInput, op, "malformed body", "request body is not valid JSON", err)
	}
	return nil
}

func requireID(op, name, val string) (string, error) {
	id := utils.SanitizeID(val)
	if id == "" {
		return "", errs.New(errs.CodeMissingRequiredField, op, name+" is required", nil)
	}
	return id, nil
}

func validateWindow(op string, minutes int) error {
	if !validWindows[minutes] {
		return errs.NewUser(errs.CodeInvalidInput, op, "bad window", "estimatedMinutes must be 5, 10, 15 or 20", nil).
			WithDetail("estimatedMinutes", minutes)
	}
	return nil
}

// locationBody is the optional coordinate payload on check-in.
type locationBody struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Accuracy  *float64 `json:"accuracy"`
}

// toLocation validates and converts the body; a body with no coordinates
// yields nil (a manual check-in).
func (b locationBody) toLocation(op string) (*models.Location, error) {
	if b.Latitude == nil && b.Longitude == nil {
		return nil, nil
	}
	if b.Latitude == nil || b.Longitude == nil {
		return nil, errs.NewUser(errs.CodeInvalidCoordinates, op, "partial coordinates",
			"latitude and longitude must both be present", nil)
	}
	loc := &models.Location{Latitude: *b.Latitude, Longitude: *b.Longitude, Accuracy: b.Accuracy}
	return loc, nil
}

// clean strips HTML tags from free-text inputs.
func clean(s string) string { return utils.StripHTML(s) }
