package models

import (
	"time"
)

// Status is the lifecycle state of a queue entry.
type Status string

const (
	StatusWaiting             Status = "waiting"
	StatusNotified            Status = "notified"
	StatusPendingVerification Status = "pending_verification"
	StatusNearby              Status = "nearby"
	StatusInProgress          Status = "in-progress"
	StatusCompleted           Status = "completed"
	StatusNoShow              Status = "no-show"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusNotified, StatusPendingVerification,
		StatusNearby, StatusInProgress, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// Terminal reports whether s is immutable.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusNoShow }

// ActiveStatuses are the non-terminal states. An entry in any of these counts
// against the one-active-entry-per-venue rule.
var ActiveStatuses = []Status{
	StatusWaiting, StatusNotified, StatusPendingVerification, StatusNearby, StatusInProgress,
}

// VerificationMethod records how an arrival was verified.
type VerificationMethod string

const (
	MethodGPSAuto       VerificationMethod = "gps_auto"
	MethodManual        VerificationMethod = "manual"
	MethodAdminOverride VerificationMethod = "admin_override"
)

// Role is the caller role carried by the bearer token.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleVenueOwner Role = "venue_owner"
)

// Location is a GPS coordinate with optional reported accuracy in meters.
type Location struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
}

// QueueEntry is one customer's enrolment in a venue's queue.
// Lifecycle fields stay nil until their state is reached.
type QueueEntry struct {
	ID         string   `json:"id"`
	VenueID    string   `json:"venueId"`
	UserID     string   `json:"userId"`
	ServiceIDs []string `json:"serviceIds"`
	TotalPrice float64  `json:"totalPrice"`
	OfferIDs   []string `json:"appliedOfferIds,omitempty"`

	// Position is 1-based among active entries, 0 while in-progress and
	// meaningless once terminal.
	Position             int       `json:"position"`
	EstimatedWaitMinutes int       `json:"estimatedWaitMinutes"`
	Status               Status    `json:"status"`
	CreatedAt            time.Time `json:"createdAt"`

	NotifiedAt                *time.Time          `json:"notifiedAt,omitempty"`
	NotificationWindowMinutes *int                `json:"notificationWindowMinutes,omitempty"`
	CheckInAttemptedAt        *time.Time          `json:"checkInAttemptedAt,omitempty"`
	CheckInLocation           *Location           `json:"checkInLocation,omitempty"`
	CheckInDistanceMeters     *int                `json:"checkInDistanceMeters,omitempty"`
	VerifiedAt                *time.Time          `json:"verifiedAt,omitempty"`
	VerificationMethod        *VerificationMethod `json:"verificationMethod,omitempty"`
	VerifiedByAdminID         *string             `json:"verifiedByAdminId,omitempty"`
	ServiceStartedAt          *time.Time          `json:"serviceStartedAt,omitempty"`
	ServiceCompletedAt        *time.Time          `json:"serviceCompletedAt,omitempty"`
	NoShowMarkedAt            *time.Time          `json:"noShowMarkedAt,omitempty"`
	NoShowReason              *string             `json:"noShowReason,omitempty"`
}

// ReputationTier classifies a user by score.
type ReputationTier string

const (
	TierNew        ReputationTier = "new"
	TierRegular    ReputationTier = "regular"
	TierTrusted    ReputationTier = "trusted"
	TierSuspicious ReputationTier = "suspicious"
	TierBanned     ReputationTier = "banned"
)

// ReputationAction is an event that moves a user's score.
type ReputationAction string

const (
	ActionSuccessfulCheckIn ReputationAction = "successful_checkin"
	ActionFalseCheckIn      ReputationAction = "false_checkin"
	ActionNoShow            ReputationAction = "no_show"
	ActionCompletedService  ReputationAction = "completed_service"
	ActionAdminOverride     ReputationAction = "admin_override"
)

// UserReputation holds per-user counters and the derived score/tier.
type UserReputation struct {
	UserID             string         `json:"userId"`
	TotalCheckIns      int            `json:"totalCheckIns"`
	SuccessfulCheckIns int            `json:"successfulCheckIns"`
	FalseCheckIns      int            `json:"falseCheckIns"`
	NoShows            int            `json:"noShows"`
	CompletedServices  int            `json:"completedServices"`
	Score              int            `json:"score"` // clamped to [0,100]
	Tier               ReputationTier `json:"tier"`
	LastCheckInAt      *time.Time     `json:"lastCheckInAt,omitempty"`
	LastNoShowAt       *time.Time     `json:"lastNoShowAt,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// CheckInLog is one append-only record per check-in attempt.
type CheckInLog struct {
	ID                      string             `json:"id"`
	QueueID                 string             `json:"queueId"`
	UserID                  string             `json:"userId"`
	VenueID                 string             `json:"venueId"`
	Timestamp               time.Time          `json:"timestamp"`
	UserLocation            *Location          `json:"userLocation,omitempty"`
	VenueLocation           Location           `json:"venueLocation"`
	DistanceMeters          *int               `json:"distanceMeters,omitempty"`
	Method                  VerificationMethod `json:"method"`
	AutoApproved            bool               `json:"autoApproved"`
	RequiresConfirmation    bool               `json:"requiresConfirmation"`
	Success                 bool               `json:"success"`
	Reason                  string             `json:"reason"`
	Suspicious              bool               `json:"suspicious"`
	SuspiciousReasons       []string           `json:"suspiciousReasons,omitempty"`
	TimeSinceNotificationMs int64              `json:"timeSinceNotificationMs"`
}

// Channel identifies a notification delivery channel.
type Channel string

const (
	ChannelRealtime Channel = "realtime-bus"
	ChannelSMS      Channel = "external-msg"
	ChannelWebPush  Channel = "web-push"
)

// Channels lists every delivery channel in fan-out order.
var Channels = []Channel{ChannelRealtime, ChannelSMS, ChannelWebPush}

// NotificationKind selects the message template.
type NotificationKind string

const (
	KindQueueNotification NotificationKind = "queue_notification"
	KindArrivalVerified   NotificationKind = "arrival_verified"
	KindServiceStarting   NotificationKind = "service_starting"
	KindServiceCompleted  NotificationKind = "service_completed"
	KindNoShow            NotificationKind = "no_show"
	KindPositionUpdate    NotificationKind = "position_update"
)

// ChannelResult captures the per-channel outcome of one dispatch.
type ChannelResult struct {
	Sent      bool       `json:"sent"`
	SentAt    *time.Time `json:"sentAt,omitempty"`
	Error     string     `json:"error,omitempty"`
	Delivered *bool      `json:"delivered,omitempty"`
}

// NotificationLog is one append-only record per dispatched notification.
type NotificationLog struct {
	ID        string                    `json:"id"`
	QueueID   string                    `json:"queueId"`
	UserID    string                    `json:"userId"`
	VenueID   string                    `json:"venueId"`
	Timestamp time.Time                 `json:"timestamp"`
	Kind      NotificationKind          `json:"type"`
	Title     string                    `json:"title"`
	Body      string                    `json:"body"`
	Results   map[Channel]ChannelResult `json:"channels"`
	Viewed    bool                      `json:"viewed"`
}

// Venue is a consumed read model; the coordinator never writes it.
type Venue struct {
	ID          string  `json:"id"`
	OwnerUserID string  `json:"ownerUserId"`
	Name        string  `json:"name"`
	Address     string  `json:"address"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// Location returns the venue coordinates as a Location.
func (v Venue) Location() Location {
	return Location{Latitude: v.Latitude, Longitude: v.Longitude}
}

// User is a consumed read model.
type User struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Phone *string `json:"phone,omitempty"`
	Role  Role    `json:"role"`
}

// PushSubscription is a stored web-push endpoint for a user.
type PushSubscription struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	CreatedAt time.Time `json:"createdAt"`
}

// LogFilter narrows log queries. Zero fields mean "no constraint".
type LogFilter struct {
	VenueID   string
	StartDate *time.Time
	EndDate   *time.Time
}
