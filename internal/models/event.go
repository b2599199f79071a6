package models

import "time"

const (
	EventCategoryStatusUpdate   = "STATUS_UPDATE"
	EventCategoryLocationUpdate = "LOCATION_UPDATE"
	EventCategoryMilestone      = "MILESTONE"
	EventCategoryException      = "EXCEPTION"
	EventCategoryNotification   = "NOTIFICATION"
)

const (
	SeverityInfo     = "INFO"
	SeverityWarning  = "WARNING"
	SeverityError    = "ERROR"
	SeverityCritical = "CRITICAL"
)

type Location struct {
	Name        string
	Country     string
	City        string
	AirportCode string
	Latitude    *float64
	Longitude   *float64
}

// Event is an immutable, append-only record of something that happened to a
// shipment, already normalized into the canonical vocabulary by a source
// adapter.
type Event struct {
	ID         uint64
	ShipmentID uint64

	Code        string
	Description string
	Category    string

	Location Location

	EventDatetime time.Time
	OriginalTZ    string

	IsMilestone bool
	IsException bool
	IsCritical  bool
	Severity    string

	SourceID   uint64
	ExternalID string
	Reference  string

	TemperatureCelsius *float64
	HumidityPercent    *float64

	AdditionalInfo string // opaque, serialized text blob

	CustomerVisible  bool
	Processed        bool
	NotificationSent bool

	CreatedAt time.Time
}

// ApplyOutcome is the three-valued result of Apply, replacing
// exception-as-control-flow on duplicate detection.
type ApplyOutcome string

const (
	OutcomeCreated   ApplyOutcome = "created"
	OutcomeDuplicate ApplyOutcome = "duplicate"
	OutcomeRejected  ApplyOutcome = "rejected"
)

// DedupWindow is the tolerance within which two events with the same code
// are considered the same logical event.
const DedupWindow = 300 * time.Second

// IsDuplicateOf reports whether candidate duplicates existing: same code,
// event_datetime within the dedup window, and either a matching
// external id (when both present) or no external id on either side.
func (e *Event) IsDuplicateOf(existing *Event) bool {
	if e.Code != existing.Code {
		return false
	}
	delta := e.EventDatetime.Sub(existing.EventDatetime)
	if delta < 0 {
		delta = -delta
	}
	if delta >= DedupWindow {
		return false
	}
	if e.ExternalID != "" && existing.ExternalID != "" {
		return e.ExternalID == existing.ExternalID
	}
	return e.ExternalID == "" && existing.ExternalID == ""
}
