package messages

import "time"

// RawEvent is the wire DTO the poll scheduler publishes to the raw-update
// topic; the api process's kafka consumer unmarshals it and feeds it
// straight into the ingestion pipeline's Apply.
type RawEvent struct {
	ShipmentID uint64    `json:"shipment_id"`
	SourceID   uint64    `json:"source_id"`
	FetchedAt  time.Time `json:"fetched_at"`

	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category"`

	LocationName    string   `json:"location_name,omitempty"`
	LocationCountry string   `json:"location_country,omitempty"`
	LocationCity    string   `json:"location_city,omitempty"`
	AirportCode     string   `json:"airport_code,omitempty"`
	Latitude        *float64 `json:"latitude,omitempty"`
	Longitude       *float64 `json:"longitude,omitempty"`

	EventDatetime time.Time `json:"event_datetime"`
	OriginalTZ    string    `json:"original_tz,omitempty"`

	IsMilestone bool   `json:"is_milestone"`
	IsException bool   `json:"is_exception"`
	IsCritical  bool   `json:"is_critical"`
	Severity    string `json:"severity,omitempty"`

	ExternalID string `json:"external_id,omitempty"`
	Reference  string `json:"reference,omitempty"`

	TemperatureCelsius *float64 `json:"temperature_celsius,omitempty"`
	HumidityPercent    *float64 `json:"humidity_percent,omitempty"`

	AdditionalInfo string `json:"additional_info,omitempty"`

	CustomerVisible bool `json:"customer_visible"`

	// FetchError is set instead of the fields above when the source
	// adapter failed; the api side logs it rather than applying anything.
	FetchError *string `json:"fetch_error,omitempty"`
	Transient  bool    `json:"transient,omitempty"`
}
