package httpapi

import (
	"time"

	"github.com/aerocargo/shiptrack/internal/models"
)

type shipmentResponse struct {
	ID                 uint64     `json:"id"`
	AWBNumber          string     `json:"awb_number"`
	CustomerID         string     `json:"customer_id"`
	OriginAirport      string     `json:"origin_airport,omitempty"`
	DestinationAirport string     `json:"destination_airport,omitempty"`
	FlightNumber       string     `json:"flight_number,omitempty"`
	Pieces             int32      `json:"pieces"`
	WeightKG           float64    `json:"weight_kg"`
	CurrentStatus      string     `json:"current_status"`
	CurrentLocation    string     `json:"current_location,omitempty"`
	EstimatedDelivery  *time.Time `json:"estimated_delivery_date,omitempty"`
	DeliveryDate       *time.Time `json:"delivery_date,omitempty"`
	HasExceptions      bool       `json:"has_exceptions"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func toShipmentResponse(sh *models.Shipment, eta *time.Time, hasExceptions bool) shipmentResponse {
	return shipmentResponse{
		ID:                 sh.ID,
		AWBNumber:          sh.AWBNumber,
		CustomerID:         sh.CustomerID,
		OriginAirport:      sh.OriginAirport,
		DestinationAirport: sh.DestinationAirport,
		FlightNumber:       sh.FlightNumber,
		Pieces:             sh.Pieces,
		WeightKG:           sh.WeightKG,
		CurrentStatus:      sh.CurrentStatus,
		CurrentLocation:    sh.CurrentLocation,
		EstimatedDelivery:  eta,
		DeliveryDate:       sh.DeliveryDate,
		HasExceptions:      hasExceptions,
		CreatedAt:          sh.CreatedAt,
		UpdatedAt:          sh.UpdatedAt,
	}
}

type eventResponse struct {
	ID            uint64    `json:"id"`
	ShipmentID    uint64    `json:"shipment_id"`
	Code          string    `json:"code"`
	Description   string    `json:"description,omitempty"`
	Category      string    `json:"category"`
	Location      string    `json:"location,omitempty"`
	EventDatetime time.Time `json:"event_datetime"`
	IsMilestone   bool      `json:"is_milestone"`
	IsException   bool      `json:"is_exception"`
	IsCritical    bool      `json:"is_critical"`
	Severity      string    `json:"severity,omitempty"`
	SourceID      uint64    `json:"source_id"`
	CreatedAt     time.Time `json:"created_at"`
}

func toEventResponse(e *models.Event) eventResponse {
	return eventResponse{
		ID:            e.ID,
		ShipmentID:    e.ShipmentID,
		Code:          e.Code,
		Description:   e.Description,
		Category:      e.Category,
		Location:      e.Location.Name,
		EventDatetime: e.EventDatetime,
		IsMilestone:   e.IsMilestone,
		IsException:   e.IsException,
		IsCritical:    e.IsCritical,
		Severity:      e.Severity,
		SourceID:      e.SourceID,
		CreatedAt:     e.CreatedAt,
	}
}

type createEventRequest struct {
	ShipmentID    uint64 `json:"shipment_id"`
	AWBNumber     string `json:"awb_number"`
	Code          string `json:"code"`
	Description   string `json:"description"`
	Category      string `json:"category"`
	LocationName  string `json:"location_name"`
	EventDatetime string `json:"event_datetime"`
	OriginalTZ    string `json:"original_tz"`
	IsMilestone   bool   `json:"is_milestone"`
	IsException   bool   `json:"is_exception"`
	IsCritical    bool   `json:"is_critical"`
	Severity      string `json:"severity"`
	ExternalID    string `json:"external_id"`
	Reference     string `json:"reference"`
}

type createShipmentRequest struct {
	AWBNumber                string   `json:"awb_number"`
	CustomerID               string   `json:"customer_id"`
	OriginAirport            string   `json:"origin_airport"`
	DestinationAirport       string   `json:"destination_airport"`
	RouteAirports            []string `json:"route_airports"`
	FlightNumber             string   `json:"flight_number"`
	Pieces                   int32    `json:"pieces"`
	WeightKG                 float64  `json:"weight_kg"`
	Commodity                string   `json:"commodity"`
	DeclaredValue            float64  `json:"declared_value"`
	DeclaredCurrency         string   `json:"declared_currency"`
	TrackingEnabled          bool     `json:"tracking_enabled"`
	TrackingFrequencyMinutes int32    `json:"tracking_frequency_minutes"`
}

func (req createShipmentRequest) toInput() models.ShipmentCreateInput {
	return models.ShipmentCreateInput{
		AWBNumber:                req.AWBNumber,
		CustomerID:               req.CustomerID,
		OriginAirport:            req.OriginAirport,
		DestinationAirport:       req.DestinationAirport,
		RouteAirports:            req.RouteAirports,
		FlightNumber:             req.FlightNumber,
		Pieces:                   req.Pieces,
		WeightKG:                 req.WeightKG,
		Commodity:                req.Commodity,
		DeclaredValue:            req.DeclaredValue,
		DeclaredCurrency:         req.DeclaredCurrency,
		TrackingEnabled:          req.TrackingEnabled,
		TrackingFrequencyMinutes: req.TrackingFrequencyMinutes,
	}
}

type subscribeRequest struct {
	ShipmentID            uint64 `json:"shipment_id"`
	SubscriberID          string `json:"subscriber_id"`
	Method                string `json:"method"`
	Endpoint              string `json:"endpoint"`
	FilterMilestone       bool   `json:"filter_milestone"`
	FilterException       bool   `json:"filter_exception"`
	FilterLocationUpdates bool   `json:"filter_location_updates"`
	FilterAllEvents       bool   `json:"filter_all_events"`
}

type subscriptionResponse struct {
	ID         uint64 `json:"id"`
	ShipmentID uint64 `json:"shipment_id"`
	Method     string `json:"method"`
	Active     bool   `json:"active"`
}

type bulkUpdateRequest struct {
	AWBNumbers []string `json:"awb_numbers"`
}

type bulkUpdateResult struct {
	AWBNumber string `json:"awb_number"`
	Applied   int    `json:"applied"`
	Error     string `json:"error,omitempty"`
}
