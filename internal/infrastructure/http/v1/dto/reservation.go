package dto

import (
	"time"

	"fiunum/internal/domain/reservation"
)

// GapInfoResponse carries deletion provenance for a reused number.
type GapInfoResponse struct {
	ReportNumber string    `json:"reportNumber"`
	SerialNumber int64     `json:"serialNumber"`
	DeletedAt    time.Time `json:"deletedAt"`
	DeletedBy    string    `json:"deletedBy"`
	Message      string    `json:"message"`
}

// ReservationResponse is a granted or listed reservation.
type ReservationResponse struct {
	ID           int64            `json:"id"`
	ReportNumber string           `json:"reportNumber"`
	SerialNumber int64            `json:"serialNumber"`
	ReservedBy   string           `json:"reservedBy"`
	ReservedAt   time.Time        `json:"reservedAt"`
	ExpiresAt    time.Time        `json:"expiresAt"`
	HasGap       bool             `json:"hasGap,omitempty"`
	GapInfo      *GapInfoResponse `json:"gapInfo,omitempty"`
	Message      string           `json:"message,omitempty"`
}

// FromGrant converts a service grant.
func FromGrant(g *reservation.Grant) ReservationResponse {
	resp := ReservationResponse{
		ID:           g.ID,
		ReportNumber: g.ReportNumber,
		SerialNumber: g.SerialNumber,
		ReservedBy:   g.ReservedBy,
		ReservedAt:   g.ReservedAt,
		ExpiresAt:    g.ExpiresAt,
		HasGap:       g.HasGap,
		Message:      g.Message,
	}
	if g.GapInfo != nil {
		resp.GapInfo = &GapInfoResponse{
			ReportNumber: g.GapInfo.ReportNumber,
			SerialNumber: g.GapInfo.SerialNumber,
			DeletedAt:    g.GapInfo.DeletedAt,
			DeletedBy:    g.GapInfo.DeletedBy,
			Message:      g.GapInfo.Message,
		}
	}
	return resp
}

// FromReservation converts a plain reservation row.
func FromReservation(r reservation.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:           r.ID,
		ReportNumber: r.ReportNumber,
		SerialNumber: r.SerialNumber,
		ReservedBy:   r.ReservedBy,
		ReservedAt:   r.ReservedAt,
		ExpiresAt:    r.ExpiresAt,
	}
}

// BatchReserveRequest for pool pre-allocation.
type BatchReserveRequest struct {
	Count      int `json:"count" binding:"required,min=1,max=50"`
	TTLMinutes int `json:"ttlMinutes" binding:"omitempty,min=1,max=1440"`
}

// BatchReserveResponse lists the pool entries secured.
type BatchReserveResponse struct {
	Reserved []ReservationResponse `json:"reserved"`
	Count    int                   `json:"count"`
}

// GapNotificationResponse lists reusable numbers in the current period.
type GapNotificationResponse struct {
	Period  string   `json:"period"`
	Gaps    []string `json:"gaps"`
	Message string   `json:"message"`
}

// PoolStatusResponse reports unclaimed pool size.
type PoolStatusResponse struct {
	Size int `json:"size"`
}
