package dto

import (
	"time"

	"fiunum/internal/domain/reservation"
)

// PendingReservationResponse is an admin list row with view-time status.
type PendingReservationResponse struct {
	ReservationResponse
	Status string `json:"status"`
}

// FromPendingView converts an admin list row.
func FromPendingView(v reservation.PendingView) PendingReservationResponse {
	return PendingReservationResponse{
		ReservationResponse: FromReservation(v.Reservation),
		Status:              v.Status,
	}
}

// StatsResponse aggregates store health numbers.
type StatsResponse struct {
	ActiveReservations  int            `json:"activeReservations"`
	ExpiredReservations int            `json:"expiredReservations"`
	UsedReservations    int            `json:"usedReservations"`
	CurrentMonthGaps    int            `json:"currentMonthGaps"`
	LatestSerial        int64          `json:"latestSerial"`
	ByUser              map[string]int `json:"byUser"`
}

// ActivityEntryResponse is one row of the recent-activity feed.
type ActivityEntryResponse struct {
	ReportNumber string    `json:"reportNumber"`
	ReservedBy   string    `json:"reservedBy"`
	Action       string    `json:"action"`
	Timestamp    time.Time `json:"timestamp"`
}

// UpdateLimitsRequest changes the concurrency caps.
type UpdateLimitsRequest struct {
	MaxConcurrent int `json:"maxConcurrent" binding:"required,min=1"`
	MaxPerUser    int `json:"maxPerUser" binding:"required,min=1"`
}

// UpdateTimeoutRequest changes the reservation hold window.
type UpdateTimeoutRequest struct {
	TimeoutMinutes int `json:"timeoutMinutes" binding:"required,min=1,max=1440"`
}

// CleanupResponse reports swept rows.
type CleanupResponse struct {
	Removed int64 `json:"removed"`
}

// ReleaseUserResponse reports force-released rows.
type ReleaseUserResponse struct {
	Removed int64 `json:"removed"`
}
