package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"fiunum/internal/domain/reservation"
	"fiunum/internal/infrastructure/http/v1/dto"
)

// ReservationHandler handles the user-facing reservation endpoints.
type ReservationHandler struct {
	*BaseHandler
	service *reservation.Service
}

// NewReservationHandler creates a new reservation handler.
func NewReservationHandler(base *BaseHandler, service *reservation.Service) *ReservationHandler {
	return &ReservationHandler{
		BaseHandler: base,
		service:     service,
	}
}

// RegisterRoutes wires reservation endpoints onto an authenticated group.
func (h *ReservationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/reservations", h.Reserve)
	rg.POST("/reservations/from-pool", h.ReserveFromPool)
	rg.POST("/reservations/:number/use", h.MarkUsed)
	rg.DELETE("/reservations/:number", h.Cancel)
	rg.GET("/reservations/gaps", h.Gaps)
}

// Reserve handles POST /reservations
func (h *ReservationHandler) Reserve(c *gin.Context) {
	ctx := c.Request.Context()

	grant, err := h.service.Reserve(ctx, h.GetUsername(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, dto.FromGrant(grant))
}

// ReserveFromPool handles POST /reservations/from-pool
func (h *ReservationHandler) ReserveFromPool(c *gin.Context) {
	ctx := c.Request.Context()

	grant, err := h.service.ReserveFromPool(ctx, h.GetUsername(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, dto.FromGrant(grant))
}

// MarkUsed handles POST /reservations/:number/use
//
// The :number path segment uses dashes instead of slashes
// (2025-11-001 for 2025/11/001) to keep routing unambiguous.
func (h *ReservationHandler) MarkUsed(c *gin.Context) {
	ctx := c.Request.Context()
	number := pathNumber(c.Param("number"))

	if err := h.service.MarkUsed(ctx, number, h.GetUsername(c)); err != nil {
		h.Error(c, err)
		return
	}

	h.Success(c, "Reservation marked as used.")
}

// Cancel handles DELETE /reservations/:number
func (h *ReservationHandler) Cancel(c *gin.Context) {
	ctx := c.Request.Context()
	number := pathNumber(c.Param("number"))

	if err := h.service.Cancel(ctx, number, h.GetUsername(c)); err != nil {
		h.Error(c, err)
		return
	}

	h.NoContent(c)
}

// Gaps handles GET /reservations/gaps
func (h *ReservationHandler) Gaps(c *gin.Context) {
	ctx := c.Request.Context()

	n, err := h.service.CurrentGaps(ctx)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.GapNotificationResponse{
		Period:  n.Period,
		Gaps:    n.Gaps,
		Message: n.Message,
	})
}

// pathNumber converts a dash-separated path segment back to a report number.
func pathNumber(segment string) string {
	out := []byte(segment)
	for i := range out {
		if out[i] == '-' {
			out[i] = '/'
		}
	}
	return string(out)
}

// ttlFromMinutes converts an optional minutes field into a duration.
func ttlFromMinutes(minutes int) time.Duration {
	if minutes <= 0 {
		return 0
	}
	return time.Duration(minutes) * time.Minute
}
