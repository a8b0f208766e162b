package handlers

import (
	"github.com/gin-gonic/gin"

	"fiunum/internal/domain/reservation"
	"fiunum/internal/infrastructure/http/v1/dto"
)

// AdminHandler handles reservation administration endpoints.
type AdminHandler struct {
	*BaseHandler
	service *reservation.Service
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(base *BaseHandler, service *reservation.Service) *AdminHandler {
	return &AdminHandler{
		BaseHandler: base,
		service:     service,
	}
}

// RegisterRoutes wires admin endpoints onto an admin-restricted group.
func (h *AdminHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/reservations", h.ListPending)
	rg.GET("/reservations/stats", h.Stats)
	rg.GET("/reservations/activity", h.Activity)
	rg.DELETE("/reservations/:number", h.Release)
	rg.DELETE("/users/:username/reservations", h.ReleaseUser)
	rg.PUT("/limits", h.UpdateLimits)
	rg.PUT("/timeout", h.UpdateTimeout)
	rg.POST("/cleanup", h.Cleanup)
	rg.POST("/pool", h.ReserveBatch)
	rg.GET("/pool", h.PoolStatus)
}

// ListPending handles GET /admin/reservations
func (h *AdminHandler) ListPending(c *gin.Context) {
	ctx := c.Request.Context()

	views, err := h.service.ListPending(ctx)
	if err != nil {
		h.Error(c, err)
		return
	}

	out := make([]dto.PendingReservationResponse, len(views))
	for i, v := range views {
		out[i] = dto.FromPendingView(v)
	}
	h.OK(c, out)
}

// Stats handles GET /admin/reservations/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	st, err := h.service.Stats(ctx)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.StatsResponse{
		ActiveReservations:  st.ActiveReservations,
		ExpiredReservations: st.ExpiredReservations,
		UsedReservations:    st.UsedReservations,
		CurrentMonthGaps:    st.CurrentMonthGaps,
		LatestSerial:        st.LatestSerial,
		ByUser:              st.ByUser,
	})
}

// Activity handles GET /admin/reservations/activity?limit=50
func (h *AdminHandler) Activity(c *gin.Context) {
	ctx := c.Request.Context()
	limit := h.ParseIntQuery(c, "limit", 50)

	entries, err := h.service.Activity(ctx, limit)
	if err != nil {
		h.Error(c, err)
		return
	}

	out := make([]dto.ActivityEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = dto.ActivityEntryResponse{
			ReportNumber: e.ReportNumber,
			ReservedBy:   e.ReservedBy,
			Action:       e.Action,
			Timestamp:    e.Timestamp,
		}
	}
	h.OK(c, out)
}

// Release handles DELETE /admin/reservations/:number
func (h *AdminHandler) Release(c *gin.Context) {
	ctx := c.Request.Context()
	number := pathNumber(c.Param("number"))

	if err := h.service.Release(ctx, number, h.GetUsername(c)); err != nil {
		h.Error(c, err)
		return
	}

	h.NoContent(c)
}

// ReleaseUser handles DELETE /admin/users/:username/reservations
func (h *AdminHandler) ReleaseUser(c *gin.Context) {
	ctx := c.Request.Context()
	target := c.Param("username")

	removed, err := h.service.ReleaseUser(ctx, target, h.GetUsername(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ReleaseUserResponse{Removed: removed})
}

// UpdateLimits handles PUT /admin/limits
func (h *AdminHandler) UpdateLimits(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.UpdateLimitsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	if err := h.service.UpdateCaps(ctx, req.MaxConcurrent, req.MaxPerUser, h.GetUsername(c)); err != nil {
		h.Error(c, err)
		return
	}

	h.Success(c, "Limits updated.")
}

// UpdateTimeout handles PUT /admin/timeout
func (h *AdminHandler) UpdateTimeout(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.UpdateTimeoutRequest
	if !h.BindJSON(c, &req) {
		return
	}

	if err := h.service.UpdateTimeout(ctx, req.TimeoutMinutes, h.GetUsername(c)); err != nil {
		h.Error(c, err)
		return
	}

	h.Success(c, "Timeout updated.")
}

// Cleanup handles POST /admin/cleanup
func (h *AdminHandler) Cleanup(c *gin.Context) {
	ctx := c.Request.Context()

	removed, err := h.service.CleanupExpired(ctx)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.CleanupResponse{Removed: removed})
}

// ReserveBatch handles POST /admin/pool
func (h *AdminHandler) ReserveBatch(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.BatchReserveRequest
	if !h.BindJSON(c, &req) {
		return
	}

	reserved, err := h.service.ReserveBatch(ctx, req.Count, ttlFromMinutes(req.TTLMinutes))
	if err != nil {
		h.Error(c, err)
		return
	}

	out := make([]dto.ReservationResponse, len(reserved))
	for i, r := range reserved {
		out[i] = dto.FromReservation(r)
	}
	h.Created(c, dto.BatchReserveResponse{Reserved: out, Count: len(out)})
}

// PoolStatus handles GET /admin/pool
func (h *AdminHandler) PoolStatus(c *gin.Context) {
	ctx := c.Request.Context()

	size, err := h.service.PoolSize(ctx)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.PoolStatusResponse{Size: size})
}
