// README: Scheduled order handlers: create, update, cancel.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dishpatch/internal/modules/order"
	"dishpatch/internal/modules/schedule"
	"dishpatch/internal/types"
)

type ScheduleHandler struct {
	schedule *schedule.Service
}

func NewScheduleHandler(svc *schedule.Service) *ScheduleHandler {
	return &ScheduleHandler{schedule: svc}
}

type scheduleConfigReq struct {
	Frequency   string     `json:"frequency"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	EndDate     *time.Time `json:"end_date"`
	DaysOfWeek  []int      `json:"days_of_week"`
	DaysOfMonth []int      `json:"days_of_month"`
}

func (r scheduleConfigReq) toConfig() order.ScheduleConfig {
	cfg := order.ScheduleConfig{
		Frequency:   order.Frequency(r.Frequency),
		ScheduledAt: r.ScheduledAt,
		EndDate:     r.EndDate,
		DaysOfMonth: r.DaysOfMonth,
	}
	for _, d := range r.DaysOfWeek {
		cfg.DaysOfWeek = append(cfg.DaysOfWeek, time.Weekday(d))
	}
	return cfg
}

type createScheduleReq struct {
	UserID       string            `json:"user_id"`
	RestaurantID string            `json:"restaurant_id"`
	Items        []itemReq         `json:"items"`
	Delivery     deliveryReq       `json:"delivery"`
	Schedule     scheduleConfigReq `json:"schedule"`
}

func (h *ScheduleHandler) Create(c *gin.Context) {
	var req createScheduleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	o, err := h.schedule.Schedule(c.Request.Context(), schedule.CreateCommand{
		UserID:       types.ID(req.UserID),
		RestaurantID: types.ID(req.RestaurantID),
		Items:        itemInputs(req.Items),
		Delivery:     deliveryLocation(req.Delivery),
		Config:       req.Schedule.toConfig(),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, orderView(o))
}

type updateScheduleReq struct {
	UserID   string            `json:"user_id"`
	Schedule scheduleConfigReq `json:"schedule"`
}

func (h *ScheduleHandler) Update(c *gin.Context) {
	var req updateScheduleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	o, err := h.schedule.Update(c.Request.Context(), types.ID(c.Param("id")), types.ID(req.UserID), req.Schedule.toConfig())
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, orderView(o))
}

type cancelScheduleReq struct {
	UserID string `json:"user_id"`
}

func (h *ScheduleHandler) Cancel(c *gin.Context) {
	var req cancelScheduleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.schedule.Cancel(c.Request.Context(), types.ID(c.Param("id")), types.ID(req.UserID)); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": order.StatusCancelled})
}
