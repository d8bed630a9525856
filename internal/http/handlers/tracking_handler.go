// README: Tracking handlers: order snapshot, driver pings, driver availability.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dishpatch/internal/modules/tracking"
	"dishpatch/internal/types"
)

type TrackingHandler struct {
	tracking *tracking.Service
	pool     *tracking.RedisPool
}

func NewTrackingHandler(svc *tracking.Service, pool *tracking.RedisPool) *TrackingHandler {
	return &TrackingHandler{tracking: svc, pool: pool}
}

func (h *TrackingHandler) Get(c *gin.Context) {
	snap, err := h.tracking.Snapshot(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, snap)
}

type locationPingReq struct {
	DriverID string     `json:"driver_id"`
	Lat      float64    `json:"lat"`
	Lng      float64    `json:"lng"`
	At       *time.Time `json:"at"`
}

func (h *TrackingHandler) UpdateLocation(c *gin.Context) {
	var req locationPingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	at := time.Now()
	if req.At != nil {
		at = *req.At
	}
	err := h.tracking.UpdateDriverLocation(c.Request.Context(), tracking.LocationPing{
		OrderID:  types.ID(c.Param("id")),
		DriverID: types.ID(req.DriverID),
		Position: types.Point{Lat: req.Lat, Lng: req.Lng},
		At:       at,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"accepted": true})
}

type availabilityReq struct {
	Name    string  `json:"name"`
	Vehicle string  `json:"vehicle"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

func (h *TrackingHandler) SetAvailability(c *gin.Context) {
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	pos := types.Point{Lat: req.Lat, Lng: req.Lng}
	if !pos.Valid() {
		writeError(c, http.StatusBadRequest, "coordinates out of range")
		return
	}
	err := h.pool.SetAvailable(c.Request.Context(), tracking.Driver{
		ID:       types.ID(c.Param("id")),
		Name:     req.Name,
		Vehicle:  req.Vehicle,
		Position: pos,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"available": true})
}
