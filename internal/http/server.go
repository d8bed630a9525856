// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dishpatch/internal/http/handlers"
	"dishpatch/internal/http/middleware"
	"dishpatch/internal/modules/group"
	"dishpatch/internal/modules/order"
	"dishpatch/internal/modules/schedule"
	"dishpatch/internal/modules/tracking"
)

type ServerDeps struct {
	Order    *order.Service
	Tracking *tracking.Service
	Group    *group.Service
	Schedule *schedule.Service
	Pool     *tracking.RedisPool
}

type Server struct {
	order    *order.Service
	tracking *tracking.Service
	group    *group.Service
	schedule *schedule.Service
	pool     *tracking.RedisPool
}

func NewServer(deps ServerDeps) *Server {
	return &Server{
		order:    deps.Order,
		tracking: deps.Tracking,
		group:    deps.Group,
		schedule: deps.Schedule,
		pool:     deps.Pool,
	}
}

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(middleware.Logging(), middleware.Recovery())

	orderHandler := handlers.NewOrderHandler(s.order)
	r.POST("/api/orders", orderHandler.Create)
	r.GET("/api/orders/:id", orderHandler.Get)
	r.POST("/api/orders/:id/status", orderHandler.Transition)
	r.POST("/api/orders/:id/reorder", orderHandler.Reorder)
	r.GET("/api/users/:id/orders", orderHandler.ListByUser)

	trackingHandler := handlers.NewTrackingHandler(s.tracking, s.pool)
	r.GET("/api/orders/:id/tracking", trackingHandler.Get)
	r.PUT("/api/orders/:id/location", trackingHandler.UpdateLocation)
	r.POST("/api/drivers/:id/availability", trackingHandler.SetAvailability)

	groupHandler := handlers.NewGroupHandler(s.group)
	r.POST("/api/group-orders", groupHandler.Create)
	r.POST("/api/group-orders/:id/join", groupHandler.Join)
	r.POST("/api/group-orders/:id/decline", groupHandler.Decline)

	scheduleHandler := handlers.NewScheduleHandler(s.schedule)
	r.POST("/api/scheduled-orders", scheduleHandler.Create)
	r.PUT("/api/scheduled-orders/:id", scheduleHandler.Update)
	r.DELETE("/api/scheduled-orders/:id", scheduleHandler.Cancel)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return r
}
