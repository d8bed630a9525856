// README: Order handlers for create/get/status/reorder/history.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dishpatch/internal/modules/order"
	"dishpatch/internal/types"
)

type OrderHandler struct {
	order *order.Service
}

func NewOrderHandler(svc *order.Service) *OrderHandler {
	return &OrderHandler{order: svc}
}

type customizationReq struct {
	Name            string `json:"name"`
	PriceDeltaCents int64  `json:"price_delta_cents"`
}

type itemReq struct {
	MenuItemID     string             `json:"menu_item_id"`
	Quantity       int                `json:"quantity"`
	Customizations []customizationReq `json:"customizations"`
}

type deliveryReq struct {
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	Address      string  `json:"address"`
	Instructions string  `json:"instructions"`
}

type createOrderReq struct {
	UserID       string      `json:"user_id"`
	RestaurantID string      `json:"restaurant_id"`
	Items        []itemReq   `json:"items"`
	Delivery     deliveryReq `json:"delivery"`
}

func itemInputs(items []itemReq) []order.ItemInput {
	out := make([]order.ItemInput, len(items))
	for i, it := range items {
		in := order.ItemInput{MenuItemID: types.ID(it.MenuItemID), Quantity: it.Quantity}
		for _, cz := range it.Customizations {
			in.Customizations = append(in.Customizations, order.Customization{
				Name:       cz.Name,
				PriceDelta: types.USD(cz.PriceDeltaCents),
			})
		}
		out[i] = in
	}
	return out
}

func deliveryLocation(d deliveryReq) order.DeliveryLocation {
	return order.DeliveryLocation{
		Position:     types.Point{Lat: d.Lat, Lng: d.Lng},
		Address:      d.Address,
		Instructions: d.Instructions,
	}
}

func orderView(o *order.Order) gin.H {
	v := gin.H{
		"order_id":       o.ID,
		"status":         o.Status,
		"payment_status": o.PaymentStatus,
		"items":          o.Items,
		"subtotal":       o.Subtotal,
		"tax":            o.Tax,
		"delivery_fee":   o.DeliveryFee,
		"total":          o.Total,
		"delivery":       o.Delivery,
		"created_at":     o.CreatedAt,
	}
	if o.EstimatedDeliveryAt != nil {
		v["estimated_delivery_time"] = o.EstimatedDeliveryAt
	}
	if o.ActualDeliveryAt != nil {
		v["actual_delivery_time"] = o.ActualDeliveryAt
	}
	if o.DriverID != nil {
		v["driver_id"] = o.DriverID
	}
	if o.Group != nil {
		v["group"] = o.Group
	}
	if o.Schedule != nil {
		v["schedule"] = o.Schedule
		v["scheduled_for"] = o.ScheduledFor
	}
	return v
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	o, err := h.order.Create(c.Request.Context(), order.CreateCommand{
		UserID:       types.ID(req.UserID),
		RestaurantID: types.ID(req.RestaurantID),
		Items:        itemInputs(req.Items),
		Delivery:     deliveryLocation(req.Delivery),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, orderView(o))
}

func (h *OrderHandler) Get(c *gin.Context) {
	o, err := h.order.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, orderView(o))
}

type transitionReq struct {
	Status string   `json:"status"`
	Note   string   `json:"note"`
	Lat    *float64 `json:"lat"`
	Lng    *float64 `json:"lng"`
}

func (h *OrderHandler) Transition(c *gin.Context) {
	var req transitionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	cmd := order.TransitionCommand{
		OrderID: types.ID(c.Param("id")),
		To:      order.Status(req.Status),
		Note:    req.Note,
	}
	if req.Lat != nil && req.Lng != nil {
		cmd.Location = &types.Point{Lat: *req.Lat, Lng: *req.Lng}
	}
	o, err := h.order.Transition(c.Request.Context(), cmd)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, orderView(o))
}

type reorderReq struct {
	UserID string `json:"user_id"`
}

func (h *OrderHandler) Reorder(c *gin.Context) {
	var req reorderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	o, err := h.order.Reorder(c.Request.Context(), types.ID(c.Param("id")), types.ID(req.UserID))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, orderView(o))
}

func (h *OrderHandler) ListByUser(c *gin.Context) {
	orders, err := h.order.ListByUser(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	views := make([]gin.H, len(orders))
	for i, o := range orders {
		views[i] = orderView(o)
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": views})
}
