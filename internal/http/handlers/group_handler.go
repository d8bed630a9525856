// README: Group order handlers: create, join, decline.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dishpatch/internal/modules/group"
	"dishpatch/internal/types"
)

type GroupHandler struct {
	group *group.Service
}

func NewGroupHandler(svc *group.Service) *GroupHandler {
	return &GroupHandler{group: svc}
}

type createGroupReq struct {
	CreatorID    string      `json:"creator_id"`
	RestaurantID string      `json:"restaurant_id"`
	Items        []itemReq   `json:"items"`
	Delivery     deliveryReq `json:"delivery"`
	Invitees     []string    `json:"invitees"`
}

func (h *GroupHandler) Create(c *gin.Context) {
	var req createGroupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	invitees := make([]types.ID, len(req.Invitees))
	for i, inv := range req.Invitees {
		invitees[i] = types.ID(inv)
	}
	o, err := h.group.Create(c.Request.Context(), group.CreateCommand{
		CreatorID:    types.ID(req.CreatorID),
		RestaurantID: types.ID(req.RestaurantID),
		Delivery:     deliveryLocation(req.Delivery),
		CreatorItems: itemInputs(req.Items),
		Invitees:     invitees,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, orderView(o))
}

type joinGroupReq struct {
	UserID string    `json:"user_id"`
	Items  []itemReq `json:"items"`
}

func (h *GroupHandler) Join(c *gin.Context) {
	var req joinGroupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	o, err := h.group.Join(c.Request.Context(), group.JoinCommand{
		OrderID: types.ID(c.Param("id")),
		UserID:  types.ID(req.UserID),
		Items:   itemInputs(req.Items),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, orderView(o))
}

type declineGroupReq struct {
	UserID string `json:"user_id"`
}

func (h *GroupHandler) Decline(c *gin.Context) {
	var req declineGroupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	o, err := h.group.Decline(c.Request.Context(), types.ID(c.Param("id")), types.ID(req.UserID))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, orderView(o))
}
