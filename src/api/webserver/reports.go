package webserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stake-plus/escrow-market/src/api/market"
)

type Reports struct{ svc *market.Service }

func NewReports(svc *market.Service) Reports { return Reports{svc: svc} }

func (r Reports) Create(c *gin.Context) {
	var req struct {
		TargetType string `json:"targetType" binding:"required,oneof=user job bid message review"`
		TargetID   uint64 `json:"targetId"   binding:"required"`
		Reason     string `json:"reason"     binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rep, err := r.svc.CreateReport(c.Request.Context(), userID(c), req.TargetType, req.TargetID, req.Reason)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, rep)
}
