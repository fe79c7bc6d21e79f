package webserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stake-plus/escrow-market/src/api/market"
)

type Messages struct{ svc *market.Service }

func NewMessages(svc *market.Service) Messages { return Messages{svc: svc} }

func (m Messages) Create(c *gin.Context) {
	var req struct {
		RecipientID uint64  `json:"recipientId" binding:"required"`
		JobID       *uint64 `json:"jobId"`
		Body        string  `json:"body"        binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	msg, err := m.svc.SendMessage(c.Request.Context(), userID(c), market.MessageInput{
		RecipientID: req.RecipientID, JobID: req.JobID, Body: req.Body,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (m Messages) Inbox(c *gin.Context) {
	out, err := m.svc.Inbox(c.Request.Context(), userID(c))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (m Messages) Conversation(c *gin.Context) {
	other, ok := idParam(c, "userId")
	if !ok {
		return
	}
	out, err := m.svc.Conversation(c.Request.Context(), userID(c), other, pageQuery(c))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
