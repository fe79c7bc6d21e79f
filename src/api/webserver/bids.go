package webserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/stake-plus/escrow-market/src/api/market"
	"github.com/stake-plus/escrow-market/src/api/types"
)

type Bids struct{ svc *market.Service }

func NewBids(svc *market.Service) Bids { return Bids{svc: svc} }

type bidRequest struct {
	Proposal      string          `json:"proposal"      binding:"required"`
	BidAmount     decimal.Decimal `json:"bidAmount"`
	EstimatedTime string          `json:"estimatedTime"`
}

func (r bidRequest) input() market.BidInput {
	return market.BidInput{Proposal: r.Proposal, BidAmount: r.BidAmount, EstimatedTime: r.EstimatedTime}
}

func (b Bids) Create(c *gin.Context) {
	var req struct {
		JobID uint64 `json:"jobId" binding:"required"`
		bidRequest
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	bid, err := b.svc.CreateBid(c.Request.Context(), userID(c), req.JobID, req.input())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, bid)
}

func (b Bids) Update(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req bidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	bid, err := b.svc.UpdateBid(c.Request.Context(), userID(c), id, req.input())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, bid)
}

func (b Bids) Withdraw(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := b.svc.WithdrawBid(c.Request.Context(), userID(c), id); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (b Bids) ForJob(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	bids, err := b.svc.ListBidsForJob(c.Request.Context(), userID(c), id)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, bids)
}

func (b Bids) Mine(c *gin.Context) {
	out, err := b.svc.ListMyBids(c.Request.Context(), userID(c), types.BidStatus(c.Query("status")), pageQuery(c))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (b Bids) Accept(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	bid, err := b.svc.AcceptBid(c.Request.Context(), userID(c), id)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, bid)
}

func (b Bids) Reject(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := b.svc.RejectBid(c.Request.Context(), userID(c), id); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
