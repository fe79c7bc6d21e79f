package webserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stake-plus/escrow-market/src/api/market"
)

type Reviews struct{ svc *market.Service }

func NewReviews(svc *market.Service) Reviews { return Reviews{svc: svc} }

func (r Reviews) Create(c *gin.Context) {
	var req struct {
		ContractID uint64 `json:"contractId" binding:"required"`
		Rating     int    `json:"rating"     binding:"required,min=1,max=5"`
		Comment    string `json:"comment"    binding:"max=2000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	review, err := r.svc.CreateReview(c.Request.Context(), userID(c), market.ReviewInput{
		ContractID: req.ContractID, Rating: req.Rating, Comment: req.Comment,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, review)
}

func (r Reviews) ForUser(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	out, err := r.svc.ListReviewsForUser(c.Request.Context(), id, pageQuery(c))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
