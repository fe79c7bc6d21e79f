package webserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/stake-plus/escrow-market/src/api/market"
	"github.com/stake-plus/escrow-market/src/api/types"
)

type Jobs struct{ svc *market.Service }

func NewJobs(svc *market.Service) Jobs { return Jobs{svc: svc} }

type jobRequest struct {
	Title       string          `json:"title"       binding:"required"`
	Description string          `json:"description" binding:"required"`
	Budget      decimal.Decimal `json:"budget"`
	Duration    string          `json:"duration"    binding:"required"`
	Skills      []string        `json:"skills"`
}

func (j Jobs) Create(c *gin.Context) {
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	job, err := j.svc.CreateJob(c.Request.Context(), userID(c), market.JobInput{
		Title:       req.Title,
		Description: req.Description,
		Budget:      req.Budget,
		Duration:    types.JobDuration(req.Duration),
		Skills:      req.Skills,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (j Jobs) List(c *gin.Context) {
	f := market.JobFilter{
		Status: types.JobStatus(c.Query("status")),
		Skill:  c.Query("skill"),
		Search: c.Query("search"),
		Page:   pageQuery(c),
	}
	for key, dst := range map[string]**decimal.Decimal{"minBudget": &f.MinBudget, "maxBudget": &f.MaxBudget} {
		if v := c.Query(key); v != "" {
			d, err := decimal.NewFromString(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"err": "invalid " + key})
				return
			}
			*dst = &d
		}
	}
	out, err := j.svc.ListJobs(c.Request.Context(), f)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (j Jobs) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	job, err := j.svc.GetJob(c.Request.Context(), id)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (j Jobs) Update(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Title       *string          `json:"title"`
		Description *string          `json:"description"`
		Budget      *decimal.Decimal `json:"budget"`
		Duration    *string          `json:"duration"`
		Skills      []string         `json:"skills"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	patch := market.JobPatch{Title: req.Title, Description: req.Description, Budget: req.Budget, Skills: req.Skills}
	if req.Duration != nil {
		patch.Duration = (*types.JobDuration)(req.Duration)
	}
	job, err := j.svc.UpdateJob(c.Request.Context(), userID(c), id, patch)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (j Jobs) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := j.svc.DeleteJob(c.Request.Context(), userID(c), id); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (j Jobs) Mine(c *gin.Context) {
	out, err := j.svc.ListMyJobs(c.Request.Context(), userID(c), types.JobStatus(c.Query("status")), pageQuery(c))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
