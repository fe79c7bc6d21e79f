package webserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stake-plus/escrow-market/src/api/market"
	"github.com/stake-plus/escrow-market/src/api/types"
	"github.com/stake-plus/escrow-market/src/logging"
)

const adminWalletHeader = "x-admin-wallet"

// AdminMiddleware requires an admin user whose x-admin-wallet header names
// the wallet in the token. The role is read from the database so a demotion
// takes effect before the token expires.
func AdminMiddleware(svc *market.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		addr := c.GetString(ctxAddr)
		if !strings.EqualFold(c.GetHeader(adminWalletHeader), addr) || !svc.AdminAllowed(addr) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"err": "admin access required"})
			return
		}
		u, err := svc.GetUser(c.Request.Context(), userID(c))
		if err != nil || u.Role != types.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"err": "admin access required"})
			return
		}
		c.Set(ctxRole, string(types.RoleAdmin))
		c.Next()
	}
}

type Admin struct {
	svc *market.Service
}

func NewAdmin(svc *market.Service) Admin {
	return Admin{svc: svc}
}

func (a Admin) Disputes(c *gin.Context) {
	out, err := a.svc.ListDisputes(c.Request.Context(), c.Query("all") == "true", pageQuery(c))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (a Admin) ResolveDispute(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		ClientShare     *int   `json:"clientShare"     binding:"required,min=0,max=100"`
		FreelancerShare *int   `json:"freelancerShare" binding:"required,min=0,max=100"`
		Note            string `json:"note"            binding:"max=2000"`
		TxHash          string `json:"txHash"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	ct, err := a.svc.ResolveDispute(ctx, userID(c), id, market.ResolveInput{
		ClientShare:     *req.ClientShare,
		FreelancerShare: *req.FreelancerShare,
		Note:            req.Note,
		TxHash:          req.TxHash,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	logging.Info(ctx, "dispute resolved", "contract", ct.ID, "client_share", *req.ClientShare,
		"freelancer_share", *req.FreelancerShare, "status", ct.Status)
	c.JSON(http.StatusOK, ct)
}

func (a Admin) Users(c *gin.Context) {
	out, err := a.svc.ListUsers(c.Request.Context(), types.Role(c.Query("role")), c.Query("search"), pageQuery(c))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (a Admin) SetRole(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Role string `json:"role" binding:"required,oneof=client freelancer admin"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, err := a.svc.SetRole(c.Request.Context(), userID(c), id, types.Role(req.Role))
	if err != nil {
		respondErr(c, err)
		return
	}
	logging.Info(c.Request.Context(), "role changed", "user_id", id, "role", req.Role)
	c.JSON(http.StatusOK, u)
}

func (a Admin) Stats(c *gin.Context) {
	out, err := a.svc.Stats(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (a Admin) Reports(c *gin.Context) {
	out, err := a.svc.ListReports(c.Request.Context(), types.ReportStatus(c.Query("status")), pageQuery(c))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (a Admin) UpdateReport(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status" binding:"required,oneof=open reviewed dismissed"`
		Note   string `json:"note"   binding:"max=2000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	r, err := a.svc.UpdateReport(c.Request.Context(), id, types.ReportStatus(req.Status), req.Note)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}
