package webserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/stake-plus/escrow-market/src/api/market"
	"github.com/stake-plus/escrow-market/src/api/types"
)

const (
	ctxAddr = "addr"
	ctxUID  = "uid"
	ctxRole = "role"
)

func userID(c *gin.Context) uint64 { return c.GetUint64(ctxUID) }

func isAdmin(c *gin.Context) bool { return c.GetString(ctxRole) == string(types.RoleAdmin) }

// idParam parses a positive numeric path parameter, writing a 400 on failure.
func idParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"err": "invalid " + name})
		return 0, false
	}
	return id, true
}

func pageQuery(c *gin.Context) market.Page {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return market.Page{Page: page, Limit: limit}
}
