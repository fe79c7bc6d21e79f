package webserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stake-plus/escrow-market/src/api/realtime"
	"github.com/stake-plus/escrow-market/src/logging"
)

type Realtime struct {
	hub       *realtime.Hub
	jwtSecret []byte
}

func NewRealtime(hub *realtime.Hub, secret []byte) Realtime {
	return Realtime{hub: hub, jwtSecret: secret}
}

// Connect upgrades /ws?token=<jwt>; the connection joins the user's room
// straight away.
func (rt Realtime) Connect(c *gin.Context) {
	raw := c.Query("token")
	if raw == "" {
		raw = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	claims, err := parseJWT(raw, rt.jwtSecret)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"err": "invalid token"})
		return
	}
	if err := rt.hub.Serve(c.Writer, c.Request, claims.UID); err != nil {
		// the upgrader has already written the response
		logging.Debug(c.Request.Context(), "websocket upgrade failed", "user_id", claims.UID, "error", err)
	}
}
