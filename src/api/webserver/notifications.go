package webserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stake-plus/escrow-market/src/api/notify"
)

type Notifications struct{ d *notify.Dispatcher }

func NewNotifications(d *notify.Dispatcher) Notifications { return Notifications{d: d} }

func (n Notifications) List(c *gin.Context) {
	p := pageQuery(c)
	items, total, err := n.d.List(c.Request.Context(), userID(c), c.Query("unread") == "true", p.Page, p.Limit)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}

func (n Notifications) UnreadCount(c *gin.Context) {
	count, err := n.d.UnreadCount(c.Request.Context(), userID(c))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (n Notifications) MarkRead(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := n.d.MarkRead(c.Request.Context(), userID(c), id); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (n Notifications) MarkAllRead(c *gin.Context) {
	updated, err := n.d.MarkAllRead(c.Request.Context(), userID(c))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (n Notifications) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := n.d.Delete(c.Request.Context(), userID(c), id); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
