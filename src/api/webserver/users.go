package webserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stake-plus/escrow-market/src/api/market"
	"github.com/stake-plus/escrow-market/src/api/storage"
	"github.com/stake-plus/escrow-market/src/api/types"
)

type Users struct {
	svc   *market.Service
	store storage.Store
}

func NewUsers(svc *market.Service, store storage.Store) Users {
	return Users{svc: svc, store: store}
}

// publicUser hides contact details on other people's profiles.
type publicUser struct {
	*types.User
	Email string `json:"email,omitempty"`
}

func (u Users) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	user, err := u.svc.GetUser(c.Request.Context(), id)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, publicUser{User: user})
}

func (u Users) UpdateMe(c *gin.Context) {
	var req struct {
		Name   *string  `json:"name"`
		Email  *string  `json:"email"`
		Bio    *string  `json:"bio"`
		Skills []string `json:"skills"`
		Role   *string  `json:"role" binding:"omitempty,oneof=client freelancer"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	in := market.ProfileUpdate{Name: req.Name, Email: req.Email, Bio: req.Bio, Skills: req.Skills}
	if req.Role != nil {
		in.Role = (*types.Role)(req.Role)
	}
	user, err := u.svc.UpdateProfile(c.Request.Context(), userID(c), in)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (u Users) SetAvatar(c *gin.Context) {
	var req struct {
		CID string `json:"cid" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, err := u.svc.UpdateAvatar(c.Request.Context(), u.store, userID(c), req.CID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
