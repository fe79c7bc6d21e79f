package webserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stake-plus/escrow-market/src/api/data"
	"github.com/stake-plus/escrow-market/src/api/market"
	"github.com/stake-plus/escrow-market/src/logging"
)

type Auth struct {
	rdb       *redis.Client
	svc       *market.Service
	jwtSecret []byte
	ttl       time.Duration
}

func NewAuth(rdb *redis.Client, svc *market.Service, secret []byte, ttl time.Duration) Auth {
	return Auth{rdb: rdb, svc: svc, jwtSecret: secret, ttl: ttl}
}

func (a Auth) Challenge(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if !common.IsHexAddress(req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid wallet address"})
		return
	}
	nonce := uuid.NewString()
	if err := data.SetNonce(c.Request.Context(), a.rdb, req.Address, nonce); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"nonce": nonce, "message": loginMessage(req.Address, nonce)})
}

func (a Auth) Verify(c *gin.Context) {
	var req struct {
		Address   string `json:"address"   binding:"required"`
		Signature string `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	nonce, err := data.GetAndDelNonce(ctx, a.rdb, req.Address)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"err": "challenge expired"})
		return
	}
	if err := verifySignature(req.Address, req.Signature, loginMessage(req.Address, nonce)); err != nil {
		logging.Debug(ctx, "login signature rejected", "address", req.Address, "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"err": "bad signature"})
		return
	}

	user, err := a.svc.UpsertByWallet(ctx, strings.ToLower(req.Address))
	if err != nil {
		respondErr(c, err)
		return
	}
	token, err := issueJWT(user, a.jwtSecret, a.ttl)
	if err != nil {
		respondErr(c, err)
		return
	}
	logging.Info(ctx, "wallet signed in", "user_id", user.ID, "role", user.Role)
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

func (a Auth) Me(c *gin.Context) {
	user, err := a.svc.GetUser(c.Request.Context(), userID(c))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
