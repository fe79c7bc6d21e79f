package webserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/stake-plus/escrow-market/src/api/types"
	"github.com/stake-plus/escrow-market/src/logging"
)

// Claims carry the wallet, the user id and the role at login time.
type Claims struct {
	Addr string `json:"addr"`
	UID  uint64 `json:"uid"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func issueJWT(u *types.User, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Addr: u.WalletAddress,
		UID:  u.ID,
		Role: string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(secret)
}

func parseJWT(raw string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !tok.Valid || claims.UID == 0 || claims.Addr == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func JWTMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"err": "missing bearer token"})
			return
		}
		claims, err := parseJWT(h[7:], secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"err": "invalid token"})
			return
		}
		c.Set(ctxAddr, claims.Addr)
		c.Set(ctxUID, claims.UID)
		c.Set(ctxRole, claims.Role)
		ctx := context.WithValue(c.Request.Context(), logging.WalletKey, claims.Addr)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
