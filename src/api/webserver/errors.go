package webserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stake-plus/escrow-market/src/api/chain"
	"github.com/stake-plus/escrow-market/src/api/escrow"
	"github.com/stake-plus/escrow-market/src/api/market"
	"github.com/stake-plus/escrow-market/src/api/notify"
	"github.com/stake-plus/escrow-market/src/api/storage"
	"github.com/stake-plus/escrow-market/src/logging"
)

// respondErr maps service errors to a status and the {"err": ...} body.
// Unexpected errors are logged and reported without detail.
func respondErr(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logging.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		msg = "internal error"
	} else if status >= 500 {
		logging.Warn(c.Request.Context(), "chain call failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"err": msg})
}

func statusFor(err error) int {
	var transition *escrow.TransitionError
	var unavailable *chain.StateUnavailableError
	switch {
	case errors.Is(err, market.ErrValidation), errors.Is(err, storage.ErrInvalidCID):
		return http.StatusBadRequest
	case errors.Is(err, market.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, market.ErrNotFound), errors.Is(err, notify.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, market.ErrConflict), errors.As(err, &transition):
		return http.StatusConflict
	case errors.Is(err, storage.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, chain.ErrTxReverted):
		return http.StatusBadGateway
	case errors.As(err, &unavailable), errors.Is(err, market.ErrChainUnavailable),
		errors.Is(err, chain.ErrNoSigner), errors.Is(err, chain.ErrContractMissing):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"err": err.Error()})
}
