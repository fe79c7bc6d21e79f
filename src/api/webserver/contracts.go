package webserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stake-plus/escrow-market/src/api/escrow"
	"github.com/stake-plus/escrow-market/src/api/market"
	"github.com/stake-plus/escrow-market/src/api/types"
)

type Contracts struct{ svc *market.Service }

func NewContracts(svc *market.Service) Contracts { return Contracts{svc: svc} }

type txRequest struct {
	TxHash string `json:"txHash"`
}

// bindTx reads an optional {"txHash": ...} body; an empty body is fine.
func bindTx(c *gin.Context) (string, bool) {
	var req txRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return "", false
		}
	}
	return req.TxHash, true
}

func (h Contracts) Create(c *gin.Context) {
	var req struct {
		JobID           uint64 `json:"jobId"           binding:"required"`
		ContractAddress string `json:"contractAddress" binding:"required"`
		ContractID      uint64 `json:"contractId"`
		TxHash          string `json:"txHash"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ct, err := h.svc.CreateContract(c.Request.Context(), userID(c), market.CreateContractInput{
		JobID:           req.JobID,
		ContractAddress: req.ContractAddress,
		ContractID:      req.ContractID,
		TxHash:          req.TxHash,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, ct)
}

func (h Contracts) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	ct, err := h.svc.GetContract(c.Request.Context(), userID(c), isAdmin(c), id)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, ct)
}

func (h Contracts) Mine(c *gin.Context) {
	out, err := h.svc.ListMyContracts(c.Request.Context(), userID(c), escrow.Status(c.Query("status")), pageQuery(c))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Contracts) Payments(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	out, err := h.svc.ListPayments(c.Request.Context(), userID(c), isAdmin(c), id)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// contractAction wraps the handlers that take only an optional tx hash.
func (h Contracts) contractAction(fn func(c *gin.Context, id uint64, txHash string) (*types.Contract, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		txHash, ok := bindTx(c)
		if !ok {
			return
		}
		ct, err := fn(c, id, txHash)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, ct)
	}
}

func (h Contracts) Sign() gin.HandlerFunc {
	return h.contractAction(func(c *gin.Context, id uint64, txHash string) (*types.Contract, error) {
		return h.svc.SignContract(c.Request.Context(), userID(c), id, txHash)
	})
}

func (h Contracts) Cancel() gin.HandlerFunc {
	return h.contractAction(func(c *gin.Context, id uint64, txHash string) (*types.Contract, error) {
		return h.svc.CancelContract(c.Request.Context(), userID(c), id, txHash)
	})
}

func (h Contracts) Approve() gin.HandlerFunc {
	return h.contractAction(func(c *gin.Context, id uint64, txHash string) (*types.Contract, error) {
		return h.svc.ApproveWork(c.Request.Context(), userID(c), id, txHash)
	})
}

func (h Contracts) Dispute(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason" binding:"required"`
		TxHash string `json:"txHash"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ct, err := h.svc.RaiseDispute(c.Request.Context(), userID(c), id, req.Reason, req.TxHash)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, ct)
}

func (h Contracts) Sync(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	txHash, ok := bindTx(c)
	if !ok {
		return
	}
	ct, outcome, err := h.svc.ForceSync(c.Request.Context(), userID(c), isAdmin(c), id, txHash)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contract": ct, "outcome": outcome.String()})
}

func (h Contracts) SubmitWork(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		WorkHash string `json:"workHash" binding:"required"`
		Notes    string `json:"notes"`
		TxHash   string `json:"txHash"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ct, err := h.svc.SubmitWork(c.Request.Context(), userID(c), id, market.WorkInput{
		WorkHash: req.WorkHash, Notes: req.Notes, TxHash: req.TxHash,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, ct)
}

func (h Contracts) RejectWork(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
		TxHash string `json:"txHash"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	ct, err := h.svc.RejectWork(c.Request.Context(), userID(c), id, req.Reason, req.TxHash)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, ct)
}
