package market

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/stake-plus/escrow-market/src/api/chain"
	"github.com/stake-plus/escrow-market/src/api/escrow"
	"github.com/stake-plus/escrow-market/src/api/realtime"
	"github.com/stake-plus/escrow-market/src/api/types"
	"github.com/stake-plus/escrow-market/src/logging"
)

type CreateContractInput struct {
	JobID           uint64
	ContractAddress string
	ContractID      uint64
	TxHash          string
}

// CreateContract records the escrow the client deployed for a hired job.
func (s *Service) CreateContract(ctx context.Context, clientID uint64, in CreateContractInput) (*types.Contract, error) {
	if !common.IsHexAddress(in.ContractAddress) {
		return nil, invalid("invalid contract address")
	}
	if in.TxHash != "" && !chain.IsTxHash(in.TxHash) {
		return nil, invalid("invalid transaction hash")
	}
	if in.ContractID == 0 && s.syncer != nil {
		return nil, invalid("contract id is required when a chain is configured")
	}

	c := &types.Contract{
		JobID:           in.JobID,
		ClientID:        clientID,
		ContractAddress: common.HexToAddress(in.ContractAddress).Hex(),
		Status:          escrow.StatusCreated,
		LastTxHash:      in.TxHash,
		NeedsSync:       s.syncer != nil,
	}
	if in.ContractID != 0 {
		id := in.ContractID
		c.ContractID = &id
	}
	var job *types.Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if job, err = s.ownedJob(ctx, tx, clientID, in.JobID); err != nil {
			return err
		}
		if job.Status != types.JobInProgress || job.HiredFreelancerID == nil {
			return conflict("job has no hired freelancer")
		}
		var bid types.Bid
		if err := tx.Where("job_id = ? AND status = ?", job.ID, types.BidAccepted).First(&bid).Error; err != nil {
			return lookupErr(err, "accepted bid")
		}
		c.BidID = bid.ID
		c.FreelancerID = bid.FreelancerID
		c.Amount = bid.BidAmount
		if err := tx.Create(c).Error; err != nil {
			if isDuplicate(err) {
				return conflict("a contract already exists for this job or escrow id")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.syncer != nil && in.TxHash != "" {
		if _, err := s.syncContract(ctx, c, in.TxHash); err != nil {
			logging.Warn(ctx, "initial contract sync failed", "contract_id", c.EscrowID(), "error", err)
			if errors.Is(err, chain.ErrTxReverted) {
				// the escrow was never deployed
				if derr := s.db.WithContext(ctx).Delete(&types.Contract{}, c.ID).Error; derr != nil {
					logging.Error(ctx, "removing contract for reverted deployment", "id", c.ID, "error", derr)
				}
				return nil, err
			}
		}
	}

	s.tell(ctx, c.FreelancerID, &clientID, types.NotifyContractCreated,
		"A contract was created for \""+job.Title+"\"", contractLink(c.ID))
	return c, nil
}

// GetContract is visible to both parties and admins.
func (s *Service) GetContract(ctx context.Context, userID uint64, isAdmin bool, id uint64) (*types.Contract, error) {
	c, err := s.contract(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAdmin && !isParty(c, userID) {
		return nil, forbidden("not a party to this contract")
	}
	return c, nil
}

func (s *Service) ListMyContracts(ctx context.Context, userID uint64, status escrow.Status, p Page) (List[types.Contract], error) {
	q := s.db.WithContext(ctx).Model(&types.Contract{}).Where("client_id = ? OR freelancer_id = ?", userID, userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return paginate[types.Contract](q, p, "updated_at DESC, id DESC")
}

func (s *Service) ListPayments(ctx context.Context, userID uint64, isAdmin bool, contractID uint64) ([]types.Payment, error) {
	if _, err := s.GetContract(ctx, userID, isAdmin, contractID); err != nil {
		return nil, err
	}
	out := make([]types.Payment, 0)
	err := s.db.WithContext(ctx).Where("contract_id = ?", contractID).Order("id ASC").Find(&out).Error
	return out, err
}

// SignContract records a party's signature: the client's deposit funds the
// escrow, the freelancer's signature makes it both_signed.
func (s *Service) SignContract(ctx context.Context, userID, id uint64, txHash string) (*types.Contract, error) {
	c, err := s.contract(ctx, id)
	if err != nil {
		return nil, err
	}
	switch userID {
	case c.ClientID:
		deposit := types.Payment{
			ContractID: c.ID, PayerID: c.ClientID, Kind: types.PaymentDeposit,
			AmountWei: toWei(c.Amount).String(), TxHash: txHash,
		}
		err = s.advance(ctx, c, escrow.StatusFunded, txHash, map[string]any{"client_approved": true}, func(tx *gorm.DB) error {
			return tx.Create(&deposit).Error
		})
		if err != nil {
			return nil, err
		}
		s.tell(ctx, c.FreelancerID, &userID, types.NotifyContractSigned,
			"The client signed and funded the contract", contractLink(c.ID))
	case c.FreelancerID:
		if err := s.advance(ctx, c, escrow.StatusBothSigned, txHash, map[string]any{"freelancer_approved": true}, nil); err != nil {
			return nil, err
		}
		s.tell(ctx, c.ClientID, &userID, types.NotifyContractSigned,
			"The freelancer signed the contract", contractLink(c.ID))
	default:
		return nil, forbidden("not a party to this contract")
	}
	return c, nil
}

// CancelContract refunds a funded escrow the freelancer has not signed.
func (s *Service) CancelContract(ctx context.Context, clientID, id uint64, txHash string) (*types.Contract, error) {
	c, err := s.contract(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.ClientID != clientID {
		return nil, forbidden("only the client can cancel")
	}
	refund := types.Payment{
		ContractID: c.ID, PayeeID: c.ClientID, Kind: types.PaymentRefund,
		AmountWei: toWei(c.Amount).String(), TxHash: txHash,
	}
	err = s.advance(ctx, c, escrow.StatusRefunded, txHash, map[string]any{}, func(tx *gorm.DB) error {
		if err := tx.Create(&refund).Error; err != nil {
			return err
		}
		return tx.Model(&types.Job{}).Where("id = ?", c.JobID).Update("status", types.JobCancelled).Error
	})
	if err != nil {
		return nil, err
	}
	s.tell(ctx, c.FreelancerID, &clientID, types.NotifySystem,
		"The client cancelled the contract and was refunded", contractLink(c.ID))
	return c, nil
}

type WorkInput struct {
	WorkHash string
	Notes    string
	TxHash   string
}

func (s *Service) SubmitWork(ctx context.Context, freelancerID, id uint64, in WorkInput) (*types.Contract, error) {
	c, err := s.contract(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.FreelancerID != freelancerID {
		return nil, forbidden("only the freelancer can submit work")
	}
	in.WorkHash = strings.TrimSpace(in.WorkHash)
	if in.WorkHash == "" || len(in.WorkHash) > 128 || strings.ContainsAny(in.WorkHash, " <>\"'") {
		return nil, invalid("work hash is required")
	}
	notes := s.cleanRich(in.Notes)
	if len(notes) > 5000 {
		return nil, invalid("notes must be at most 5000 characters")
	}

	err = s.advance(ctx, c, escrow.StatusWorkSubmitted, in.TxHash, map[string]any{
		"work_hash":          in.WorkHash,
		"work_notes":         notes,
		"rejected_work_hash": "",
	}, nil)
	if err != nil {
		return nil, err
	}
	s.tell(ctx, c.ClientID, &freelancerID, types.NotifyWorkSubmitted,
		"Work was submitted for review", contractLink(c.ID))
	s.event(ctx, c.ClientID, realtime.EventWorkSubmitted, c)
	return c, nil
}

// ApproveWork releases the escrow to the freelancer and completes the job.
func (s *Service) ApproveWork(ctx context.Context, clientID, id uint64, txHash string) (*types.Contract, error) {
	c, err := s.contract(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.ClientID != clientID {
		return nil, forbidden("only the client can approve work")
	}
	release := types.Payment{
		ContractID: c.ID, PayerID: c.ClientID, PayeeID: c.FreelancerID, Kind: types.PaymentRelease,
		AmountWei: toWei(c.Amount).String(), TxHash: txHash,
	}
	err = s.advance(ctx, c, escrow.StatusCompleted, txHash, map[string]any{}, func(tx *gorm.DB) error {
		if err := tx.Create(&release).Error; err != nil {
			return err
		}
		return tx.Model(&types.Job{}).Where("id = ? AND status = ?", c.JobID, types.JobInProgress).
			Update("status", types.JobCompleted).Error
	})
	if err != nil {
		return nil, err
	}
	s.tell(ctx, c.FreelancerID, &clientID, types.NotifyWorkApproved,
		"Your work was approved and the payment released", contractLink(c.ID))
	s.event(ctx, c.FreelancerID, realtime.EventWorkApproved, c)
	return c, nil
}

// RejectWork sends the contract back to the freelancer for another round.
func (s *Service) RejectWork(ctx context.Context, clientID, id uint64, reason, txHash string) (*types.Contract, error) {
	c, err := s.contract(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.ClientID != clientID {
		return nil, forbidden("only the client can reject work")
	}
	reason = s.cleanText(reason)
	if len(reason) > 2000 {
		return nil, invalid("reason must be at most 2000 characters")
	}
	// the escrow keeps the rejected hash until the next delivery; remember it
	// so the reconciler does not read it as a fresh submission
	if err := s.advance(ctx, c, escrow.StatusBothSigned, txHash, map[string]any{
		"work_hash":          "",
		"rejected_work_hash": c.WorkHash,
	}, nil); err != nil {
		return nil, err
	}
	msg := "Your submitted work was rejected"
	if reason != "" {
		msg += ": " + reason
	}
	s.tell(ctx, c.FreelancerID, &clientID, types.NotifyWorkRejected, msg, contractLink(c.ID))
	return c, nil
}

func (s *Service) RaiseDispute(ctx context.Context, userID, id uint64, reason, txHash string) (*types.Contract, error) {
	c, err := s.contract(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isParty(c, userID) {
		return nil, forbidden("not a party to this contract")
	}
	reason = s.cleanRich(reason)
	if n := len(reason); n < 10 || n > 5000 {
		return nil, invalid("reason must be between 10 and 5000 characters")
	}
	details := types.DisputeDetails{RaisedBy: userID, Reason: reason, RaisedAt: time.Now().UTC(), TxHash: txHash}
	if err := s.advance(ctx, c, escrow.StatusDisputed, txHash, map[string]any{
		"dispute_details": datatypes.NewJSONType(details),
	}, nil); err != nil {
		return nil, err
	}

	s.tell(ctx, counterparty(c, userID), &userID, types.NotifyDisputeRaised,
		"A dispute was raised on your contract", contractLink(c.ID))
	if s.notify != nil {
		s.notify.AlertAdmins(ctx, types.NotifyDisputeRaised,
			fmt.Sprintf("Dispute raised on contract #%d", c.ID), reason, contractLink(c.ID))
	}
	return c, nil
}

type ResolveInput struct {
	ClientShare     int
	FreelancerShare int
	Note            string
	// TxHash is set when the resolution was already sent on chain.
	TxHash string
}

// ResolveDispute splits the escrow between the parties. The shares must add
// up to 100; a full refund to the client ends the contract as refunded.
func (s *Service) ResolveDispute(ctx context.Context, adminID, id uint64, in ResolveInput) (*types.Contract, error) {
	split := escrow.Split{ClientShare: in.ClientShare, FreelancerShare: in.FreelancerShare}
	if err := split.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if in.TxHash != "" && !chain.IsTxHash(in.TxHash) {
		return nil, invalid("invalid transaction hash")
	}
	c, err := s.contract(ctx, id)
	if err != nil {
		return nil, err
	}
	target := split.Outcome()
	if err := escrow.Transition(c.Status, target); err != nil {
		return nil, err
	}

	balance := toWei(c.Amount)
	if s.syncer != nil {
		if balance, err = s.syncer.Balance(ctx, c.EscrowID()); err != nil {
			return nil, err
		}
	}
	clientWei, freelancerWei, err := split.WeiAmounts(balance)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	txHash := in.TxHash
	sent := false
	if txHash == "" && s.syncer != nil {
		if s.resolver == nil || !s.resolver.CanTransact() {
			return nil, fmt.Errorf("%w: no signing key configured, submit the resolution on chain and pass its transaction hash", ErrChainUnavailable)
		}
		hash, err := s.resolver.ResolveDispute(ctx, c.EscrowID(), clientWei, freelancerWei)
		if err != nil {
			return nil, err
		}
		txHash = hash.Hex()
		sent = true
		logging.Info(ctx, "dispute resolution sent", "contract_id", c.EscrowID(), "tx", txHash)
	}

	resolution := types.DisputeResolution{
		ClientShare:     uint8(in.ClientShare),
		FreelancerShare: uint8(in.FreelancerShare),
		ClientWei:       clientWei.String(),
		FreelancerWei:   freelancerWei.String(),
		ResolvedBy:      adminID,
		Note:            s.cleanText(in.Note),
		TxHash:          txHash,
		ResolvedAt:      time.Now().UTC(),
	}
	jobStatus := types.JobCompleted
	if target == escrow.StatusRefunded {
		jobStatus = types.JobCancelled
	}
	apply := func(ctx context.Context, txHash string) error {
		return s.advance(ctx, c, target, txHash, map[string]any{
			"dispute_resolution": datatypes.NewJSONType(resolution),
		}, func(tx *gorm.DB) error {
			for _, p := range splitPayments(c, clientWei, freelancerWei, resolution.TxHash) {
				if err := tx.Create(&p).Error; err != nil {
					return err
				}
			}
			return tx.Model(&types.Job{}).Where("id = ?", c.JobID).Update("status", jobStatus).Error
		})
	}

	if !sent {
		if err := apply(ctx, txHash); err != nil {
			return nil, err
		}
	} else if err := s.applySentResolution(ctx, c, resolution, apply); err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("The dispute was resolved: %d%% to the client, %d%% to the freelancer", in.ClientShare, in.FreelancerShare)
	s.tell(ctx, c.ClientID, &adminID, types.NotifyDisputeResolved, msg, contractLink(c.ID))
	s.tell(ctx, c.FreelancerID, &adminID, types.NotifyDisputeResolved, msg, contractLink(c.ID))
	return c, nil
}

// applySentResolution records a resolution this service already broadcast.
// The resolution is stored before confirming so a failed confirmation
// cannot lose it: the split is then applied locally and left for the
// reconciler to verify.
func (s *Service) applySentResolution(ctx context.Context, c *types.Contract, resolution types.DisputeResolution,
	apply func(ctx context.Context, txHash string) error) error {
	prev := map[string]any{
		"dispute_resolution": c.DisputeResolution,
		"last_tx_hash":       c.LastTxHash,
		"needs_sync":         c.NeedsSync,
	}
	res := s.db.WithContext(ctx).Model(&types.Contract{}).Where("id = ? AND status = ?", c.ID, c.Status).Updates(map[string]any{
		"dispute_resolution": datatypes.NewJSONType(resolution),
		"last_tx_hash":       resolution.TxHash,
		"needs_sync":         true,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return conflict(fmt.Sprintf("contract is no longer %s", c.Status))
	}
	c.DisputeResolution = datatypes.NewJSONType(resolution)

	err := apply(ctx, resolution.TxHash)
	var te *escrow.TransitionError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, chain.ErrTxReverted):
		if rerr := s.db.WithContext(context.WithoutCancel(ctx)).Model(&types.Contract{}).
			Where("id = ? AND status = ?", c.ID, c.Status).Updates(prev).Error; rerr != nil {
			logging.Error(ctx, "restoring contract after reverted resolution", "id", c.ID, "error", rerr)
		}
		return err
	case errors.Is(err, ErrConflict), errors.As(err, &te):
		return err
	}

	logging.Warn(ctx, "resolution sent but not confirmed, applying locally", "contract_id", c.EscrowID(),
		"tx", resolution.TxHash, "error", err)
	return apply(context.WithoutCancel(ctx), "")
}

func splitPayments(c *types.Contract, clientWei, freelancerWei *big.Int, txHash string) []types.Payment {
	var out []types.Payment
	if clientWei.Sign() > 0 {
		kind := types.PaymentSplit
		if freelancerWei.Sign() == 0 {
			kind = types.PaymentRefund
		}
		out = append(out, types.Payment{ContractID: c.ID, PayeeID: c.ClientID, Kind: kind, AmountWei: clientWei.String(), TxHash: txHash})
	}
	if freelancerWei.Sign() > 0 {
		out = append(out, types.Payment{ContractID: c.ID, PayeeID: c.FreelancerID, Kind: types.PaymentSplit, AmountWei: freelancerWei.String(), TxHash: txHash})
	}
	return out
}

// ForceSync reconciles one contract with the chain on demand.
func (s *Service) ForceSync(ctx context.Context, userID uint64, isAdmin bool, id uint64, txHash string) (*types.Contract, escrow.Outcome, error) {
	if s.syncer == nil {
		return nil, escrow.InSync, fmt.Errorf("%w: no chain configured", ErrChainUnavailable)
	}
	if txHash != "" && !chain.IsTxHash(txHash) {
		return nil, escrow.InSync, invalid("invalid transaction hash")
	}
	c, err := s.GetContract(ctx, userID, isAdmin, id)
	if err != nil {
		return nil, escrow.InSync, err
	}
	outcome, err := s.syncContract(ctx, c, txHash)
	if err != nil {
		return nil, escrow.InSync, err
	}
	return c, outcome, nil
}

// advance moves c to target with a guarded update so two concurrent requests
// cannot both apply a transition. With a transaction hash and a chain
// connection the transaction is confirmed first and the chain's view of the
// contract wins: when the chain reports an unrelated state only that state
// is stored and the caller gets a conflict. extra runs inside the same
// database transaction.
func (s *Service) advance(ctx context.Context, c *types.Contract, target escrow.Status, txHash string,
	updates map[string]any, extra func(tx *gorm.DB) error) error {
	if err := escrow.Transition(c.Status, target); err != nil {
		return err
	}
	if txHash != "" && !chain.IsTxHash(txHash) {
		return invalid("invalid transaction hash")
	}
	if updates == nil {
		updates = map[string]any{}
	}

	final := target
	needsSync := s.syncer != nil
	chainState := map[string]any{}
	if s.syncer != nil && txHash != "" {
		mirror := chain.MirrorState{
			ContractID:    c.EscrowID(),
			Status:        target,
			HasResolution: target == escrow.StatusResolved || hasResolution(c),
			RejectedWork:  c.RejectedWorkHash,
		}
		if c.Status == escrow.StatusWorkSubmitted && target == escrow.StatusBothSigned {
			mirror.RejectedWork = c.WorkHash
		}
		res, err := s.syncer.Sync(ctx, mirror, txHash)
		var unavailable *chain.StateUnavailableError
		switch {
		case err == nil:
			final = res.Status
			needsSync = res.Outcome == escrow.Lagging
			chainState["client_approved"] = res.ClientApproved
			chainState["freelancer_approved"] = res.FreelancerApproved
			chainState["chain_synced_at"] = time.Now().UTC()
			if res.Outcome == escrow.Diverged {
				return s.applyChainState(ctx, c, final, txHash, chainState)
			}
		case errors.As(err, &unavailable):
			logging.Warn(ctx, "chain state unavailable, applying locally", "contract_id", c.EscrowID(), "error", err)
		default:
			return err
		}
	}

	for k, v := range chainState {
		updates[k] = v
	}
	updates["status"] = final
	updates["needs_sync"] = needsSync
	if txHash != "" {
		updates["last_tx_hash"] = txHash
	}

	from := c.Status
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&types.Contract{}).Where("id = ? AND status = ?", c.ID, from).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflict(fmt.Sprintf("contract is no longer %s", from))
		}
		if extra != nil {
			return extra(tx)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).First(c, c.ID).Error
}

// applyChainState stores the status the chain reported after a confirmed
// transaction landed somewhere other than the requested transition. None of
// the requested side effects are applied.
func (s *Service) applyChainState(ctx context.Context, c *types.Contract, chainStatus escrow.Status,
	txHash string, updates map[string]any) error {
	updates["status"] = chainStatus
	updates["needs_sync"] = false
	updates["last_tx_hash"] = txHash
	res := s.db.WithContext(ctx).Model(&types.Contract{}).Where("id = ? AND status = ?", c.ID, c.Status).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return conflict(fmt.Sprintf("contract is no longer %s", c.Status))
	}
	logging.Warn(ctx, "transaction confirmed but chain reports another status", "contract_id", c.EscrowID(),
		"from", c.Status, "chain", chainStatus, "tx", txHash)
	if err := s.db.WithContext(ctx).First(c, c.ID).Error; err != nil {
		return err
	}
	return conflict(fmt.Sprintf("chain reports the contract as %s", chainStatus))
}

// syncContract reads the escrow and applies the reconciled state to the
// mirror. Lagging results leave NeedsSync set for the reconciler.
func (s *Service) syncContract(ctx context.Context, c *types.Contract, txHash string) (escrow.Outcome, error) {
	if c.ContractID == nil {
		return escrow.InSync, conflict("contract has no escrow id")
	}
	res, err := s.syncer.Sync(ctx, chain.MirrorState{
		ContractID:    c.EscrowID(),
		Status:        c.Status,
		HasResolution: hasResolution(c),
		RejectedWork:  c.RejectedWorkHash,
	}, txHash)
	if err != nil {
		var unavailable *chain.StateUnavailableError
		if errors.As(err, &unavailable) {
			if ferr := s.db.WithContext(ctx).Model(&types.Contract{}).Where("id = ?", c.ID).Update("needs_sync", true).Error; ferr != nil {
				logging.Error(ctx, "flagging contract for sync", "id", c.ID, "error", ferr)
			}
		}
		return escrow.InSync, err
	}

	updates := map[string]any{
		"status":              res.Status,
		"client_approved":     res.ClientApproved,
		"freelancer_approved": res.FreelancerApproved,
		"needs_sync":          res.Outcome == escrow.Lagging,
		"chain_synced_at":     time.Now().UTC(),
	}
	if res.Status != escrow.StatusBothSigned && res.WorkHash != "" && res.WorkHash != c.WorkHash {
		updates["work_hash"] = res.WorkHash
	}
	if res.Status == escrow.StatusWorkSubmitted && c.Status != escrow.StatusWorkSubmitted {
		updates["rejected_work_hash"] = ""
	}
	if txHash != "" {
		updates["last_tx_hash"] = txHash
	}
	upd := s.db.WithContext(ctx).Model(&types.Contract{}).Where("id = ? AND status = ?", c.ID, c.Status).Updates(updates)
	if upd.Error != nil {
		return escrow.InSync, upd.Error
	}
	if upd.RowsAffected == 0 {
		return escrow.InSync, conflict("contract changed during sync")
	}
	if res.Outcome == escrow.Advanced || res.Outcome == escrow.Diverged {
		logging.Info(ctx, "contract status updated from chain", "contract_id", c.EscrowID(),
			"from", c.Status, "to", res.Status, "outcome", res.Outcome.String())
	}
	return res.Outcome, s.db.WithContext(ctx).First(c, c.ID).Error
}

func (s *Service) contract(ctx context.Context, id uint64) (*types.Contract, error) {
	var c types.Contract
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, lookupErr(err, "contract")
	}
	return &c, nil
}

func isParty(c *types.Contract, userID uint64) bool {
	return userID != 0 && (c.ClientID == userID || c.FreelancerID == userID)
}

func counterparty(c *types.Contract, userID uint64) uint64 {
	if c.ClientID == userID {
		return c.FreelancerID
	}
	return c.ClientID
}

func hasResolution(c *types.Contract) bool {
	return !c.DisputeResolution.Data().ResolvedAt.IsZero()
}

// toWei converts an ether amount to wei, dropping anything below 1 wei.
func toWei(eth decimal.Decimal) *big.Int {
	return eth.Shift(18).Truncate(0).BigInt()
}
