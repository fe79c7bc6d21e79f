package chain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/jpillora/backoff"

	"github.com/stake-plus/escrow-market/src/api/escrow"
	"github.com/stake-plus/escrow-market/src/logging"
)

// StateUnavailableError is returned once every fetch attempt has failed.
type StateUnavailableError struct {
	ContractID uint64
	Attempts   int
	Err        error
}

func (e *StateUnavailableError) Error() string {
	return fmt.Sprintf("contract %d state unavailable after %d attempts: %v", e.ContractID, e.Attempts, e.Err)
}

func (e *StateUnavailableError) Unwrap() error { return e.Err }

type SyncOptions struct {
	Attempts      int
	BaseDelay     time.Duration
	Factor        float64
	Confirmations uint64
}

// DefaultSyncOptions: 8 attempts, 2s * 1.5^n, 2 confirmations.
func DefaultSyncOptions() SyncOptions {
	return SyncOptions{Attempts: 8, BaseDelay: 2 * time.Second, Factor: 1.5, Confirmations: 2}
}

// Syncer reads escrow state and reconciles it against a mirror status.
type Syncer struct {
	reader    Reader
	confirmer Confirmer
	opts      SyncOptions
}

func NewSyncer(reader Reader, confirmer Confirmer, opts SyncOptions) *Syncer {
	def := DefaultSyncOptions()
	if opts.Attempts < 1 {
		opts.Attempts = def.Attempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = def.BaseDelay
	}
	if opts.Factor < 1 {
		opts.Factor = def.Factor
	}
	if opts.Confirmations == 0 {
		opts.Confirmations = def.Confirmations
	}
	return &Syncer{reader: reader, confirmer: confirmer, opts: opts}
}

func (s *Syncer) newBackoff() *backoff.Backoff {
	maxDelay := time.Duration(float64(s.opts.BaseDelay) * math.Pow(s.opts.Factor, float64(s.opts.Attempts)))
	return &backoff.Backoff{Min: s.opts.BaseDelay, Max: maxDelay, Factor: s.opts.Factor}
}

// FetchState calls getContract until it succeeds, at most opts.Attempts
// times. It retries the call itself and does not wait for a target status.
func (s *Syncer) FetchState(ctx context.Context, id uint64) (OnChainContract, error) {
	b := s.newBackoff()
	var lastErr error
	attempt := 0
	for attempt < s.opts.Attempts {
		attempt++
		st, err := s.reader.GetContract(ctx, id)
		if err == nil {
			return st, nil
		}
		lastErr = err
		logging.Debug(ctx, "escrow state fetch failed", "contract_id", id, "attempt", attempt, "error", err)

		if attempt == s.opts.Attempts {
			break
		}
		t := time.NewTimer(b.Duration())
		select {
		case <-ctx.Done():
			t.Stop()
			return OnChainContract{}, &StateUnavailableError{ContractID: id, Attempts: attempt, Err: ctx.Err()}
		case <-t.C:
		}
	}
	return OnChainContract{}, &StateUnavailableError{ContractID: id, Attempts: attempt, Err: lastErr}
}

// SyncResult is what the mirror should look like after a sync.
type SyncResult struct {
	Status             escrow.Status
	ChainStatus        escrow.Status
	Outcome            escrow.Outcome
	ClientApproved     bool
	FreelancerApproved bool
	Balance            *big.Int
	WorkHash           string
}

// MirrorState is the part of the mirror document Sync needs.
type MirrorState struct {
	ContractID    uint64
	Status        escrow.Status
	HasResolution bool
	// RejectedWork is the delivery the client sent back, if any.
	RejectedWork string
}

// Sync optionally waits for txHash, then fetches and reconciles the state.
func (s *Syncer) Sync(ctx context.Context, mirror MirrorState, txHash string) (SyncResult, error) {
	if txHash != "" && s.confirmer != nil {
		if !IsTxHash(txHash) {
			return SyncResult{}, fmt.Errorf("invalid transaction hash %q", txHash)
		}
		if _, err := s.confirmer.WaitForTransaction(ctx, common.HexToHash(txHash), s.opts.Confirmations); err != nil {
			return SyncResult{}, err
		}
	}

	st, err := s.FetchState(ctx, mirror.ContractID)
	if err != nil {
		return SyncResult{}, err
	}
	chainStatus, err := escrow.DecodeOnChain(st.Status)
	if err != nil {
		return SyncResult{}, fmt.Errorf("contract %d: %w", mirror.ContractID, err)
	}

	status, outcome := escrow.ReconcileWork(mirror.Status, chainStatus, mirror.HasResolution, mirror.RejectedWork, st.WorkHash)
	if outcome == escrow.Diverged {
		logging.Warn(ctx, "mirror diverged from chain", "contract_id", mirror.ContractID,
			"mirror", mirror.Status, "chain", chainStatus)
	}
	return SyncResult{
		Status:             status,
		ChainStatus:        chainStatus,
		Outcome:            outcome,
		ClientApproved:     st.ClientSigned,
		FreelancerApproved: st.FreelancerSigned,
		Balance:            st.Amount,
		WorkHash:           st.WorkHash,
	}, nil
}

// Balance returns the escrowed amount for id.
func (s *Syncer) Balance(ctx context.Context, id uint64) (*big.Int, error) {
	st, err := s.FetchState(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.Amount == nil {
		return nil, errors.New("escrow amount missing")
	}
	return st.Amount, nil
}

// IsTxHash reports whether s is a 0x-prefixed 32-byte hex hash.
func IsTxHash(s string) bool {
	b, err := hexutil.Decode(s)
	return err == nil && len(b) == common.HashLength
}
