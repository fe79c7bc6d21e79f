// Package escrow models the lifecycle of an escrow contract and how the
// mirrored status is reconciled with the state reported by the chain.
package escrow

import (
	"fmt"
	"slices"
)

// Status is the mirrored lifecycle state of a contract.
type Status string

const (
	StatusCreated       Status = "created"
	StatusFunded        Status = "funded" // client signed and deposited
	StatusBothSigned    Status = "both_signed"
	StatusWorkSubmitted Status = "work_submitted"
	StatusCompleted     Status = "completed"
	StatusDisputed      Status = "disputed"
	StatusResolved      Status = "resolved" // mirror only: admin split applied
	StatusRefunded      Status = "refunded"
)

var transitions = map[Status][]Status{
	StatusCreated:       {StatusFunded},
	StatusFunded:        {StatusBothSigned, StatusRefunded},
	StatusBothSigned:    {StatusWorkSubmitted, StatusDisputed},
	StatusWorkSubmitted: {StatusCompleted, StatusBothSigned, StatusDisputed},
	StatusDisputed:      {StatusResolved, StatusRefunded},
}

// rank orders statuses along the lifecycle; used to tell lag from divergence.
var rank = map[Status]int{
	StatusCreated:       0,
	StatusFunded:        1,
	StatusBothSigned:    2,
	StatusWorkSubmitted: 3,
	StatusCompleted:     4,
	StatusDisputed:      4,
	StatusResolved:      5,
	StatusRefunded:      5,
}

func (s Status) Valid() bool {
	_, ok := rank[s]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusResolved || s == StatusRefunded
}

// Next lists the statuses reachable from s in one step.
func (s Status) Next() []Status {
	return slices.Clone(transitions[s])
}

func (s Status) CanTransition(to Status) bool {
	return slices.Contains(transitions[s], to)
}

// TransitionError reports a move the lifecycle does not allow.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("contract cannot move from %s to %s", e.From, e.To)
}

// Transition validates a single step from -> to.
func Transition(from, to Status) error {
	if !from.Valid() || !to.Valid() || !from.CanTransition(to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// ahead reports whether to lies ahead of from on a forward path. Rejection
// (work_submitted -> both_signed) moves backwards and is never inferred from
// chain reads; handlers apply it explicitly and ReconcileWork keeps it.
func ahead(from, to Status) bool {
	if from == to {
		return true
	}
	for _, n := range transitions[from] {
		if rank[n] > rank[from] && ahead(n, to) {
			return true
		}
	}
	return false
}

// OnChainStatuses is the escrow contract's status enum in declaration order.
// Index 6 is Refunded; there is no on-chain Resolved.
var OnChainStatuses = []Status{
	StatusCreated,
	StatusFunded,
	StatusBothSigned,
	StatusWorkSubmitted,
	StatusCompleted,
	StatusDisputed,
	StatusRefunded,
}

// DecodeOnChain maps the contract's uint8 status to a mirror status.
func DecodeOnChain(raw uint8) (Status, error) {
	if int(raw) >= len(OnChainStatuses) {
		return "", fmt.Errorf("unknown on-chain status %d", raw)
	}
	return OnChainStatuses[raw], nil
}

// EncodeOnChain is the inverse of DecodeOnChain. Resolved has no on-chain
// index of its own and encodes as Completed.
func EncodeOnChain(s Status) (uint8, error) {
	if s == StatusResolved {
		s = StatusCompleted
	}
	i := slices.Index(OnChainStatuses, s)
	if i < 0 {
		return 0, fmt.Errorf("status %q has no on-chain value", s)
	}
	return uint8(i), nil
}

type Outcome int

const (
	InSync   Outcome = iota
	Advanced         // chain moved ahead; mirror follows
	Lagging          // chain has not caught up with the mirror yet
	Diverged         // unrelated states; chain wins
)

func (o Outcome) String() string {
	switch o {
	case InSync:
		return "in_sync"
	case Advanced:
		return "advanced"
	case Lagging:
		return "lagging"
	case Diverged:
		return "diverged"
	}
	return "unknown"
}

// Reconcile decides the mirror status given the decoded chain status.
// hasResolution tells whether an admin split was recorded for the contract.
func Reconcile(mirror, chain Status, hasResolution bool) (Status, Outcome) {
	if hasResolution && chain == StatusCompleted &&
		(mirror == StatusDisputed || mirror == StatusResolved) {
		chain = StatusResolved
	}

	switch {
	case mirror == chain:
		return mirror, InSync
	case ahead(mirror, chain):
		return chain, Advanced
	case ahead(chain, mirror):
		return mirror, Lagging
	default:
		return chain, Diverged
	}
}

// ReconcileWork is Reconcile for a mirror that may hold a rejected delivery.
// Rejection only exists in the mirror, so the escrow keeps reporting
// work_submitted with the rejected hash until the freelancer delivers again.
// While that is the case the mirror stays both_signed. An empty hash on chain
// cannot prove a new delivery either.
func ReconcileWork(mirror, chain Status, hasResolution bool, rejectedWork, chainWork string) (Status, Outcome) {
	if mirror == StatusBothSigned && chain == StatusWorkSubmitted && rejectedWork != "" &&
		(chainWork == "" || chainWork == rejectedWork) {
		return mirror, InSync
	}
	return Reconcile(mirror, chain, hasResolution)
}
