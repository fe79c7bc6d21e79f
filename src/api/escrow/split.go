package escrow

import (
	"errors"
	"fmt"
	"math/big"
)

// BasisPoints is the on-chain denominator for a full split.
const BasisPoints = 10000

var ErrInvalidSplit = errors.New("client and freelancer shares must total 100")

// Split divides a disputed escrow between the parties, in whole percent.
type Split struct {
	ClientShare     int `json:"clientShare"`
	FreelancerShare int `json:"freelancerShare"`
}

func (s Split) Validate() error {
	if s.ClientShare < 0 || s.FreelancerShare < 0 || s.ClientShare > 100 || s.FreelancerShare > 100 {
		return fmt.Errorf("%w: shares must be within 0..100", ErrInvalidSplit)
	}
	if s.ClientShare+s.FreelancerShare != 100 {
		return fmt.Errorf("%w: got %d + %d", ErrInvalidSplit, s.ClientShare, s.FreelancerShare)
	}
	return nil
}

// BasisPoints returns the shares scaled to 10000.
func (s Split) BasisPoints() (client, freelancer int64) {
	return int64(s.ClientShare) * 100, int64(s.FreelancerShare) * 100
}

// ValidateBasisPoints checks an on-chain style split.
func ValidateBasisPoints(client, freelancer int64) error {
	if client < 0 || freelancer < 0 || client+freelancer != BasisPoints {
		return fmt.Errorf("%w: got %d + %d basis points", ErrInvalidSplit, client, freelancer)
	}
	return nil
}

// WeiAmounts splits balance by the shares. The client amount is floored and
// the freelancer receives the remainder, so the two always sum to balance.
func (s Split) WeiAmounts(balance *big.Int) (client, freelancer *big.Int, err error) {
	if err := s.Validate(); err != nil {
		return nil, nil, err
	}
	if balance == nil || balance.Sign() < 0 {
		return nil, nil, errors.New("escrow balance must be non-negative")
	}
	clientBps, _ := s.BasisPoints()
	client = new(big.Int).Mul(balance, big.NewInt(clientBps))
	client.Quo(client, big.NewInt(BasisPoints))
	freelancer = new(big.Int).Sub(balance, client)
	return client, freelancer, nil
}

// Outcome returns the terminal mirror status a resolution leads to.
func (s Split) Outcome() Status {
	if s.ClientShare == 100 {
		return StatusRefunded
	}
	return StatusResolved
}
