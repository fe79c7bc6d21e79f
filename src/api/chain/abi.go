package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// EscrowABI covers the calls the API makes against the escrow contract.
const EscrowABI = `[
  {"type":"function","name":"getContract","stateMutability":"view",
   "inputs":[{"name":"contractId","type":"uint256"}],
   "outputs":[
     {"name":"client","type":"address"},
     {"name":"freelancer","type":"address"},
     {"name":"amount","type":"uint256"},
     {"name":"status","type":"uint8"},
     {"name":"clientSigned","type":"bool"},
     {"name":"freelancerSigned","type":"bool"},
     {"name":"workHash","type":"string"}
   ]},
  {"type":"function","name":"resolveDispute","stateMutability":"nonpayable",
   "inputs":[
     {"name":"contractId","type":"uint256"},
     {"name":"clientAmount","type":"uint256"},
     {"name":"freelancerAmount","type":"uint256"}
   ],
   "outputs":[]},
  {"type":"event","name":"ContractStatusChanged","anonymous":false,
   "inputs":[
     {"name":"contractId","type":"uint256","indexed":true},
     {"name":"status","type":"uint8","indexed":false}
   ]}
]`

func parseEscrowABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(EscrowABI))
}

// OnChainContract is the escrow record as returned by getContract.
// ClientSigned/FreelancerSigned feed the mirror's ClientApproved/FreelancerApproved.
type OnChainContract struct {
	ID               uint64
	Client           common.Address
	Freelancer       common.Address
	Amount           *big.Int
	Status           uint8
	ClientSigned     bool
	FreelancerSigned bool
	WorkHash         string
}

// Exists reports whether the contract slot has been initialised.
func (c OnChainContract) Exists() bool {
	return c.Client != (common.Address{})
}

func decodeContract(id uint64, vals []interface{}) (OnChainContract, error) {
	if len(vals) != 7 {
		return OnChainContract{}, fmt.Errorf("getContract: expected 7 outputs, got %d", len(vals))
	}
	var (
		out OnChainContract
		ok  bool
	)
	out.ID = id
	if out.Client, ok = vals[0].(common.Address); !ok {
		return OnChainContract{}, fmt.Errorf("getContract: client is %T", vals[0])
	}
	if out.Freelancer, ok = vals[1].(common.Address); !ok {
		return OnChainContract{}, fmt.Errorf("getContract: freelancer is %T", vals[1])
	}
	if out.Amount, ok = vals[2].(*big.Int); !ok {
		return OnChainContract{}, fmt.Errorf("getContract: amount is %T", vals[2])
	}
	if out.Status, ok = vals[3].(uint8); !ok {
		return OnChainContract{}, fmt.Errorf("getContract: status is %T", vals[3])
	}
	if out.ClientSigned, ok = vals[4].(bool); !ok {
		return OnChainContract{}, fmt.Errorf("getContract: clientSigned is %T", vals[4])
	}
	if out.FreelancerSigned, ok = vals[5].(bool); !ok {
		return OnChainContract{}, fmt.Errorf("getContract: freelancerSigned is %T", vals[5])
	}
	if out.WorkHash, ok = vals[6].(string); !ok {
		return OnChainContract{}, fmt.Errorf("getContract: workHash is %T", vals[6])
	}
	return out, nil
}
