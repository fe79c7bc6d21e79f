package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/stake-plus/escrow-market/src/api/config"
	"github.com/stake-plus/escrow-market/src/logging"
)

var (
	ErrTxReverted      = errors.New("transaction reverted")
	ErrNoSigner        = errors.New("no admin signing key configured")
	ErrContractMissing = errors.New("escrow contract not found on chain")
)

// Reader fetches escrow state.
type Reader interface {
	GetContract(ctx context.Context, id uint64) (OnChainContract, error)
}

// Confirmer waits for a transaction to be buried under enough blocks.
type Confirmer interface {
	WaitForTransaction(ctx context.Context, hash common.Hash, confirmations uint64) (*types.Receipt, error)
}

// Resolver sends the admin dispute resolution.
type Resolver interface {
	CanTransact() bool
	ResolveDispute(ctx context.Context, id uint64, clientWei, freelancerWei *big.Int) (common.Hash, error)
}

type Escrow interface {
	Reader
	Confirmer
	Resolver
}

type Client struct {
	eth          *ethclient.Client
	address      common.Address
	abi          abi.ABI
	contract     *bind.BoundContract
	chainID      *big.Int
	key          *ecdsa.PrivateKey
	pollInterval time.Duration
}

// Dial connects to the RPC endpoint and binds the escrow contract.
func Dial(ctx context.Context, cfg config.ChainConfig) (*Client, error) {
	if !common.IsHexAddress(cfg.EscrowAddress) {
		return nil, fmt.Errorf("invalid escrow address %q", cfg.EscrowAddress)
	}
	parsed, err := parseEscrowABI()
	if err != nil {
		return nil, fmt.Errorf("parse escrow abi: %w", err)
	}
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
	}

	c := &Client{
		eth:          eth,
		address:      common.HexToAddress(cfg.EscrowAddress),
		abi:          parsed,
		chainID:      big.NewInt(cfg.ChainID),
		pollInterval: time.Second,
	}
	c.contract = bind.NewBoundContract(c.address, parsed, eth, eth, eth)

	if k := strings.TrimPrefix(strings.TrimSpace(cfg.AdminPrivateKey), "0x"); k != "" {
		key, err := crypto.HexToECDSA(k)
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("admin key: %w", err)
		}
		c.key = key
	}
	return c, nil
}

func (c *Client) Close() {
	c.eth.Close()
}

func (c *Client) GetContract(ctx context.Context, id uint64) (OnChainContract, error) {
	data, err := c.abi.Pack("getContract", new(big.Int).SetUint64(id))
	if err != nil {
		return OnChainContract{}, err
	}
	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, nil)
	if err != nil {
		return OnChainContract{}, fmt.Errorf("getContract(%d): %w", id, err)
	}
	vals, err := c.abi.Unpack("getContract", raw)
	if err != nil {
		return OnChainContract{}, fmt.Errorf("unpack getContract(%d): %w", id, err)
	}
	out, err := decodeContract(id, vals)
	if err != nil {
		return OnChainContract{}, err
	}
	if !out.Exists() {
		return OnChainContract{}, fmt.Errorf("%w: id %d", ErrContractMissing, id)
	}
	return out, nil
}

func (c *Client) WaitForTransaction(ctx context.Context, hash common.Hash, confirmations uint64) (*types.Receipt, error) {
	return waitMined(ctx, c.eth, hash, confirmations, c.pollInterval)
}

func (c *Client) CanTransact() bool { return c.key != nil }

func (c *Client) ResolveDispute(ctx context.Context, id uint64, clientWei, freelancerWei *big.Int) (common.Hash, error) {
	if c.key == nil {
		return common.Hash{}, ErrNoSigner
	}
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return common.Hash{}, err
	}
	opts.Context = ctx
	tx, err := c.contract.Transact(opts, "resolveDispute", new(big.Int).SetUint64(id), clientWei, freelancerWei)
	if err != nil {
		return common.Hash{}, fmt.Errorf("resolveDispute(%d): %w", id, err)
	}
	return tx.Hash(), nil
}

type receiptSource interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// waitMined polls until hash is mined with the requested number of
// confirmations (the inclusion block counts as the first).
func waitMined(ctx context.Context, src receiptSource, hash common.Hash, confirmations uint64, interval time.Duration) (*types.Receipt, error) {
	if confirmations == 0 {
		confirmations = 1
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := src.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status == types.ReceiptStatusFailed {
				return receipt, fmt.Errorf("%w: %s", ErrTxReverted, hash.Hex())
			}
			head, err := src.BlockNumber(ctx)
			if err == nil && head+1 >= receipt.BlockNumber.Uint64()+confirmations {
				return receipt, nil
			}
		case !errors.Is(err, ethereum.NotFound) && !logging.IsTransient(err):
			return nil, fmt.Errorf("receipt %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
