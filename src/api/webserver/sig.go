package webserver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var errBadSignature = errors.New("signature does not match address")

func loginMessage(addr, nonce string) string {
	return fmt.Sprintf("Sign in to the escrow marketplace\n\nWallet: %s\nNonce: %s", strings.ToLower(addr), nonce)
}

// recoverSigner returns the address that produced a personal_sign
// (EIP-191) signature over msg.
func recoverSigner(msg, sigHex string) (common.Address, error) {
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(sig))
	}
	// wallets return V as 27/28
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(msg)), sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func verifySignature(addr, sigHex, msg string) error {
	if !common.IsHexAddress(addr) {
		return fmt.Errorf("invalid address %q", addr)
	}
	signer, err := recoverSigner(msg, sigHex)
	if err != nil {
		return err
	}
	if signer != common.HexToAddress(addr) {
		return errBadSignature
	}
	return nil
}
