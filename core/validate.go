package core

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	coreerrors "ledgersim/core/errors"
	"ledgersim/core/types"
	"ledgersim/crypto"
)

// validateTx rejects malformed input before any ledger access. Failures map
// to StatusInvalidInput and never consume a nonce.
func validateTx(tx *types.TxInput) error {
	if tx == nil {
		return fmt.Errorf("%w: nil transaction", coreerrors.ErrMissingSender)
	}
	if tx.From.IsZero() {
		return coreerrors.ErrMissingSender
	}
	if tx.To.IsZero() {
		return coreerrors.ErrMissingReceiver
	}
	return validatePayment(tx.Value, tx.TokenTransfers, tx.GasLimit, tx.GasPrice)
}

func validateDeploy(in *DeployInput) error {
	if in == nil || in.From.IsZero() {
		return coreerrors.ErrMissingSender
	}
	if in.Code == "" {
		return coreerrors.ErrMissingCode
	}
	return validatePayment(in.Value, nil, in.GasLimit, in.GasPrice)
}

func validatePayment(value *big.Int, transfers []types.TokenPayment, gasLimit uint64, gasPrice *big.Int) error {
	if value != nil && value.Sign() < 0 {
		return coreerrors.ErrNegativeAmount
	}
	for i, p := range transfers {
		if !types.IsValidTokenIdentifier(p.Identifier) {
			return fmt.Errorf("%w: transfer %d has identifier %q", coreerrors.ErrInvalidToken, i, p.Identifier)
		}
		if p.Amount == nil || p.Amount.Sign() <= 0 {
			return fmt.Errorf("%w: transfer %d amount must be positive", coreerrors.ErrInvalidToken, i)
		}
	}
	return validateGas(gasLimit, gasPrice)
}

// validateGas checks that the maximum fee gasLimit*gasPrice fits in 256 bits.
func validateGas(gasLimit uint64, gasPrice *big.Int) error {
	if gasPrice == nil {
		return nil
	}
	if gasPrice.Sign() < 0 {
		return fmt.Errorf("%w: negative gas price", coreerrors.ErrInvalidGas)
	}
	price, overflow := uint256.FromBig(gasPrice)
	if overflow {
		return fmt.Errorf("%w: gas price exceeds 256 bits", coreerrors.ErrInvalidGas)
	}
	if _, overflow := new(uint256.Int).MulOverflow(price, uint256.NewInt(gasLimit)); overflow {
		return fmt.Errorf("%w: gas limit times gas price overflows", coreerrors.ErrInvalidGas)
	}
	return nil
}

// DeployInput describes a contract deployment.
type DeployInput struct {
	From     crypto.Address
	Code     string
	Value    *big.Int
	Args     [][]byte
	GasLimit uint64
	GasPrice *big.Int
	TxHash   common.Hash
}
