package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ledgersim/core/types"
	"ledgersim/crypto"
)

const (
	// TypeTransfer is emitted for native balance movements.
	TypeTransfer = "transfer.native"
	// TypeTokenTransfer is emitted for every token payment moved between accounts.
	TypeTokenTransfer = "transfer.token"
	// TypeValidatorReward is emitted when a validator reward is credited.
	TypeValidatorReward = "reward.validator"
)

type Transfer struct {
	From   crypto.Address
	To     crypto.Address
	Amount *big.Int
	TxHash common.Hash
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{
		"asset":  types.MOAXIdentifier,
		"from":   e.From.String(),
		"to":     e.To.String(),
		"amount": formatAmount(e.Amount),
	}
	setTxHash(attrs, e.TxHash)
	return &types.Event{Type: TypeTransfer, Attributes: attrs}
}

type TokenTransfer struct {
	From       crypto.Address
	To         crypto.Address
	Identifier string
	Nonce      uint64
	Amount     *big.Int
	TxHash     common.Hash
}

func (TokenTransfer) EventType() string { return TypeTokenTransfer }

func (e TokenTransfer) Event() *types.Event {
	attrs := map[string]string{
		"token":  e.Identifier,
		"nonce":  formatUint(e.Nonce),
		"from":   e.From.String(),
		"to":     e.To.String(),
		"amount": formatAmount(e.Amount),
	}
	setTxHash(attrs, e.TxHash)
	return &types.Event{Type: TypeTokenTransfer, Attributes: attrs}
}

type ValidatorReward struct {
	Validator crypto.Address
	Amount    *big.Int
}

func (ValidatorReward) EventType() string { return TypeValidatorReward }

func (e ValidatorReward) Event() *types.Event {
	return &types.Event{
		Type: TypeValidatorReward,
		Attributes: map[string]string{
			"validator": e.Validator.String(),
			"amount":    formatAmount(e.Amount),
		},
	}
}
