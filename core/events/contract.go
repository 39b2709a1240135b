package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"ledgersim/core/types"
	"ledgersim/crypto"
)

const (
	// TypeContractLog carries a log written by an entry point.
	TypeContractLog = "contract.log"
	// TypeTokenMint is emitted for local mints and NFT creation.
	TypeTokenMint = "token.mint"
	// TypeTokenBurn is emitted for local burns.
	TypeTokenBurn = "token.burn"
)

// ContractLog is an arbitrary log entry. Topics and data are rendered as hex.
type ContractLog struct {
	Contract   crypto.Address
	Identifier string
	Topics     [][]byte
	Data       []byte
	TxHash     common.Hash
}

func (ContractLog) EventType() string { return TypeContractLog }

func (e ContractLog) Event() *types.Event {
	attrs := map[string]string{
		"contract":   e.Contract.String(),
		"identifier": e.Identifier,
		"data":       hexBytes(e.Data),
	}
	for i, topic := range e.Topics {
		attrs["topic"+strconv.Itoa(i)] = hexBytes(topic)
	}
	setTxHash(attrs, e.TxHash)
	return &types.Event{Type: TypeContractLog, Attributes: attrs}
}

type TokenMint struct {
	Account    crypto.Address
	Identifier string
	Nonce      uint64
	Amount     *big.Int
}

func (TokenMint) EventType() string { return TypeTokenMint }

func (e TokenMint) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenMint,
		Attributes: map[string]string{
			"account": e.Account.String(),
			"token":   e.Identifier,
			"nonce":   formatUint(e.Nonce),
			"amount":  formatAmount(e.Amount),
		},
	}
}

type TokenBurn struct {
	Account    crypto.Address
	Identifier string
	Nonce      uint64
	Amount     *big.Int
}

func (TokenBurn) EventType() string { return TypeTokenBurn }

func (e TokenBurn) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenBurn,
		Attributes: map[string]string{
			"account": e.Account.String(),
			"token":   e.Identifier,
			"nonce":   formatUint(e.Nonce),
			"amount":  formatAmount(e.Amount),
		},
	}
}
