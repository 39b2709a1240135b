package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ledgersim/crypto"
)

// TxInput is one call or transfer submitted to the executor. It is treated
// as immutable once handed over.
type TxInput struct {
	From           crypto.Address `json:"from"`
	To             crypto.Address `json:"to"`
	Value          *big.Int       `json:"value"`
	TokenTransfers []TokenPayment `json:"tokenTransfers,omitempty"`
	Function       string         `json:"function,omitempty"`
	Args           [][]byte       `json:"args,omitempty"`
	GasLimit       uint64         `json:"gasLimit"`
	GasPrice       *big.Int       `json:"gasPrice"`
	TxHash         common.Hash    `json:"txHash"`
}

// NativeValue returns the attached native amount, zero when unset.
func (tx *TxInput) NativeValue() *big.Int {
	if tx.Value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(tx.Value)
}

// Status is the outcome code of a transaction. The numbering follows the
// VM return codes asserted by conformance scenarios.
type Status uint64

const (
	StatusOK                Status = 0
	StatusFunctionNotFound  Status = 1
	StatusContractNotFound  Status = 3
	StatusUserError         Status = 4
	StatusOutOfFunds        Status = 7
	StatusCallStackOverflow Status = 8
	StatusExecutionFailed   Status = 10
	// StatusInvalidInput has no VM counterpart; the input never reached it.
	StatusInvalidInput Status = 13
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFunctionNotFound:
		return "function not found"
	case StatusContractNotFound:
		return "contract not found"
	case StatusUserError:
		return "user error"
	case StatusOutOfFunds:
		return "out of funds"
	case StatusCallStackOverflow:
		return "call stack overflow"
	case StatusExecutionFailed:
		return "execution failed"
	case StatusInvalidInput:
		return "invalid input"
	}
	return fmt.Sprintf("status(%d)", uint64(s))
}

// TxResult is produced once per TxInput and owned by the caller afterwards.
type TxResult struct {
	Status  Status   `json:"status"`
	Message string   `json:"message,omitempty"`
	Out     [][]byte `json:"out,omitempty"`
	GasUsed uint64   `json:"gasUsed"`
	Events  []*Event `json:"events,omitempty"`
}

// Succeeded reports whether the transaction committed.
func (r *TxResult) Succeeded() bool {
	return r != nil && r.Status == StatusOK
}

// Err converts a failed result into an error, nil on success.
func (r *TxResult) Err() error {
	if r == nil {
		return fmt.Errorf("tx: missing result")
	}
	if r.Status == StatusOK {
		return nil
	}
	return fmt.Errorf("tx failed with status %d (%s): %s", uint64(r.Status), r.Status, r.Message)
}
