package core

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "ledgersim/core/errors"
	"ledgersim/core/events"
	"ledgersim/core/types"
	"ledgersim/core/vm"
	"ledgersim/crypto"
)

// callFrame is one entry of the explicit call stack.
type callFrame struct {
	caller   crypto.Address
	callee   crypto.Address
	function string
	args     [][]byte
	resolver *vm.Resolver
	out      [][]byte
}

type asyncCall struct {
	from      crypto.Address
	to        crypto.Address
	value     *big.Int
	transfers []types.TokenPayment
	function  string
	args      [][]byte
}

// txRun holds the state of one top-level transaction: the arena shared by
// every frame, the call stack, queued asynchronous calls and the events
// pending commit.
type txRun struct {
	ctx      context.Context
	exec     *Executor
	txHash   common.Hash
	arena    *vm.Arena
	gas      *gasMeter
	stack    []*callFrame
	maxDepth int
	async    []asyncCall
	events   []events.Event
	out      [][]byte
}

// atomically runs fn inside a ledger revision. The revision is committed when
// fn succeeds and reverted otherwise. Arena faults revert the revision and are
// re-raised; any other panic from contract code fails the transaction.
func (r *txRun) atomically(fn func() error) (result *types.TxResult) {
	ledger := r.exec.ledger
	rev := ledger.Snapshot()
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		_ = ledger.RevertToSnapshot(rev)
		r.exec.metrics.RecordRollback("transaction")
		r.events = nil
		r.async = nil
		if _, ok := vm.AsFault(p); ok {
			panic(p)
		}
		result = &types.TxResult{
			Status:  types.StatusExecutionFailed,
			Message: fmt.Sprintf("%v: %v", coreerrors.ErrContractPanic, p),
			GasUsed: r.gas.used,
		}
	}()

	err := fn()
	status, message := statusFor(err)
	result = &types.TxResult{Status: status, Message: message, GasUsed: r.gas.used}
	if err != nil {
		if revertErr := ledger.RevertToSnapshot(rev); revertErr != nil {
			panic(fmt.Sprintf("executor: revert failed: %v", revertErr))
		}
		r.exec.metrics.RecordRollback("transaction")
		r.events = nil
		return result
	}
	if discardErr := ledger.DiscardSnapshot(rev); discardErr != nil {
		panic(fmt.Sprintf("executor: commit failed: %v", discardErr))
	}
	result.Out = r.out
	result.Events = r.exec.publish(r.events)
	return result
}

// invoke moves the payment from caller to callee and, when the callee holds
// code and a function is named, dispatches the call in a fresh arena frame.
func (r *txRun) invoke(caller, callee crypto.Address, value *big.Int, transfers []types.TokenPayment, function string, args [][]byte) ([][]byte, error) {
	if len(r.stack) >= r.exec.maxDepth {
		return nil, coreerrors.ErrCallStackOverflow
	}
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() > 0 && len(transfers) > 0 {
		return nil, coreerrors.ErrPaymentConflict
	}
	if err := r.transfer(caller, callee, value, transfers); err != nil {
		return nil, err
	}

	account := r.exec.ledger.Account(callee)
	if !account.HasCode() {
		if callee.IsSmartContract() && function != "" {
			return nil, fmt.Errorf("%w: %s", coreerrors.ErrContractNotFound, callee)
		}
		return nil, nil
	}
	if function == "" {
		return nil, nil
	}
	contract, ok := r.exec.registry.Lookup(account.Code)
	if !ok {
		return nil, fmt.Errorf("%w: %s", coreerrors.ErrContractNotFound, account.Code)
	}
	endpoint, ok := contract.Endpoint(function)
	if !ok {
		return nil, fmt.Errorf("%w: %s", coreerrors.ErrFunctionNotFound, function)
	}
	r.gas.charge(r.exec.gas.ContractCall)

	r.arena.PushFrame()
	frame := &callFrame{
		caller:   caller,
		callee:   callee,
		function: function,
		args:     copyArgs(args),
		resolver: vm.NewResolver(r.arena, value, transfers),
	}
	r.stack = append(r.stack, frame)
	if depth := len(r.stack); depth > r.maxDepth {
		r.maxDepth = depth
	}
	defer func() {
		r.stack = r.stack[:len(r.stack)-1]
		r.exec.metrics.ObserveArenaFrame(r.arena.Allocated())
		r.arena.PopFrame()
	}()

	if err := frame.resolver.CheckPolicy(endpoint.Payable); err != nil {
		return nil, err
	}
	hostCtx := &Context{run: r, frame: frame, valid: true}
	defer func() { hostCtx.valid = false }()
	if err := endpoint.Handler(hostCtx); err != nil {
		return nil, err
	}
	return frame.out, nil
}

// nested performs a synchronous call from the current frame. Its effects are
// confined to a nested revision: on failure only the callee's changes and
// events are dropped and the caller receives the error.
func (r *txRun) nested(caller, callee crypto.Address, value *big.Int, transfers []types.TokenPayment, function string, args [][]byte) ([][]byte, error) {
	ledger := r.exec.ledger
	rev := ledger.Snapshot()
	mark := len(r.events)
	asyncMark := len(r.async)
	r.gas.charge(r.exec.gas.NestedCall)

	out, err := r.invoke(caller, callee, value, transfers, function, args)
	if err != nil {
		if revertErr := ledger.RevertToSnapshot(rev); revertErr != nil {
			panic(fmt.Sprintf("executor: nested revert failed: %v", revertErr))
		}
		r.events = r.events[:mark]
		r.async = r.async[:asyncMark]
		r.exec.metrics.RecordRollback("nested")
		return nil, err
	}
	if discardErr := ledger.DiscardSnapshot(rev); discardErr != nil {
		panic(fmt.Sprintf("executor: nested commit failed: %v", discardErr))
	}
	return out, nil
}

// drainAsync executes queued call-and-exit calls in FIFO order. Calls queued
// while draining are appended and executed in the same pass.
func (r *txRun) drainAsync() error {
	for len(r.async) > 0 {
		call := r.async[0]
		r.async = r.async[1:]
		if _, err := r.invoke(call.from, call.to, call.value, call.transfers, call.function, call.args); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRun) transfer(from, to crypto.Address, value *big.Int, transfers []types.TokenPayment) error {
	ledger := r.exec.ledger
	if err := ledger.TransferNative(from, to, value); err != nil {
		return err
	}
	if value.Sign() > 0 {
		r.events = append(r.events, events.Transfer{From: from, To: to, Amount: new(big.Int).Set(value), TxHash: r.txHash})
	}
	for _, p := range transfers {
		if err := ledger.TransferToken(from, to, p.Identifier, p.Nonce, p.Amount); err != nil {
			return err
		}
		r.gas.charge(r.exec.gas.TokenTransfer)
		r.events = append(r.events, events.TokenTransfer{
			From:       from,
			To:         to,
			Identifier: p.Identifier,
			Nonce:      p.Nonce,
			Amount:     new(big.Int).Set(p.Amount),
			TxHash:     r.txHash,
		})
	}
	return nil
}

func (r *txRun) emit(evt events.Event) {
	r.gas.charge(r.exec.gas.EventLog)
	r.events = append(r.events, evt)
}

func copyArgs(args [][]byte) [][]byte {
	if args == nil {
		return nil
	}
	out := make([][]byte, len(args))
	for i, arg := range args {
		out[i] = append([]byte{}, arg...)
	}
	return out
}
