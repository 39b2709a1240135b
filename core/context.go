package core

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "ledgersim/core/errors"
	"ledgersim/core/events"
	"ledgersim/core/state"
	"ledgersim/core/types"
	"ledgersim/core/vm"
	"ledgersim/crypto"
)

// Context is the host surface handed to an entry point. It is only valid for
// the duration of the call it was created for.
type Context struct {
	run   *txRun
	frame *callFrame
	valid bool
}

func (c *Context) check(op string) {
	if c == nil || !c.valid {
		panic(&vm.Fault{Op: op, Reason: "host context used outside its call"})
	}
}

// Context returns the context.Context of the enclosing transaction.
func (c *Context) Context() context.Context {
	c.check("context")
	return c.run.ctx
}

// Caller is the account that initiated this call.
func (c *Context) Caller() crypto.Address {
	c.check("caller")
	return c.frame.caller
}

// SelfAddress is the address of the executing contract.
func (c *Context) SelfAddress() crypto.Address {
	c.check("self address")
	return c.frame.callee
}

// Owner returns the deployer of the executing contract, zero when unset.
func (c *Context) Owner() crypto.Address {
	c.check("owner")
	var owner crypto.Address
	c.ledger().View(c.frame.callee, func(acc *types.Account) {
		if acc.Owner != nil {
			owner = *acc.Owner
		}
	})
	return owner
}

// Function is the name of the endpoint being executed.
func (c *Context) Function() string {
	c.check("function")
	return c.frame.function
}

// Args returns copies of the call arguments.
func (c *Context) Args() [][]byte {
	c.check("args")
	return copyArgs(c.frame.args)
}

// NumArgs returns the number of call arguments.
func (c *Context) NumArgs() int {
	c.check("args")
	return len(c.frame.args)
}

// Arg returns a copy of argument i. Reading past the last argument is a user
// error.
func (c *Context) Arg(i int) ([]byte, error) {
	c.check("arg")
	if i < 0 || i >= len(c.frame.args) {
		return nil, coreerrors.Signal("wrong number of arguments")
	}
	return append([]byte{}, c.frame.args[i]...), nil
}

// ArgBigInt decodes argument i as an unsigned big-endian integer.
func (c *Context) ArgBigInt(i int) (*big.Int, error) {
	raw, err := c.Arg(i)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

// Balance returns the native balance of the executing contract.
func (c *Context) Balance() *big.Int {
	c.check("balance")
	return c.ledger().Account(c.frame.callee).Balance
}

// BalanceOf returns the native balance of any account.
func (c *Context) BalanceOf(addr crypto.Address) *big.Int {
	c.check("balance of")
	return c.ledger().Account(addr).Balance
}

// TokenBalance returns the executing contract's balance of (identifier, nonce).
func (c *Context) TokenBalance(identifier string, nonce uint64) *big.Int {
	c.check("token balance")
	return c.ledger().TokenBalance(c.frame.callee, identifier, nonce)
}

// CurrentBlock returns the current block fixture.
func (c *Context) CurrentBlock() types.BlockInfo {
	c.check("current block")
	return c.run.exec.block.Current
}

// PreviousBlock returns the previous block fixture.
func (c *Context) PreviousBlock() types.BlockInfo {
	c.check("previous block")
	return c.run.exec.block.Previous
}

// TxHash returns the hash of the enclosing transaction.
func (c *Context) TxHash() common.Hash {
	c.check("tx hash")
	return c.run.txHash
}

// GasLeft returns the advisory gas remaining.
func (c *Context) GasLeft() uint64 {
	c.check("gas left")
	return c.run.gas.left()
}

// TokenData answers a token data query against any account.
func (c *Context) TokenData(addr crypto.Address, identifier string, nonce uint64) types.TokenDataView {
	c.check("token data")
	return c.ledger().TokenData(addr, identifier, nonce)
}

// LocalRoles returns the roles the executing contract holds for identifier.
func (c *Context) LocalRoles(identifier string) types.RoleFlags {
	c.check("local roles")
	var roles types.RoleFlags
	c.ledger().View(c.frame.callee, func(acc *types.Account) {
		roles = state.TokensOf(acc).Roles(identifier)
	})
	return roles
}

// CurrentNFTNonce returns the nonce of the last instance the executing
// contract created for identifier.
func (c *Context) CurrentNFTNonce(identifier string) uint64 {
	c.check("current nft nonce")
	var nonce uint64
	c.ledger().View(c.frame.callee, func(acc *types.Account) {
		nonce = state.TokensOf(acc).LastNonce(identifier)
	})
	return nonce
}

// StorageGet reads a key of the executing contract's storage.
func (c *Context) StorageGet(key []byte) []byte {
	c.check("storage get")
	c.run.gas.charge(c.run.exec.gas.StorageLoad)
	return c.ledger().StorageGet(c.frame.callee, key)
}

// StorageGetFrom reads a key from another account's storage.
func (c *Context) StorageGetFrom(addr crypto.Address, key []byte) []byte {
	c.check("storage get")
	c.run.gas.charge(c.run.exec.gas.StorageLoad)
	return c.ledger().StorageGet(addr, key)
}

// StoragePut writes a key of the executing contract's storage. An empty value
// clears the key.
func (c *Context) StoragePut(key, value []byte) error {
	c.check("storage put")
	c.run.gas.charge(c.run.exec.gas.StorageStore)
	return c.ledger().StoragePut(c.frame.callee, key, value)
}

// Arena returns the value arena. Handles are scoped to the current call.
func (c *Context) Arena() *vm.Arena {
	c.check("arena")
	return c.run.arena
}

// CallValue returns the resolver for the payment attached to this call.
func (c *Context) CallValue() *vm.Resolver {
	c.check("call value")
	return c.frame.resolver
}

// TransferNative sends native currency from the executing contract without
// running code on the receiver.
func (c *Context) TransferNative(to crypto.Address, amount *big.Int) error {
	c.check("transfer")
	if amount == nil || amount.Sign() < 0 {
		return coreerrors.ErrNegativeAmount
	}
	return c.run.transfer(c.frame.callee, to, amount, nil)
}

// TransferToken sends a token instance from the executing contract without
// running code on the receiver.
func (c *Context) TransferToken(to crypto.Address, identifier string, nonce uint64, amount *big.Int) error {
	c.check("transfer token")
	if amount == nil || amount.Sign() < 0 {
		return coreerrors.ErrNegativeAmount
	}
	payment := types.TokenPayment{Identifier: identifier, Nonce: nonce, Amount: new(big.Int).Set(amount)}
	return c.run.transfer(c.frame.callee, to, new(big.Int), []types.TokenPayment{payment})
}

// NFTCreate creates a new instance of identifier owned by the executing
// contract. The contract must hold the NFT create role.
func (c *Context) NFTCreate(identifier string, amount *big.Int, metadata types.TokenMetadata) (uint64, error) {
	c.check("nft create")
	self := c.frame.callee
	if !c.LocalRoles(identifier).Has(types.RoleNFTCreate) {
		return 0, fmt.Errorf("%w: %s needs %s", coreerrors.ErrActionNotAllowed, identifier, "DCTRoleNFTCreate")
	}
	metadata.Creator = &self
	var nonce uint64
	err := c.ledger().WithAccount(self, func(acc *types.Account) error {
		var err error
		nonce, err = state.TokensOf(acc).CreateInstance(identifier, amount, metadata)
		return err
	})
	if err != nil {
		return 0, err
	}
	c.run.gas.charge(c.run.exec.gas.NFTCreate)
	c.run.emit(events.TokenMint{Account: self, Identifier: identifier, Nonce: nonce, Amount: new(big.Int).Set(amount)})
	return nonce, nil
}

// LocalMint increases the executing contract's balance of (identifier,
// nonce). Fungible mints need the local mint role, instance quantity
// increases need the add quantity role.
func (c *Context) LocalMint(identifier string, nonce uint64, amount *big.Int) error {
	c.check("local mint")
	role := types.RoleMint
	if nonce > 0 {
		role = types.RoleNFTAddQuantity
	}
	if !c.LocalRoles(identifier).Has(role) {
		return fmt.Errorf("%w: mint %s", coreerrors.ErrActionNotAllowed, identifier)
	}
	self := c.frame.callee
	err := c.ledger().WithAccount(self, func(acc *types.Account) error {
		store := state.TokensOf(acc)
		var meta types.TokenMetadata
		if data, ok := store.Get(identifier); ok {
			if inst, ok := data.Instance(nonce); ok {
				meta = inst.Metadata
			}
		}
		return store.Credit(identifier, nonce, amount, meta)
	})
	if err != nil {
		return err
	}
	c.run.gas.charge(c.run.exec.gas.LocalMintOrBurn)
	c.run.emit(events.TokenMint{Account: self, Identifier: identifier, Nonce: nonce, Amount: new(big.Int).Set(amount)})
	return nil
}

// LocalBurn decreases the executing contract's balance of (identifier,
// nonce). Fungible burns need the local burn role, instance burns the NFT
// burn role.
func (c *Context) LocalBurn(identifier string, nonce uint64, amount *big.Int) error {
	c.check("local burn")
	role := types.RoleBurn
	if nonce > 0 {
		role = types.RoleNFTBurn
	}
	if !c.LocalRoles(identifier).Has(role) {
		return fmt.Errorf("%w: burn %s", coreerrors.ErrActionNotAllowed, identifier)
	}
	self := c.frame.callee
	if err := c.ledger().DebitToken(self, identifier, nonce, amount); err != nil {
		return err
	}
	c.run.gas.charge(c.run.exec.gas.LocalMintOrBurn)
	c.run.emit(events.TokenBurn{Account: self, Identifier: identifier, Nonce: nonce, Amount: new(big.Int).Set(amount)})
	return nil
}

// EmitLog records a contract log. Logs are dropped if the call is reverted.
func (c *Context) EmitLog(identifier string, topics [][]byte, data []byte) {
	c.check("emit log")
	c.run.emit(events.ContractLog{
		Contract:   c.frame.callee,
		Identifier: identifier,
		Topics:     copyArgs(topics),
		Data:       append([]byte{}, data...),
		TxHash:     c.run.txHash,
	})
}

// Call performs a synchronous nested call. When the callee fails its effects
// are reverted and the error is returned; the caller may recover from it or
// return it to abort itself.
func (c *Context) Call(to crypto.Address, value *big.Int, transfers []types.TokenPayment, function string, args ...[]byte) ([][]byte, error) {
	c.check("call")
	return c.run.nested(c.frame.callee, to, value, transfers, function, args)
}

// AsyncCall queues a call that runs after the current transaction's
// synchronous execution has completed successfully. A failing asynchronous
// call reverts the whole transaction.
func (c *Context) AsyncCall(to crypto.Address, value *big.Int, transfers []types.TokenPayment, function string, args ...[]byte) {
	c.check("async call")
	if value == nil {
		value = new(big.Int)
	}
	payments := make([]types.TokenPayment, len(transfers))
	for i, p := range transfers {
		amount := new(big.Int)
		if p.Amount != nil {
			amount.Set(p.Amount)
		}
		payments[i] = types.TokenPayment{Identifier: p.Identifier, Nonce: p.Nonce, Amount: amount}
	}
	c.run.gas.charge(c.run.exec.gas.AsyncCall)
	c.run.async = append(c.run.async, asyncCall{
		from:      c.frame.callee,
		to:        to,
		value:     new(big.Int).Set(value),
		transfers: payments,
		function:  function,
		args:      copyArgs(args),
	})
}

// Finish appends return data for the current call.
func (c *Context) Finish(values ...[]byte) {
	c.check("finish")
	for _, v := range values {
		c.frame.out = append(c.frame.out, append([]byte{}, v...))
	}
}

// FinishBigInt appends the big-endian encoding of x.
func (c *Context) FinishBigInt(x *big.Int) {
	c.Finish(x.Bytes())
}

// SignalError builds the error an entry point returns to abort with message.
func (c *Context) SignalError(message string) error {
	c.check("signal error")
	return coreerrors.Signal(message)
}

func (c *Context) ledger() *state.Ledger {
	return c.run.exec.ledger
}
