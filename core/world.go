package core

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"ledgersim/config"
	"ledgersim/core/events"
	"ledgersim/core/state"
	"ledgersim/core/types"
	"ledgersim/crypto"
)

// World is the scenario-facing surface: it owns a ledger, a contract
// registry and an executor, and exposes the steps a conformance scenario is
// made of.
type World struct {
	runID    uuid.UUID
	ledger   *state.Ledger
	registry *Registry
	exec     *Executor
	recorder *events.Recorder
	logger   *slog.Logger
}

// NewWorld creates an empty world. Every world gets its own run identifier
// which is attached to all log records it produces.
func NewWorld(cfg *config.Config, opts ...Option) (*World, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	runID := uuid.New()
	w := &World{
		runID:    runID,
		ledger:   state.NewLedger(),
		registry: NewRegistry(),
		recorder: &events.Recorder{},
	}
	base := []Option{WithEmitter(w.recorder)}
	exec, err := NewExecutor(w.ledger, w.registry, cfg, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	exec.logger = exec.logger.With("network", cfg.NetworkName, "run", runID.String())
	w.exec = exec
	w.logger = exec.logger
	return w, nil
}

// RunID identifies the world in logs.
func (w *World) RunID() string { return w.runID.String() }

// Ledger exposes the world's ledger.
func (w *World) Ledger() *state.Ledger { return w.ledger }

// Executor exposes the world's executor.
func (w *World) Executor() *Executor { return w.exec }

// Events returns every event committed so far.
func (w *World) Events() []*types.Event { return w.recorder.Events() }

// SetAccount overwrites an account record.
func (w *World) SetAccount(addr crypto.Address, acc *types.Account) error {
	if acc != nil && acc.Code != "" {
		if _, ok := w.registry.Lookup(acc.Code); !ok {
			return fmt.Errorf("world: account %s references unregistered code %q", addr, acc.Code)
		}
	}
	w.exec.mu.Lock()
	defer w.exec.mu.Unlock()
	return w.ledger.SetAccount(addr, acc)
}

// RegisterContract makes a contract available for deployment and calls.
func (w *World) RegisterContract(c *Contract) error {
	return w.registry.Register(c)
}

// SetNewAddress pins the address of the contract deployed by creator at
// nonce.
func (w *World) SetNewAddress(creator crypto.Address, nonce uint64, addr crypto.Address) {
	w.exec.SetNewAddress(creator, nonce, addr)
}

// Deploy runs a deployment step.
func (w *World) Deploy(ctx context.Context, in *DeployInput) (crypto.Address, *types.TxResult) {
	return w.exec.Deploy(ctx, in)
}

// Call runs a contract call step.
func (w *World) Call(ctx context.Context, tx *types.TxInput) *types.TxResult {
	return w.exec.Execute(ctx, tx)
}

// Transfer runs a transfer step. The sender nonce is consumed whatever the
// outcome.
func (w *World) Transfer(ctx context.Context, from, to crypto.Address, value *big.Int, transfers ...types.TokenPayment) *types.TxResult {
	return w.exec.Execute(ctx, &types.TxInput{
		From:           from,
		To:             to,
		Value:          value,
		TokenTransfers: transfers,
	})
}

// ValidatorReward credits a validator directly.
func (w *World) ValidatorReward(ctx context.Context, validator crypto.Address, amount *big.Int) error {
	return w.exec.ValidatorReward(ctx, validator, amount)
}

// Fingerprint returns the deterministic hash of the whole world state.
func (w *World) Fingerprint() (common.Hash, error) {
	return w.ledger.Fingerprint()
}

// TokenExpectation describes the expected state of one token instance.
type TokenExpectation struct {
	Nonce      uint64
	Balance    *big.Int
	Royalties  *uint64
	Attributes []byte
	Hash       []byte
	URIs       [][]byte
	Creator    *crypto.Address
}

// AccountExpectation describes the fields a scenario asserts on. Nil fields
// are not checked. When Storage is set, keys absent from it must be absent
// from the account.
type AccountExpectation struct {
	Nonce   *uint64
	Balance *big.Int
	Owner   *crypto.Address
	Code    *string
	Storage map[string][]byte
	Tokens  map[string][]TokenExpectation
	Roles   map[string]types.RoleFlags
}

// CheckAccounts compares the ledger against expectations and reports every
// mismatch.
func (w *World) CheckAccounts(expected map[crypto.Address]AccountExpectation) error {
	var errs []error
	for addr, want := range expected {
		acc := w.ledger.Account(addr)
		errs = append(errs, checkAccount(addr, acc, want)...)
	}
	if len(errs) > 0 {
		w.logger.Info("account check failed", "mismatches", len(errs))
	}
	return stderrors.Join(errs...)
}

func checkAccount(addr crypto.Address, acc *types.Account, want AccountExpectation) []error {
	var errs []error
	mismatch := func(field string, got, exp any) {
		errs = append(errs, fmt.Errorf("account %s: %s: got %v, want %v", addr, field, got, exp))
	}
	if want.Nonce != nil && acc.Nonce != *want.Nonce {
		mismatch("nonce", acc.Nonce, *want.Nonce)
	}
	if want.Balance != nil && acc.Balance.Cmp(want.Balance) != 0 {
		mismatch("balance", acc.Balance, want.Balance)
	}
	if want.Code != nil && acc.Code != *want.Code {
		mismatch("code", acc.Code, *want.Code)
	}
	if want.Owner != nil {
		var owner crypto.Address
		if acc.Owner != nil {
			owner = *acc.Owner
		}
		if owner != *want.Owner {
			mismatch("owner", owner, *want.Owner)
		}
	}
	if want.Storage != nil {
		for key, value := range want.Storage {
			if got := acc.Storage[key]; !bytes.Equal(got, value) {
				mismatch(fmt.Sprintf("storage[%x]", key), fmt.Sprintf("%x", got), fmt.Sprintf("%x", value))
			}
		}
		for _, key := range acc.StorageKeys() {
			if _, ok := want.Storage[key]; !ok {
				mismatch(fmt.Sprintf("storage[%x]", key), fmt.Sprintf("%x", acc.Storage[key]), "absent")
			}
		}
	}
	store := state.TokensOf(acc)
	for id, instances := range want.Tokens {
		for _, inst := range instances {
			view := store.DataView(id, inst.Nonce)
			field := fmt.Sprintf("token %s nonce %d", id, inst.Nonce)
			if inst.Balance != nil && view.Amount.Cmp(inst.Balance) != 0 {
				mismatch(field+" balance", view.Amount, inst.Balance)
			}
			if inst.Royalties != nil && view.Royalties != *inst.Royalties {
				mismatch(field+" royalties", view.Royalties, *inst.Royalties)
			}
			if inst.Attributes != nil && !bytes.Equal(view.Attributes, inst.Attributes) {
				mismatch(field+" attributes", string(view.Attributes), string(inst.Attributes))
			}
			if inst.Hash != nil && !bytes.Equal(view.Hash, inst.Hash) {
				mismatch(field+" hash", fmt.Sprintf("%x", view.Hash), fmt.Sprintf("%x", inst.Hash))
			}
			if inst.URIs != nil && !equalURIs(view.URIs, inst.URIs) {
				mismatch(field+" uris", view.URIs, inst.URIs)
			}
			if inst.Creator != nil && view.Creator != *inst.Creator {
				mismatch(field+" creator", view.Creator, *inst.Creator)
			}
		}
	}
	for id, roles := range want.Roles {
		if got := store.Roles(id); got != roles {
			mismatch("roles of "+id, got.Names(), roles.Names())
		}
	}
	return errs
}

func equalURIs(got, want [][]byte) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if !bytes.Equal(got[i], want[i]) {
			return false
		}
	}
	return true
}
