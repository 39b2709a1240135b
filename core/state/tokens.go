package state

import (
	"fmt"
	"math/big"
	"sort"

	coreerrors "ledgersim/core/errors"
	"ledgersim/core/types"
	"ledgersim/crypto"
)

// TokenStore operates on the token map embedded in an account. It must only be
// used on an account obtained through Ledger.WithAccount (for mutations) or
// Ledger.View (for reads).
type TokenStore struct {
	account *types.Account
}

// TokensOf wraps the token map of acc.
func TokensOf(acc *types.Account) TokenStore {
	if acc.Tokens == nil {
		acc.Tokens = make(map[string]*types.TokenData)
	}
	return TokenStore{account: acc}
}

// Get returns the stored token data, if any.
func (s TokenStore) Get(identifier string) (*types.TokenData, bool) {
	data, ok := s.account.Tokens[identifier]
	return data, ok
}

// GetOrDefault returns the stored token data or an empty record. The empty
// record is not inserted into the store.
func (s TokenStore) GetOrDefault(identifier string) *types.TokenData {
	if data, ok := s.account.Tokens[identifier]; ok {
		return data
	}
	return types.NewTokenData()
}

// Identifiers returns the identifiers held by the account in sorted order.
func (s TokenStore) Identifiers() []string {
	ids := make([]string, 0, len(s.account.Tokens))
	for id := range s.account.Tokens {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// BalanceOf returns a copy of the instance balance, zero when unknown.
func (s TokenStore) BalanceOf(identifier string, nonce uint64) *big.Int {
	data, ok := s.Get(identifier)
	if !ok {
		return big.NewInt(0)
	}
	inst, ok := data.Instance(nonce)
	if !ok || inst.Balance == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(inst.Balance)
}

func (s TokenStore) ensure(identifier string) *types.TokenData {
	data, ok := s.account.Tokens[identifier]
	if !ok {
		data = types.NewTokenData()
		s.account.Tokens[identifier] = data
	}
	if data.Instances == nil {
		data.Instances = make(map[uint64]*types.TokenInstance)
	}
	return data
}

// Credit adds amount to the (identifier, nonce) instance, creating it on
// demand. Metadata is only taken from the caller when the prior balance is
// zero; otherwise the stored metadata is kept.
func (s TokenStore) Credit(identifier string, nonce uint64, amount *big.Int, metadata types.TokenMetadata) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if metadata.Royalties > types.MaxRoyalties {
		return fmt.Errorf("%w: %d", coreerrors.ErrInvalidRoyalties, metadata.Royalties)
	}
	data := s.ensure(identifier)
	inst, ok := data.Instances[nonce]
	if !ok {
		inst = &types.TokenInstance{Balance: big.NewInt(0)}
		data.Instances[nonce] = inst
	}
	if inst.Balance == nil {
		inst.Balance = big.NewInt(0)
	}
	if inst.Balance.Sign() == 0 {
		inst.Metadata = metadata.Copy()
	}
	inst.Balance.Add(inst.Balance, amount)
	return nil
}

// Debit removes amount from the (identifier, nonce) instance. Instances that
// reach zero stay in the store with their metadata.
func (s TokenStore) Debit(identifier string, nonce uint64, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	balance := s.BalanceOf(identifier, nonce)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s nonce %d: have %s, need %s",
			coreerrors.ErrInsufficientTokenFunds, identifier, nonce, balance, amount)
	}
	if amount.Sign() == 0 {
		return nil
	}
	inst := s.account.Tokens[identifier].Instances[nonce]
	inst.Balance.Sub(inst.Balance, amount)
	return nil
}

// CreateInstance mints a new instance under LastNonce+1 and returns the
// assigned nonce.
func (s TokenStore) CreateInstance(identifier string, amount *big.Int, metadata types.TokenMetadata) (uint64, error) {
	if err := checkAmount(amount); err != nil {
		return 0, err
	}
	if metadata.Royalties > types.MaxRoyalties {
		return 0, fmt.Errorf("%w: %d", coreerrors.ErrInvalidRoyalties, metadata.Royalties)
	}
	data := s.ensure(identifier)
	nonce := data.LastNonce + 1
	data.Instances[nonce] = &types.TokenInstance{
		Balance:  new(big.Int).Set(amount),
		Metadata: metadata.Copy(),
	}
	data.LastNonce = nonce
	return nonce, nil
}

// SetRoles replaces the local roles held for identifier.
func (s TokenStore) SetRoles(identifier string, roles types.RoleFlags) {
	s.ensure(identifier).Roles = roles
}

// Roles returns the local roles held for identifier.
func (s TokenStore) Roles(identifier string) types.RoleFlags {
	if data, ok := s.Get(identifier); ok {
		return data.Roles
	}
	return types.RoleNone
}

// SetFrozen updates the frozen flag of identifier.
func (s TokenStore) SetFrozen(identifier string, frozen bool) {
	s.ensure(identifier).Frozen = frozen
}

// LastNonce returns the nonce of the most recently created instance.
func (s TokenStore) LastNonce(identifier string) uint64 {
	if data, ok := s.Get(identifier); ok {
		return data.LastNonce
	}
	return 0
}

// DataView answers a token data query. A missing identifier yields a zero
// valued fungible view; a missing instance reports the type implied by the
// nonce.
func (s TokenStore) DataView(identifier string, nonce uint64) types.TokenDataView {
	view := types.TokenDataView{
		Type:       types.TokenTypeFromNonce(nonce),
		Identifier: identifier,
		Amount:     big.NewInt(0),
	}
	data, ok := s.Get(identifier)
	if !ok {
		view.Type = types.TokenFungible
		return view
	}
	view.Frozen = data.Frozen
	inst, ok := data.Instance(nonce)
	if !ok {
		return view
	}
	if inst.Balance != nil {
		view.Amount.Set(inst.Balance)
	}
	meta := inst.Metadata.Copy()
	view.Hash = meta.Hash
	view.Attributes = meta.Attributes
	view.Royalties = meta.Royalties
	view.URIs = meta.URIs
	if meta.Creator != nil {
		view.Creator = *meta.Creator
	}
	return view
}

// CreditToken credits a token instance on addr.
func (l *Ledger) CreditToken(addr crypto.Address, identifier string, nonce uint64, amount *big.Int, metadata types.TokenMetadata) error {
	return l.WithAccount(addr, func(acc *types.Account) error {
		return TokensOf(acc).Credit(identifier, nonce, amount, metadata)
	})
}

// DebitToken debits a token instance on addr.
func (l *Ledger) DebitToken(addr crypto.Address, identifier string, nonce uint64, amount *big.Int) error {
	return l.WithAccount(addr, func(acc *types.Account) error {
		return TokensOf(acc).Debit(identifier, nonce, amount)
	})
}

// TransferToken moves amount of (identifier, nonce) from one account to
// another. The receiver inherits the sender's metadata for the instance.
func (l *Ledger) TransferToken(from, to crypto.Address, identifier string, nonce uint64, amount *big.Int) error {
	var meta types.TokenMetadata
	err := l.WithAccount(from, func(acc *types.Account) error {
		store := TokensOf(acc)
		if data, ok := store.Get(identifier); ok {
			if inst, ok := data.Instance(nonce); ok {
				meta = inst.Metadata.Copy()
			}
		}
		return store.Debit(identifier, nonce, amount)
	})
	if err != nil {
		return err
	}
	return l.CreditToken(to, identifier, nonce, amount, meta)
}

// TokenBalance returns the balance of (identifier, nonce) held by addr.
func (l *Ledger) TokenBalance(addr crypto.Address, identifier string, nonce uint64) *big.Int {
	var out *big.Int
	l.View(addr, func(acc *types.Account) {
		out = TokensOf(acc).BalanceOf(identifier, nonce)
	})
	return out
}

// TokenData answers a token data query against addr.
func (l *Ledger) TokenData(addr crypto.Address, identifier string, nonce uint64) types.TokenDataView {
	var out types.TokenDataView
	l.View(addr, func(acc *types.Account) {
		out = TokensOf(acc).DataView(identifier, nonce)
	})
	return out
}
