package types

import (
	"math/big"
	"sort"

	"ledgersim/crypto"
)

// Account is the ledger record stored for every address. Storage keys are raw
// byte strings; Tokens holds the embedded token store keyed by identifier.
type Account struct {
	Nonce   uint64                `json:"nonce"`
	Balance *big.Int              `json:"balance"`
	Owner   *crypto.Address       `json:"owner,omitempty"`
	Storage map[string][]byte     `json:"storage,omitempty"`
	Code    string                `json:"code,omitempty"`
	Tokens  map[string]*TokenData `json:"tokens,omitempty"`
}

// NewAccount returns an empty account with all maps initialised.
func NewAccount() *Account {
	return &Account{
		Balance: big.NewInt(0),
		Storage: make(map[string][]byte),
		Tokens:  make(map[string]*TokenData),
	}
}

// EnsureDefaults fills nil fields so callers never observe nil balances or maps.
func (a *Account) EnsureDefaults() {
	if a.Balance == nil {
		a.Balance = big.NewInt(0)
	}
	if a.Storage == nil {
		a.Storage = make(map[string][]byte)
	}
	if a.Tokens == nil {
		a.Tokens = make(map[string]*TokenData)
	}
}

// HasCode reports whether a contract is deployed on the account.
func (a *Account) HasCode() bool {
	return a != nil && a.Code != ""
}

// Copy returns a deep copy of the account.
func (a *Account) Copy() *Account {
	if a == nil {
		return nil
	}
	cp := &Account{
		Nonce:   a.Nonce,
		Balance: new(big.Int),
		Code:    a.Code,
		Storage: make(map[string][]byte, len(a.Storage)),
		Tokens:  make(map[string]*TokenData, len(a.Tokens)),
	}
	if a.Balance != nil {
		cp.Balance.Set(a.Balance)
	}
	if a.Owner != nil {
		owner := *a.Owner
		cp.Owner = &owner
	}
	for k, v := range a.Storage {
		cp.Storage[k] = append([]byte(nil), v...)
	}
	for id, data := range a.Tokens {
		cp.Tokens[id] = data.Copy()
	}
	return cp
}

// StorageKeys returns the storage keys in sorted order.
func (a *Account) StorageKeys() []string {
	keys := make([]string, 0, len(a.Storage))
	for k := range a.Storage {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
