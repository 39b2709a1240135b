package state

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"
	"sync"

	coreerrors "ledgersim/core/errors"
	"ledgersim/core/types"
	"ledgersim/crypto"
)

// revision records the state of every account touched since the revision
// was opened. A nil entry means the account did not exist.
type revision struct {
	id    int
	prior map[crypto.Address]*types.Account
}

// Ledger owns the per-address account records of a simulated world.
//
// Mutations go through WithAccount (or helpers built on it) so that every
// touched account is journaled in the innermost open revision. Revisions
// nest: RevertToSnapshot restores the world as it was when the revision was
// opened, DiscardSnapshot folds the revision into its parent.
//
// Ledger is not designed for concurrent transactions; the mutex only keeps a
// single record from being observed half-updated.
type Ledger struct {
	mu        sync.Mutex
	accounts  map[crypto.Address]*types.Account
	revisions []revision
	nextRevID int
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[crypto.Address]*types.Account)}
}

// Account returns a copy of the record stored under addr, or an empty record
// when the address was never created.
func (l *Ledger) Account(addr crypto.Address) *types.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acc, ok := l.accounts[addr]; ok {
		return acc.Copy()
	}
	return types.NewAccount()
}

// Exists reports whether an account record was created for addr.
func (l *Ledger) Exists(addr crypto.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.accounts[addr]
	return ok
}

// Addresses returns all known addresses sorted bytewise.
func (l *Ledger) Addresses() []crypto.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sortedAddresses()
}

func (l *Ledger) sortedAddresses() []crypto.Address {
	out := make([]crypto.Address, 0, len(l.accounts))
	for addr := range l.accounts {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

// View runs fn with read access to the account. Absent accounts are
// presented as an empty record that is not persisted. fn must not retain the
// pointer nor call back into the ledger.
func (l *Ledger) View(addr crypto.Address, fn func(acc *types.Account)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[addr]
	if !ok {
		acc = types.NewAccount()
	}
	fn(acc)
}

// WithAccount grants fn exclusive access to the account, creating it when
// absent. If fn returns an error the record is restored to its previous
// state, so no caller ever observes a partial update. fn must not retain the
// pointer nor call back into the ledger.
func (l *Ledger) WithAccount(addr crypto.Address, fn func(acc *types.Account) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.journal(addr)
	prior, existed := l.accounts[addr]
	var backup *types.Account
	if existed {
		backup = prior.Copy()
	}
	acc := prior
	if !existed {
		acc = types.NewAccount()
		l.accounts[addr] = acc
	}
	acc.EnsureDefaults()
	if err := fn(acc); err != nil {
		if existed {
			l.accounts[addr] = backup
		} else {
			delete(l.accounts, addr)
		}
		return err
	}
	return nil
}

// SetAccount replaces the record stored under addr.
func (l *Ledger) SetAccount(addr crypto.Address, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("ledger: nil account")
	}
	cp := account.Copy()
	cp.EnsureDefaults()
	if cp.Balance.Sign() < 0 {
		return fmt.Errorf("ledger: negative balance not allowed")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.journal(addr)
	l.accounts[addr] = cp
	return nil
}

// CreditNative adds amount to the native balance of addr.
func (l *Ledger) CreditNative(addr crypto.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	return l.WithAccount(addr, func(acc *types.Account) error {
		acc.Balance.Add(acc.Balance, amount)
		return nil
	})
}

// DebitNative subtracts amount from the native balance of addr.
func (l *Ledger) DebitNative(addr crypto.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	return l.WithAccount(addr, func(acc *types.Account) error {
		if acc.Balance.Cmp(amount) < 0 {
			return fmt.Errorf("%w: have %s, need %s", coreerrors.ErrInsufficientFunds, acc.Balance, amount)
		}
		acc.Balance.Sub(acc.Balance, amount)
		return nil
	})
}

// TransferNative moves amount between two accounts atomically with respect to
// the current revision. A zero amount touches neither account.
func (l *Ledger) TransferNative(from, to crypto.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	if err := l.DebitNative(from, amount); err != nil {
		return err
	}
	return l.CreditNative(to, amount)
}

// IncrementNonce bumps the nonce of addr and returns the new value.
func (l *Ledger) IncrementNonce(addr crypto.Address) uint64 {
	var nonce uint64
	_ = l.WithAccount(addr, func(acc *types.Account) error {
		acc.Nonce++
		nonce = acc.Nonce
		return nil
	})
	return nonce
}

// StorageGet returns a copy of the value stored under key, nil when unset.
func (l *Ledger) StorageGet(addr crypto.Address, key []byte) []byte {
	var out []byte
	l.View(addr, func(acc *types.Account) {
		if v, ok := acc.Storage[string(key)]; ok {
			out = append([]byte{}, v...)
		}
	})
	return out
}

// StoragePut stores value under key. An empty value clears the key.
func (l *Ledger) StoragePut(addr crypto.Address, key, value []byte) error {
	return l.WithAccount(addr, func(acc *types.Account) error {
		if len(value) == 0 {
			delete(acc.Storage, string(key))
			return nil
		}
		acc.Storage[string(key)] = append([]byte{}, value...)
		return nil
	})
}

// SetCode installs a contract code identifier and owner on addr.
func (l *Ledger) SetCode(addr crypto.Address, code string, owner *crypto.Address) error {
	return l.WithAccount(addr, func(acc *types.Account) error {
		acc.Code = code
		if owner != nil {
			o := *owner
			acc.Owner = &o
		}
		return nil
	})
}

// Snapshot opens a new revision and returns its identifier.
func (l *Ledger) Snapshot() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextRevID
	l.nextRevID++
	l.revisions = append(l.revisions, revision{id: id, prior: make(map[crypto.Address]*types.Account)})
	return id
}

// RevertToSnapshot discards every mutation performed since the revision was
// opened, including the ones recorded in nested revisions.
func (l *Ledger) RevertToSnapshot(id int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := l.revisionIndex(id)
	if idx < 0 {
		return fmt.Errorf("%w: %d", coreerrors.ErrUnknownRevision, id)
	}
	for i := len(l.revisions) - 1; i >= idx; i-- {
		for addr, prior := range l.revisions[i].prior {
			if prior == nil {
				delete(l.accounts, addr)
			} else {
				l.accounts[addr] = prior
			}
		}
	}
	l.revisions = l.revisions[:idx]
	return nil
}

// DiscardSnapshot keeps the mutations of the revision. When a parent revision
// is open the journal entries move to it so the parent can still revert them.
func (l *Ledger) DiscardSnapshot(id int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := l.revisionIndex(id)
	if idx < 0 {
		return fmt.Errorf("%w: %d", coreerrors.ErrUnknownRevision, id)
	}
	if idx > 0 {
		parent := l.revisions[idx-1].prior
		for i := idx; i < len(l.revisions); i++ {
			for addr, prior := range l.revisions[i].prior {
				if _, ok := parent[addr]; !ok {
					parent[addr] = prior
				}
			}
		}
	}
	l.revisions = l.revisions[:idx]
	return nil
}

// OpenRevisions returns the number of revisions not yet reverted or discarded.
func (l *Ledger) OpenRevisions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.revisions)
}

func (l *Ledger) revisionIndex(id int) int {
	for i := len(l.revisions) - 1; i >= 0; i-- {
		if l.revisions[i].id == id {
			return i
		}
	}
	return -1
}

// journal must be called with mu held, before the account is mutated.
func (l *Ledger) journal(addr crypto.Address) {
	if len(l.revisions) == 0 {
		return
	}
	top := l.revisions[len(l.revisions)-1].prior
	if _, ok := top[addr]; ok {
		return
	}
	top[addr] = l.accounts[addr].Copy()
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return coreerrors.ErrNegativeAmount
	}
	return nil
}
