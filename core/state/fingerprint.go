package state

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"ledgersim/core/types"
)

type storageEntry struct {
	Key   []byte
	Value []byte
}

type instanceEntry struct {
	Nonce      uint64
	Balance    *big.Int
	Creator    []byte
	Royalties  uint64
	Hash       []byte
	URIs       [][]byte
	Attributes []byte
}

type tokenEntry struct {
	Identifier string
	Frozen     bool
	Roles      uint64
	LastNonce  uint64
	Instances  []instanceEntry
}

type accountEntry struct {
	Address []byte
	Nonce   uint64
	Balance *big.Int
	Owner   []byte
	Code    string
	Storage []storageEntry
	Tokens  []tokenEntry
}

// EncodeWorld serializes every account into a deterministic RLP
// representation: accounts sorted by address, storage by key, tokens by
// identifier and instances by nonce.
func (l *Ledger) EncodeWorld() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := make([]accountEntry, 0, len(l.accounts))
	for _, addr := range l.sortedAddresses() {
		entries = append(entries, encodeAccount(addr[:], l.accounts[addr]))
	}
	return rlp.EncodeToBytes(entries)
}

// Fingerprint hashes the encoded world state. Two ledgers holding the same
// records yield the same fingerprint.
func (l *Ledger) Fingerprint() (common.Hash, error) {
	encoded, err := l.EncodeWorld()
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(ethcrypto.Keccak256(encoded)), nil
}

func encodeAccount(addr []byte, acc *types.Account) accountEntry {
	entry := accountEntry{
		Address: append([]byte(nil), addr...),
		Nonce:   acc.Nonce,
		Balance: big.NewInt(0),
		Code:    acc.Code,
	}
	if acc.Balance != nil {
		entry.Balance.Set(acc.Balance)
	}
	if acc.Owner != nil {
		entry.Owner = acc.Owner.Bytes()
	}
	for _, key := range acc.StorageKeys() {
		entry.Storage = append(entry.Storage, storageEntry{Key: []byte(key), Value: acc.Storage[key]})
	}
	ids := make([]string, 0, len(acc.Tokens))
	for id := range acc.Tokens {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		data := acc.Tokens[id]
		token := tokenEntry{
			Identifier: id,
			Frozen:     data.Frozen,
			Roles:      uint64(data.Roles),
			LastNonce:  data.LastNonce,
		}
		for _, nonce := range data.Nonces() {
			inst := data.Instances[nonce]
			ie := instanceEntry{
				Nonce:      nonce,
				Balance:    big.NewInt(0),
				Royalties:  inst.Metadata.Royalties,
				Hash:       inst.Metadata.Hash,
				URIs:       inst.Metadata.URIs,
				Attributes: inst.Metadata.Attributes,
			}
			if inst.Balance != nil {
				ie.Balance.Set(inst.Balance)
			}
			if inst.Metadata.Creator != nil {
				ie.Creator = inst.Metadata.Creator.Bytes()
			}
			token.Instances = append(token.Instances, ie)
		}
		entry.Tokens = append(entry.Tokens, token)
	}
	return entry
}
