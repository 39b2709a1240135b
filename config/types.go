package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"ledgersim/core/types"
)

// Gas is the advisory gas schedule. Charges are summed per transaction and
// capped at the transaction's gas limit; no execution is ever aborted for
// running out of gas.
type Gas struct {
	TxBase          uint64 `toml:"TxBase"`
	PerArgByte      uint64 `toml:"PerArgByte"`
	ContractCall    uint64 `toml:"ContractCall"`
	NestedCall      uint64 `toml:"NestedCall"`
	AsyncCall       uint64 `toml:"AsyncCall"`
	TokenTransfer   uint64 `toml:"TokenTransfer"`
	StorageStore    uint64 `toml:"StorageStore"`
	StorageLoad     uint64 `toml:"StorageLoad"`
	EventLog        uint64 `toml:"EventLog"`
	Deploy          uint64 `toml:"Deploy"`
	NFTCreate       uint64 `toml:"NFTCreate"`
	LocalMintOrBurn uint64 `toml:"LocalMintOrBurn"`
}

// BlockFixture describes one block exposed to contract code. RandomSeed is
// hex encoded and must decode to at most 48 bytes; shorter seeds are
// left-padded with zeros.
type BlockFixture struct {
	Timestamp  uint64 `toml:"Timestamp"`
	Nonce      uint64 `toml:"Nonce"`
	Round      uint64 `toml:"Round"`
	Epoch      uint64 `toml:"Epoch"`
	RandomSeed string `toml:"RandomSeed"`
}

// Block groups the current and previous block fixtures.
type Block struct {
	Current  BlockFixture `toml:"Current"`
	Previous BlockFixture `toml:"Previous"`
}

// Logging selects the service name and environment used by the JSON logger.
type Logging struct {
	Service string `toml:"Service"`
	Env     string `toml:"Env"`
}

// Info converts the fixture into the runtime block representation.
func (f BlockFixture) Info() (types.BlockInfo, error) {
	info := types.BlockInfo{
		Timestamp: f.Timestamp,
		Nonce:     f.Nonce,
		Round:     f.Round,
		Epoch:     f.Epoch,
	}
	seed := strings.TrimPrefix(strings.TrimSpace(f.RandomSeed), "0x")
	if seed == "" {
		return info, nil
	}
	raw, err := hex.DecodeString(seed)
	if err != nil {
		return info, fmt.Errorf("invalid RandomSeed: %w", err)
	}
	if len(raw) > types.RandomSeedLength {
		return info, fmt.Errorf("RandomSeed exceeds %d bytes", types.RandomSeedLength)
	}
	copy(info.RandomSeed[types.RandomSeedLength-len(raw):], raw)
	return info, nil
}

// Context converts both fixtures into a block context.
func (b Block) Context() (types.BlockContext, error) {
	current, err := b.Current.Info()
	if err != nil {
		return types.BlockContext{}, fmt.Errorf("block.current: %w", err)
	}
	previous, err := b.Previous.Info()
	if err != nil {
		return types.BlockContext{}, fmt.Errorf("block.previous: %w", err)
	}
	return types.BlockContext{Current: current, Previous: previous}, nil
}
