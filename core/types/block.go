package types

// RandomSeedLength is the size of a block random seed.
const RandomSeedLength = 48

// BlockInfo is a block context fixture exposed to contract code.
type BlockInfo struct {
	Timestamp  uint64                 `json:"timestamp"`
	Nonce      uint64                 `json:"nonce"`
	Round      uint64                 `json:"round"`
	Epoch      uint64                 `json:"epoch"`
	RandomSeed [RandomSeedLength]byte `json:"randomSeed"`
}

// BlockContext carries the current and previous block fixtures. It is set
// once per scenario run and read-only afterwards.
type BlockContext struct {
	Current  BlockInfo `json:"current"`
	Previous BlockInfo `json:"previous"`
}
