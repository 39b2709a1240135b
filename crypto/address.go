package crypto

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the human-readable part used when rendering addresses.
type AddressPrefix string

const (
	MOAPrefix AddressPrefix = "moa"

	// AddressLength is the size of every account address in bytes.
	AddressLength = 32

	// contractAddressZeros is the number of leading zero bytes reserved for
	// smart contract addresses.
	contractAddressZeros = 8
)

// wasmVMType tags the addresses derived for deployed contracts.
var wasmVMType = [2]byte{0x05, 0x00}

// Address identifies an account on the simulated ledger.
type Address [AddressLength]byte

// ZeroAddress is the empty address. It is never a valid transaction sender.
var ZeroAddress Address

// BytesToAddress copies b into an Address. Longer inputs keep their trailing
// bytes, shorter inputs are left padded with zeros.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a[:])
	return out
}

// IsZero reports whether the address is the zero value.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// IsSmartContract reports whether the address lives in the contract range,
// i.e. starts with eight zero bytes.
func (a Address) IsSmartContract() bool {
	if a.IsZero() {
		return false
	}
	for _, b := range a[:contractAddressZeros] {
		if b != 0 {
			return false
		}
	}
	return true
}

// Hex returns the lowercase hex encoding of the address.
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// String renders the address in bech32 using the moa prefix.
func (a Address) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(MOAPrefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// DecodeAddress parses a bech32 encoded moa address.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if AddressPrefix(prefix) != MOAPrefix {
		return Address{}, fmt.Errorf("unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != AddressLength {
		return Address{}, fmt.Errorf("address must be %d bytes long, got %d", AddressLength, len(conv))
	}
	return BytesToAddress(conv), nil
}

// NewContractAddress derives the address of a contract deployed by creator
// while the creator's nonce equals nonce. The result is deterministic so that
// replaying a scenario yields the same contract addresses.
func NewContractAddress(creator Address, nonce uint64) Address {
	var nonceBytes [8]byte
	binary.LittleEndian.PutUint64(nonceBytes[:], nonce)
	base := crypto.Keccak256(creator[:], nonceBytes[:])

	var addr Address
	copy(addr[contractAddressZeros:], wasmVMType[:])
	copy(addr[contractAddressZeros+len(wasmVMType):AddressLength-2], base[contractAddressZeros+len(wasmVMType):AddressLength-2])
	copy(addr[AddressLength-2:], creator[AddressLength-2:])
	return addr
}

// NamedAddress builds a user address from a readable name, padding it with
// underscores. It mirrors the "address:name" notation used by test scenarios.
func NamedAddress(name string) Address {
	return padName(0, name)
}

// NamedContractAddress builds a contract address from a readable name: eight
// zero bytes followed by the underscore padded name ("sc:name").
func NamedContractAddress(name string) Address {
	return padName(contractAddressZeros, name)
}

func padName(offset int, name string) Address {
	var a Address
	n := copy(a[offset:], name)
	for i := offset + n; i < AddressLength; i++ {
		a[i] = '_'
	}
	return a
}
