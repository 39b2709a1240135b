package types

import (
	"math/big"
	"sort"

	"ledgersim/crypto"
)

// MOAXIdentifier is the sentinel identifier reported for the native currency.
const MOAXIdentifier = "MOAX"

// MaxRoyalties is the upper bound for royalties expressed in basis points.
const MaxRoyalties = 10_000

const (
	tickerMinLength   = 3
	tickerMaxLength   = 10
	randomSuffixChars = 6
)

// IsMOAX reports whether the identifier denotes the native currency.
func IsMOAX(identifier string) bool {
	return identifier == MOAXIdentifier
}

// IsValidTokenIdentifier checks the TICKER-abcdef shape: an upper case
// alphanumeric ticker of 3 to 10 characters, a dash and six lower case hex
// characters.
func IsValidTokenIdentifier(identifier string) bool {
	dash := len(identifier) - randomSuffixChars - 1
	if dash < tickerMinLength || dash > tickerMaxLength || identifier[dash] != '-' {
		return false
	}
	for i := 0; i < dash; i++ {
		c := identifier[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	for i := dash + 1; i < len(identifier); i++ {
		c := identifier[i]
		if !(c >= 'a' && c <= 'f') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// TokenType classifies a token instance or payment.
type TokenType uint8

const (
	TokenFungible TokenType = iota
	TokenNonFungible
	TokenSemiFungible
	TokenMeta
	TokenInvalid
)

func (t TokenType) String() string {
	switch t {
	case TokenFungible:
		return "Fungible"
	case TokenNonFungible:
		return "NonFungible"
	case TokenSemiFungible:
		return "SemiFungible"
	case TokenMeta:
		return "Meta"
	}
	return "Invalid"
}

// TokenTypeFromNonce mirrors the host rule used for data queries: nonce zero
// is fungible, anything else is reported as non-fungible.
func TokenTypeFromNonce(nonce uint64) TokenType {
	if nonce == 0 {
		return TokenFungible
	}
	return TokenNonFungible
}

// RoleFlags is a bitset over the fixed local role vocabulary.
type RoleFlags uint64

const (
	RoleNone                RoleFlags = 0
	RoleMint                RoleFlags = 1 << 0
	RoleBurn                RoleFlags = 1 << 1
	RoleNFTCreate           RoleFlags = 1 << 2
	RoleNFTAddQuantity      RoleFlags = 1 << 3
	RoleNFTBurn             RoleFlags = 1 << 4
	RoleNFTAddURI           RoleFlags = 1 << 5
	RoleNFTUpdateAttributes RoleFlags = 1 << 6
	RoleTransfer            RoleFlags = 1 << 7
)

var roleNames = []struct {
	flag RoleFlags
	name string
}{
	{RoleMint, "DCTRoleLocalMint"},
	{RoleBurn, "DCTRoleLocalBurn"},
	{RoleNFTCreate, "DCTRoleNFTCreate"},
	{RoleNFTAddQuantity, "DCTRoleNFTAddQuantity"},
	{RoleNFTBurn, "DCTRoleNFTBurn"},
	{RoleNFTAddURI, "DCTRoleNFTAddURI"},
	{RoleNFTUpdateAttributes, "DCTRoleNFTUpdateAttributes"},
	{RoleTransfer, "DCTTransferRole"},
}

// RoleFromName maps a role name to its flag. Unknown names map to RoleNone.
func RoleFromName(name string) RoleFlags {
	for _, r := range roleNames {
		if r.name == name {
			return r.flag
		}
	}
	return RoleNone
}

// ParseRoles folds a list of role names into a bitset.
func ParseRoles(names []string) RoleFlags {
	flags := RoleNone
	for _, name := range names {
		flags |= RoleFromName(name)
	}
	return flags
}

// Has reports whether every bit of role is set.
func (r RoleFlags) Has(role RoleFlags) bool {
	return r&role == role
}

// Names returns the names of the set roles in vocabulary order.
func (r RoleFlags) Names() []string {
	names := make([]string, 0, len(roleNames))
	for _, role := range roleNames {
		if r.Has(role.flag) {
			names = append(names, role.name)
		}
	}
	return names
}

// TokenMetadata describes a token instance. A nil Creator or Hash means the
// field was never set.
type TokenMetadata struct {
	Creator    *crypto.Address `json:"creator,omitempty"`
	Royalties  uint64          `json:"royalties"`
	Hash       []byte          `json:"hash,omitempty"`
	URIs       [][]byte        `json:"uris,omitempty"`
	Attributes []byte          `json:"attributes,omitempty"`
}

// Copy returns a deep copy of the metadata.
func (m TokenMetadata) Copy() TokenMetadata {
	cp := TokenMetadata{Royalties: m.Royalties}
	if m.Creator != nil {
		creator := *m.Creator
		cp.Creator = &creator
	}
	if m.Hash != nil {
		cp.Hash = append([]byte{}, m.Hash...)
	}
	if m.URIs != nil {
		cp.URIs = make([][]byte, len(m.URIs))
		for i, uri := range m.URIs {
			cp.URIs[i] = append([]byte{}, uri...)
		}
	}
	if m.Attributes != nil {
		cp.Attributes = append([]byte{}, m.Attributes...)
	}
	return cp
}

// TokenInstance holds the balance and metadata of one (identifier, nonce).
type TokenInstance struct {
	Balance  *big.Int      `json:"balance"`
	Metadata TokenMetadata `json:"metadata"`
}

// Copy returns a deep copy of the instance.
func (i *TokenInstance) Copy() *TokenInstance {
	if i == nil {
		return nil
	}
	cp := &TokenInstance{Balance: new(big.Int), Metadata: i.Metadata.Copy()}
	if i.Balance != nil {
		cp.Balance.Set(i.Balance)
	}
	return cp
}

// TokenData is everything an account holds for one token identifier.
type TokenData struct {
	Frozen    bool                      `json:"frozen"`
	Roles     RoleFlags                 `json:"roles"`
	LastNonce uint64                    `json:"lastNonce"`
	Instances map[uint64]*TokenInstance `json:"instances"`
}

// NewTokenData returns empty token data with the instance map initialised.
func NewTokenData() *TokenData {
	return &TokenData{Instances: make(map[uint64]*TokenInstance)}
}

// Copy returns a deep copy of the token data.
func (d *TokenData) Copy() *TokenData {
	if d == nil {
		return nil
	}
	cp := &TokenData{
		Frozen:    d.Frozen,
		Roles:     d.Roles,
		LastNonce: d.LastNonce,
		Instances: make(map[uint64]*TokenInstance, len(d.Instances)),
	}
	for nonce, inst := range d.Instances {
		cp.Instances[nonce] = inst.Copy()
	}
	return cp
}

// Instance returns the instance stored under nonce, if any.
func (d *TokenData) Instance(nonce uint64) (*TokenInstance, bool) {
	if d == nil {
		return nil, false
	}
	inst, ok := d.Instances[nonce]
	return inst, ok
}

// Nonces returns the instance nonces in ascending order.
func (d *TokenData) Nonces() []uint64 {
	nonces := make([]uint64, 0, len(d.Instances))
	for n := range d.Instances {
		nonces = append(nonces, n)
	}
	sort.Slice(nonces, func(i, j int) bool { return nonces[i] < nonces[j] })
	return nonces
}

// TokenPayment is one token transfer attached to a call.
type TokenPayment struct {
	Identifier string   `json:"identifier"`
	Nonce      uint64   `json:"nonce"`
	Amount     *big.Int `json:"amount"`
}

// NoPayment is the payment reported when nothing was transferred.
func NoPayment() TokenPayment {
	return TokenPayment{Identifier: MOAXIdentifier, Amount: big.NewInt(0)}
}

// Type derives the token type from the payment shape.
func (p TokenPayment) Type() TokenType {
	if p.Amount == nil || p.Amount.Sign() == 0 || IsMOAX(p.Identifier) {
		return TokenInvalid
	}
	switch {
	case p.Nonce == 0:
		return TokenFungible
	case p.Amount.IsUint64() && p.Amount.Uint64() == 1:
		return TokenNonFungible
	default:
		return TokenSemiFungible
	}
}

// TokenDataView is the read-only answer to a token data query.
type TokenDataView struct {
	Type       TokenType
	Identifier string
	Amount     *big.Int
	Frozen     bool
	Hash       []byte
	Attributes []byte
	Creator    crypto.Address
	Royalties  uint64
	URIs       [][]byte
}
