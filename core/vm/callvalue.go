package vm

import (
	"fmt"
	"math/big"

	coreerrors "ledgersim/core/errors"
	"ledgersim/core/types"
)

// Payment policies declared by endpoints.
const (
	PolicyNonPayable = ""
	PolicyAny        = "*"
	PolicyMOAX       = types.MOAXIdentifier
)

// Resolver exposes the payment attached to the call being executed. Values
// are materialised into the reserved handles of the current arena frame on
// demand, so a resolver must only be used while its frame is the innermost
// one.
type Resolver struct {
	arena     *Arena
	native    *big.Int
	transfers []types.TokenPayment
}

// NewResolver binds the payment of a call to arena.
func NewResolver(arena *Arena, native *big.Int, transfers []types.TokenPayment) *Resolver {
	r := &Resolver{arena: arena, native: new(big.Int)}
	if native != nil {
		r.native.Set(native)
	}
	r.transfers = make([]types.TokenPayment, len(transfers))
	for i, p := range transfers {
		r.transfers[i] = copyPayment(p)
	}
	return r
}

func copyPayment(p types.TokenPayment) types.TokenPayment {
	out := types.TokenPayment{Identifier: p.Identifier, Nonce: p.Nonce, Amount: new(big.Int)}
	if p.Amount != nil {
		out.Amount.Set(p.Amount)
	}
	return out
}

// NumTransfers returns the number of token transfers attached to the call.
func (r *Resolver) NumTransfers() int { return len(r.transfers) }

// Payments returns a copy of the token transfers in call order.
func (r *Resolver) Payments() []types.TokenPayment {
	out := make([]types.TokenPayment, len(r.transfers))
	for i, p := range r.transfers {
		out[i] = copyPayment(p)
	}
	return out
}

// Native returns the native amount attached to the call.
func (r *Resolver) Native() *big.Int { return new(big.Int).Set(r.native) }

// NativeValue loads the native amount into its reserved handle.
func (r *Resolver) NativeValue() Handle {
	r.arena.SetBigInt(HandleCallValueMOAX, r.native)
	return HandleCallValueMOAX
}

// TokenValue loads the amount of the single token transfer into its reserved
// handle. Without transfers the amount is zero.
func (r *Resolver) TokenValue() (Handle, error) {
	switch len(r.transfers) {
	case 0:
		r.arena.SetBigInt(HandleCallValueSingleDCT, nil)
	case 1:
		r.arena.SetBigInt(HandleCallValueSingleDCT, r.transfers[0].Amount)
	default:
		return HandleCallValueSingleDCT, coreerrors.ErrTooManyTokenTransfers
	}
	return HandleCallValueSingleDCT, nil
}

// AllTokenTransfers loads every transfer into the multi transfer handle. Each
// element is a vector of [identifier buffer, nonce bigint, amount bigint].
func (r *Resolver) AllTokenTransfers() Handle {
	items := make([]Handle, 0, len(r.transfers))
	for _, p := range r.transfers {
		id := r.arena.NewBuffer([]byte(p.Identifier))
		nonce := r.arena.NewBigInt(new(big.Int).SetUint64(p.Nonce))
		amount := r.arena.NewBigInt(p.Amount)
		items = append(items, r.arena.NewVector(id, nonce, amount))
	}
	r.arena.Write(HandleCallValueMultiDCT, VectorValue(items))
	return HandleCallValueMultiDCT
}

// DecodePayment reads back one element produced by AllTokenTransfers.
func (r *Resolver) DecodePayment(h Handle) types.TokenPayment {
	parts := r.arena.Vector(h)
	if len(parts) != 3 {
		fault("decode payment", h, "expected 3 entries, found %d", len(parts))
	}
	nonce := r.arena.BigInt(parts[1])
	return types.TokenPayment{
		Identifier: string(r.arena.Buffer(parts[0])),
		Nonce:      nonce.Uint64(),
		Amount:     r.arena.BigInt(parts[2]),
	}
}

// first returns the first transfer, or the empty native payment when no
// tokens were transferred.
func (r *Resolver) first() types.TokenPayment {
	if len(r.transfers) == 0 {
		return types.NoPayment()
	}
	return r.transfers[0]
}

// Token returns the identifier of the first transfer, MOAX without transfers.
func (r *Resolver) Token() string {
	return r.first().Identifier
}

// TokenNonce returns the nonce of the first transfer, 0 without transfers.
func (r *Resolver) TokenNonce() uint64 {
	return r.first().Nonce
}

// TokenType returns the type of the first transfer, Fungible without
// transfers.
func (r *Resolver) TokenType() types.TokenType {
	if len(r.transfers) == 0 {
		return types.TokenFungible
	}
	return r.first().Type()
}

// RequireMOAX fails when tokens were transferred and otherwise returns the
// native value handle.
func (r *Resolver) RequireMOAX() (Handle, error) {
	if len(r.transfers) > 0 {
		return 0, coreerrors.ErrNonPayableToken
	}
	return r.NativeValue(), nil
}

// RequireDCT expects exactly one transfer of identifier. The expected
// identifier is left in the first temporary buffer.
func (r *Resolver) RequireDCT(identifier string) (Handle, error) {
	r.arena.SetBuffer(HandleTempBuffer1, []byte(identifier))
	if len(r.transfers) != 1 {
		return 0, coreerrors.ErrSingleTokenExpected
	}
	if r.transfers[0].Identifier != identifier {
		return 0, coreerrors.ErrBadTokenProvided
	}
	return r.TokenValue()
}

// PaymentTokenPair returns the amount handle and identifier of the payment,
// native when no tokens were transferred.
func (r *Resolver) PaymentTokenPair() (Handle, string, error) {
	if len(r.transfers) == 0 {
		return r.NativeValue(), types.MOAXIdentifier, nil
	}
	h, err := r.TokenValue()
	if err != nil {
		return 0, "", err
	}
	return h, r.Token(), nil
}

// Payment returns the single payment of the call as a Go value.
func (r *Resolver) Payment() (types.TokenPayment, error) {
	if len(r.transfers) == 0 {
		p := types.NoPayment()
		p.Amount = r.Native()
		return p, nil
	}
	if len(r.transfers) > 1 {
		return types.TokenPayment{}, coreerrors.ErrTooManyTokenTransfers
	}
	return copyPayment(r.transfers[0]), nil
}

// CheckPolicy enforces an endpoint's payment policy. It is evaluated before
// any entry point logic runs.
func (r *Resolver) CheckPolicy(policy string) error {
	hasNative := r.native.Sign() > 0
	hasTokens := len(r.transfers) > 0
	if hasNative && hasTokens {
		return coreerrors.ErrPaymentConflict
	}
	switch policy {
	case PolicyAny:
		return nil
	case PolicyNonPayable:
		if hasNative {
			return coreerrors.ErrNonPayable
		}
		if hasTokens {
			return coreerrors.ErrNonPayableToken
		}
		return nil
	case PolicyMOAX:
		if hasTokens {
			return coreerrors.ErrNonPayableToken
		}
		return nil
	}
	if !types.IsValidTokenIdentifier(policy) {
		return fmt.Errorf("vm: invalid payment policy %q", policy)
	}
	if hasNative {
		return coreerrors.ErrNonPayable
	}
	if len(r.transfers) != 1 {
		return coreerrors.ErrSingleTokenExpected
	}
	if r.transfers[0].Identifier != policy {
		return coreerrors.ErrBadTokenProvided
	}
	return nil
}
