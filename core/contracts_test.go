package core

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"ledgersim/config"
	"ledgersim/core/state"
	"ledgersim/core/types"
	"ledgersim/crypto"
	"ledgersim/observability/logging"
)

const (
	payToken = "PAY-abcdef"
	nftToken = "NFT-123456"
)

var (
	ownerAddr   = crypto.NamedAddress("owner")
	userAddr    = crypto.NamedAddress("user")
	featuresSC  = crypto.NamedContractAddress("payable-features")
	vaultSC     = crypto.NamedContractAddress("vault")
	childSC     = crypto.NamedContractAddress("child")
	minterSC    = crypto.NamedContractAddress("minter")
	nftHash     = []byte{0xca, 0xfe, 0xba, 0xbe}
	leakedCtx   *Context
	testContext = context.Background()
)

func payableFeatures() *Contract {
	echo := func(ctx *Context) error {
		cv := ctx.CallValue()
		arena := ctx.Arena()
		ctx.FinishBigInt(arena.BigInt(cv.NativeValue()))
		for _, item := range arena.Vector(cv.AllTokenTransfers()) {
			p := cv.DecodePayment(item)
			ctx.Finish([]byte(p.Identifier), new(big.Int).SetUint64(p.Nonce).Bytes(), p.Amount.Bytes())
		}
		return nil
	}
	finishPayment := func(ctx *Context) error {
		amount, id, err := ctx.CallValue().PaymentTokenPair()
		if err != nil {
			return err
		}
		ctx.Finish([]byte(id))
		ctx.FinishBigInt(ctx.Arena().BigInt(amount))
		return nil
	}
	return MustContract("payable-features",
		Endpoint{Name: "echo_call_value", Payable: "*", Handler: echo},
		Endpoint{Name: "payable_any", Payable: "*", Handler: finishPayment},
		Endpoint{Name: "payable_moax", Payable: "MOAX", Handler: finishPayment},
		Endpoint{Name: "payable_token", Payable: payToken, Handler: finishPayment},
		Endpoint{Name: "non_payable", Handler: func(ctx *Context) error { return nil }},
		Endpoint{Name: "pay", Payable: "MOAX", Handler: func(ctx *Context) error {
			return ctx.SignalError("payment refused")
		}},
		Endpoint{Name: "require_token", Payable: "*", Handler: func(ctx *Context) error {
			h, err := ctx.CallValue().RequireDCT(payToken)
			if err != nil {
				return err
			}
			ctx.FinishBigInt(ctx.Arena().BigInt(h))
			return nil
		}},
	)
}

func vault() *Contract {
	store := func(ctx *Context) error {
		key, err := ctx.Arg(0)
		if err != nil {
			return err
		}
		value, err := ctx.Arg(1)
		if err != nil {
			return err
		}
		return ctx.StoragePut(key, value)
	}
	return MustContract("vault",
		Endpoint{Name: "store", Payable: "*", Handler: store},
		Endpoint{Name: "fail_after_store", Handler: func(ctx *Context) error {
			if err := ctx.StoragePut([]byte("partial"), []byte("1")); err != nil {
				return err
			}
			ctx.EmitLog("partial", nil, nil)
			return ctx.SignalError("Rejected")
		}},
		Endpoint{Name: "call_child_recover", Handler: func(ctx *Context) error {
			if _, err := ctx.Call(childSC, nil, nil, "fail_after_store"); err != nil {
				return ctx.StoragePut([]byte("recovered"), []byte(err.Error()))
			}
			return nil
		}},
		Endpoint{Name: "call_child_propagate", Handler: func(ctx *Context) error {
			if err := ctx.StoragePut([]byte("parent"), []byte("1")); err != nil {
				return err
			}
			_, err := ctx.Call(childSC, nil, nil, "fail_after_store")
			return err
		}},
		Endpoint{Name: "call_child_store", Payable: "MOAX", Handler: func(ctx *Context) error {
			out, err := ctx.Call(childSC, ctx.CallValue().Native(), nil, "store", []byte("k"), []byte("v"))
			if err != nil {
				return err
			}
			ctx.Finish(out...)
			return nil
		}},
		Endpoint{Name: "recurse", Handler: func(ctx *Context) error {
			_, err := ctx.Call(ctx.SelfAddress(), nil, nil, "recurse")
			return err
		}},
		Endpoint{Name: "async_store", Handler: func(ctx *Context) error {
			ctx.AsyncCall(childSC, nil, nil, "store", []byte("async"), []byte("done"))
			return ctx.StoragePut([]byte("queued"), []byte("1"))
		}},
		Endpoint{Name: "async_fail", Handler: func(ctx *Context) error {
			ctx.AsyncCall(childSC, nil, nil, "fail_after_store")
			return ctx.StoragePut([]byte("queued"), []byte("1"))
		}},
		Endpoint{Name: "bad_handle", Handler: func(ctx *Context) error {
			if err := ctx.StoragePut([]byte("before"), []byte("fault")); err != nil {
				return err
			}
			ctx.Arena().Buffer(99)
			return nil
		}},
		Endpoint{Name: "nil_map", Handler: func(ctx *Context) error {
			if err := ctx.StoragePut([]byte("before"), []byte("panic")); err != nil {
				return err
			}
			var counts map[string]int
			counts[ctx.Function()]++
			return nil
		}},
		Endpoint{Name: "block", Handler: func(ctx *Context) error {
			ctx.FinishBigInt(new(big.Int).SetUint64(ctx.CurrentBlock().Timestamp))
			ctx.FinishBigInt(new(big.Int).SetUint64(ctx.PreviousBlock().Round))
			return nil
		}},
		Endpoint{Name: "leak", Handler: func(ctx *Context) error {
			leakedCtx = ctx
			return nil
		}},
	)
}

func counter() *Contract {
	return MustContract("counter",
		Endpoint{Name: InitFunction, Payable: "MOAX", Handler: func(ctx *Context) error {
			start, err := ctx.Arg(0)
			if err != nil {
				return err
			}
			return ctx.StoragePut([]byte("count"), start)
		}},
		Endpoint{Name: "owner", Handler: func(ctx *Context) error {
			ctx.Finish(ctx.Owner().Bytes())
			return nil
		}},
	)
}

func minter() *Contract {
	return MustContract("minter",
		Endpoint{Name: "mint_and_send", Handler: func(ctx *Context) error {
			nonce, err := ctx.NFTCreate(nftToken, big.NewInt(5), types.TokenMetadata{
				Royalties:  750,
				Hash:       nftHash,
				URIs:       [][]byte{[]byte("https://nft.example/1")},
				Attributes: []byte("color:red"),
			})
			if err != nil {
				return err
			}
			if ctx.CurrentNFTNonce(nftToken) != nonce {
				return ctx.SignalError("nonce mismatch")
			}
			return ctx.TransferToken(ctx.Caller(), nftToken, nonce, big.NewInt(2))
		}},
		Endpoint{Name: "mint_fungible", Handler: func(ctx *Context) error {
			return ctx.LocalMint(payToken, 0, big.NewInt(10))
		}},
	)
}

func newTestWorld(t *testing.T, mutate ...func(*config.Config)) *World {
	t.Helper()
	cfg := config.Default()
	cfg.Block.Current.Timestamp = 1_700
	cfg.Block.Previous.Round = 41
	for _, fn := range mutate {
		fn(cfg)
	}
	w, err := NewWorld(cfg, WithLogger(logging.Discard()), WithMetrics(nil))
	require.NoError(t, err)
	for _, c := range []*Contract{payableFeatures(), vault(), counter(), minter()} {
		require.NoError(t, w.RegisterContract(c))
	}
	user := types.NewAccount()
	user.Balance.SetInt64(1_000)
	require.NoError(t, state.TokensOf(user).Credit(payToken, 0, big.NewInt(100), types.TokenMetadata{}))
	require.NoError(t, w.SetAccount(userAddr, user))
	require.NoError(t, w.SetAccount(ownerAddr, &types.Account{Balance: big.NewInt(5_000)}))
	for addr, code := range map[crypto.Address]string{
		featuresSC: "payable-features",
		vaultSC:    "vault",
		childSC:    "vault",
		minterSC:   "minter",
	} {
		acc := types.NewAccount()
		acc.Code = code
		owner := ownerAddr
		acc.Owner = &owner
		require.NoError(t, w.SetAccount(addr, acc))
	}
	return w
}

func call(from, to crypto.Address, function string, args ...[]byte) *types.TxInput {
	return &types.TxInput{From: from, To: to, Function: function, Args: args, GasLimit: 1_000_000}
}

func u64(v uint64) *uint64 { return &v }
