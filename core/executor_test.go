package core

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"ledgersim/config"
	"ledgersim/core/events"
	"ledgersim/core/types"
	"ledgersim/crypto"
)

func TestNonceConsumedPerTransaction(t *testing.T) {
	w := newTestWorld(t)

	res := w.Transfer(testContext, userAddr, ownerAddr, big.NewInt(10))
	require.True(t, res.Succeeded(), res.Message)

	tx := call(userAddr, featuresSC, "pay")
	tx.Value = big.NewInt(100)
	require.Equal(t, types.StatusUserError, w.Call(testContext, tx).Status)

	require.Equal(t, types.StatusFunctionNotFound, w.Call(testContext, call(userAddr, featuresSC, "missing")).Status)

	acc := w.Ledger().Account(userAddr)
	if acc.Nonce != 3 {
		t.Fatalf("expected nonce 3, got %d", acc.Nonce)
	}
	if acc.Balance.Int64() != 990 {
		t.Fatalf("expected balance 990, got %s", acc.Balance)
	}
}

func TestPayAbortRestoresBalances(t *testing.T) {
	w := newTestWorld(t)
	tx := call(userAddr, featuresSC, "pay")
	tx.Value = big.NewInt(100)

	res := w.Call(testContext, tx)
	require.Equal(t, types.StatusUserError, res.Status)
	require.Equal(t, "payment refused", res.Message)
	require.Empty(t, res.Events)

	require.NoError(t, w.CheckAccounts(map[crypto.Address]AccountExpectation{
		userAddr:   {Nonce: u64(1), Balance: big.NewInt(1_000)},
		featuresSC: {Balance: big.NewInt(0)},
	}))
}

func TestInvalidInputKeepsNonce(t *testing.T) {
	tests := []struct {
		name string
		tx   *types.TxInput
	}{
		{name: "missing sender", tx: call(crypto.Address{}, featuresSC, "payable_any")},
		{name: "missing receiver", tx: call(userAddr, crypto.Address{}, "payable_any")},
		{name: "negative value", tx: func() *types.TxInput {
			tx := call(userAddr, featuresSC, "payable_any")
			tx.Value = big.NewInt(-1)
			return tx
		}()},
		{name: "moax as token", tx: func() *types.TxInput {
			tx := call(userAddr, featuresSC, "payable_any")
			tx.TokenTransfers = []types.TokenPayment{{Identifier: types.MOAXIdentifier, Amount: big.NewInt(1)}}
			return tx
		}()},
		{name: "gas price too large", tx: func() *types.TxInput {
			tx := call(userAddr, featuresSC, "payable_any")
			tx.GasPrice = new(big.Int).Lsh(big.NewInt(1), 256)
			return tx
		}()},
		{name: "fee overflow", tx: func() *types.TxInput {
			tx := call(userAddr, featuresSC, "payable_any")
			tx.GasLimit = 1 << 60
			tx.GasPrice = new(big.Int).Lsh(big.NewInt(1), 200)
			return tx
		}()},
	}
	w := newTestWorld(t)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := w.Call(testContext, tc.tx)
			if res.Status != types.StatusInvalidInput {
				t.Fatalf("expected invalid input, got %s (%s)", res.Status, res.Message)
			}
		})
	}
	require.Zero(t, w.Ledger().Account(userAddr).Nonce)
}

func TestPaymentPolicies(t *testing.T) {
	token := func(amount int64) []types.TokenPayment {
		return []types.TokenPayment{{Identifier: payToken, Amount: big.NewInt(amount)}}
	}
	tests := []struct {
		name      string
		function  string
		value     int64
		transfers []types.TokenPayment
		status    types.Status
		message   string
	}{
		{name: "conflict", function: "payable_any", value: 1, transfers: token(1), status: types.StatusUserError, message: "cannot transfer both MOAX and DCT"},
		{name: "non payable native", function: "non_payable", value: 5, status: types.StatusUserError, message: "function does not accept MOAX payment"},
		{name: "non payable token", function: "non_payable", transfers: token(5), status: types.StatusUserError, message: "function does not accept DCT payment"},
		{name: "moax only", function: "payable_moax", transfers: token(1), status: types.StatusUserError, message: "function does not accept DCT payment"},
		{name: "token only", function: "payable_token", value: 5, status: types.StatusUserError, message: "function does not accept MOAX payment"},
		{name: "single token expected", function: "require_token", status: types.StatusUserError, message: "function expects single DCT payment"},
		{name: "unknown function", function: "nope", status: types.StatusFunctionNotFound, message: "invalid function (not found)"},
		{name: "token twice", function: "payable_token", transfers: append(token(1), token(1)...), status: types.StatusUserError, message: "function expects single DCT payment"},
		{name: "token accepted", function: "payable_token", transfers: token(7), status: types.StatusOK},
		{name: "moax accepted", function: "payable_moax", value: 9, status: types.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := newTestWorld(t)
			tx := call(userAddr, featuresSC, tc.function)
			tx.Value = big.NewInt(tc.value)
			tx.TokenTransfers = tc.transfers
			res := w.Call(testContext, tx)
			if res.Status != tc.status {
				t.Fatalf("expected %s, got %s (%s)", tc.status, res.Status, res.Message)
			}
			if tc.message != "" {
				require.Equal(t, tc.message, res.Message)
			}
			if res.Status != types.StatusOK {
				require.Equal(t, int64(1_000), w.Ledger().Account(userAddr).Balance.Int64())
				require.Equal(t, int64(100), w.Ledger().TokenBalance(userAddr, payToken, 0).Int64())
			}
		})
	}
}

func TestPaymentTokenPairOutput(t *testing.T) {
	w := newTestWorld(t)
	tx := call(userAddr, featuresSC, "payable_token")
	tx.TokenTransfers = []types.TokenPayment{{Identifier: payToken, Amount: big.NewInt(7)}}
	res := w.Call(testContext, tx)
	require.True(t, res.Succeeded(), res.Message)
	require.Len(t, res.Out, 2)
	require.Equal(t, payToken, string(res.Out[0]))
	require.Equal(t, int64(7), new(big.Int).SetBytes(res.Out[1]).Int64())
	require.Equal(t, int64(7), w.Ledger().TokenBalance(featuresSC, payToken, 0).Int64())

	tx = call(userAddr, featuresSC, "payable_moax")
	tx.Value = big.NewInt(9)
	res = w.Call(testContext, tx)
	require.True(t, res.Succeeded(), res.Message)
	require.Equal(t, types.MOAXIdentifier, string(res.Out[0]))
	require.Equal(t, int64(991), w.Ledger().Account(userAddr).Balance.Int64())
}

func TestEchoCallValue(t *testing.T) {
	w := newTestWorld(t)
	tx := call(userAddr, featuresSC, "echo_call_value")
	tx.TokenTransfers = []types.TokenPayment{{Identifier: payToken, Amount: big.NewInt(3)}}
	res := w.Call(testContext, tx)
	require.True(t, res.Succeeded(), res.Message)
	require.Len(t, res.Out, 4)
	require.Zero(t, new(big.Int).SetBytes(res.Out[0]).Sign())
	require.Equal(t, payToken, string(res.Out[1]))
	require.Zero(t, new(big.Int).SetBytes(res.Out[2]).Sign())
	require.Equal(t, int64(3), new(big.Int).SetBytes(res.Out[3]).Int64())
	require.Len(t, res.Events, 1)
	require.Equal(t, events.TypeTokenTransfer, res.Events[0].Type)
}

func TestNestedFailureRecoveredByCaller(t *testing.T) {
	w := newTestWorld(t)
	res := w.Call(testContext, call(userAddr, vaultSC, "call_child_recover"))
	require.True(t, res.Succeeded(), res.Message)
	require.Empty(t, res.Events, "child log must be dropped with its revision")

	require.Nil(t, w.Ledger().StorageGet(childSC, []byte("partial")))
	require.Equal(t, []byte("Rejected"), w.Ledger().StorageGet(vaultSC, []byte("recovered")))
}

func TestNestedFailurePropagated(t *testing.T) {
	w := newTestWorld(t)
	res := w.Call(testContext, call(userAddr, vaultSC, "call_child_propagate"))
	require.Equal(t, types.StatusUserError, res.Status)
	require.Equal(t, "Rejected", res.Message)
	require.Nil(t, w.Ledger().StorageGet(vaultSC, []byte("parent")))
	require.Nil(t, w.Ledger().StorageGet(childSC, []byte("partial")))
}

func TestNestedCallForwardsValue(t *testing.T) {
	w := newTestWorld(t)
	tx := call(userAddr, vaultSC, "call_child_store")
	tx.Value = big.NewInt(50)
	res := w.Call(testContext, tx)
	require.True(t, res.Succeeded(), res.Message)
	require.Len(t, res.Events, 2)

	require.NoError(t, w.CheckAccounts(map[crypto.Address]AccountExpectation{
		userAddr: {Balance: big.NewInt(950)},
		vaultSC:  {Balance: big.NewInt(0)},
		childSC:  {Balance: big.NewInt(50), Storage: map[string][]byte{"k": []byte("v")}},
	}))
}

func TestCallStackOverflow(t *testing.T) {
	w := newTestWorld(t, func(c *config.Config) { c.MaxCallDepth = 4 })
	res := w.Call(testContext, call(userAddr, vaultSC, "recurse"))
	require.Equal(t, types.StatusCallStackOverflow, res.Status)
	require.Equal(t, uint64(1), w.Ledger().Account(userAddr).Nonce)
}

func TestAsyncCallRunsAfterCaller(t *testing.T) {
	w := newTestWorld(t)
	res := w.Call(testContext, call(userAddr, vaultSC, "async_store"))
	require.True(t, res.Succeeded(), res.Message)
	require.Equal(t, []byte("done"), w.Ledger().StorageGet(childSC, []byte("async")))
	require.Equal(t, []byte("1"), w.Ledger().StorageGet(vaultSC, []byte("queued")))
}

func TestAsyncFailureRevertsTransaction(t *testing.T) {
	w := newTestWorld(t)
	res := w.Call(testContext, call(userAddr, vaultSC, "async_fail"))
	require.Equal(t, types.StatusUserError, res.Status)
	require.Equal(t, "Rejected", res.Message)
	require.Nil(t, w.Ledger().StorageGet(vaultSC, []byte("queued")))
}

func TestArenaFaultRevertsAndPanics(t *testing.T) {
	w := newTestWorld(t)
	require.Panics(t, func() {
		w.Call(testContext, call(userAddr, vaultSC, "bad_handle"))
	})
	require.Nil(t, w.Ledger().StorageGet(vaultSC, []byte("before")))
	require.Equal(t, uint64(1), w.Ledger().Account(userAddr).Nonce)
	require.Zero(t, w.Ledger().OpenRevisions())

	// The executor stays usable after a fault.
	res := w.Transfer(testContext, userAddr, ownerAddr, big.NewInt(1))
	require.True(t, res.Succeeded(), res.Message)
}

func TestContractPanicFailsTransaction(t *testing.T) {
	w := newTestWorld(t)
	var res *types.TxResult
	require.NotPanics(t, func() {
		res = w.Call(testContext, call(userAddr, vaultSC, "nil_map"))
	})
	require.Equal(t, types.StatusExecutionFailed, res.Status)
	require.Contains(t, res.Message, "contract panicked")
	require.Contains(t, res.Message, "nil map")
	require.Empty(t, res.Events)

	require.Nil(t, w.Ledger().StorageGet(vaultSC, []byte("before")))
	require.Equal(t, uint64(1), w.Ledger().Account(userAddr).Nonce)
	require.Zero(t, w.Ledger().OpenRevisions())

	res = w.Call(testContext, call(userAddr, vaultSC, "store", []byte("k"), []byte("v")))
	require.True(t, res.Succeeded(), res.Message)
}

func TestContextInvalidAfterReturn(t *testing.T) {
	w := newTestWorld(t)
	res := w.Call(testContext, call(userAddr, vaultSC, "leak"))
	require.True(t, res.Succeeded(), res.Message)
	require.NotNil(t, leakedCtx)
	require.Panics(t, func() { leakedCtx.Caller() })
}

func TestTransferOutcomes(t *testing.T) {
	fresh := crypto.NamedAddress("fresh")
	w := newTestWorld(t)

	res := w.Transfer(testContext, userAddr, fresh, big.NewInt(5))
	require.True(t, res.Succeeded(), res.Message)
	require.Len(t, res.Events, 1)
	require.Equal(t, events.TypeTransfer, res.Events[0].Type)

	res = w.Transfer(testContext, userAddr, fresh, big.NewInt(5_000))
	require.Equal(t, types.StatusOutOfFunds, res.Status)

	res = w.Transfer(testContext, userAddr, fresh, nil, types.TokenPayment{Identifier: payToken, Amount: big.NewInt(1_000)})
	require.Equal(t, types.StatusExecutionFailed, res.Status)

	res = w.Call(testContext, call(userAddr, crypto.NamedContractAddress("ghost"), "anything"))
	require.Equal(t, types.StatusContractNotFound, res.Status)

	require.NoError(t, w.CheckAccounts(map[crypto.Address]AccountExpectation{
		userAddr: {Nonce: u64(4), Balance: big.NewInt(995)},
		fresh:    {Balance: big.NewInt(5)},
	}))
	require.Len(t, w.Events(), 1)
}

func TestDeploy(t *testing.T) {
	w := newTestWorld(t)
	in := &DeployInput{From: ownerAddr, Code: "counter", Value: big.NewInt(10), Args: [][]byte{{7}}, GasLimit: 1_000_000}

	addr, res := w.Deploy(testContext, in)
	require.True(t, res.Succeeded(), res.Message)
	require.Equal(t, crypto.NewContractAddress(ownerAddr, 0), addr)
	require.True(t, addr.IsSmartContract())

	code := "counter"
	require.NoError(t, w.CheckAccounts(map[crypto.Address]AccountExpectation{
		ownerAddr: {Nonce: u64(1), Balance: big.NewInt(4_990)},
		addr: {
			Balance: big.NewInt(10),
			Code:    &code,
			Owner:   &ownerAddr,
			Storage: map[string][]byte{"count": {7}},
		},
	}))

	res = w.Call(testContext, call(userAddr, addr, "owner"))
	require.True(t, res.Succeeded(), res.Message)
	require.Equal(t, ownerAddr.Bytes(), res.Out[0])

	pinned := crypto.NamedContractAddress("pinned")
	w.SetNewAddress(ownerAddr, 1, pinned)
	in.Value = nil
	addr, res = w.Deploy(testContext, in)
	require.True(t, res.Succeeded(), res.Message)
	require.Equal(t, pinned, addr)
}

func TestDeployFailures(t *testing.T) {
	w := newTestWorld(t)

	addr, res := w.Deploy(testContext, &DeployInput{From: ownerAddr, Code: "unknown"})
	require.Equal(t, types.StatusContractNotFound, res.Status)
	require.True(t, addr.IsZero())

	addr, res = w.Deploy(testContext, &DeployInput{From: ownerAddr, Code: "counter"})
	require.Equal(t, types.StatusUserError, res.Status)
	require.Equal(t, "wrong number of arguments", res.Message)
	require.True(t, addr.IsZero())
	require.False(t, w.Ledger().Account(crypto.NewContractAddress(ownerAddr, 1)).HasCode())

	_, res = w.Deploy(testContext, &DeployInput{From: ownerAddr})
	require.Equal(t, types.StatusInvalidInput, res.Status)
	require.Equal(t, uint64(2), w.Ledger().Account(ownerAddr).Nonce)
}

func TestValidatorReward(t *testing.T) {
	w := newTestWorld(t)
	validator := crypto.NamedAddress("validator")
	require.NoError(t, w.ValidatorReward(testContext, validator, big.NewInt(25)))
	acc := w.Ledger().Account(validator)
	require.Equal(t, int64(25), acc.Balance.Int64())
	require.Zero(t, acc.Nonce)

	evts := w.Events()
	require.Len(t, evts, 1)
	require.Equal(t, events.TypeValidatorReward, evts[0].Type)
}

func TestMintAndTransferScenario(t *testing.T) {
	w := newTestWorld(t)
	res := w.Call(testContext, call(userAddr, minterSC, "mint_and_send"))
	require.Equal(t, types.StatusExecutionFailed, res.Status)

	minterAcc := w.Ledger().Account(minterSC)
	minterAcc.Tokens[nftToken] = &types.TokenData{Roles: types.RoleNFTCreate, Instances: map[uint64]*types.TokenInstance{}}
	require.NoError(t, w.SetAccount(minterSC, minterAcc))

	res = w.Call(testContext, call(userAddr, minterSC, "mint_and_send"))
	require.True(t, res.Succeeded(), res.Message)

	royalties := uint64(750)
	uris := [][]byte{[]byte("https://nft.example/1")}
	require.NoError(t, w.CheckAccounts(map[crypto.Address]AccountExpectation{
		minterSC: {
			Tokens: map[string][]TokenExpectation{nftToken: {{
				Nonce:     1,
				Balance:   big.NewInt(3),
				Royalties: &royalties,
				Hash:      nftHash,
				URIs:      uris,
				Creator:   &minterSC,
			}}},
			Roles: map[string]types.RoleFlags{nftToken: types.RoleNFTCreate},
		},
		userAddr: {
			Tokens: map[string][]TokenExpectation{nftToken: {{
				Nonce:      1,
				Balance:    big.NewInt(2),
				Royalties:  &royalties,
				Attributes: []byte("color:red"),
				Hash:       nftHash,
				URIs:       uris,
				Creator:    &minterSC,
			}}},
		},
	}))

	err := w.CheckAccounts(map[crypto.Address]AccountExpectation{
		userAddr: {Tokens: map[string][]TokenExpectation{nftToken: {{Nonce: 1, Hash: []byte{0x01}, URIs: [][]byte{}}}}},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "hash")
	require.Contains(t, err.Error(), "uris")
}

func TestLocalMintRequiresRole(t *testing.T) {
	w := newTestWorld(t)
	res := w.Call(testContext, call(userAddr, minterSC, "mint_fungible"))
	require.Equal(t, types.StatusExecutionFailed, res.Status)
	require.Contains(t, res.Message, "action is not allowed")

	acc := w.Ledger().Account(minterSC)
	acc.Tokens[payToken] = &types.TokenData{Roles: types.RoleMint, Instances: map[uint64]*types.TokenInstance{}}
	require.NoError(t, w.SetAccount(minterSC, acc))
	res = w.Call(testContext, call(userAddr, minterSC, "mint_fungible"))
	require.True(t, res.Succeeded(), res.Message)
	require.Equal(t, int64(10), w.Ledger().TokenBalance(minterSC, payToken, 0).Int64())
}

func TestGasIsAdvisoryAndCapped(t *testing.T) {
	w := newTestWorld(t)
	tx := call(userAddr, vaultSC, "store", []byte("k"), []byte("v"))
	tx.GasLimit = 60_000
	res := w.Call(testContext, tx)
	require.True(t, res.Succeeded(), res.Message)
	require.Equal(t, uint64(60_000), res.GasUsed)
}

func TestBlockFixturesVisible(t *testing.T) {
	w := newTestWorld(t)
	res := w.Call(testContext, call(userAddr, vaultSC, "block"))
	require.True(t, res.Succeeded(), res.Message)
	require.Equal(t, int64(1_700), new(big.Int).SetBytes(res.Out[0]).Int64())
	require.Equal(t, int64(41), new(big.Int).SetBytes(res.Out[1]).Int64())
}

func TestExecutionIsDeterministic(t *testing.T) {
	steps := func(w *World) {
		w.Transfer(testContext, userAddr, ownerAddr, big.NewInt(10))
		w.Call(testContext, call(userAddr, vaultSC, "call_child_recover"))
		w.Call(testContext, call(userAddr, vaultSC, "async_store"))
		tx := call(userAddr, featuresSC, "pay")
		tx.Value = big.NewInt(1)
		w.Call(testContext, tx)
	}
	a, b := newTestWorld(t), newTestWorld(t)
	steps(a)
	steps(b)
	fa, err := a.Fingerprint()
	require.NoError(t, err)
	fb, err := b.Fingerprint()
	require.NoError(t, err)
	require.Equal(t, fa, fb)
	require.NotEqual(t, a.RunID(), b.RunID())
}

func TestCheckAccountsReportsMismatches(t *testing.T) {
	w := newTestWorld(t)
	err := w.CheckAccounts(map[crypto.Address]AccountExpectation{
		userAddr: {Nonce: u64(9), Balance: big.NewInt(1)},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "nonce")
	require.Contains(t, err.Error(), "balance")
}
