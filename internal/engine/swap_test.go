package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"vault_go/internal/domain"
)

func TestSwapEthForUsdc(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	f.deposit(t, assetETH, amt(t, "10", 18), 0)
	f.deposit(t, assetUSDC, amt(t, "30000", 6), 0)

	f.bank.payIn(assetETH, amt(t, "1", 18))
	r, err := f.vault.Execute(context.Background(), &SwapOp{
		OpBase:   OpBase{Time: 10, Sender: alice},
		AssetIn:  assetETH,
		AssetOut: assetUSDC,
		AmountIn: amt(t, "1", 18),
		Receiver: alice,
	})
	require.NoError(err)
	// 1 ETH at $1500 buys 1500 USDC, less the 30 bps swap fee.
	require.Equal(amt(t, "1495.5", 6), r.AmountOut)

	ethPool, _ := f.vault.PoolState(assetETH)
	require.Equal(amt(t, "11", 18), ethPool.PoolAmount)
	usdcPool, _ := f.vault.PoolState(assetUSDC)
	require.Equal(amt(t, "28500", 6), usdcPool.PoolAmount)
	require.Equal(amt(t, "4.5", 6), usdcPool.FeeReserve)

	// Issuance counters track the USD value of the flow so the dynamic
	// fee curve sees it.
	require.Equal(amt(t, "1500", 18), ethPool.SyntheticIssued)
	require.True(usdcPool.SyntheticIssued.IsZero())

	require.Len(f.bank.payouts, 1)
	require.Equal(amt(t, "1495.5", 6), f.bank.payouts[0].amount)
}

func TestSwapRespectsBufferAmount(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	f.deposit(t, assetETH, amt(t, "10", 18), 0)
	f.deposit(t, assetUSDC, amt(t, "30000", 6), 0)

	_, err := f.vault.Execute(context.Background(), &SetBufferAmountOp{
		OpBase: OpBase{Time: 0, Sender: govern},
		Asset:  assetUSDC,
		Amount: amt(t, "29000", 6),
	})
	require.NoError(err)

	f.bank.payIn(assetETH, amt(t, "1", 18))
	_, err = f.vault.Execute(context.Background(), &SwapOp{
		OpBase:   OpBase{Time: 10, Sender: alice},
		AssetIn:  assetETH,
		AssetOut: assetUSDC,
		AmountIn: amt(t, "1", 18),
		Receiver: alice,
	})
	require.ErrorIs(err, domain.ErrInvalidAmount)

	// The failed swap must not move either pool.
	usdcPool, _ := f.vault.PoolState(assetUSDC)
	require.Equal(amt(t, "30000", 6), usdcPool.PoolAmount)
	ethPool, _ := f.vault.PoolState(assetETH)
	require.Equal(amt(t, "10", 18), ethPool.PoolAmount)
	require.Empty(f.bank.payouts)
}

func TestSwapDisabled(t *testing.T) {
	f := newFixture(t)
	_, err := f.vault.Execute(context.Background(), &SetFeatureOp{
		OpBase: OpBase{Time: 0, Sender: govern}, Feature: FeatureSwap, Enabled: false,
	})
	require.NoError(t, err)

	_, err = f.vault.Execute(context.Background(), &SwapOp{
		OpBase:   OpBase{Time: 10, Sender: alice},
		AssetIn:  assetETH,
		AssetOut: assetUSDC,
		AmountIn: amt(t, "1", 18),
		Receiver: alice,
	})
	require.ErrorIs(t, err, domain.ErrDisabledFeature)
}

func TestMintRedeemRoundTrip(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	f.bank.payIn(assetETH, amt(t, "1", 18))
	r, err := f.vault.Execute(ctx, &MintSyntheticOp{
		OpBase:   OpBase{Time: 0, Sender: alice},
		Asset:    assetETH,
		AmountIn: amt(t, "1", 18),
		Receiver: alice,
	})
	require.NoError(err)
	// 0.997 ETH after the 30 bps mint fee, valued at $1500.
	require.Equal(amt(t, "1495.5", 18), r.MintAmount)

	pool, _ := f.vault.PoolState(assetETH)
	require.Equal(amt(t, "0.997", 18), pool.PoolAmount)
	require.Equal(amt(t, "1495.5", 18), pool.SyntheticIssued)

	r, err = f.vault.Execute(ctx, &RedeemSyntheticOp{
		OpBase:     OpBase{Time: 10, Sender: alice},
		Asset:      assetETH,
		BurnAmount: amt(t, "1495.5", 18),
		Receiver:   alice,
	})
	require.NoError(err)
	// A full round trip pays fees twice and never returns more than went in.
	require.Equal(amt(t, "0.994009", 18), r.AmountOut)
	require.True(r.AmountOut.Lt(amt(t, "1", 18)))

	pool, _ = f.vault.PoolState(assetETH)
	require.True(pool.PoolAmount.IsZero())
	require.True(pool.SyntheticIssued.IsZero())
}

func TestMintRejectsUnquotedAsset(t *testing.T) {
	f := newFixture(t)
	_, err := f.vault.Execute(context.Background(), &MintSyntheticOp{
		OpBase:   OpBase{Time: 0, Sender: alice},
		Asset:    "doge",
		AmountIn: amt(t, "1", 18),
		Receiver: alice,
	})
	require.Error(t, err)
}

func TestManagerModeGatesMintAndRedeem(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.vault.Execute(ctx, &SetFeatureOp{
		OpBase: OpBase{Time: 0, Sender: govern}, Feature: FeatureManagerMode, Enabled: true,
	})
	require.NoError(err)

	f.bank.payIn(assetETH, amt(t, "1", 18))
	op := &MintSyntheticOp{
		OpBase:   OpBase{Time: 0, Sender: alice},
		Asset:    assetETH,
		AmountIn: amt(t, "1", 18),
		Receiver: alice,
	}
	_, err = f.vault.Execute(ctx, op)
	require.ErrorIs(err, domain.ErrUnauthorized)

	f.auth.grant(alice, domain.RoleManager)
	_, err = f.vault.Execute(ctx, op)
	require.NoError(err)
}

func TestMintRespectsIssuanceCap(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	// Relist ETH with a $1000 issuance cap.
	_, err := f.vault.Execute(ctx, &SetTokenConfigOp{
		OpBase:               OpBase{Time: 0, Sender: govern},
		Asset:                assetETH,
		Decimals:             18,
		Weight:               10000,
		MaxSyntheticIssuance: amt(t, "1000", 18),
		IsShortable:          true,
	})
	require.NoError(err)

	f.bank.payIn(assetETH, amt(t, "1", 18))
	_, err = f.vault.Execute(ctx, &MintSyntheticOp{
		OpBase:   OpBase{Time: 0, Sender: alice},
		Asset:    assetETH,
		AmountIn: amt(t, "1", 18),
		Receiver: alice,
	})
	require.ErrorIs(err, domain.ErrInvalidAmount)
}

func TestDirectPoolDepositNeedsEscrow(t *testing.T) {
	f := newFixture(t)
	// Nothing was paid in, so the pool credit has no backing.
	_, err := f.vault.Execute(context.Background(), &DirectPoolDepositOp{
		OpBase: OpBase{Time: 0, Sender: alice},
		Asset:  assetETH,
		Amount: amt(t, "1", 18),
	})
	require.ErrorIs(t, err, domain.ErrBalanceMismatch)

	_, err = f.vault.Execute(context.Background(), &DirectPoolDepositOp{
		OpBase: OpBase{Time: 0, Sender: alice},
		Asset:  "doge",
		Amount: amt(t, "1", 18),
	})
	require.ErrorIs(t, err, domain.ErrInvalidAsset)
}

func TestWithdrawFeesDrainsReserve(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	f.deposit(t, assetETH, amt(t, "10", 18), 0)
	f.deposit(t, assetUSDC, amt(t, "30000", 6), 0)

	f.bank.payIn(assetETH, amt(t, "1", 18))
	_, err := f.vault.Execute(context.Background(), &SwapOp{
		OpBase:   OpBase{Time: 10, Sender: alice},
		AssetIn:  assetETH,
		AssetOut: assetUSDC,
		AmountIn: amt(t, "1", 18),
		Receiver: alice,
	})
	require.NoError(err)

	r, err := f.vault.Execute(context.Background(), &WithdrawFeesOp{
		OpBase:   OpBase{Time: 20, Sender: govern},
		Asset:    assetUSDC,
		Receiver: govern,
	})
	require.NoError(err)
	require.Equal(amt(t, "4.5", 6), r.AmountOut)

	pool, _ := f.vault.PoolState(assetUSDC)
	require.True(pool.FeeReserve.IsZero())

	last := f.bank.payouts[len(f.bank.payouts)-1]
	require.Equal(govern, last.to)
	require.Equal(amt(t, "4.5", 6), last.amount)

	// A second withdrawal finds nothing.
	r, err = f.vault.Execute(context.Background(), &WithdrawFeesOp{
		OpBase:   OpBase{Time: 30, Sender: govern},
		Asset:    assetUSDC,
		Receiver: govern,
	})
	require.NoError(err)
	require.True(r.AmountOut == nil || r.AmountOut.IsZero())
}
