package service

import (
	"context"
	"testing"

	"goldledger/internal/ledger"
	"goldledger/internal/model"
	"goldledger/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedemptionService_Request(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.withGold(t, 1, "3")

	req, err := f.redemptions.Request(ctx, 1, d("2"), "  1 Gold Street  ")
	require.NoError(t, err)
	assert.Equal(t, model.RedemptionStatusRequested, req.Status)
	assert.Equal(t, "1 Gold Street", req.DeliveryAddress)
	assert.True(t, f.balances(t, 1).FreeGold.Equal(d("1")))

	got, err := f.redemptions.Get(ctx, req.RedemptionNo)
	require.NoError(t, err)
	assert.True(t, got.AmountGold.Equal(d("2")))

	list, err := f.redemptions.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.redemptions.Get(ctx, "RDM-missing")
	assert.ErrorIs(t, err, repository.ErrRedemptionNotFound)
}

func TestRedemptionService_InsufficientGold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.withGold(t, 1, "0.5")

	_, err := f.redemptions.Request(ctx, 1, d("1.0"), "addr")
	var ife *ledger.InsufficientFundsError
	require.ErrorAs(t, err, &ife)
	assert.Equal(t, model.FieldFreeGold, ife.Field)

	list, err := f.redemptions.List(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.True(t, f.balances(t, 1).FreeGold.Equal(d("0.5")))
}

func TestRedemptionService_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.withGold(t, 1, "3")

	_, err := f.redemptions.Request(ctx, 1, d("0.5"), "addr")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = f.redemptions.Request(ctx, 1, d("1"), "   ")
	assert.ErrorIs(t, err, ledger.ErrInvalidArgument)

	_, err = f.redemptions.Request(ctx, 1, d("1.0000000000000000001"), "addr")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	// 质押中的黄金不能赎回
	_, err = f.staking.Stake(ctx, 1, d("3"))
	require.NoError(t, err)
	_, err = f.redemptions.Request(ctx, 1, d("1"), "addr")
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
}
