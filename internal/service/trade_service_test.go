package service

import (
	"context"
	"testing"

	"goldledger/internal/ledger"
	"goldledger/internal/model"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestTradeService_BuyScenario(t *testing.T) {
	f := newFixture(t)

	res, err := f.trades.Execute(context.Background(), 1, DirectionBuy, d("1.0"), d("2000"))
	require.NoError(t, err)
	assert.True(t, res.TotalCash.Equal(d("2000")))
	assert.NotEmpty(t, res.TradeNo)

	b := f.balances(t, 1)
	assert.True(t, b.CashBalance.Equal(d("8000")))
	assert.True(t, b.FreeGold.Equal(d("1")))
}

func TestTradeService_Sell(t *testing.T) {
	f := newFixture(t)
	f.withGold(t, 1, "2")

	res, err := f.trades.Execute(context.Background(), 1, DirectionSell, d("0.5"), d("2100.10"))
	require.NoError(t, err)
	assert.True(t, res.TotalCash.Equal(d("1050.05")))

	b := f.balances(t, 1)
	assert.True(t, b.CashBalance.Equal(d("7050.05")))
	assert.True(t, b.FreeGold.Equal(d("1.5")))
}

func TestTradeService_BuyShortOfCashLeavesGoldUnchanged(t *testing.T) {
	f := newFixture(t)

	_, err := f.trades.Execute(context.Background(), 1, DirectionBuy, d("5.000001"), d("2000"))
	var ife *ledger.InsufficientFundsError
	require.ErrorAs(t, err, &ife)
	assert.Equal(t, model.FieldCash, ife.Field)
	assert.True(t, ife.Requested.Equal(d("10000.002")))
	assert.True(t, ife.Available.Equal(d("10000")))

	b := f.balances(t, 1)
	assert.True(t, b.CashBalance.Equal(d("10000")))
	assert.True(t, b.FreeGold.IsZero())
}

func TestTradeService_SellShortOfGoldLeavesCashUnchanged(t *testing.T) {
	f := newFixture(t)
	f.withGold(t, 1, "0.5")

	_, err := f.trades.Execute(context.Background(), 1, DirectionSell, d("0.6"), d("2000"))
	var ife *ledger.InsufficientFundsError
	require.ErrorAs(t, err, &ife)
	assert.Equal(t, model.FieldFreeGold, ife.Field)

	b := f.balances(t, 1)
	assert.True(t, b.CashBalance.Equal(d("9000")))
	assert.True(t, b.FreeGold.Equal(d("0.5")))
}

func TestTradeService_InvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.trades.Execute(ctx, 1, DirectionBuy, d("0"), d("2000"))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = f.trades.Execute(ctx, 1, DirectionBuy, d("1"), decimal.Zero)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = f.trades.Execute(ctx, 1, Direction("hold"), d("1"), d("2000"))
	assert.ErrorIs(t, err, ledger.ErrInvalidArgument)
}

func TestTradeService_RejectsAmountBeyondScale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.trades.Execute(ctx, 1, DirectionBuy, d("0.0000000000000000004"), d("2000"))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = f.trades.Execute(ctx, 1, DirectionBuy, d("1"), d("2000.0000000000000000001"))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = f.accounts.GetBalances(ctx, 1)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestTradeService_TradeQuotesOracle(t *testing.T) {
	f := newFixture(t)
	f.oracle.On("CurrentPrice", mock.Anything).Return(d("1950.5"), nil).Once()

	res, err := f.trades.Trade(context.Background(), 1, DirectionBuy, d("2"))
	require.NoError(t, err)
	assert.True(t, res.UnitPrice.Equal(d("1950.5")))
	assert.True(t, res.Balances.CashBalance.Equal(d("6099")))
	f.oracle.AssertExpectations(t)
}

func TestTradeService_OracleDown(t *testing.T) {
	f := newFixture(t)
	f.oracle.On("CurrentPrice", mock.Anything).Return(decimal.Zero, errors.New("feed timeout"))

	_, err := f.trades.Trade(context.Background(), 1, DirectionBuy, d("1"))
	assert.ErrorIs(t, err, ledger.ErrUnavailable)

	_, err = f.accounts.GetBalances(context.Background(), 1)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}
