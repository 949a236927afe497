package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"goldledger/internal/config"
	"goldledger/internal/ledger"
	"goldledger/internal/model"
	"goldledger/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(delta time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(delta)
}

type mockOracle struct {
	mock.Mock
}

func (m *mockOracle) CurrentPrice(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type fixture struct {
	store  *repository.MemoryStore
	clock  *fakeClock
	oracle *mockOracle
	engine *ledger.Engine

	accounts    *AccountService
	trades      *TradeService
	staking     *StakingService
	loans       *LoanService
	redemptions *RedemptionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	params := config.DefaultLedgerParams()
	f := &fixture{
		store:  repository.NewMemoryStore(),
		clock:  &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)},
		oracle: &mockOracle{},
	}
	f.engine = ledger.NewEngine(f.store, ledger.NewKeyedMutex(),
		ledger.WithClock(f.clock.Now),
		ledger.WithInitialCash(params.InitialCashBalance))

	f.accounts = NewAccountService(f.engine, f.store)
	f.trades = NewTradeService(f.engine, f.oracle, nil)
	f.staking = NewStakingService(f.engine)
	f.loans = NewLoanService(f.engine, f.store, params, nil)
	f.redemptions = NewRedemptionService(f.engine, f.store, params.MinimumRedemption, nil)
	return f
}

func (f *fixture) balances(t *testing.T, userID int64) model.Balances {
	t.Helper()
	b, err := f.accounts.GetBalances(context.Background(), userID)
	require.NoError(t, err)
	return *b
}

// withGold 新开户并以 2000 买入 gold 盎司
func (f *fixture) withGold(t *testing.T, userID int64, gold string) {
	t.Helper()
	_, err := f.trades.Execute(context.Background(), userID, DirectionBuy, d(gold), d("2000"))
	require.NoError(t, err)
}

// withLoan 买入并质押 1 盎司，借出 500 USDC
func (f *fixture) withLoan(t *testing.T, userID int64) *model.Loan {
	t.Helper()
	ctx := context.Background()
	f.withGold(t, userID, "1")
	_, err := f.staking.Stake(ctx, userID, d("1"))
	require.NoError(t, err)
	loan, err := f.loans.Borrow(ctx, userID, d("500"), "USDC", 30)
	require.NoError(t, err)
	return loan
}
