package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"goldledger/internal/model"
	"goldledger/internal/repository"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestEngine(t *testing.T) (*Engine, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	e := NewEngine(store, NewKeyedMutex(), WithInitialCash(d("10000")))
	return e, store
}

func balances(t *testing.T, store repository.Store, userID int64) model.Account {
	t.Helper()
	acct, err := store.LoadAccount(context.Background(), userID)
	require.NoError(t, err)
	return *acct
}

// failingStore 提交总是失败的存储
type failingStore struct {
	*repository.MemoryStore
	err error
}

func (s *failingStore) Commit(context.Context, *repository.Changeset) error {
	return s.err
}

func TestEngine_AutoCreateGrantsInitialCash(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	res, err := e.Credit(ctx, 1, model.FieldFreeGold, d("0.5"))
	require.NoError(t, err)
	assert.True(t, res.Account.CashBalance.Equal(d("10000")))
	assert.True(t, res.Account.FreeGold.Equal(d("0.5")))

	entries, total, err := store.ListTransactions(ctx, 1, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	// 倒序：最新的在前
	assert.Equal(t, model.TransactionTypeCredit, entries[0].Type)
	assert.Equal(t, model.TransactionTypeSignupGrant, entries[1].Type)
}

func TestEngine_CreditDebit(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	res, err := e.Debit(ctx, 1, model.FieldCash, d("2500.25"))
	require.NoError(t, err)
	assert.True(t, res.Account.CashBalance.Equal(d("7499.75")))
	require.Len(t, res.Entries, 1)
	assert.True(t, res.Entries[0].BalanceBefore.Equal(d("10000")))
	assert.True(t, res.Entries[0].BalanceAfter.Equal(d("7499.75")))
	assert.True(t, res.Entries[0].Amount.Equal(d("-2500.25")))

	_, err = e.Debit(ctx, 1, model.FieldFreeGold, d("0.1"))
	var ife *InsufficientFundsError
	require.ErrorAs(t, err, &ife)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, model.FieldFreeGold, ife.Field)
	assert.True(t, ife.Requested.Equal(d("0.1")))
	assert.True(t, ife.Available.IsZero())

	acct := balances(t, store, 1)
	assert.True(t, acct.CashBalance.Equal(d("7499.75")))
	assert.True(t, acct.FreeGold.IsZero())
}

func TestEngine_InvalidAmount(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	for _, amt := range []string{"0", "-1"} {
		_, err := e.Credit(ctx, 1, model.FieldCash, d(amt))
		assert.ErrorIs(t, err, ErrInvalidAmount, amt)
		_, err = e.Debit(ctx, 1, model.FieldCash, d(amt))
		assert.ErrorIs(t, err, ErrInvalidAmount, amt)
	}

	_, err := e.ApplyBatch(ctx, 1, []Op{{Field: model.FieldCash, Delta: decimal.Zero}})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = e.ApplyBatch(ctx, 1, []Op{{Field: "usd", Delta: d("1")}})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestEngine_AmountScale(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	// 19 位小数超出 decimal(36,18)，拒绝而不是舍入
	tooFine := d("0.0000000000000000004")
	_, err := e.Credit(ctx, 1, model.FieldCash, tooFine)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = e.Debit(ctx, 1, model.FieldCash, tooFine)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = e.TransferWithinAccount(ctx, 1, model.FieldCash, model.FieldFreeGold, tooFine)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = e.ApplyBatch(ctx, 1, []Op{
		{Field: model.FieldCash, Delta: d("1")},
		{Field: model.FieldFreeGold, Delta: tooFine},
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.True(t, balances(t, store, 1).CashBalance.Equal(d("10000")))

	// 18 位小数及末尾多余的 0 都可以
	_, err = e.Credit(ctx, 1, model.FieldFreeGold, d("0.000000000000000001"))
	require.NoError(t, err)
	_, err = e.Credit(ctx, 1, model.FieldFreeGold, d("1.00000000000000000000"))
	require.NoError(t, err)
	assert.True(t, balances(t, store, 1).FreeGold.Equal(d("1.000000000000000001")))
}

func TestEngine_ApplyBatchIsAtomic(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	_, err := e.ApplyBatch(ctx, 1, []Op{
		{Field: model.FieldCash, Delta: d("-100")},
		{Field: model.FieldFreeGold, Delta: d("-1")},
		{Field: model.FieldStakedGold, Delta: d("-2")},
	})
	var ife *InsufficientFundsError
	require.ErrorAs(t, err, &ife)
	// 按操作顺序报告第一个变负的字段
	assert.Equal(t, model.FieldFreeGold, ife.Field)

	acct := balances(t, store, 1)
	assert.True(t, acct.CashBalance.Equal(d("10000")))
	assert.True(t, acct.FreeGold.IsZero())
	assert.True(t, acct.StakedGold.IsZero())

	_, total, err := store.ListTransactions(ctx, 1, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total, "only the sign-up grant is journaled")
}

func TestEngine_ApplyBatchNetsWithinField(t *testing.T) {
	e, _ := newTestEngine(t)

	// 同一字段先减后加，以最终结果判断
	res, err := e.ApplyBatch(context.Background(), 1, []Op{
		{Field: model.FieldCash, Delta: d("-12000")},
		{Field: model.FieldCash, Delta: d("3000")},
	})
	require.NoError(t, err)
	assert.True(t, res.Account.CashBalance.Equal(d("1000")))
}

func TestEngine_TransferWithinAccount(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Credit(ctx, 1, model.FieldFreeGold, d("2"))
	require.NoError(t, err)

	res, err := e.TransferWithinAccount(ctx, 1, model.FieldFreeGold, model.FieldStakedGold, d("1.5"))
	require.NoError(t, err)
	assert.True(t, res.Account.FreeGold.Equal(d("0.5")))
	assert.True(t, res.Account.StakedGold.Equal(d("1.5")))
	require.Len(t, res.Entries, 2)
	assert.Equal(t, res.Entries[0].BizNo, res.Entries[1].BizNo)

	_, err = e.TransferWithinAccount(ctx, 1, model.FieldFreeGold, model.FieldStakedGold, d("1"))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = e.TransferWithinAccount(ctx, 1, model.FieldCash, model.FieldCash, d("1"))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestEngine_ConcurrentDebits(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	const n = 2
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.Debit(ctx, 1, model.FieldCash, d("6000"))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrInsufficientFunds)
	}
	assert.Equal(t, 1, succeeded)
	assert.True(t, balances(t, store, 1).CashBalance.Equal(d("4000")))
}

func TestEngine_ManyConcurrentDebits(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Debit(ctx, 1, model.FieldCash, d("300")); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// 10000 / 300 = 33 次成功
	assert.Equal(t, 33, succeeded)
	assert.True(t, balances(t, store, 1).CashBalance.Equal(d("100")))
}

func TestEngine_CancelledBeforeStart(t *testing.T) {
	e, store := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Credit(ctx, 1, model.FieldCash, d("1"))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = store.LoadAccount(context.Background(), 1)
	assert.ErrorIs(t, err, repository.ErrAccountNotFound)
}

func TestEngine_CancelledWhileWaitingForLock(t *testing.T) {
	store := repository.NewMemoryStore()
	locker := NewKeyedMutex()
	e := NewEngine(store, locker, WithInitialCash(d("10000")))

	unlock, err := locker.Lock(context.Background(), 1)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = e.Debit(ctx, 1, model.FieldCash, d("1"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEngine_CommitFailureIsUnavailable(t *testing.T) {
	mem := repository.NewMemoryStore()
	store := &failingStore{MemoryStore: mem, err: errors.New("connection reset")}
	e := NewEngine(store, NewKeyedMutex(), WithInitialCash(d("10000")))

	_, err := e.Debit(context.Background(), 1, model.FieldCash, d("1"))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrInsufficientFunds)

	assert.True(t, balances(t, mem, 1).CashBalance.Equal(d("10000")))
}

func TestEngine_ExecuteWritesOutboxEvent(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	res, err := e.Execute(ctx, 1, Entry{Type: model.TransactionTypeTradeBuy, BizNo: "TRD1"}, func(tx *Tx) error {
		return tx.Apply(
			Op{Field: model.FieldCash, Delta: d("-2000")},
			Op{Field: model.FieldFreeGold, Delta: d("1")},
		)
	})
	require.NoError(t, err)
	assert.Equal(t, "TRD1", res.Entries[0].BizNo)

	msgs, err := store.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "TRD1", msgs[0].MessageKey)
	assert.Equal(t, model.TransactionTypeTradeBuy, msgs[0].EventType)
	assert.Equal(t, defaultEventTopic, msgs[0].Topic)
	assert.Contains(t, msgs[0].Payload, `"biz_no":"TRD1"`)
}

func TestEngine_ExecuteCallbackErrorWritesNothing(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := e.Execute(ctx, 1, Entry{Type: model.TransactionTypeBatch}, func(tx *Tx) error {
		if err := tx.Apply(Op{Field: model.FieldCash, Delta: d("-1")}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	assert.True(t, balances(t, store, 1).CashBalance.Equal(d("10000")))
	msgs, err := store.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestEngine_WithClock(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := NewEngine(repository.NewMemoryStore(), NewKeyedMutex(), WithClock(func() time.Time { return fixed }))

	var seen time.Time
	_, err := e.Execute(context.Background(), 1, Entry{}, func(tx *Tx) error {
		seen = tx.Now()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, fixed, seen)
}
