package service

import (
	"context"

	"goldledger/internal/ledger"
	"goldledger/internal/model"
	"goldledger/internal/repository"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type AccountService struct {
	engine *ledger.Engine
	store  repository.Store
}

func NewAccountService(engine *ledger.Engine, store repository.Store) *AccountService {
	return &AccountService{
		engine: engine,
		store:  store,
	}
}

// GetBalances 读取余额快照，用于展示，不加锁
// 账户从未创建过时返回 ErrAccountNotFound
func (s *AccountService) GetBalances(ctx context.Context, userID int64) (*model.Balances, error) {
	acct, err := s.store.LoadAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ledger.ErrAccountNotFound
		}
		return nil, ledger.Unavailable("load account", err)
	}
	b := acct.Snapshot()
	return &b, nil
}

// ListTransactions 分页查询账户流水，最新的在前
func (s *AccountService) ListTransactions(ctx context.Context, userID int64, page, pageSize int) ([]*model.AccountTransaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	list, total, err := s.store.ListTransactions(ctx, userID, page, pageSize)
	if err != nil {
		return nil, 0, ledger.Unavailable("list transactions", err)
	}
	return list, total, nil
}

// Deposit 现金充值
func (s *AccountService) Deposit(ctx context.Context, userID int64, amount decimal.Decimal) (*model.Balances, error) {
	res, err := s.engine.Credit(ctx, userID, model.FieldCash, amount,
		ledger.WithEntryType(model.TransactionTypeDeposit))
	if err != nil {
		return nil, err
	}
	b := res.Account.Snapshot()
	return &b, nil
}

// Withdraw 现金提现，余额不足时失败
func (s *AccountService) Withdraw(ctx context.Context, userID int64, amount decimal.Decimal) (*model.Balances, error) {
	res, err := s.engine.Debit(ctx, userID, model.FieldCash, amount,
		ledger.WithEntryType(model.TransactionTypeWithdraw))
	if err != nil {
		return nil, err
	}
	b := res.Account.Snapshot()
	return &b, nil
}
