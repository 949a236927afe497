package service

import (
	"context"

	"goldledger/internal/ledger"
	"goldledger/internal/model"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// StakingService 在可用黄金与质押黄金之间划转
type StakingService struct {
	engine *ledger.Engine
}

func NewStakingService(engine *ledger.Engine) *StakingService {
	return &StakingService{engine: engine}
}

func (s *StakingService) Stake(ctx context.Context, userID int64, amount decimal.Decimal) (*model.Balances, error) {
	res, err := s.engine.TransferWithinAccount(ctx, userID, model.FieldFreeGold, model.FieldStakedGold, amount,
		ledger.WithEntryType(model.TransactionTypeStake))
	if err != nil {
		return nil, err
	}
	b := res.Account.Snapshot()
	return &b, nil
}

// Unstake 解除质押
// 存在进行中的借贷时，质押余额不能低于其抵押数量
func (s *StakingService) Unstake(ctx context.Context, userID int64, amount decimal.Decimal) (*model.Balances, error) {
	if err := ledger.CheckAmount("amount", amount); err != nil {
		return nil, err
	}

	entry := ledger.Entry{Type: model.TransactionTypeUnstake}
	res, err := s.engine.Execute(ctx, userID, entry, func(tx *ledger.Tx) error {
		loan, err := tx.ActiveLoan()
		if err != nil {
			return err
		}
		if loan != nil {
			remaining := tx.Balance(model.FieldStakedGold).Sub(amount)
			if remaining.LessThan(loan.CollateralGold) {
				return errors.Wrapf(ledger.ErrCollateralLocked,
					"loan %s pledges %s, unstaking %s would leave %s",
					loan.LoanNo, loan.CollateralGold, amount, remaining)
			}
		}
		return tx.Apply(
			ledger.Op{Field: model.FieldStakedGold, Delta: amount.Neg()},
			ledger.Op{Field: model.FieldFreeGold, Delta: amount},
		)
	})
	if err != nil {
		return nil, err
	}
	b := res.Account.Snapshot()
	return &b, nil
}
