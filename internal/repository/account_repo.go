package repository

import (
	"context"

	"goldledger/internal/model"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByUserID(ctx context.Context, userID int64) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// CreateIfAbsent 并发开户时只有一个请求能插入成功，其余返回 ErrAccountExists
func (r *AccountRepository) CreateIfAbsent(ctx context.Context, tx *gorm.DB, account *model.Account) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(account)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountExists
	}
	return nil
}

// UpdateBalances 以读取时的 version 为条件整体写回三个余额
//
// 【关键点】余额的合法性已在引擎内校验，这里只负责"读到的版本仍是最新版本"，
// 任何并发写入都会让 version 前进，从而使本次更新影响行数为 0
func (r *AccountRepository) UpdateBalances(ctx context.Context, tx *gorm.DB, account *model.Account) error {
	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ? AND version = ?", account.UserID, account.Version).
		Updates(map[string]interface{}{
			"cash_balance": account.CashBalance,
			"free_gold":    account.FreeGold,
			"staked_gold":  account.StakedGold,
			"version":      gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		// 在同一事务内区分"账户不存在"与"版本已前进"
		var n int64
		if err := tx.WithContext(ctx).Model(&model.Account{}).Where("user_id = ?", account.UserID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrAccountNotFound
		}
		return ErrOptimisticLock
	}

	return nil
}
