package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceField 账户内的余额字段
type BalanceField string

const (
	FieldCash       BalanceField = "cash"        // 现金（法币等值）
	FieldFreeGold   BalanceField = "free_gold"   // 可用黄金，可交易、可赎回
	FieldStakedGold BalanceField = "staked_gold" // 质押黄金，作为借贷抵押品
)

// Valid 判断字段是否合法
func (f BalanceField) Valid() bool {
	switch f {
	case FieldCash, FieldFreeGold, FieldStakedGold:
		return true
	}
	return false
}

// Account 用户账本
// 每个用户一条记录，三个余额任何时刻都不允许为负，只能通过 LedgerEngine 修改
type Account struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64           `gorm:"uniqueIndex;not null" json:"user_id"`
	CashBalance decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0" json:"cash_balance"`
	FreeGold    decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0" json:"free_gold"`
	StakedGold  decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0" json:"staked_gold"`
	Version     int             `gorm:"not null;default:0" json:"version"` // 乐观锁版本号
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}

// Balance 读取指定字段的余额
func (a *Account) Balance(field BalanceField) decimal.Decimal {
	switch field {
	case FieldCash:
		return a.CashBalance
	case FieldFreeGold:
		return a.FreeGold
	case FieldStakedGold:
		return a.StakedGold
	}
	return decimal.Zero
}

// SetBalance 设置指定字段的余额，调用方负责非负校验
func (a *Account) SetBalance(field BalanceField, v decimal.Decimal) {
	switch field {
	case FieldCash:
		a.CashBalance = v
	case FieldFreeGold:
		a.FreeGold = v
	case FieldStakedGold:
		a.StakedGold = v
	}
}

// Balances 对外展示用的余额快照
type Balances struct {
	UserID      int64           `json:"user_id"`
	CashBalance decimal.Decimal `json:"cash_balance"`
	FreeGold    decimal.Decimal `json:"free_gold"`
	StakedGold  decimal.Decimal `json:"staked_gold"`
}

func (a *Account) Snapshot() Balances {
	return Balances{
		UserID:      a.UserID,
		CashBalance: a.CashBalance,
		FreeGold:    a.FreeGold,
		StakedGold:  a.StakedGold,
	}
}
