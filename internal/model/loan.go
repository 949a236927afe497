package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	LoanStatusActive     = "ACTIVE"
	LoanStatusRepaid     = "REPAID"
	LoanStatusLiquidated = "LIQUIDATED"
	LoanStatusDefaulted  = "DEFAULTED"
)

// 借贷状态机：只有 ACTIVE 可以迁移，其余均为终态
var ValidLoanTransitions = map[string][]string{
	LoanStatusActive: {LoanStatusRepaid, LoanStatusLiquidated, LoanStatusDefaulted},
}

func CanLoanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidLoanTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// Loan 抵押借贷记录
// 每个用户同一时间最多一笔 ACTIVE 借贷，历史记录永不删除
type Loan struct {
	ID                 int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	LoanNo             string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"loan_no"`
	UserID             int64           `gorm:"index;not null" json:"user_id"`
	Principal          decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"principal"`
	Currency           string          `gorm:"type:varchar(16);not null" json:"currency"`
	CollateralGold     decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"collateral_gold"`
	LoanToValue        decimal.Decimal `gorm:"type:decimal(10,6);not null" json:"loan_to_value"`
	AnnualInterestRate decimal.Decimal `gorm:"type:decimal(10,6);not null" json:"annual_interest_rate"`
	TermDays           int             `gorm:"not null" json:"term_days"`
	RepaidAmount       decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0" json:"repaid_amount"`
	Status             string          `gorm:"type:varchar(20);index;not null" json:"status"`
	StartTime          time.Time       `gorm:"not null" json:"start_time"`
	DueTime            time.Time       `gorm:"index;not null" json:"due_time"`
	ClosedAt           *time.Time      `json:"closed_at"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Loan) TableName() string {
	return "loan"
}

func (l *Loan) IsActive() bool {
	return l.Status == LoanStatusActive
}

var daysPerYear = decimal.NewFromInt(365)

const amountScale = 18

// OutstandingAt 计算 t 时刻的待还金额
// 单利按整天计息：principal * (1 + rate * days / 365) - repaid，结果不小于 0，
// 保留 18 位小数，与金额列精度一致
func (l *Loan) OutstandingAt(t time.Time) decimal.Decimal {
	days := int64(0)
	if t.After(l.StartTime) {
		days = int64(t.Sub(l.StartTime) / (24 * time.Hour))
	}

	factor := decimal.NewFromInt(1).Add(
		l.AnnualInterestRate.Mul(decimal.NewFromInt(days)).Div(daysPerYear),
	)
	outstanding := l.Principal.Mul(factor).Round(amountScale).Sub(l.RepaidAmount)
	if outstanding.IsNegative() {
		return decimal.Zero
	}
	return outstanding
}

// Overdue 到期未还
func (l *Loan) Overdue(t time.Time) bool {
	return l.IsActive() && t.After(l.DueTime)
}
