package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 流水类型常量
// ============================================================================

const (
	TransactionTypeSignupGrant       = "SIGNUP_GRANT"       // 注册赠送
	TransactionTypeDeposit           = "DEPOSIT"            // 现金充值
	TransactionTypeWithdraw          = "WITHDRAW"           // 现金提现
	TransactionTypeCredit            = "CREDIT"             // 通用入账
	TransactionTypeDebit             = "DEBIT"              // 通用出账
	TransactionTypeTransfer          = "TRANSFER"           // 账户内划转
	TransactionTypeBatch             = "BATCH"              // 批量调整
	TransactionTypeTradeBuy          = "TRADE_BUY"          // 买入黄金
	TransactionTypeTradeSell         = "TRADE_SELL"         // 卖出黄金
	TransactionTypeStake             = "STAKE"              // 质押
	TransactionTypeUnstake           = "UNSTAKE"            // 解除质押
	TransactionTypeLoanIssue         = "LOAN_ISSUE"         // 放款
	TransactionTypeLoanRepay         = "LOAN_REPAY"         // 还款
	TransactionTypeCollateralRelease = "COLLATERAL_RELEASE" // 结清后释放抵押品
	TransactionTypeCollateralSeize   = "COLLATERAL_SEIZE"   // 清算/违约没收抵押品
	TransactionTypeRedeem            = "REDEEM"             // 实物赎回
)

// ============================================================================
// 账户流水实体
// ============================================================================

// AccountTransaction 账户流水表
// 每一次余额字段变动记录一行，只追加，不修改，不删除
type AccountTransaction struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"` // 流水号（全局唯一）
	UserID        int64           `gorm:"index;not null" json:"user_id"`
	BizNo         string          `gorm:"type:varchar(64);index;not null" json:"biz_no"` // 关联业务单号：交易/借贷/赎回
	Field         BalanceField    `gorm:"type:varchar(20);not null" json:"field"`
	Amount        decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"amount"` // 正数入账，负数出账
	Type          string          `gorm:"type:varchar(32);not null" json:"type"`
	BalanceBefore decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"balance_before"`
	BalanceAfter  decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"balance_after"`
	Remark        string          `gorm:"type:varchar(256)" json:"remark"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (AccountTransaction) TableName() string {
	return "account_transaction"
}
