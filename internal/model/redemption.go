package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RedemptionStatusRequested = "REQUESTED"
	RedemptionStatusFulfilled = "FULFILLED"
	RedemptionStatusCancelled = "CANCELLED"
)

// RedemptionRequest 实物黄金赎回申请
// 申请创建与可用黄金扣减在同一事务中完成，黄金从此离开账本
type RedemptionRequest struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	RedemptionNo    string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"redemption_no"`
	UserID          int64           `gorm:"index;not null" json:"user_id"`
	AmountGold      decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"amount_gold"`
	DeliveryAddress string          `gorm:"type:varchar(512);not null" json:"delivery_address"`
	Status          string          `gorm:"type:varchar(20);index;not null" json:"status"`
	CreatedAt       time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RedemptionRequest) TableName() string {
	return "redemption_request"
}
