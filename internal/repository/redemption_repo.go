package repository

import (
	"context"

	"goldledger/internal/model"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type RedemptionRepository struct {
	db *gorm.DB
}

func NewRedemptionRepository(db *gorm.DB) *RedemptionRepository {
	return &RedemptionRepository{db: db}
}

func (r *RedemptionRepository) Create(ctx context.Context, tx *gorm.DB, req *model.RedemptionRequest) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(req).Error
}

func (r *RedemptionRepository) GetByRedemptionNo(ctx context.Context, redemptionNo string) (*model.RedemptionRequest, error) {
	var req model.RedemptionRequest
	err := r.db.WithContext(ctx).Where("redemption_no = ?", redemptionNo).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRedemptionNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *RedemptionRepository) ListByUserID(ctx context.Context, userID int64) ([]*model.RedemptionRequest, error) {
	var reqs []*model.RedemptionRequest
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&reqs).Error
	return reqs, err
}
