package repository

import (
	"context"

	"goldledger/internal/model"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type LoanRepository struct {
	db *gorm.DB
}

func NewLoanRepository(db *gorm.DB) *LoanRepository {
	return &LoanRepository{db: db}
}

func (r *LoanRepository) Create(ctx context.Context, tx *gorm.DB, loan *model.Loan) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(loan).Error
}

// Update 写回还款进度与状态，WHERE 带上原状态，防止终态被覆盖
func (r *LoanRepository) Update(ctx context.Context, tx *gorm.DB, loan *model.Loan, fromStatus string) error {
	if fromStatus != loan.Status && !model.CanLoanTransitionTo(fromStatus, loan.Status) {
		return ErrLoanStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Loan{}).
		Where("id = ? AND status = ?", loan.ID, fromStatus).
		Updates(map[string]interface{}{
			"repaid_amount": loan.RepaidAmount,
			"status":        loan.Status,
			"closed_at":     loan.ClosedAt,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrLoanStatusInvalid
	}

	return nil
}

func (r *LoanRepository) GetActiveByUserID(ctx context.Context, userID int64) (*model.Loan, error) {
	var loan model.Loan
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.LoanStatusActive).
		First(&loan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &loan, nil
}

func (r *LoanRepository) GetLatestByUserID(ctx context.Context, userID int64) (*model.Loan, error) {
	var loan model.Loan
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		First(&loan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &loan, nil
}

func (r *LoanRepository) ListByUserID(ctx context.Context, userID int64) ([]*model.Loan, error) {
	var loans []*model.Loan
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Find(&loans).Error
	return loans, err
}

func (r *LoanRepository) ListActive(ctx context.Context, afterID int64, limit int) ([]*model.Loan, error) {
	var loans []*model.Loan
	err := r.db.WithContext(ctx).
		Where("status = ? AND id > ?", model.LoanStatusActive, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&loans).Error
	return loans, err
}
