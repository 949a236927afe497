package repository

import (
	"context"

	"goldledger/internal/model"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// GormStore 基于 MySQL 的账本存储
// 每次 Commit 对应一个数据库事务：余额、流水、借贷、赎回、事件一起提交
type GormStore struct {
	db              *gorm.DB
	accountRepo     *AccountRepository
	loanRepo        *LoanRepository
	redemptionRepo  *RedemptionRepository
	transactionRepo *TransactionRepository
	outboxRepo      *OutboxRepository
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:              db,
		accountRepo:     NewAccountRepository(db),
		loanRepo:        NewLoanRepository(db),
		redemptionRepo:  NewRedemptionRepository(db),
		transactionRepo: NewTransactionRepository(db),
		outboxRepo:      NewOutboxRepository(db),
	}
}

// Outbox 事件表的读写，供 OutboxSender 使用
func (s *GormStore) Outbox() *OutboxRepository {
	return s.outboxRepo
}

func (s *GormStore) LoadAccount(ctx context.Context, userID int64) (*model.Account, error) {
	return s.accountRepo.GetByUserID(ctx, userID)
}

func (s *GormStore) CreateAccount(ctx context.Context, cs *Changeset) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.accountRepo.CreateIfAbsent(ctx, tx, cs.Account); err != nil {
			return err
		}
		return s.writeRecords(ctx, tx, cs)
	})
}

func (s *GormStore) Commit(ctx context.Context, cs *Changeset) error {
	if cs.Account == nil {
		return errors.New("changeset 缺少账户")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.accountRepo.UpdateBalances(ctx, tx, cs.Account); err != nil {
			return err
		}

		if cs.Loan != nil {
			if cs.Loan.ID == 0 {
				if err := s.loanRepo.Create(ctx, tx, cs.Loan); err != nil {
					return errors.Wrap(err, "写入借贷记录失败")
				}
			} else if err := s.loanRepo.Update(ctx, tx, cs.Loan, cs.LoanFromStatus); err != nil {
				return err
			}
		}

		if cs.Redemption != nil {
			if err := s.redemptionRepo.Create(ctx, tx, cs.Redemption); err != nil {
				return errors.Wrap(err, "写入赎回申请失败")
			}
		}

		return s.writeRecords(ctx, tx, cs)
	})
}

func (s *GormStore) writeRecords(ctx context.Context, tx *gorm.DB, cs *Changeset) error {
	if err := s.transactionRepo.CreateBatch(ctx, tx, cs.Entries); err != nil {
		return errors.Wrap(err, "记录流水失败")
	}
	if err := s.outboxRepo.CreateBatch(ctx, tx, cs.Outbox); err != nil {
		return errors.Wrap(err, "写入消息失败")
	}
	return nil
}

func (s *GormStore) GetActiveLoan(ctx context.Context, userID int64) (*model.Loan, error) {
	return s.loanRepo.GetActiveByUserID(ctx, userID)
}

func (s *GormStore) GetLatestLoan(ctx context.Context, userID int64) (*model.Loan, error) {
	return s.loanRepo.GetLatestByUserID(ctx, userID)
}

func (s *GormStore) ListLoans(ctx context.Context, userID int64) ([]*model.Loan, error) {
	return s.loanRepo.ListByUserID(ctx, userID)
}

func (s *GormStore) ListActiveLoans(ctx context.Context, afterID int64, limit int) ([]*model.Loan, error) {
	return s.loanRepo.ListActive(ctx, afterID, limit)
}

func (s *GormStore) GetRedemption(ctx context.Context, redemptionNo string) (*model.RedemptionRequest, error) {
	return s.redemptionRepo.GetByRedemptionNo(ctx, redemptionNo)
}

func (s *GormStore) ListRedemptions(ctx context.Context, userID int64) ([]*model.RedemptionRequest, error) {
	return s.redemptionRepo.ListByUserID(ctx, userID)
}

func (s *GormStore) ListTransactions(ctx context.Context, userID int64, page, pageSize int) ([]*model.AccountTransaction, int64, error) {
	return s.transactionRepo.ListByUserID(ctx, userID, page, pageSize)
}

var _ Store = (*GormStore)(nil)
var _ OutboxStore = (*OutboxRepository)(nil)
