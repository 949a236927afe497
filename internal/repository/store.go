package repository

import (
	"context"

	"goldledger/internal/model"

	"github.com/pkg/errors"
)

var (
	ErrAccountNotFound    = errors.New("账户不存在")
	ErrAccountExists      = errors.New("账户已存在")
	ErrOptimisticLock     = errors.New("乐观锁冲突，请重试")
	ErrLoanNotFound       = errors.New("借贷记录不存在")
	ErrLoanStatusInvalid  = errors.New("借贷状态不合法")
	ErrRedemptionNotFound = errors.New("赎回申请不存在")
)

// Changeset 一次账本提交涉及的全部写入，必须整体成功或整体失败
//
// Account 携带读取时的 Version，提交时以 version 做乐观锁校验；
// Loan.ID 为 0 表示新建，否则按 LoanFromStatus -> Loan.Status 迁移
type Changeset struct {
	Account        *model.Account
	Entries        []*model.AccountTransaction
	Loan           *model.Loan
	LoanFromStatus string
	Redemption     *model.RedemptionRequest
	Outbox         []*model.OutboxMessage
}

// Store 账本持久化契约
// 账户与借贷记录只能经由 Commit 写入，调用方拿到的都是副本
type Store interface {
	LoadAccount(ctx context.Context, userID int64) (*model.Account, error)
	CreateAccount(ctx context.Context, cs *Changeset) error
	Commit(ctx context.Context, cs *Changeset) error

	// GetActiveLoan 没有进行中的借贷时返回 nil, nil
	GetActiveLoan(ctx context.Context, userID int64) (*model.Loan, error)
	// GetLatestLoan 没有任何借贷记录时返回 nil, nil
	GetLatestLoan(ctx context.Context, userID int64) (*model.Loan, error)
	ListLoans(ctx context.Context, userID int64) ([]*model.Loan, error)
	// ListActiveLoans 按 ID 升序分页扫描进行中的借贷
	ListActiveLoans(ctx context.Context, afterID int64, limit int) ([]*model.Loan, error)

	GetRedemption(ctx context.Context, redemptionNo string) (*model.RedemptionRequest, error)
	ListRedemptions(ctx context.Context, userID int64) ([]*model.RedemptionRequest, error)

	ListTransactions(ctx context.Context, userID int64, page, pageSize int) ([]*model.AccountTransaction, int64, error)
}

// OutboxStore 账本事件投递所需的读写
type OutboxStore interface {
	GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	IncrementRetryCount(ctx context.Context, id int64) error
	MarkAsFailed(ctx context.Context, id int64) error
}
