package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"goldledger/internal/model"

	"github.com/pkg/errors"
)

// MemoryStore 进程内账本存储，用于本地开发与测试
// 所有读写都拷贝记录，调用方拿不到内部对象的引用
type MemoryStore struct {
	mu sync.RWMutex

	accounts     map[int64]*model.Account
	loans        map[int64]*model.Loan
	redemptions  map[string]*model.RedemptionRequest
	transactions []*model.AccountTransaction
	outbox       []*model.OutboxMessage

	nextID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:    make(map[int64]*model.Account),
		loans:       make(map[int64]*model.Loan),
		redemptions: make(map[string]*model.RedemptionRequest),
	}
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) LoadAccount(_ context.Context, userID int64) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	clone := *acct
	return &clone, nil
}

func (s *MemoryStore) CreateAccount(_ context.Context, cs *Changeset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[cs.Account.UserID]; exists {
		return ErrAccountExists
	}

	now := time.Now()
	acct := *cs.Account
	acct.ID = s.id()
	acct.CreatedAt = now
	acct.UpdatedAt = now
	s.accounts[acct.UserID] = &acct
	cs.Account.ID = acct.ID

	s.appendRecords(cs, now)
	return nil
}

func (s *MemoryStore) Commit(_ context.Context, cs *Changeset) error {
	if cs.Account == nil {
		return errors.New("changeset 缺少账户")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[cs.Account.UserID]
	if !ok {
		return ErrAccountNotFound
	}
	if current.Version != cs.Account.Version {
		return ErrOptimisticLock
	}

	// 先校验借贷状态迁移，保证失败时没有任何写入
	if cs.Loan != nil && cs.Loan.ID != 0 {
		existing, ok := s.loans[cs.Loan.ID]
		if !ok {
			return ErrLoanNotFound
		}
		if existing.Status != cs.LoanFromStatus {
			return ErrLoanStatusInvalid
		}
		if cs.LoanFromStatus != cs.Loan.Status && !model.CanLoanTransitionTo(cs.LoanFromStatus, cs.Loan.Status) {
			return ErrLoanStatusInvalid
		}
	}

	now := time.Now()
	current.CashBalance = cs.Account.CashBalance
	current.FreeGold = cs.Account.FreeGold
	current.StakedGold = cs.Account.StakedGold
	current.Version++
	current.UpdatedAt = now

	if cs.Loan != nil {
		loan := *cs.Loan
		if loan.ID == 0 {
			loan.ID = s.id()
			loan.CreatedAt = now
			cs.Loan.ID = loan.ID
		}
		loan.UpdatedAt = now
		s.loans[loan.ID] = &loan
	}

	if cs.Redemption != nil {
		req := *cs.Redemption
		req.ID = s.id()
		req.CreatedAt = now
		req.UpdatedAt = now
		s.redemptions[req.RedemptionNo] = &req
		cs.Redemption.ID = req.ID
	}

	s.appendRecords(cs, now)
	return nil
}

func (s *MemoryStore) appendRecords(cs *Changeset, now time.Time) {
	for _, e := range cs.Entries {
		entry := *e
		entry.ID = s.id()
		entry.CreatedAt = now
		s.transactions = append(s.transactions, &entry)
	}
	for _, m := range cs.Outbox {
		msg := *m
		msg.ID = s.id()
		if msg.Status == "" {
			msg.Status = model.OutboxStatusPending
		}
		msg.CreatedAt = now
		msg.UpdatedAt = now
		s.outbox = append(s.outbox, &msg)
	}
}

func (s *MemoryStore) GetActiveLoan(_ context.Context, userID int64) (*model.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.loans {
		if l.UserID == userID && l.IsActive() {
			clone := *l
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) GetLatestLoan(_ context.Context, userID int64) (*model.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *model.Loan
	for _, l := range s.loans {
		if l.UserID == userID && (latest == nil || l.ID > latest.ID) {
			latest = l
		}
	}
	if latest == nil {
		return nil, nil
	}
	clone := *latest
	return &clone, nil
}

func (s *MemoryStore) ListLoans(_ context.Context, userID int64) ([]*model.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var loans []*model.Loan
	for _, l := range s.loans {
		if l.UserID == userID {
			clone := *l
			loans = append(loans, &clone)
		}
	}
	sort.Slice(loans, func(i, j int) bool { return loans[i].ID > loans[j].ID })
	return loans, nil
}

func (s *MemoryStore) ListActiveLoans(_ context.Context, afterID int64, limit int) ([]*model.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var loans []*model.Loan
	for _, l := range s.loans {
		if l.IsActive() && l.ID > afterID {
			clone := *l
			loans = append(loans, &clone)
		}
	}
	sort.Slice(loans, func(i, j int) bool { return loans[i].ID < loans[j].ID })
	if limit > 0 && len(loans) > limit {
		loans = loans[:limit]
	}
	return loans, nil
}

func (s *MemoryStore) GetRedemption(_ context.Context, redemptionNo string) (*model.RedemptionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.redemptions[redemptionNo]
	if !ok {
		return nil, ErrRedemptionNotFound
	}
	clone := *req
	return &clone, nil
}

func (s *MemoryStore) ListRedemptions(_ context.Context, userID int64) ([]*model.RedemptionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var reqs []*model.RedemptionRequest
	for _, r := range s.redemptions {
		if r.UserID == userID {
			clone := *r
			reqs = append(reqs, &clone)
		}
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].ID > reqs[j].ID })
	return reqs, nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, userID int64, page, pageSize int) ([]*model.AccountTransaction, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*model.AccountTransaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		if s.transactions[i].UserID == userID {
			all = append(all, s.transactions[i])
		}
	}

	total := int64(len(all))
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if pageSize <= 0 || start >= len(all) {
		return []*model.AccountTransaction{}, total, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}

	result := make([]*model.AccountTransaction, 0, end-start)
	for _, e := range all[start:end] {
		clone := *e
		result = append(result, &clone)
	}
	return result, total, nil
}

// ============================================================================
// OutboxStore
// ============================================================================

func (s *MemoryStore) GetPendingMessages(_ context.Context, limit int) ([]*model.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var msgs []*model.OutboxMessage
	for _, m := range s.outbox {
		if m.Status != model.OutboxStatusPending {
			continue
		}
		clone := *m
		msgs = append(msgs, &clone)
		if limit > 0 && len(msgs) == limit {
			break
		}
	}
	return msgs, nil
}

func (s *MemoryStore) findOutbox(id int64) *model.OutboxMessage {
	for _, m := range s.outbox {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m := s.findOutbox(id); m != nil {
		m.Status = status
		m.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryStore) IncrementRetryCount(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m := s.findOutbox(id); m != nil {
		m.RetryCount++
	}
	return nil
}

func (s *MemoryStore) MarkAsFailed(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m := s.findOutbox(id); m != nil {
		m.Status = model.OutboxStatusFailed
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
var _ OutboxStore = (*MemoryStore)(nil)
