package ledger

import (
	"context"
	"time"

	"goldledger/internal/model"
	"goldledger/internal/repository"
	"goldledger/pkg/idgen"

	"github.com/shopspring/decimal"
)

// Op 对单个余额字段的有符号增减
type Op struct {
	Field model.BalanceField
	Delta decimal.Decimal
}

// Tx 一次持锁执行中的账本变更
//
// 回调通过 Tx 读取权威余额、暂存增减、附带借贷或赎回记录；
// 暂存结果在回调返回后统一校验，合法才会整体提交
type Tx struct {
	ctx   context.Context
	store repository.Store
	now   time.Time
	entry Entry

	before model.Account
	after  model.Account
	ops    []Op

	entries []*model.AccountTransaction

	loan       *model.Loan
	loanFrom   string
	redemption *model.RedemptionRequest

	activeLoan       *model.Loan
	activeLoanLoaded bool
}

func newTx(ctx context.Context, store repository.Store, now time.Time, acct *model.Account, entry Entry) *Tx {
	return &Tx{
		ctx:    ctx,
		store:  store,
		now:    now,
		entry:  entry,
		before: *acct,
		after:  *acct,
	}
}

func (t *Tx) Context() context.Context { return t.ctx }

func (t *Tx) Now() time.Time { return t.now }

func (t *Tx) UserID() int64 { return t.before.UserID }

func (t *Tx) BizNo() string { return t.entry.BizNo }

// Account 返回暂存后的账户副本
func (t *Tx) Account() model.Account { return t.after }

// Balance 返回字段的暂存余额
func (t *Tx) Balance(field model.BalanceField) decimal.Decimal {
	return t.after.Balance(field)
}

// Apply 暂存一组增减，非负校验推迟到提交前
func (t *Tx) Apply(ops ...Op) error {
	for _, op := range ops {
		if !op.Field.Valid() {
			return InvalidArgument("unknown balance field %q", op.Field)
		}
		if op.Delta.IsZero() {
			return InvalidAmount(string(op.Field), op.Delta)
		}
		if err := checkScale(string(op.Field), op.Delta); err != nil {
			return err
		}
	}

	for _, op := range ops {
		before := t.after.Balance(op.Field)
		after := before.Add(op.Delta)
		t.after.SetBalance(op.Field, after)
		t.ops = append(t.ops, op)
		t.entries = append(t.entries, &model.AccountTransaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        t.before.UserID,
			BizNo:         t.entry.BizNo,
			Field:         op.Field,
			Amount:        op.Delta,
			Type:          t.entry.Type,
			BalanceBefore: before,
			BalanceAfter:  after,
			Remark:        t.entry.Remark,
		})
	}
	return nil
}

// ApplyTyped 与 Apply 相同，但流水记为指定类型（如还款时同时释放抵押品）
func (t *Tx) ApplyTyped(entryType string, ops ...Op) error {
	n := len(t.entries)
	if err := t.Apply(ops...); err != nil {
		return err
	}
	for _, e := range t.entries[n:] {
		e.Type = entryType
	}
	return nil
}

// ActiveLoan 读取账户当前进行中的借贷，已在本次变更中修改的以暂存为准
func (t *Tx) ActiveLoan() (*model.Loan, error) {
	if t.loan != nil {
		if t.loan.IsActive() {
			clone := *t.loan
			return &clone, nil
		}
		return nil, nil
	}
	if !t.activeLoanLoaded {
		loan, err := t.store.GetActiveLoan(t.ctx, t.before.UserID)
		if err != nil {
			return nil, Unavailable("load loan", err)
		}
		t.activeLoan = loan
		t.activeLoanLoaded = true
	}
	if t.activeLoan == nil {
		return nil, nil
	}
	clone := *t.activeLoan
	return &clone, nil
}

// SaveLoan 随本次变更写入借贷记录；fromStatus 为空表示新建
func (t *Tx) SaveLoan(loan *model.Loan, fromStatus string) {
	t.loan = loan
	t.loanFrom = fromStatus
}

// CreateRedemption 随本次变更写入赎回申请
func (t *Tx) CreateRedemption(req *model.RedemptionRequest) {
	t.redemption = req
}

// check 校验暂存结果，返回按操作顺序第一个变负的字段
func (t *Tx) check() error {
	for _, op := range t.ops {
		after := t.after.Balance(op.Field)
		if !after.IsNegative() {
			continue
		}
		available := t.before.Balance(op.Field)
		return Insufficient(op.Field, available.Sub(after), available)
	}
	return nil
}

func (t *Tx) empty() bool {
	return len(t.ops) == 0 && t.loan == nil && t.redemption == nil
}
