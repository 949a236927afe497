package ledger

import (
	"context"
	"encoding/json"
	"time"

	"goldledger/internal/model"
	"goldledger/internal/repository"
	"goldledger/pkg/idgen"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ============================================================================
// LedgerEngine
// ============================================================================
//
// 账户三个余额的唯一写入者。每次调用：
//
//	加账户锁 -> 读取权威余额 -> 暂存增减 -> 非负校验 -> 整体提交 -> 释放锁
//
// 校验失败时不产生任何写入；加锁之前调用方可以放弃请求，
// 拿到锁之后改用不可取消的 context，保证提交要么完成要么失败，不会中途停下
// ============================================================================

const defaultEventTopic = "ledger_event"

// Entry 本次变更在流水与事件中的标识
type Entry struct {
	Type   string
	BizNo  string
	Remark string
}

// Option 调整 Credit/Debit/Transfer/ApplyBatch 的流水标识
type Option func(*Entry)

func WithEntryType(t string) Option {
	return func(e *Entry) { e.Type = t }
}

func WithBizNo(no string) Option {
	return func(e *Entry) { e.BizNo = no }
}

func WithRemark(r string) Option {
	return func(e *Entry) { e.Remark = r }
}

// Result 一次已提交变更的结果
type Result struct {
	Account    model.Account
	Entries    []*model.AccountTransaction
	Loan       *model.Loan
	Redemption *model.RedemptionRequest
}

type Engine struct {
	store       repository.Store
	locker      Locker
	logger      *zap.Logger
	now         func() time.Time
	initialCash decimal.Decimal
	topic       string
}

type EngineOption func(*Engine)

func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithClock 注入时钟，计息与到期判断都以它为准
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithInitialCash 新账户的注册赠送金额
func WithInitialCash(amount decimal.Decimal) EngineOption {
	return func(e *Engine) { e.initialCash = amount }
}

func WithEventTopic(topic string) EngineOption {
	return func(e *Engine) { e.topic = topic }
}

func NewEngine(store repository.Store, locker Locker, opts ...EngineOption) *Engine {
	e := &Engine{
		store:  store,
		locker: locker,
		logger: zap.NewNop(),
		now:    time.Now,
		topic:  defaultEventTopic,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Now() time.Time {
	return e.now()
}

// Credit 增加指定余额，amount 必须大于 0
func (e *Engine) Credit(ctx context.Context, userID int64, field model.BalanceField, amount decimal.Decimal, opts ...Option) (*Result, error) {
	if err := CheckAmount("amount", amount); err != nil {
		return nil, err
	}
	opts = append([]Option{WithEntryType(model.TransactionTypeCredit)}, opts...)
	return e.ApplyBatch(ctx, userID, []Op{{Field: field, Delta: amount}}, opts...)
}

// Debit 扣减指定余额，不足时返回 InsufficientFundsError
func (e *Engine) Debit(ctx context.Context, userID int64, field model.BalanceField, amount decimal.Decimal, opts ...Option) (*Result, error) {
	if err := CheckAmount("amount", amount); err != nil {
		return nil, err
	}
	opts = append([]Option{WithEntryType(model.TransactionTypeDebit)}, opts...)
	return e.ApplyBatch(ctx, userID, []Op{{Field: field, Delta: amount.Neg()}}, opts...)
}

// TransferWithinAccount 同一账户内两个字段间划转，质押/解押即基于此
func (e *Engine) TransferWithinAccount(ctx context.Context, userID int64, from, to model.BalanceField, amount decimal.Decimal, opts ...Option) (*Result, error) {
	if err := CheckAmount("amount", amount); err != nil {
		return nil, err
	}
	if from == to {
		return nil, InvalidArgument("transfer from %s to itself", from)
	}
	opts = append([]Option{WithEntryType(model.TransactionTypeTransfer)}, opts...)
	return e.ApplyBatch(ctx, userID, []Op{
		{Field: from, Delta: amount.Neg()},
		{Field: to, Delta: amount},
	}, opts...)
}

// ApplyBatch 原子地应用一组有符号增减，任一字段变负则全部不生效
func (e *Engine) ApplyBatch(ctx context.Context, userID int64, ops []Op, opts ...Option) (*Result, error) {
	if len(ops) == 0 {
		return nil, InvalidArgument("empty batch")
	}
	entry := Entry{Type: model.TransactionTypeBatch}
	for _, opt := range opts {
		opt(&entry)
	}
	return e.Execute(ctx, userID, entry, func(tx *Tx) error {
		return tx.Apply(ops...)
	})
}

// Execute 在账户锁内运行 fn，并在校验通过后整体提交 fn 暂存的全部变更
func (e *Engine) Execute(ctx context.Context, userID int64, entry Entry, fn func(tx *Tx) error) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if entry.BizNo == "" {
		entry.BizNo = idgen.GenerateLedgerNo()
	}

	unlock, err := e.locker.Lock(ctx, userID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.logger.Error("获取账户锁失败", zap.Int64("user_id", userID), zap.Error(err))
		return nil, Unavailable("lock", err)
	}
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runCtx := context.WithoutCancel(ctx)

	acct, err := e.loadOrCreate(runCtx, userID)
	if err != nil {
		return nil, err
	}

	tx := newTx(runCtx, e.store, e.now(), acct, entry)
	if err := fn(tx); err != nil {
		return nil, err
	}
	if err := tx.check(); err != nil {
		e.logger.Debug("账本变更被拒绝",
			zap.Int64("user_id", userID),
			zap.String("type", entry.Type),
			zap.Error(err))
		return nil, err
	}
	if tx.empty() {
		return &Result{Account: tx.after}, nil
	}

	cs := &repository.Changeset{
		Account:        &tx.after,
		Entries:        tx.entries,
		Loan:           tx.loan,
		LoanFromStatus: tx.loanFrom,
		Redemption:     tx.redemption,
	}
	msg, err := e.event(tx)
	if err != nil {
		return nil, err
	}
	cs.Outbox = []*model.OutboxMessage{msg}

	if err := e.store.Commit(runCtx, cs); err != nil {
		e.logger.Error("账本提交失败",
			zap.Int64("user_id", userID),
			zap.String("type", entry.Type),
			zap.String("biz_no", entry.BizNo),
			zap.Error(err))
		return nil, Unavailable("commit", err)
	}

	committed := tx.after
	committed.Version = acct.Version + 1

	e.logger.Info("账本变更已提交",
		zap.Int64("user_id", userID),
		zap.String("type", entry.Type),
		zap.String("biz_no", entry.BizNo),
		zap.String("cash", committed.CashBalance.String()),
		zap.String("free_gold", committed.FreeGold.String()),
		zap.String("staked_gold", committed.StakedGold.String()))

	return &Result{
		Account:    committed,
		Entries:    tx.entries,
		Loan:       tx.loan,
		Redemption: tx.redemption,
	}, nil
}

// loadOrCreate 读取账户，不存在时按注册赠送金额开户
func (e *Engine) loadOrCreate(ctx context.Context, userID int64) (*model.Account, error) {
	acct, err := e.store.LoadAccount(ctx, userID)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, Unavailable("load account", err)
	}

	newAcct := &model.Account{
		UserID:      userID,
		CashBalance: e.initialCash,
		FreeGold:    decimal.Zero,
		StakedGold:  decimal.Zero,
	}
	cs := &repository.Changeset{Account: newAcct}
	if e.initialCash.IsPositive() {
		cs.Entries = []*model.AccountTransaction{{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        userID,
			BizNo:         idgen.GenerateLedgerNo(),
			Field:         model.FieldCash,
			Amount:        e.initialCash,
			Type:          model.TransactionTypeSignupGrant,
			BalanceBefore: decimal.Zero,
			BalanceAfter:  e.initialCash,
		}}
	}

	err = e.store.CreateAccount(ctx, cs)
	if err != nil && !errors.Is(err, repository.ErrAccountExists) {
		return nil, Unavailable("create account", err)
	}
	if err == nil {
		e.logger.Info("新账户已开立",
			zap.Int64("user_id", userID),
			zap.String("initial_cash", e.initialCash.String()))
	}

	acct, err = e.store.LoadAccount(ctx, userID)
	if err != nil {
		return nil, Unavailable("load account", err)
	}
	return acct, nil
}

// LedgerEvent 投递到 Kafka 的账本事件
type LedgerEvent struct {
	EventType    string         `json:"event_type"`
	BizNo        string         `json:"biz_no"`
	UserID       int64          `json:"user_id"`
	Changes      []EventChange  `json:"changes"`
	Balances     model.Balances `json:"balances"`
	LoanNo       string         `json:"loan_no,omitempty"`
	LoanStatus   string         `json:"loan_status,omitempty"`
	RedemptionNo string         `json:"redemption_no,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

type EventChange struct {
	Field  model.BalanceField `json:"field"`
	Amount decimal.Decimal    `json:"amount"`
}

func (e *Engine) event(tx *Tx) (*model.OutboxMessage, error) {
	evt := LedgerEvent{
		EventType:  tx.entry.Type,
		BizNo:      tx.entry.BizNo,
		UserID:     tx.UserID(),
		Balances:   tx.after.Snapshot(),
		OccurredAt: tx.now,
	}
	for _, op := range tx.ops {
		evt.Changes = append(evt.Changes, EventChange{Field: op.Field, Amount: op.Delta})
	}
	if tx.loan != nil {
		evt.LoanNo = tx.loan.LoanNo
		evt.LoanStatus = tx.loan.Status
	}
	if tx.redemption != nil {
		evt.RedemptionNo = tx.redemption.RedemptionNo
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, errors.Wrap(err, "序列化账本事件失败")
	}

	return &model.OutboxMessage{
		MessageKey: tx.entry.BizNo,
		UserID:     tx.UserID(),
		EventType:  tx.entry.Type,
		Topic:      e.topic,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}, nil
}
