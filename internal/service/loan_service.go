package service

import (
	"context"
	"time"

	"goldledger/internal/config"
	"goldledger/internal/ledger"
	"goldledger/internal/model"
	"goldledger/internal/repository"
	"goldledger/pkg/idgen"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ============================================================================
// 抵押借贷
// ============================================================================
//
// 状态机：
//
//	(none) -> ACTIVE -> REPAID | LIQUIDATED | DEFAULTED
//
// 每个账户同一时间最多一笔 ACTIVE 借贷，抵押品为放款时全部质押黄金。
// 放款、还款、释放或没收抵押品都与借贷状态迁移在同一次提交中完成
// ============================================================================

const day = 24 * time.Hour

// IssueRequest 放款参数
type IssueRequest struct {
	Principal          decimal.Decimal
	Currency           string
	LoanToValue        decimal.Decimal
	AnnualInterestRate decimal.Decimal
	TermDays           int
}

// RepayResult 还款结果
// Settled 为实际扣款，取 Requested 与当时待还金额中的较小者
type RepayResult struct {
	LoanNo      string          `json:"loan_no"`
	Requested   decimal.Decimal `json:"requested"`
	Settled     decimal.Decimal `json:"settled"`
	Outstanding decimal.Decimal `json:"outstanding"`
	Status      string          `json:"status"`
	Balances    model.Balances  `json:"balances"`
}

// LoanStatus 最近一笔借贷及其待还金额
type LoanStatus struct {
	Loan        *model.Loan     `json:"loan"`
	Outstanding decimal.Decimal `json:"outstanding"`
	Balances    model.Balances  `json:"balances"`
}

// HealthReport 借贷风险评估
type HealthReport struct {
	LoanNo          string          `json:"loan_no"`
	Outstanding     decimal.Decimal `json:"outstanding"`
	CollateralValue decimal.Decimal `json:"collateral_value"`
	CurrentLTV      decimal.Decimal `json:"current_ltv"`
	Overdue         bool            `json:"overdue"`
	Liquidatable    bool            `json:"liquidatable"`
}

type LoanService struct {
	engine *ledger.Engine
	store  repository.Store
	params config.LedgerParams
	logger *zap.Logger
}

func NewLoanService(engine *ledger.Engine, store repository.Store, params config.LedgerParams, logger *zap.Logger) *LoanService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoanService{
		engine: engine,
		store:  store,
		params: params,
		logger: logger,
	}
}

// Borrow 使用配置的默认 LTV 与年化利率放款
func (s *LoanService) Borrow(ctx context.Context, userID int64, principal decimal.Decimal, currency string, termDays int) (*model.Loan, error) {
	return s.Issue(ctx, userID, IssueRequest{
		Principal:          principal,
		Currency:           currency,
		LoanToValue:        s.params.DefaultLoanToValue,
		AnnualInterestRate: s.params.DefaultAnnualInterestRate,
		TermDays:           termDays,
	})
}

// Issue 以全部质押黄金为抵押放款，本金计入现金余额
func (s *LoanService) Issue(ctx context.Context, userID int64, req IssueRequest) (*model.Loan, error) {
	if err := s.validateIssue(req); err != nil {
		return nil, err
	}

	loanNo := idgen.GenerateLoanNo()
	entry := ledger.Entry{Type: model.TransactionTypeLoanIssue, BizNo: loanNo}

	res, err := s.engine.Execute(ctx, userID, entry, func(tx *ledger.Tx) error {
		active, err := tx.ActiveLoan()
		if err != nil {
			return err
		}
		if active != nil {
			return errors.Wrapf(ledger.ErrLoanAlreadyActive, "loan %s", active.LoanNo)
		}

		// 必须先质押再借款；Requested 为 0 表示需要任意正数的质押
		staked := tx.Balance(model.FieldStakedGold)
		if !staked.IsPositive() {
			return ledger.Insufficient(model.FieldStakedGold, decimal.Zero, staked)
		}

		now := tx.Now()
		loan := &model.Loan{
			LoanNo:             loanNo,
			UserID:             userID,
			Principal:          req.Principal,
			Currency:           req.Currency,
			CollateralGold:     staked,
			LoanToValue:        req.LoanToValue,
			AnnualInterestRate: req.AnnualInterestRate,
			TermDays:           req.TermDays,
			RepaidAmount:       decimal.Zero,
			Status:             model.LoanStatusActive,
			StartTime:          now,
			DueTime:            now.Add(time.Duration(req.TermDays) * day),
		}
		if err := tx.Apply(ledger.Op{Field: model.FieldCash, Delta: req.Principal}); err != nil {
			return err
		}
		tx.SaveLoan(loan, "")
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("放款成功",
		zap.String("loan_no", loanNo),
		zap.Int64("user_id", userID),
		zap.String("principal", req.Principal.String()),
		zap.String("currency", req.Currency),
		zap.String("collateral_gold", res.Loan.CollateralGold.String()))
	return res.Loan, nil
}

func (s *LoanService) validateIssue(req IssueRequest) error {
	if err := ledger.CheckAmount("principal", req.Principal); err != nil {
		return err
	}
	if !s.currencySupported(req.Currency) {
		return ledger.InvalidArgument("unsupported currency %q", req.Currency)
	}
	if !req.LoanToValue.IsPositive() || req.LoanToValue.GreaterThan(decimal.NewFromInt(1)) {
		return ledger.InvalidArgument("loan_to_value must be in (0, 1], got %s", req.LoanToValue)
	}
	if req.AnnualInterestRate.IsNegative() {
		return ledger.InvalidArgument("annual_interest_rate must not be negative, got %s", req.AnnualInterestRate)
	}
	if req.TermDays < 1 || req.TermDays > s.params.MaxTermDays {
		return ledger.InvalidArgument("term_days must be in [1, %d], got %d", s.params.MaxTermDays, req.TermDays)
	}
	return nil
}

func (s *LoanService) currencySupported(currency string) bool {
	for _, c := range s.params.LoanCurrencies {
		if c == currency {
			return true
		}
	}
	return false
}

// Repay 还款，最多结清待还金额，超出部分不扣
// 结清时借贷转为 REPAID，抵押品同时退回可用黄金
func (s *LoanService) Repay(ctx context.Context, userID int64, amount decimal.Decimal) (*RepayResult, error) {
	if err := ledger.CheckAmount("amount", amount); err != nil {
		return nil, err
	}

	var result RepayResult
	entry := ledger.Entry{Type: model.TransactionTypeLoanRepay}
	res, err := s.engine.Execute(ctx, userID, entry, func(tx *ledger.Tx) error {
		loan, err := tx.ActiveLoan()
		if err != nil {
			return err
		}
		if loan == nil {
			return ledger.ErrNoActiveLoan
		}

		outstanding := loan.OutstandingAt(tx.Now())
		settled := decimal.Min(amount, outstanding)
		if settled.IsPositive() {
			if err := tx.Apply(ledger.Op{Field: model.FieldCash, Delta: settled.Neg()}); err != nil {
				return err
			}
		}
		loan.RepaidAmount = loan.RepaidAmount.Add(settled)

		if settled.GreaterThanOrEqual(outstanding) {
			now := tx.Now()
			loan.Status = model.LoanStatusRepaid
			loan.ClosedAt = &now
			if err := tx.ApplyTyped(model.TransactionTypeCollateralRelease,
				ledger.Op{Field: model.FieldStakedGold, Delta: loan.CollateralGold.Neg()},
				ledger.Op{Field: model.FieldFreeGold, Delta: loan.CollateralGold},
			); err != nil {
				return err
			}
		}
		tx.SaveLoan(loan, model.LoanStatusActive)

		result = RepayResult{
			LoanNo:      loan.LoanNo,
			Requested:   amount,
			Settled:     settled,
			Outstanding: outstanding.Sub(settled),
			Status:      loan.Status,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Balances = res.Account.Snapshot()
	s.logger.Info("还款成功",
		zap.String("loan_no", result.LoanNo),
		zap.Int64("user_id", userID),
		zap.String("settled", result.Settled.String()),
		zap.String("status", result.Status))
	return &result, nil
}

// Outstanding 当前进行中借贷的待还金额
func (s *LoanService) Outstanding(ctx context.Context, userID int64) (decimal.Decimal, error) {
	loan, err := s.store.GetActiveLoan(ctx, userID)
	if err != nil {
		return decimal.Zero, ledger.Unavailable("load loan", err)
	}
	if loan == nil {
		return decimal.Zero, ledger.ErrNoActiveLoan
	}
	return loan.OutstandingAt(s.engine.Now()), nil
}

// GetLoanStatus 最近一笔借贷（任意状态）及其待还金额
func (s *LoanService) GetLoanStatus(ctx context.Context, userID int64) (*LoanStatus, error) {
	acct, err := s.store.LoadAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ledger.ErrAccountNotFound
		}
		return nil, ledger.Unavailable("load account", err)
	}

	loan, err := s.store.GetLatestLoan(ctx, userID)
	if err != nil {
		return nil, ledger.Unavailable("load loan", err)
	}
	if loan == nil {
		return nil, ledger.ErrNoActiveLoan
	}

	status := &LoanStatus{
		Loan:        loan,
		Outstanding: decimal.Zero,
		Balances:    acct.Snapshot(),
	}
	if loan.IsActive() {
		status.Outstanding = loan.OutstandingAt(s.engine.Now())
	}
	return status, nil
}

func (s *LoanService) ListLoans(ctx context.Context, userID int64) ([]*model.Loan, error) {
	loans, err := s.store.ListLoans(ctx, userID)
	if err != nil {
		return nil, ledger.Unavailable("list loans", err)
	}
	return loans, nil
}

// MarkLiquidated 清算：没收抵押品，借贷转为 LIQUIDATED
// loanNo 非空时只处理该笔借贷，避免误伤检查之后新开的借贷
func (s *LoanService) MarkLiquidated(ctx context.Context, userID int64, loanNo string) (*model.Loan, error) {
	return s.seize(ctx, userID, loanNo, model.LoanStatusLiquidated)
}

// MarkDefaulted 违约：到期未还，没收抵押品，借贷转为 DEFAULTED
func (s *LoanService) MarkDefaulted(ctx context.Context, userID int64, loanNo string) (*model.Loan, error) {
	return s.seize(ctx, userID, loanNo, model.LoanStatusDefaulted)
}

func (s *LoanService) seize(ctx context.Context, userID int64, loanNo, target string) (*model.Loan, error) {
	entry := ledger.Entry{Type: model.TransactionTypeCollateralSeize, BizNo: loanNo, Remark: target}
	res, err := s.engine.Execute(ctx, userID, entry, func(tx *ledger.Tx) error {
		loan, err := tx.ActiveLoan()
		if err != nil {
			return err
		}
		if loan == nil || (loanNo != "" && loan.LoanNo != loanNo) {
			return ledger.ErrNoActiveLoan
		}
		if target == model.LoanStatusDefaulted && !loan.Overdue(tx.Now()) {
			return errors.Wrapf(ledger.ErrLoanNotDue, "loan %s due at %s", loan.LoanNo, loan.DueTime.Format(time.RFC3339))
		}

		if err := tx.Apply(ledger.Op{Field: model.FieldStakedGold, Delta: loan.CollateralGold.Neg()}); err != nil {
			return err
		}
		now := tx.Now()
		loan.Status = target
		loan.ClosedAt = &now
		tx.SaveLoan(loan, model.LoanStatusActive)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Warn("借贷已关闭，抵押品已没收",
		zap.String("loan_no", res.Loan.LoanNo),
		zap.Int64("user_id", userID),
		zap.String("status", target),
		zap.String("collateral_gold", res.Loan.CollateralGold.String()))
	return res.Loan, nil
}

// CheckHealth 按给定金价评估借贷
// 当前 LTV = 待还金额 / (抵押黄金 × 金价)，超过清算线即可清算
func (s *LoanService) CheckHealth(loan *model.Loan, price decimal.Decimal) HealthReport {
	now := s.engine.Now()
	outstanding := loan.OutstandingAt(now)
	value := loan.CollateralGold.Mul(price)

	report := HealthReport{
		LoanNo:          loan.LoanNo,
		Outstanding:     outstanding,
		CollateralValue: value,
		Overdue:         loan.Overdue(now),
	}
	if value.IsPositive() {
		report.CurrentLTV = outstanding.DivRound(value, 8)
		report.Liquidatable = report.CurrentLTV.GreaterThan(s.params.LiquidationLoanToValue)
	} else {
		report.Liquidatable = outstanding.IsPositive()
	}
	return report
}
