package ledger

import (
	"fmt"

	"goldledger/internal/model"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// 账本错误类别，调用方用 errors.Is 判断
var (
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrInvalidAmount     = errors.New("ledger: invalid amount")
	ErrInvalidArgument   = errors.New("ledger: invalid argument")
	ErrLoanAlreadyActive = errors.New("ledger: loan already active")
	ErrNoActiveLoan      = errors.New("ledger: no active loan")
	ErrCollateralLocked  = errors.New("ledger: collateral locked by active loan")
	ErrAccountNotFound   = errors.New("ledger: account not found")
	ErrLoanNotDue        = errors.New("ledger: loan not yet due")
	ErrUnavailable       = errors.New("ledger: unavailable")
)

// InsufficientFundsError 指明哪个余额不足、请求多少、可用多少
type InsufficientFundsError struct {
	Field     model.BalanceField
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("ledger: insufficient %s: requested %s, available %s",
		e.Field, e.Requested.String(), e.Available.String())
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// Insufficient 构造余额不足错误
func Insufficient(field model.BalanceField, requested, available decimal.Decimal) error {
	return &InsufficientFundsError{Field: field, Requested: requested, Available: available}
}

// UnavailableError 存储、锁、价格源等非账本错误，不在本层重试
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("ledger: %s unavailable: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// Unavailable 包装外部依赖错误
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return err
	}
	return &UnavailableError{Op: op, Err: err}
}

// AmountScale 金额最多保留的小数位数，与 decimal(36,18) 列一致
const AmountScale = 18

// CheckAmount 金额必须为正，且小数位不超过 AmountScale
// 超出精度直接拒绝，不做舍入，否则落库后的余额与内存中的不一致
func CheckAmount(name string, v decimal.Decimal) error {
	if !v.IsPositive() {
		return InvalidAmount(name, v)
	}
	return checkScale(name, v)
}

func checkScale(name string, v decimal.Decimal) error {
	if !v.Truncate(AmountScale).Equal(v) {
		return errors.Wrapf(ErrInvalidAmount, "%s=%s has more than %d decimal places", name, v.String(), AmountScale)
	}
	return nil
}

// InvalidAmount 附带字段名的金额错误
func InvalidAmount(name string, v decimal.Decimal) error {
	return errors.Wrapf(ErrInvalidAmount, "%s=%s", name, v.String())
}

// InvalidArgument 附带说明的参数错误
func InvalidArgument(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}
