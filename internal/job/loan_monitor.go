package job

import (
	"context"
	"sync"
	"time"

	"goldledger/internal/ledger"
	"goldledger/internal/model"
	"goldledger/internal/oracle"
	"goldledger/internal/repository"
	"goldledger/internal/service"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LoanMonitor 定时扫描进行中的借贷
//
//	到期未还            -> DEFAULTED
//	当前 LTV 超过清算线  -> LIQUIDATED
//
// 两种情况都没收抵押品。金价获取失败时本轮只处理违约
type LoanMonitor struct {
	store     repository.Store
	loans     *service.LoanService
	oracle    oracle.PriceOracle
	logger    *zap.Logger
	stopCh    chan struct{}
	stopOnce  sync.Once
	interval  time.Duration
	batchSize int
}

// ScanResult 一轮扫描的统计
type ScanResult struct {
	Scanned    int
	Defaulted  int
	Liquidated int
}

func NewLoanMonitor(store repository.Store, loans *service.LoanService, priceOracle oracle.PriceOracle, interval time.Duration, logger *zap.Logger) *LoanMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &LoanMonitor{
		store:     store,
		loans:     loans,
		oracle:    priceOracle,
		logger:    logger.Named("loan_monitor"),
		stopCh:    make(chan struct{}),
		interval:  interval,
		batchSize: 100,
	}
}

func (j *LoanMonitor) Start(ctx context.Context) {
	j.logger.Info("借贷监控任务启动", zap.Duration("interval", j.interval))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("收到停止信号，任务退出")
			return
		case <-j.stopCh:
			j.logger.Info("任务停止")
			return
		case <-ticker.C:
			j.scan(ctx)
		}
	}
}

// Stop 可重复调用
func (j *LoanMonitor) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
}

func (j *LoanMonitor) scan(ctx context.Context) ScanResult {
	var result ScanResult

	price, err := j.oracle.CurrentPrice(ctx)
	havePrice := err == nil
	if err != nil {
		j.logger.Warn("获取金价失败，本轮只处理违约", zap.Error(err))
	}

	var afterID int64
	for {
		loans, err := j.store.ListActiveLoans(ctx, afterID, j.batchSize)
		if err != nil {
			j.logger.Error("查询进行中借贷失败", zap.Error(err))
			return result
		}
		if len(loans) == 0 {
			break
		}

		for _, loan := range loans {
			result.Scanned++
			switch j.check(ctx, loan, price, havePrice) {
			case model.LoanStatusDefaulted:
				result.Defaulted++
			case model.LoanStatusLiquidated:
				result.Liquidated++
			}
		}
		afterID = loans[len(loans)-1].ID
	}

	if result.Defaulted > 0 || result.Liquidated > 0 {
		j.logger.Info("本轮借贷扫描完成",
			zap.Int("scanned", result.Scanned),
			zap.Int("defaulted", result.Defaulted),
			zap.Int("liquidated", result.Liquidated))
	}
	return result
}

// check 处理单笔借贷，返回迁移后的状态；未处理返回空串
func (j *LoanMonitor) check(ctx context.Context, loan *model.Loan, price decimal.Decimal, havePrice bool) string {
	report := j.loans.CheckHealth(loan, price)

	var err error
	target := ""
	switch {
	case report.Overdue:
		target = model.LoanStatusDefaulted
		_, err = j.loans.MarkDefaulted(ctx, loan.UserID, loan.LoanNo)
	case havePrice && report.Liquidatable:
		target = model.LoanStatusLiquidated
		_, err = j.loans.MarkLiquidated(ctx, loan.UserID, loan.LoanNo)
	default:
		return ""
	}

	if err != nil {
		// 扫描之后借贷已被结清或处理
		if errors.Is(err, ledger.ErrNoActiveLoan) {
			j.logger.Debug("借贷已不再进行中", zap.String("loan_no", loan.LoanNo))
			return ""
		}
		j.logger.Error("关闭借贷失败",
			zap.String("loan_no", loan.LoanNo),
			zap.String("target", target),
			zap.Error(err))
		return ""
	}

	j.logger.Warn("借贷已关闭",
		zap.String("loan_no", loan.LoanNo),
		zap.Int64("user_id", loan.UserID),
		zap.String("status", target),
		zap.String("outstanding", report.Outstanding.String()),
		zap.String("current_ltv", report.CurrentLTV.String()))
	return target
}
