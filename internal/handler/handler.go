package handler

import (
	"strconv"

	"goldledger/internal/oracle"
	"goldledger/internal/service"
	"goldledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Services 处理器依赖的业务服务
type Services struct {
	Accounts    *service.AccountService
	Trades      *service.TradeService
	Staking     *service.StakingService
	Loans       *service.LoanService
	Redemptions *service.RedemptionService
	Oracle      oracle.PriceOracle
}

// Handler 统一处理器
// 只负责解析参数和渲染结果，余额计算全部在服务端账本中完成
type Handler struct {
	svc    Services
	logger *zap.Logger
}

// NewHandler 创建处理器实例
func NewHandler(svc Services, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

func queryUserID(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		response.ParamError(c, "user_id 参数错误")
		return 0, false
	}
	return userID, true
}

func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return false
	}
	return true
}

// ============================================================
// 账户相关接口
// ============================================================

// GetBalance 查询余额
// GET /api/v1/account/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	balances, err := h.svc.Accounts.GetBalances(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, balances)
}

// ListTransactions 查询账户流水
// GET /api/v1/account/transactions?user_id=xxx&page=1&page_size=20
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	list, total, err := h.svc.Accounts.ListTransactions(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      list,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// AmountRequest 只带金额的请求：充值、提现、质押、解押、还款
type AmountRequest struct {
	UserID int64           `json:"user_id" binding:"required,gt=0"`
	Amount decimal.Decimal `json:"amount"`
}

// Deposit 现金充值（模拟，不对接真实支付渠道）
// POST /api/v1/account/deposit
func (h *Handler) Deposit(c *gin.Context) {
	var req AmountRequest
	if !bind(c, &req) {
		return
	}

	balances, err := h.svc.Accounts.Deposit(c.Request.Context(), req.UserID, req.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, balances)
}

// Withdraw 现金提现
// POST /api/v1/account/withdraw
func (h *Handler) Withdraw(c *gin.Context) {
	var req AmountRequest
	if !bind(c, &req) {
		return
	}

	balances, err := h.svc.Accounts.Withdraw(c.Request.Context(), req.UserID, req.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, balances)
}

// ============================================================
// 黄金相关接口
// ============================================================

// GetPrice 当前金价
// GET /api/v1/gold/price
func (h *Handler) GetPrice(c *gin.Context) {
	price, err := h.svc.Oracle.CurrentPrice(c.Request.Context())
	if err != nil {
		h.logger.Warn("获取金价失败", zap.Error(err))
		response.Error(c, response.CodeServiceUnavailable, "金价暂不可用")
		return
	}
	response.Success(c, gin.H{"price": price})
}

// TradeRequest 买卖黄金请求，按当前金价成交
type TradeRequest struct {
	UserID     int64           `json:"user_id" binding:"required,gt=0"`
	Direction  string          `json:"direction" binding:"required,oneof=buy sell"`
	AmountGold decimal.Decimal `json:"amount_gold"`
}

// Trade 买卖黄金
// POST /api/v1/gold/trade
func (h *Handler) Trade(c *gin.Context) {
	var req TradeRequest
	if !bind(c, &req) {
		return
	}

	result, err := h.svc.Trades.Trade(c.Request.Context(), req.UserID, service.Direction(req.Direction), req.AmountGold)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, result)
}

// RedeemRequest 实物赎回请求
type RedeemRequest struct {
	UserID          int64           `json:"user_id" binding:"required,gt=0"`
	AmountGold      decimal.Decimal `json:"amount_gold"`
	DeliveryAddress string          `json:"delivery_address"`
}

// Redeem 申请实物赎回
// POST /api/v1/gold/redeem
func (h *Handler) Redeem(c *gin.Context) {
	var req RedeemRequest
	if !bind(c, &req) {
		return
	}

	redemption, err := h.svc.Redemptions.Request(c.Request.Context(), req.UserID, req.AmountGold, req.DeliveryAddress)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, redemption)
}

// ListRedemptions 赎回申请列表，带 redemption_no 时查询单条
// GET /api/v1/gold/redemptions?user_id=xxx
func (h *Handler) ListRedemptions(c *gin.Context) {
	if no := c.Query("redemption_no"); no != "" {
		redemption, err := h.svc.Redemptions.Get(c.Request.Context(), no)
		if err != nil {
			h.fail(c, err)
			return
		}
		response.Success(c, redemption)
		return
	}

	userID, ok := queryUserID(c)
	if !ok {
		return
	}
	list, err := h.svc.Redemptions.List(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"list": list})
}

// ============================================================
// DeFi 相关接口
// ============================================================

// Stake 质押黄金
// POST /api/v1/defi/stake
func (h *Handler) Stake(c *gin.Context) {
	var req AmountRequest
	if !bind(c, &req) {
		return
	}

	balances, err := h.svc.Staking.Stake(c.Request.Context(), req.UserID, req.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, balances)
}

// Unstake 解除质押
// POST /api/v1/defi/unstake
func (h *Handler) Unstake(c *gin.Context) {
	var req AmountRequest
	if !bind(c, &req) {
		return
	}

	balances, err := h.svc.Staking.Unstake(c.Request.Context(), req.UserID, req.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, balances)
}

// BorrowRequest 借款请求，LTV 与利率使用系统配置
type BorrowRequest struct {
	UserID    int64           `json:"user_id" binding:"required,gt=0"`
	Principal decimal.Decimal `json:"principal"`
	Currency  string          `json:"currency" binding:"required"`
	TermDays  int             `json:"term_days" binding:"required"`
}

// Borrow 以质押黄金为抵押借款
// POST /api/v1/defi/borrow
func (h *Handler) Borrow(c *gin.Context) {
	var req BorrowRequest
	if !bind(c, &req) {
		return
	}

	loan, err := h.svc.Loans.Borrow(c.Request.Context(), req.UserID, req.Principal, req.Currency, req.TermDays)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, loan)
}

// Repay 还款
// POST /api/v1/defi/repay
//
// 实际扣款 settled = min(amount, 待还金额)，多出的部分不扣，
// 响应同时返回 requested 与 settled，调用方以 settled 为准
func (h *Handler) Repay(c *gin.Context) {
	var req AmountRequest
	if !bind(c, &req) {
		return
	}

	result, err := h.svc.Loans.Repay(c.Request.Context(), req.UserID, req.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, result)
}

// GetLoanStatus 最近一笔借贷状态
// GET /api/v1/defi/status?user_id=xxx
func (h *Handler) GetLoanStatus(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	status, err := h.svc.Loans.GetLoanStatus(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, status)
}

// ListLoans 借贷历史
// GET /api/v1/defi/loans?user_id=xxx
func (h *Handler) ListLoans(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	loans, err := h.svc.Loans.ListLoans(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"list": loans})
}

// ============================================================
// 管理接口
// ============================================================

// CloseLoanRequest 清算/违约请求，loan_no 为空时处理当前进行中的借贷
type CloseLoanRequest struct {
	UserID int64  `json:"user_id" binding:"required,gt=0"`
	LoanNo string `json:"loan_no"`
}

// LiquidateLoan 清算
// POST /api/v1/admin/loan/liquidate
func (h *Handler) LiquidateLoan(c *gin.Context) {
	var req CloseLoanRequest
	if !bind(c, &req) {
		return
	}

	loan, err := h.svc.Loans.MarkLiquidated(c.Request.Context(), req.UserID, req.LoanNo)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, loan)
}

// DefaultLoan 标记违约
// POST /api/v1/admin/loan/default
func (h *Handler) DefaultLoan(c *gin.Context) {
	var req CloseLoanRequest
	if !bind(c, &req) {
		return
	}

	loan, err := h.svc.Loans.MarkDefaulted(c.Request.Context(), req.UserID, req.LoanNo)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, loan)
}
