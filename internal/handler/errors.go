package handler

import (
	"goldledger/internal/ledger"
	"goldledger/internal/model"
	"goldledger/internal/repository"
	"goldledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var insufficientMessages = map[model.BalanceField]string{
	model.FieldCash:       "现金余额不足",
	model.FieldFreeGold:   "可用黄金余额不足",
	model.FieldStakedGold: "质押黄金余额不足",
}

// fail 将账本错误映射为业务错误码
func (h *Handler) fail(c *gin.Context, err error) {
	var ife *ledger.InsufficientFundsError
	if errors.As(err, &ife) {
		response.ErrorWithData(c, response.CodeInsufficientFunds, insufficientMessages[ife.Field], gin.H{
			"field":     ife.Field,
			"requested": ife.Requested,
			"available": ife.Available,
		})
		return
	}

	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		response.BusinessError(c, response.CodeInvalidAmount, err.Error())
	case errors.Is(err, ledger.ErrInvalidArgument):
		response.ParamError(c, err.Error())
	case errors.Is(err, ledger.ErrLoanAlreadyActive):
		response.BusinessError(c, response.CodeLoanAlreadyActive, "已有进行中的借贷")
	case errors.Is(err, ledger.ErrNoActiveLoan):
		response.BusinessError(c, response.CodeNoActiveLoan, "没有进行中的借贷")
	case errors.Is(err, ledger.ErrCollateralLocked):
		response.BusinessError(c, response.CodeCollateralLocked, "质押黄金正在作为借贷抵押品")
	case errors.Is(err, ledger.ErrAccountNotFound):
		response.BusinessError(c, response.CodeAccountNotFound, "账户不存在")
	case errors.Is(err, ledger.ErrLoanNotDue):
		response.BusinessError(c, response.CodeLoanNotDue, "借贷尚未到期")
	case errors.Is(err, repository.ErrRedemptionNotFound):
		response.BusinessError(c, response.CodeRedemptionNotFound, "赎回申请不存在")
	case errors.Is(err, ledger.ErrUnavailable):
		h.logger.Error("依赖服务不可用", zap.String("path", c.Request.URL.Path), zap.Error(err))
		response.Error(c, response.CodeServiceUnavailable, "服务暂不可用，请稍后重试")
	default:
		h.logger.Error("请求处理失败", zap.String("path", c.Request.URL.Path), zap.Error(err))
		response.ServerError(c, "服务器内部错误")
	}
}
