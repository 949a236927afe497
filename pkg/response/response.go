package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess            = 0
	CodeParamError         = 400
	CodeUnauthorized       = 401
	CodeForbidden          = 403
	CodeNotFound           = 404
	CodeServerError        = 500
	CodeServiceUnavailable = 503
	CodeBusinessError      = 1000
)

// 账本业务错误码
const (
	CodeInsufficientFunds  = 1001
	CodeInvalidAmount      = 1002
	CodeLoanAlreadyActive  = 1003
	CodeNoActiveLoan       = 1004
	CodeCollateralLocked   = 1005
	CodeAccountNotFound    = 1006
	CodeLoanNotDue         = 1007
	CodeRedemptionNotFound = 1008
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

// ErrorWithData 失败时附带结构化信息，例如哪个余额不足
func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}
