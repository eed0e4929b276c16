package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess            = 0
	CodeParamError         = 400
	CodeUnauthorized       = 401
	CodeNotFound           = 404
	CodeTooManyRequests    = 429
	CodeServerError        = 500
	CodeServiceUnavailable = 503
)

// 业务错误码
const (
	CodeAccountNotFound        = 1001
	CodeNameTaken              = 1002
	CodeRewardNotFound         = 1003
	CodeInvalidAmount          = 1004
	CodeInsufficientPoints     = 1005
	CodeRedemptionNotFound     = 1006
	CodeRewardInactive         = 1007
	CodeAlreadyClaimed         = 1008
	CodeTemporarilyUnavailable = 1009
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

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}

// Unavailable 临时性故障，客户端可以重试
// 使用 HTTP 503 以便网关和客户端识别可重试
func Unavailable(c *gin.Context, message string) {
	c.JSON(http.StatusServiceUnavailable, Response{
		Code:    CodeTemporarilyUnavailable,
		Message: message,
	})
}
