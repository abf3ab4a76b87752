package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docflow/internal/api/middleware"
	"docflow/internal/errcode"
	"docflow/internal/fields"
	"docflow/internal/geometry"
	"docflow/internal/legacy"
)

func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

// ErrorWithCode 在 {"error"} 之外附带业务错误码。
func ErrorWithCode(c *gin.Context, status, code int, msg string) {
	c.JSON(status, gin.H{"error": msg, "code": code})
}

func BadRequest(c *gin.Context, msg string) { Error(c, http.StatusBadRequest, msg) }
func NotFound(c *gin.Context, msg string)   { Error(c, http.StatusNotFound, msg) }
func Internal(c *gin.Context, msg string)   { Error(c, http.StatusInternalServerError, msg) }

// Fail 把领域错误转换为 HTTP 响应，系统错误只记录日志不向调用方暴露细节。
func Fail(c *gin.Context, err error) {
	code := errcode.FromError(err)
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		middleware.LoggerFromContext(c).Error("request failed", "error", err)
		ErrorWithCode(c, status, code, "internal error")
		return
	}
	ErrorWithCode(c, status, code, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, fields.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, fields.ErrDuplicateKey), errors.Is(err, fields.ErrConcurrentUpdate):
		return http.StatusConflict
	case errors.Is(err, geometry.ErrInvalidGeometry):
		return http.StatusUnprocessableEntity
	case errors.Is(err, fields.ErrFieldTemplateMismatch):
		return http.StatusForbidden
	case errors.Is(err, legacy.ErrParseFailure), errors.Is(err, fields.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
