package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docflow/internal/errcode"
)

// InternalSecretHeader 携带管理接口密钥。
const InternalSecretHeader = "X-Internal-Secret"

// InternalSecretMiddleware 保护迁移等管理接口。未配置密钥时整组接口不可用。
func InternalSecretMiddleware(secret string) gin.HandlerFunc {
	secret = strings.TrimSpace(secret)
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "admin api is disabled",
				"code":  errcode.SystemError,
			})
			return
		}
		// 只接受 Header，query 会进入访问日志。
		token := strings.TrimSpace(c.GetHeader(InternalSecretHeader))
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			LoggerFromContext(c).Warn("admin request rejected", slog.String("client_ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
				"code":  errcode.InvalidInput,
			})
			return
		}
		c.Next()
	}
}
