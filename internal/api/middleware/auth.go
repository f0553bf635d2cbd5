package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hyleo/genmedia_go_server/internal/pkg/jwt"
	"github.com/hyleo/genmedia_go_server/internal/pkg/response"
)

const (
	AccountIDKey = "accountID"
)

// Auth JWT 认证中间件，令牌由外部身份服务签发
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.AuthError(c, "请提供认证信息")
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			response.AuthError(c, "认证格式错误")
			c.Abort()
			return
		}

		claims, err := jwt.ParseToken(tokenString, jwtSecret)
		if err != nil {
			response.AuthError(c, "认证失败或已过期")
			c.Abort()
			return
		}

		c.Set(AccountIDKey, claims.UserID)
		c.Next()
	}
}

// AdminAuth 管理接口鉴权，共享密钥走专用请求头
func AdminAuth(adminSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminSecret == "" {
			response.PermissionError(c, "管理接口未启用")
			c.Abort()
			return
		}

		secret := c.GetHeader("X-Admin-Secret")
		if subtle.ConstantTimeCompare([]byte(secret), []byte(adminSecret)) != 1 {
			response.PermissionError(c, "无管理权限")
			c.Abort()
			return
		}

		c.Next()
	}
}

// GetAccountID 从上下文获取账户 ID
func GetAccountID(c *gin.Context) (int64, bool) {
	accountID, exists := c.Get(AccountIDKey)
	if !exists {
		return 0, false
	}
	id, ok := accountID.(int64)
	return id, ok
}
