package middleware

import (
	"Aorko/internal/pkg/response"
	"Aorko/internal/service"
	"strings"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware 负责验证凭据并将用户身份注入 Context
// 缺失、过期、无效分别返回不同的错误类别，客户端按类别决定是否刷新凭据
func AuthMiddleware(authService service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			response.Error(c, service.ErrTokenMissing)
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		user, err := authService.VerifyCredential(c.Request.Context(), tokenString)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set("user_id", user.ID)
		c.Next()
	}
}
