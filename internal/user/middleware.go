package user

import (
	"errors"
	"strings"

	"github.com/SlpAus/gametracker-backend/internal/platform/response"
	"github.com/SlpAus/gametracker-backend/pkg/token"
	"github.com/gin-gonic/gin"
)

const (
	// UserIDKey 是已认证用户ID在Gin上下文中的键名
	UserIDKey = "userID"
	// CurrentUserKey 是已认证用户完整记录在Gin上下文中的键名
	CurrentUserKey = "currentUser"
)

// RequireAuth 校验 Authorization: Bearer 访问令牌并加载对应的用户。
// 令牌缺失、无效、过期，或账号已不存在时，一律返回401并中断请求。
func RequireAuth(tokens *token.Service, repo *Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found || raw == "" {
			response.Error(c, response.Unauthorized())
			c.Abort()
			return
		}

		id, ok := tokens.VerifyAccessToken(raw)
		if !ok {
			response.Error(c, response.Unauthorized())
			c.Abort()
			return
		}

		// 令牌有效但账号已消失（理论上只在数据被手工清理后发生）
		u, err := repo.FindByID(id.UserID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				response.Error(c, response.Unauthorized())
			} else {
				response.Error(c, response.Internal(err))
			}
			c.Abort()
			return
		}

		c.Set(UserIDKey, u.ID)
		c.Set(CurrentUserKey, u)
		c.Next()
	}
}

// CurrentUser 从Gin上下文取出已认证用户。
// 只能在 RequireAuth 之后的处理函数中调用。
func CurrentUser(c *gin.Context) *User {
	v, _ := c.Get(CurrentUserKey)
	u, _ := v.(*User)
	return u
}
