package auth

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Gate は管理者限定操作の前段で権限を検査します。
type Gate struct {
	users  UserStore
	logger *log.Logger
}

// NewGate は Gate を作成します。
func NewGate(users UserStore, logger *log.Logger) *Gate {
	return &Gate{
		users:  users,
		logger: logger,
	}
}

// RequireAdmin は管理者権限を検査するミドルウェアを返します。
// 権限フラグはセッションに保存していないため、毎回ストアから取得し直します。
// 検査に失敗した場合、後続のハンドラーは実行されません。
func (g *Gate) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := CurrentPrincipal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"result": "NG",
				"error":  "Permission denied. User not logged in.",
			})
			return
		}

		user, err := g.users.FindUserByID(c.Request.Context(), principal.ID)
		if err != nil {
			g.logger.Printf("admin check failed user=%d: %v", principal.ID, err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"result": "NG",
				"error":  "Internal server error.",
			})
			return
		}

		if user == nil || !user.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"result": "NG",
				"error":  "Permission denied. Must be an admin.",
			})
			return
		}

		c.Next()
	}
}
