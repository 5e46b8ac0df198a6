package auth

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/library-rental/internal/store"
)

// LoginLimiter はログイン試行の制限を提供します。実装は internal/ratelimit に
// あります。nil の場合は制限なしで動作します。
type LoginLimiter interface {
	// Check はロック中の場合に残り時間を返します。0 なら試行可能です。
	Check(ctx context.Context, key string) (time.Duration, error)
	// RecordFailure は失敗を記録します。
	RecordFailure(ctx context.Context, key string) error
	// Reset は成功時に失敗履歴を消去します。
	Reset(ctx context.Context, key string) error
}

// Manager は認証まわりのHTTPハンドラーをまとめた構造体です。
type Manager struct {
	strategy *Strategy
	users    UserStore
	limiter  LoginLimiter
	logger   *log.Logger
}

// NewManager は認証マネージャーを作成します。limiter は nil でも構いません。
func NewManager(strategy *Strategy, users UserStore, limiter LoginLimiter, logger *log.Logger) *Manager {
	return &Manager{
		strategy: strategy,
		users:    users,
		limiter:  limiter,
		logger:   logger,
	}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login は POST /users/login のハンドラーです。
// 未登録メールアドレスとパスワード誤りは、登録済みアドレスの推測を防ぐため
// 同一のレスポンス（401 / {"message":"NG"}）で返します。
func (m *Manager) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// 資格情報が欠けている場合も認証失敗と同じ形で返す
		c.JSON(http.StatusUnauthorized, gin.H{"message": "NG"})
		return
	}

	ip := c.ClientIP()
	if m.limiter != nil {
		retryAfter, err := m.limiter.Check(c.Request.Context(), ip)
		if err != nil {
			// 制限側の障害でログインを止めない
			m.logger.Printf("login limiter check failed ip=%s: %v", ip, err)
		} else if retryAfter > 0 {
			c.Header("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
			c.JSON(http.StatusTooManyRequests, gin.H{"message": "NG"})
			return
		}
	}

	principal, err := m.strategy.Authenticate(c.Request.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrPasswordMismatch):
		m.logger.Printf("login rejected email=%s: %v", req.Email, err)
		if m.limiter != nil {
			if lerr := m.limiter.RecordFailure(c.Request.Context(), ip); lerr != nil {
				m.logger.Printf("login limiter record failed ip=%s: %v", ip, lerr)
			}
		}
		c.JSON(http.StatusUnauthorized, gin.H{"message": "NG"})
		return
	case err != nil:
		m.logger.Printf("login error email=%s: %v", req.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "NG"})
		return
	}

	if m.limiter != nil {
		if err := m.limiter.Reset(c.Request.Context(), ip); err != nil {
			m.logger.Printf("login limiter reset failed ip=%s: %v", ip, err)
		}
	}

	session := sessions.Default(c)
	SerializePrincipal(session, principal)
	if err := session.Save(); err != nil {
		m.logger.Printf("session save failed user=%d: %v", principal.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "NG"})
		return
	}

	// isAdmin はUI表示用に一度だけ返す。以後の認可判断には使わない。
	c.JSON(http.StatusOK, gin.H{
		"message": "OK",
		"isAdmin": principal.IsAdmin,
	})
}

// Logout は GET /users/logout のハンドラーです。セッションを破棄します。
func (m *Manager) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		m.logger.Printf("session clear failed: %v", err)
	}
	c.JSON(http.StatusOK, gin.H{"message": "OK"})
}

// Check は GET /users/check のハンドラーです。ログイン状態を返します。
func (m *Manager) Check(c *gin.Context) {
	if _, ok := CurrentPrincipal(c); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "NG"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged in"})
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// Register は POST /users/register のハンドラーです。
// 資格情報レコードは導出が成功した後にのみ書き込みます。
func (m *Manager) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"errors": []gin.H{{"msg": "Invalid value"}},
		})
		return
	}

	if errs := validateRegistration(&req); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"errors": errs})
		return
	}

	salt, err := GenerateSalt()
	if err != nil {
		m.logger.Printf("salt generation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "unknown ERROR"})
		return
	}

	hashed, err := DeriveKey(req.Password, salt)
	if err != nil {
		m.logger.Printf("key derivation failed email=%s: %v", req.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "unknown ERROR"})
		return
	}

	if _, err := m.users.CreateUser(c.Request.Context(), req.Email, req.Name, hashed, salt); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "username is already registered"})
			return
		}
		m.logger.Printf("user creation failed email=%s: %v", req.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "unknown ERROR"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "created!"})
}

// validateRegistration は空白のみの値を不正として扱います。
func validateRegistration(req *registerRequest) []gin.H {
	var errs []gin.H
	if strings.TrimSpace(req.Email) == "" {
		errs = append(errs, gin.H{"path": "email", "msg": "Invalid value"})
	}
	if strings.TrimSpace(req.Name) == "" {
		errs = append(errs, gin.H{"path": "name", "msg": "Invalid value"})
	}
	if strings.TrimSpace(req.Password) == "" {
		errs = append(errs, gin.H{"path": "password", "msg": "Invalid value"})
	}
	return errs
}
