package auth

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/yourusername/library-rental/internal/store"
)

// Principal はログイン済み利用者を表します。セッションには ID と Name のみを
// 保存するため、セッションから復元した Principal の IsAdmin は信頼できません。
// 管理者判定は Gate が毎回ストアから取得し直します。
type Principal struct {
	ID      int64
	Name    string
	IsAdmin bool
}

// UserStore は認証が必要とする利用者ストアの操作です。
// 利用者が存在しない場合、検索メソッドは (nil, nil) を返します。
type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (*store.User, error)
	FindUserByID(ctx context.Context, id int64) (*store.User, error)
	CreateUser(ctx context.Context, email, name string, password, salt []byte) (*store.User, error)
}

// 認証失敗の内部理由。外部へはどちらも同一の 401 レスポンスとして返すことで、
// 登録済みメールアドレスの推測を防ぎます。
var (
	ErrUserNotFound     = errors.New("invalid username and/or password.")
	ErrPasswordMismatch = errors.New("invalid username and/or password..")
)

// Strategy はメールアドレスとパスワードによる認証を行います。
type Strategy struct {
	users  UserStore
	logger *log.Logger
}

// NewStrategy は Strategy を作成します。
func NewStrategy(users UserStore, logger *log.Logger) *Strategy {
	return &Strategy{
		users:  users,
		logger: logger,
	}
}

// Authenticate は利用者を検索し、パスワードを検証して Principal を返します。
// 失敗理由は ErrUserNotFound / ErrPasswordMismatch、もしくはストア・導出の
// 内部エラーのいずれかです。検索→検証→Principal 構築の順序は固定です。
func (s *Strategy) Authenticate(ctx context.Context, email, password string) (*Principal, error) {
	user, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("user lookup failed email=%s: %v", email, err)
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		// ユーザがいない
		return nil, ErrUserNotFound
	}

	ok, err := VerifyPassword(password, user.Salt, user.Password)
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("password verification failed email=%s: %v", email, err)
		}
		return nil, err
	}
	if !ok {
		// パスワード違う
		return nil, ErrPasswordMismatch
	}

	return &Principal{
		ID:      user.ID,
		Name:    user.Name,
		IsAdmin: user.IsAdmin,
	}, nil
}
