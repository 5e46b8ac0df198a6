package auth

import (
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	sessionKeyUserID   = "auth_user_id"
	sessionKeyUserName = "auth_user_name"
	sessionKeyReturnTo = "return_to"
)

var maxSessionLifetime = 12 * time.Hour

// SessionMaxAgeSeconds はクッキーの MaxAge に利用する秒数を返します。
func SessionMaxAgeSeconds() int {
	return int(maxSessionLifetime.Seconds())
}

// ContextPrincipalKey は、ハンドラー間で Principal を共有するためのキーです。
const ContextPrincipalKey = "auth.principal"

// SerializePrincipal は Principal をセッションへ保存する最小表現に落とします。
// IsAdmin は意図的に保存しません。管理者権限は毎回ストアから取得し直すことで、
// セッション有効期間中に権限を剥奪された利用者が昇格したままになるのを防ぎます。
func SerializePrincipal(session sessions.Session, p *Principal) {
	session.Set(sessionKeyUserID, p.ID)
	session.Set(sessionKeyUserName, p.Name)
}

// LoadPrincipal はセッションから Principal を復元します。
// 復元した Principal の IsAdmin は常に false（未定義）です。
func LoadPrincipal(session sessions.Session) (*Principal, bool) {
	id, ok := readID(session.Get(sessionKeyUserID))
	if !ok {
		return nil, false
	}
	name, ok := session.Get(sessionKeyUserName).(string)
	if !ok {
		return nil, false
	}
	return &Principal{ID: id, Name: name}, true
}

// AttachPrincipal はセッションに記録された利用者をリクエストコンテキストへ
// 取り付けるミドルウェアを返します。未ログインでも処理は止めません。
func AttachPrincipal() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		if p, ok := LoadPrincipal(session); ok {
			c.Set(ContextPrincipalKey, p)
		}
		c.Next()
	}
}

// RequireLogin は未ログインのリクエストをログインページへリダイレクトする
// ミドルウェアを返します。元のパスはセッションに記録します。
func RequireLogin(loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentPrincipal(c); ok {
			c.Next()
			return
		}
		session := sessions.Default(c)
		session.Set(sessionKeyReturnTo, c.Request.URL.Path)
		_ = session.Save()
		c.Redirect(http.StatusFound, loginPath)
		c.Abort()
	}
}

// CurrentPrincipal はリクエストコンテキストから Principal を取り出します。
func CurrentPrincipal(c *gin.Context) (*Principal, bool) {
	v, ok := c.Get(ContextPrincipalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*Principal)
	if !ok || p == nil {
		return nil, false
	}
	return p, true
}

// readID はセッションストアの実装差を吸収してIDを取り出します。
func readID(v interface{}) (int64, bool) {
	switch id := v.(type) {
	case int64:
		return id, true
	case int:
		return int64(id), true
	case float64:
		return int64(id), true
	default:
		return 0, false
	}
}
