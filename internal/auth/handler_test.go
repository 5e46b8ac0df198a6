package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/library-rental/internal/store"
)

// newAuthRouter はセッションミドルウェア込みの認証ルーターを組み立てます。
func newAuthRouter(users *stubUserStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(sessions.Sessions("test_session", cookie.NewStore([]byte("test-secret"))))
	router.Use(AttachPrincipal())

	strategy := NewStrategy(users, testLogger())
	manager := NewManager(strategy, users, nil, testLogger())
	router.GET("/users/check", manager.Check)
	router.POST("/users/login", manager.Login)
	router.GET("/users/logout", manager.Logout)
	router.POST("/users/register", manager.Register)
	return router
}

func postJSON(router *gin.Engine, path string, payload any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestLoginSuccessAndCheck(t *testing.T) {
	user := newTestUser(t, 3, "alice@example.com", "alice", "secret-pass", true)
	users := &stubUserStore{byEmail: map[string]*store.User{user.Email: user}}
	router := newAuthRouter(users)

	rec := postJSON(router, "/users/login", gin.H{"email": "alice@example.com", "password": "secret-pass"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["message"] != "OK" {
		t.Fatalf("unexpected message: %v", payload["message"])
	}
	if payload["isAdmin"] != true {
		t.Fatalf("unexpected isAdmin: %v", payload["isAdmin"])
	}

	// 取得したセッションクッキーでログイン状態を確認
	req := httptest.NewRequest(http.MethodGet, "/users/check", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	checkRec := httptest.NewRecorder()
	router.ServeHTTP(checkRec, req)

	if checkRec.Code != http.StatusOK {
		t.Fatalf("unexpected check status: %d body=%s", checkRec.Code, checkRec.Body.String())
	}
}

func TestCheckWithoutSession(t *testing.T) {
	router := newAuthRouter(&stubUserStore{})

	req := httptest.NewRequest(http.MethodGet, "/users/check", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

// 未登録メールアドレスとパスワード誤りが外形的に区別できないことを確認する。
func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	user := newTestUser(t, 1, "bob@example.com", "bob", "right-pass", false)
	users := &stubUserStore{byEmail: map[string]*store.User{user.Email: user}}
	router := newAuthRouter(users)

	unknown := postJSON(router, "/users/login", gin.H{"email": "nobody@example.com", "password": "right-pass"}, nil)
	wrongPass := postJSON(router, "/users/login", gin.H{"email": "bob@example.com", "password": "wrong-pass"}, nil)

	if unknown.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status for unknown email: %d", unknown.Code)
	}
	if wrongPass.Code != unknown.Code {
		t.Fatalf("status differs: unknown=%d wrongPass=%d", unknown.Code, wrongPass.Code)
	}
	if !bytes.Equal(unknown.Body.Bytes(), wrongPass.Body.Bytes()) {
		t.Fatalf("body differs: unknown=%q wrongPass=%q", unknown.Body.String(), wrongPass.Body.String())
	}
}

func TestLogout(t *testing.T) {
	user := newTestUser(t, 5, "carol@example.com", "carol", "pass-word", false)
	users := &stubUserStore{byEmail: map[string]*store.User{user.Email: user}}
	router := newAuthRouter(users)

	login := postJSON(router, "/users/login", gin.H{"email": "carol@example.com", "password": "pass-word"}, nil)
	if login.Code != http.StatusOK {
		t.Fatalf("login failed: %d", login.Code)
	}
	cookies := login.Result().Cookies()

	req := httptest.NewRequest(http.MethodGet, "/users/logout", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected logout status: %d", rec.Code)
	}

	// ログアウト後のセッションではログイン状態にならない
	check := httptest.NewRequest(http.MethodGet, "/users/check", nil)
	for _, c := range rec.Result().Cookies() {
		check.AddCookie(c)
	}
	checkRec := httptest.NewRecorder()
	router.ServeHTTP(checkRec, check)
	if checkRec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", checkRec.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	router := newAuthRouter(&stubUserStore{})

	rec := postJSON(router, "/users/register", gin.H{"email": "  ", "name": "dave", "password": "pw"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if _, ok := payload["errors"]; !ok {
		t.Fatal("expected errors array")
	}
}

func TestRegisterAndDuplicate(t *testing.T) {
	users := &stubUserStore{}
	router := newAuthRouter(users)

	payload := gin.H{"email": "eve@example.com", "name": "eve", "password": "new-pass"}
	first := postJSON(router, "/users/register", payload, nil)
	if first.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d body=%s", first.Code, first.Body.String())
	}
	if len(users.created) != 1 {
		t.Fatalf("expected 1 created user, got %d", len(users.created))
	}
	created := users.created[0]
	if len(created.Salt) != saltSize || len(created.Password) != keyLength {
		t.Fatalf("unexpected credential sizes: salt=%d hash=%d", len(created.Salt), len(created.Password))
	}

	second := postJSON(router, "/users/register", payload, nil)
	if second.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status for duplicate: %d", second.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["message"] != "username is already registered" {
		t.Fatalf("unexpected message: %v", resp["message"])
	}
}
