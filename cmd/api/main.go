// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/yourusername/library-rental/internal/admin"
	"github.com/yourusername/library-rental/internal/auth"
	"github.com/yourusername/library-rental/internal/book"
	"github.com/yourusername/library-rental/internal/config"
	"github.com/yourusername/library-rental/internal/jobs"
	"github.com/yourusername/library-rental/internal/ratelimit"
	"github.com/yourusername/library-rental/internal/rental"
	"github.com/yourusername/library-rental/internal/storage"
	"github.com/yourusername/library-rental/internal/store"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := log.New(os.Stdout, "", log.LstdFlags)

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// データストアの初期化（起動時にスキーマを反映）
	db, err := store.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	// 書影ストレージの初期化
	covers, err := storage.NewLocal(cfg.CoverDir)
	if err != nil {
		log.Fatalf("Failed to init cover storage: %v", err)
	}

	// ログイン試行制限（Redisが使える場合はプロセス間で共有する）
	var limiter auth.LoginLimiter
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to parse REDIS_URL: %v", err)
		}
		limiter = ratelimit.NewRedis(redis.NewClient(opt), ratelimit.Options{})
	} else {
		limiter = ratelimit.NewMemory(ratelimit.Options{})
	}

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// セッションストアの設定（クッキー署名鍵は必須）
	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   auth.SessionMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteStrictMode,
	})
	router.Use(sessions.Sessions(cfg.SessionName, sessionStore))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
	}
	router.Use(cors.New(corsConfig))

	// リクエストIDの付与とセッションからの利用者復元
	router.Use(requestID())
	router.Use(auth.AttachPrincipal())

	// ルーティングの設定
	setupRoutes(router, db, covers, limiter, logger)

	// 延滞貸出チェックジョブ（Redisが設定されている場合のみ）
	if cfg.RedisURL != "" {
		interval := time.Duration(cfg.OverdueCheckMinutes) * time.Minute
		manager, err := jobs.NewManager(cfg.RedisURL, interval, db, logger)
		if err != nil {
			log.Fatalf("Failed to init overdue job manager: %v", err)
		}
		if err := manager.Start(); err != nil {
			log.Fatalf("Failed to start overdue job manager: %v", err)
		}
		defer manager.Shutdown()
	}

	// サーバーの起動
	addr := ":" + cfg.Port
	logger.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "library-rental-api",
		"version": "0.1.0",
	})
}

// requestID はレスポンスへ一意なリクエストIDを付与するミドルウェアを返します。
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// setupRoutes は各エンドポイントと認証・認可の配線を行います。
func setupRoutes(router *gin.Engine, db *store.Store, covers storage.Storage, limiter auth.LoginLimiter, logger *log.Logger) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	strategy := auth.NewStrategy(db, logger)
	authManager := auth.NewManager(strategy, db, limiter, logger)
	gate := auth.NewGate(db, logger)

	users := router.Group("/users")
	{
		users.GET("/check", authManager.Check)
		users.POST("/login", authManager.Login)
		users.GET("/logout", authManager.Logout)
		users.POST("/register", authManager.Register)
	}

	// 書籍・貸出は要ログイン。未ログインはログインページへリダイレクトする。
	books := router.Group("/book")
	books.Use(auth.RequireLogin("/users/login"))
	{
		books.GET("/list", book.ListHandler(db))
		books.GET("/detail/:id", book.DetailHandler(db))
		books.GET("/cover/:id", book.CoverHandler(covers))
	}

	rentals := router.Group("/rental")
	rentals.Use(auth.RequireLogin("/users/login"))
	{
		rentals.POST("/start", rental.StartHandler(db))
		rentals.PUT("/return", rental.ReturnHandler(db))
		rentals.GET("/current", rental.CurrentHandler(db))
		rentals.GET("/history", rental.HistoryHandler(db))
	}

	// 管理者限定。権限フラグは毎リクエストでストアから取得し直す。
	adminRoutes := router.Group("/admin")
	adminRoutes.Use(gate.RequireAdmin())
	{
		adminRoutes.POST("/book/create", admin.BookCreateHandler(db))
		adminRoutes.PUT("/book/update", admin.BookUpdateHandler(db))
		adminRoutes.POST("/book/cover", admin.CoverUploadHandler(db, covers))
		adminRoutes.GET("/rental/current", admin.RentalCurrentHandler(db))
		adminRoutes.GET("/rental/current/:uid", admin.RentalCurrentByUserHandler(db))
	}
}
