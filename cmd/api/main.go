// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/homegate/internal/auth"
	"github.com/yourusername/homegate/internal/config"
	"github.com/yourusername/homegate/internal/verify"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// セッションストアの設定（クッキー署名鍵は必須）
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   auth.SessionMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteStrictMode,
	})
	router.Use(sessions.Sessions(auth.SessionCookieName, store))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowOrigins = origins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
		"X-CSRF-Token", // CSRF保護用ヘッダー
	}
	// フロントエンドがレスポンスヘッダーから CSRF トークンを読み取れるように公開
	corsConfig.ExposeHeaders = []string{"X-CSRF-Token"}
	router.Use(cors.New(corsConfig))

	// ルーティングの設定
	if err := setupRoutes(router, cfg); err != nil {
		log.Fatalf("Failed to set up routes: %v", err)
	}

	// サーバーの起動
	addr := ":" + cfg.Port
	log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "homegate-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループと認証周りの配線を行います。
func setupRoutes(router *gin.Engine, cfg *config.Config) error {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	deps, err := setupPassport(cfg)
	if err != nil {
		return err
	}

	api := router.Group("/api")
	{
		// 検証コードの発行（送信はワーカー側で非同期に行う）
		api.POST("/sms_codes", verify.IssueHandler(deps.ledger, deps.smsManager))

		// 登録
		api.POST("/users", deps.authManager.Register)

		// セッション（ログイン・状態確認・ログアウト）
		api.POST("/session", deps.authManager.Login)
		api.GET("/session", deps.authManager.CheckLogin)
		api.DELETE("/session",
			deps.authManager.RequireLogin(),
			deps.authManager.VerifyCSRF(),
			deps.authManager.Logout,
		)
	}

	return nil
}
