package api

import (
	"github.com/SlpAus/gametracker-backend/internal/discovery"
	"github.com/SlpAus/gametracker-backend/internal/game"
	"github.com/SlpAus/gametracker-backend/internal/steam"
	"github.com/SlpAus/gametracker-backend/internal/upload"
	"github.com/SlpAus/gametracker-backend/internal/user"
	"github.com/SlpAus/gametracker-backend/pkg/token"
	"github.com/gin-gonic/gin"
)

// Handlers 汇集路由注册需要的全部处理器和中间件依赖。
type Handlers struct {
	Tokens    *token.Service
	Users     *user.Repository
	User      *user.Handler
	Game      *game.Handler
	Discovery *discovery.Handler
	Steam     *steam.Handler
	Upload    *upload.Handler
	Health    gin.HandlerFunc
}

// SetupRoutes 注册项目的所有API路由
func SetupRoutes(router *gin.Engine, h Handlers) {
	api := router.Group("/api")

	api.GET("/health", h.Health)

	// 账号与凭证
	auth := api.Group("/auth")
	{
		auth.POST("/register", h.User.Register)
		auth.POST("/login", h.User.Login)
		auth.POST("/refresh", h.User.Refresh)

		authed := auth.Group("", user.RequireAuth(h.Tokens, h.Users))
		authed.GET("/me", h.User.Me)
		authed.POST("/logout", h.User.Logout)
		authed.PATCH("/profile", h.User.UpdateProfile)
	}

	// 个人游戏库（全部要求登录）
	games := api.Group("/games", user.RequireAuth(h.Tokens, h.Users))
	{
		games.GET("", h.Game.List)
		games.POST("", h.Game.Create)
		games.GET("/stats/overview", h.Game.StatsOverview)
		games.GET("/:id", h.Game.Get)
		games.PATCH("/:id", h.Game.Update)
		games.DELETE("/:id", h.Game.Delete)
	}

	// 公开发现（无需登录）
	public := api.Group("/public")
	{
		public.GET("/games/popular", h.Discovery.PopularGames)
		public.GET("/games/recent", h.Discovery.RecentGames)
		public.GET("/games/search", h.Discovery.SearchGames)
		public.GET("/stats", h.Discovery.PublicStats)
	}

	users := api.Group("/users")
	{
		users.GET("/search", h.Discovery.SearchUsers)
		users.GET("/:id/profile", h.Discovery.UserProfile)
		users.GET("/:id/games/stats", h.Discovery.UserStats)
	}

	// Steam绑定与同步
	steamGroup := api.Group("/steam")
	{
		// 回调由Steam跳转而来，身份靠防伪令牌证明，不能挂JWT中间件
		steamGroup.GET("/auth/callback", h.Steam.Callback)

		authed := steamGroup.Group("", user.RequireAuth(h.Tokens, h.Users))
		authed.GET("/auth/url", h.Steam.GetAuthURL)
		authed.POST("/link", h.Steam.Link)
		authed.DELETE("/unlink", h.Steam.Unlink)
		authed.GET("/profile", h.Steam.Profile)
		authed.POST("/sync", h.Steam.Sync)
		authed.GET("/sync/status", h.Steam.SyncStatus)
		authed.PATCH("/settings", h.Steam.UpdateSettings)
		authed.POST("/fix-images", h.Steam.FixImages)
		authed.GET("/games/:appid", h.Steam.GetGameMetadata)
		authed.POST("/games/:appid/cache", h.Steam.RefreshGameMetadata)
	}

	// 图片上传
	api.POST("/upload/game-image", user.RequireAuth(h.Tokens, h.Users), h.Upload.GameImage)
}
