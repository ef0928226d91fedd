package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/SlpAus/gametracker-backend/api"
	"github.com/SlpAus/gametracker-backend/internal/discovery"
	"github.com/SlpAus/gametracker-backend/internal/game"
	"github.com/SlpAus/gametracker-backend/internal/platform/config"
	"github.com/SlpAus/gametracker-backend/internal/platform/database"
	"github.com/SlpAus/gametracker-backend/internal/platform/health"
	"github.com/SlpAus/gametracker-backend/internal/platform/logger"
	"github.com/SlpAus/gametracker-backend/internal/platform/shutdown"
	"github.com/SlpAus/gametracker-backend/internal/steam"
	"github.com/SlpAus/gametracker-backend/internal/upload"
	"github.com/SlpAus/gametracker-backend/internal/user"
	"github.com/SlpAus/gametracker-backend/pkg/lifecycle"
	"github.com/SlpAus/gametracker-backend/pkg/ratelimit"
	"github.com/SlpAus/gametracker-backend/pkg/token"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// .env 仅在本地开发存在，缺失不是错误
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("加载配置失败: %v", err))
	}

	gin.SetMode(ginMode(cfg.Server.Mode))
	logger.Init(cfg.Server.Mode)
	defer logger.Sync()

	database.InitDB(cfg.Database)
	if cfg.Redis.Enabled {
		database.InitRedis(cfg.Redis)
	}

	// 1. 迁移各模块的表结构
	if err := user.PrimeDB(database.DB); err != nil {
		panic(fmt.Sprintf("初始化user模块失败: %v", err))
	}
	if err := game.PrimeDB(database.DB); err != nil {
		panic(fmt.Sprintf("初始化game模块失败: %v", err))
	}
	if err := steam.PrimeDB(database.DB); err != nil {
		panic(fmt.Sprintf("初始化steam模块失败: %v", err))
	}

	// 2. 构造共享状态的存储后端
	var limiter ratelimit.Window
	if cfg.Stores.RateLimit == config.StoreRedis {
		limiter = ratelimit.NewRedisWindow(database.RDB, "steam_api_calls", cfg.Steam.RateLimit, cfg.Steam.RateWindow)
	} else {
		limiter = ratelimit.NewMemoryWindow(cfg.Steam.RateLimit, cfg.Steam.RateWindow)
	}

	gracefulMgr := lifecycle.NewManager()
	forcefulMgr := lifecycle.NewManager()

	var states steam.LinkStateStore
	if cfg.Stores.LinkState == config.StoreRedis {
		states = steam.NewRedisStateStore(database.RDB)
	} else {
		memStates := steam.NewMemoryStateStore()
		if err := memStates.StartSweeper(gracefulMgr); err != nil {
			panic(fmt.Sprintf("启动令牌清扫器失败: %v", err))
		}
		states = memStates
	}

	// 3. 构造各模块的服务与处理器
	tokens := token.NewService(token.Config{
		AccessSecret:    []byte(cfg.Auth.AccessSecret),
		RefreshSecret:   []byte(cfg.Auth.RefreshSecret),
		Issuer:          cfg.Auth.Issuer,
		Audience:        cfg.Auth.Audience,
		AccessTokenTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTokenTTL: cfg.Auth.RefreshTokenTTL,
	})

	userRepo := user.NewRepository(database.DB)
	userSvc := user.NewService(userRepo, tokens, cfg.Auth.BcryptCost)
	userHandler := user.NewHandler(userSvc)

	gameRepo := game.NewRepository(database.DB)
	gameSvc := game.NewService(gameRepo)
	gameHandler := game.NewHandler(gameSvc)

	discoveryRepo := discovery.NewRepository(database.DB)
	discoveryHandler := discovery.NewHandler(discoveryRepo, userRepo, gameRepo)

	steamClient := steam.NewClient(cfg.Steam.APIKey, limiter, cfg.Steam.DetailPause)
	verifier := steam.NewVerifier(cfg.Steam.Realm, cfg.Steam.CallbackURL, states)
	metadataCache := steam.NewMetadataCache(database.DB, steamClient)
	synchronizer := steam.NewSynchronizer(database.DB, userRepo, gameRepo, steamClient, steam.SynchronizerConfig{
		Cooldown:   cfg.Steam.SyncCooldown,
		MaxItems:   cfg.Steam.MaxItems,
		BatchSize:  cfg.Steam.BatchSize,
		BatchPause: cfg.Steam.BatchPause,
	})

	// Redis启用时，Steam相关端点在Redis不健康期间直接拒绝
	var steamReady func() bool
	if cfg.Redis.Enabled {
		steamReady = database.IsRedisHealthy
	}
	steamHandler := steam.NewHandler(verifier, steamClient, metadataCache, synchronizer,
		userRepo, gameRepo, cfg.Steam.FrontendURL, steamReady)

	uploadHandler, err := upload.NewHandler(cfg.Upload.Dir, cfg.Upload.MaxBytes)
	if err != nil {
		panic(fmt.Sprintf("初始化上传模块失败: %v", err))
	}

	// 4. 启动后台健康检查
	if cfg.Redis.Enabled {
		health.PerformCheck()
		if err := health.StartRedisHealthCheck(gracefulMgr); err != nil {
			panic(fmt.Sprintf("启动Redis健康检查失败: %v", err))
		}
	}

	// 5. 组装HTTP服务器
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.Cors.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.Static("/uploads", cfg.Upload.Dir)

	api.SetupRoutes(r, api.Handlers{
		Tokens:    tokens,
		Users:     userRepo,
		User:      userHandler,
		Game:      gameHandler,
		Discovery: discoveryHandler,
		Steam:     steamHandler,
		Upload:    uploadHandler,
		Health:    health.Handler(cfg.Redis.Enabled),
	})

	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: r,
	}

	go func() {
		fmt.Printf("服务器已准备就绪，开始监听 %s\n", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic("Failed to start server: " + err.Error())
		}
	}()

	// 6. 阻塞等待停机信号；收尾时补记仍在进行中的同步记录
	coordinator := shutdown.NewCoordinator(gracefulMgr, forcefulMgr, func() error {
		stranded, err := steam.MarkStrandedRuns(database.DB, "服务停机，同步中断")
		if err != nil {
			return err
		}
		if stranded > 0 {
			fmt.Printf("停机收尾: 补记了 %d 条未完成的同步记录。\n", stranded)
		}
		return nil
	})
	coordinator.ListenForSignalsAndShutdown(server)
}

// ginMode 把配置中的运行模式翻译为gin的模式常量。
func ginMode(mode string) string {
	if mode == "release" {
		return gin.ReleaseMode
	}
	return gin.DebugMode
}
