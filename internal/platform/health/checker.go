package health

import (
	"context"
	"net/http"
	"time"

	"github.com/SlpAus/gametracker-backend/internal/platform/database"
	"github.com/SlpAus/gametracker-backend/pkg/lifecycle"
	"github.com/gin-gonic/gin"
)

const (
	checkInterval = 5 * time.Second
	pingTimeout   = 2 * time.Second
)

// pingRedis 执行一次带超时的Redis连通性检查。
func pingRedis() bool {
	ctx, cancel := context.WithTimeout(database.Ctx, pingTimeout)
	defer cancel()
	return database.RDB.Ping(ctx).Err() == nil
}

// PerformCheck 执行一次健康检查并更新全局状态。
func PerformCheck() {
	database.UpdateStatus(pingRedis())
}

// StartRedisHealthCheck 启动后台Goroutine定期检查Redis连通性。
// 由生命周期管理器托管，停机时随之退出。
func StartRedisHealthCheck(mgr *lifecycle.Manager) error {
	return mgr.Go("redis-health-check", func(h *lifecycle.Handle) {
		for {
			if err := h.Sleep(checkInterval); err != nil {
				return // 收到停机信号
			}
			PerformCheck()
		}
	})
}

// Handler 返回 GET /api/health 的存活检查处理函数。
// redisEnabled 为false时不报告Redis状态。
func Handler(redisEnabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload := gin.H{"status": "ok"}

		// 数据库连通性
		dbOK := false
		if sqlDB, err := database.DB.DB(); err == nil {
			dbOK = sqlDB.PingContext(c.Request.Context()) == nil
		}
		payload["database"] = dbOK

		if redisEnabled {
			redisOK := database.IsRedisHealthy()
			payload["redis"] = redisOK
			if !redisOK {
				payload["status"] = "degraded"
			}
		}
		if !dbOK {
			payload["status"] = "degraded"
		}

		code := http.StatusOK
		if payload["status"] != "ok" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, payload)
	}
}
