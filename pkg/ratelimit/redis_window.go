package ratelimit

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindow 是基于Redis有序集合的滑动窗口实现。
// 集合成员是每次调用的唯一ID，score是调用时间的微秒时间戳。
// 多个进程共享同一个key时，配额也随之共享。
type RedisWindow struct {
	rdb    *redis.Client
	key    string
	limit  int
	window time.Duration
}

// NewRedisWindow 创建一个Redis滑动窗口。
func NewRedisWindow(rdb *redis.Client, key string, limit int, window time.Duration) *RedisWindow {
	return &RedisWindow{rdb: rdb, key: key, limit: limit, window: window}
}

// generateUniqueID 根据给定的时间生成一个16字节的、抗冲突的成员ID。
// 结构: [ 8字节纳秒时间戳 (Big Endian) | 8字节随机数 ]
func generateUniqueID(t time.Time) (string, error) {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[0:8], uint64(t.UnixNano()))
	if _, err := rand.Read(b[8:16]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Allow 实现 Window 接口。
// 清理与计数在一个事务管道中完成；计数通过后的写入是独立命令，
// 极端并发下可能短暂超出配额一到两次，对上游节流来说可以接受。
func (w *RedisWindow) Allow(ctx context.Context, now time.Time) (bool, time.Time, error) {
	minScore := float64(now.Add(-w.window).UnixMicro())

	// 1. 清理窗口外的旧成员，并获取剩余数量和最早的成员
	pipe := w.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, w.key, "-inf", fmt.Sprintf("(%f", minScore))
	countCmd := pipe.ZCard(ctx, w.key)
	earliestCmd := pipe.ZRangeWithScores(ctx, w.key, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, time.Time{}, fmt.Errorf("执行限流窗口清理事务失败: %w", err)
	}

	// 2. 窗口已满则拒绝
	if countCmd.Val() >= int64(w.limit) {
		retryAt := now.Add(w.window)
		if earliest := earliestCmd.Val(); len(earliest) > 0 {
			retryAt = time.UnixMicro(int64(earliest[0].Score)).Add(w.window)
		}
		return false, retryAt, nil
	}

	// 3. 记录本次调用
	member, err := generateUniqueID(now)
	if err != nil {
		return false, time.Time{}, fmt.Errorf("生成限流成员ID失败: %w", err)
	}
	pipe = w.rdb.TxPipeline()
	pipe.ZAdd(ctx, w.key, redis.Z{Score: float64(now.UnixMicro()), Member: member})
	pipe.Expire(ctx, w.key, w.window+time.Minute) // 比窗口稍长以作缓冲
	if _, err := pipe.Exec(ctx); err != nil {
		return false, time.Time{}, fmt.Errorf("记录限流调用失败: %w", err)
	}

	return true, time.Time{}, nil
}
