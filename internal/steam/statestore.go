package steam

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SlpAus/gametracker-backend/pkg/lifecycle"
	"github.com/redis/go-redis/v9"
)

// LinkStateTTL 是防伪令牌的有效期。
const LinkStateTTL = 10 * time.Minute

// sweepInterval 是内存实现的后台清扫周期。
const sweepInterval = 10 * time.Minute

// LinkStateStore 保存账号绑定流程中的防伪(state)令牌。
// 令牌把一次出站的OpenID跳转和它的回调关联起来，严格单次使用。
// 单实例部署使用内存实现；多实例部署使用Redis实现共享状态。
type LinkStateStore interface {
	// Put 记录一个新令牌，有效期为 LinkStateTTL。
	Put(ctx context.Context, state string, userID uint) error
	// Consume 查找并删除一个令牌（单次使用）。
	// 令牌不存在或已过期时返回 ok=false；无论结果如何令牌都会被丢弃。
	Consume(ctx context.Context, state string) (userID uint, ok bool, err error)
}

// NewLinkState 生成一个密码学安全的随机state令牌。
func NewLinkState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("无法生成state令牌: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// --- 内存实现 ---

type stateEntry struct {
	userID    uint
	expiresAt time.Time
}

// MemoryStateStore 是进程内的令牌存储。
// 过期令牌由两条路径清理：Consume 时的即时检查，和每10分钟一次的后台清扫。
type MemoryStateStore struct {
	mu      sync.Mutex
	entries map[string]stateEntry
}

// NewMemoryStateStore 创建一个内存令牌存储。
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{entries: make(map[string]stateEntry)}
}

// Put 实现 LinkStateStore 接口。
func (s *MemoryStateStore) Put(_ context.Context, state string, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[state] = stateEntry{userID: userID, expiresAt: time.Now().Add(LinkStateTTL)}
	return nil
}

// Consume 实现 LinkStateStore 接口。
func (s *MemoryStateStore) Consume(_ context.Context, state string) (uint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, found := s.entries[state]
	if !found {
		return 0, false, nil
	}
	// 无论是否过期，查到即删除（单次使用）
	delete(s.entries, state)

	if time.Now().After(entry.expiresAt) {
		return 0, false, nil
	}
	return entry.userID, true, nil
}

// Sweep 清理所有已过期的令牌，返回清理数量。
func (s *MemoryStateStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for state, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, state)
			removed++
		}
	}
	return removed
}

// StartSweeper 启动后台清扫循环，由生命周期管理器托管，停机时随之退出。
func (s *MemoryStateStore) StartSweeper(mgr *lifecycle.Manager) error {
	return mgr.Go("steam-state-sweeper", func(h *lifecycle.Handle) {
		for {
			if err := h.Sleep(sweepInterval); err != nil {
				return // 收到停机信号
			}
			if removed := s.Sweep(time.Now()); removed > 0 {
				fmt.Printf("Steam绑定令牌清扫: 清理了 %d 个过期令牌。\n", removed)
			}
		}
	})
}

// --- Redis实现 ---

const redisStateKeyPrefix = "steam_link_state:"

// RedisStateStore 把令牌保存在Redis中，TTL由Redis负责，不需要清扫。
type RedisStateStore struct {
	rdb *redis.Client
}

// NewRedisStateStore 创建一个Redis令牌存储。
func NewRedisStateStore(rdb *redis.Client) *RedisStateStore {
	return &RedisStateStore{rdb: rdb}
}

// Put 实现 LinkStateStore 接口。
func (s *RedisStateStore) Put(ctx context.Context, state string, userID uint) error {
	key := redisStateKeyPrefix + state
	if err := s.rdb.Set(ctx, key, userID, LinkStateTTL).Err(); err != nil {
		return fmt.Errorf("写入state令牌到Redis失败: %w", err)
	}
	return nil
}

// Consume 实现 LinkStateStore 接口。
// GETDEL保证查找和删除是一个原子操作。
func (s *RedisStateStore) Consume(ctx context.Context, state string) (uint, bool, error) {
	key := redisStateKeyPrefix + state
	val, err := s.rdb.GetDel(ctx, key).Uint64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("从Redis读取state令牌失败: %w", err)
	}
	return uint(val), true, nil
}
