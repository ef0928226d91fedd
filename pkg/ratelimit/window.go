// Package ratelimit 提供一个滑动窗口请求限流器。
// 窗口状态可以保存在进程内存中（单实例部署），也可以保存在Redis中
// （多实例部署共享同一个配额）。
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window 是滑动窗口限流器的抽象。
// Allow 在允许本次调用时记录它并返回 ok=true；
// 在窗口已满时返回 ok=false 和最早可以重试的时间。
type Window interface {
	Allow(ctx context.Context, now time.Time) (ok bool, retryAt time.Time, err error)
}

// MemoryWindow 是进程内的滑动窗口实现。
// 它维护一个按时间排序的调用时间戳列表：每次调用前，先从头部丢弃
// 超出窗口的旧时间戳；若剩余数量达到上限则拒绝，否则记录当前时间并放行。
type MemoryWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	calls  []time.Time
}

// NewMemoryWindow 创建一个进程内滑动窗口，例如 NewMemoryWindow(200, time.Minute)。
func NewMemoryWindow(limit int, window time.Duration) *MemoryWindow {
	return &MemoryWindow{
		limit:  limit,
		window: window,
		calls:  make([]time.Time, 0, limit),
	}
}

// Allow 实现 Window 接口。
func (w *MemoryWindow) Allow(_ context.Context, now time.Time) (bool, time.Time, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// 1. 丢弃窗口之外的旧时间戳
	cutoff := now.Add(-w.window)
	drop := 0
	for drop < len(w.calls) && !w.calls[drop].After(cutoff) {
		drop++
	}
	if drop > 0 {
		w.calls = w.calls[drop:]
	}

	// 2. 窗口已满则拒绝，并给出最早的重试时间
	if len(w.calls) >= w.limit {
		return false, w.calls[0].Add(w.window), nil
	}

	// 3. 记录本次调用并放行
	w.calls = append(w.calls, now)
	return true, time.Time{}, nil
}

// InWindow 返回当前窗口内已记录的调用数，主要用于测试和状态接口。
func (w *MemoryWindow) InWindow(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	cutoff := now.Add(-w.window)
	n := 0
	for _, t := range w.calls {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}
