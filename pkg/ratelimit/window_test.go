package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryWindowAllowsUpToLimit(t *testing.T) {
	w := NewMemoryWindow(200, time.Minute)
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	// 窗口内的200次调用全部放行
	for i := 0; i < 200; i++ {
		ok, _, err := w.Allow(context.Background(), base.Add(time.Duration(i)*time.Millisecond))
		require.NoError(t, err)
		require.True(t, ok, "第%d次调用应被放行", i+1)
	}

	// 第201次被拒绝，重试时间指向最早一次调用出窗的时刻
	ok, retryAt, err := w.Allow(context.Background(), base.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, base.Add(time.Minute), retryAt)
}

func TestMemoryWindowAgingFreesCapacity(t *testing.T) {
	w := NewMemoryWindow(3, time.Minute)
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		ok, _, err := w.Allow(context.Background(), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, _, _ := w.Allow(context.Background(), base.Add(10*time.Second))
	assert.False(t, ok)

	// 61秒后，t=0 的调用出窗，恰好腾出一个配额
	ok, _, err := w.Allow(context.Background(), base.Add(61*time.Second))
	require.NoError(t, err)
	assert.True(t, ok)

	// 配额再次用尽：t=1s、t=2s、t=61s 仍在窗口内
	ok, _, _ = w.Allow(context.Background(), base.Add(61*time.Second))
	assert.False(t, ok)
}

func TestMemoryWindowDropsByExactBoundary(t *testing.T) {
	w := NewMemoryWindow(1, time.Minute)
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	ok, _, _ := w.Allow(context.Background(), base)
	require.True(t, ok)

	// 恰好在窗口边界上的时间戳视为已出窗
	ok, _, _ = w.Allow(context.Background(), base.Add(time.Minute))
	assert.True(t, ok)
	assert.Equal(t, 1, w.InWindow(base.Add(time.Minute)))
}
