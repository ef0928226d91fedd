package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(accessTTL, refreshTTL time.Duration) *Service {
	return NewService(Config{
		AccessSecret:    []byte("test-access-secret"),
		RefreshSecret:   []byte("test-refresh-secret"),
		Issuer:          "gametracker",
		Audience:        "gametracker-web",
		AccessTokenTTL:  accessTTL,
		RefreshTokenTTL: refreshTTL,
	})
}

func TestAccessTokenRoundtrip(t *testing.T) {
	svc := newTestService(time.Hour, time.Hour)

	raw, err := svc.IssueAccessToken(Identity{UserID: 42, Email: "a@b.com"})
	require.NoError(t, err)

	id, ok := svc.VerifyAccessToken(raw)
	require.True(t, ok)
	assert.Equal(t, uint(42), id.UserID)
	assert.Equal(t, "a@b.com", id.Email)
}

func TestAccessTokenTampered(t *testing.T) {
	svc := newTestService(time.Hour, time.Hour)

	raw, err := svc.IssueAccessToken(Identity{UserID: 1, Email: "a@b.com"})
	require.NoError(t, err)

	// 翻转负载中间的一个字节
	tampered := []byte(raw)
	mid := len(tampered) / 2
	if tampered[mid] == 'A' {
		tampered[mid] = 'B'
	} else {
		tampered[mid] = 'A'
	}

	_, ok := svc.VerifyAccessToken(string(tampered))
	assert.False(t, ok)
}

func TestExpiredAccessToken(t *testing.T) {
	svc := newTestService(-time.Minute, time.Hour)

	raw, err := svc.IssueAccessToken(Identity{UserID: 1, Email: "a@b.com"})
	require.NoError(t, err)

	_, ok := svc.VerifyAccessToken(raw)
	assert.False(t, ok)
}

func TestAccessTokenWrongSecret(t *testing.T) {
	svc := newTestService(time.Hour, time.Hour)
	other := NewService(Config{
		AccessSecret:    []byte("another-secret"),
		RefreshSecret:   []byte("another-refresh"),
		Issuer:          "gametracker",
		Audience:        "gametracker-web",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: time.Hour,
	})

	raw, err := svc.IssueAccessToken(Identity{UserID: 1, Email: "a@b.com"})
	require.NoError(t, err)

	_, ok := other.VerifyAccessToken(raw)
	assert.False(t, ok)
}

func TestAccessTokenWrongAudience(t *testing.T) {
	svc := newTestService(time.Hour, time.Hour)
	other := NewService(Config{
		AccessSecret:    []byte("test-access-secret"),
		RefreshSecret:   []byte("test-refresh-secret"),
		Issuer:          "gametracker",
		Audience:        "some-other-app",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: time.Hour,
	})

	raw, err := svc.IssueAccessToken(Identity{UserID: 1, Email: "a@b.com"})
	require.NoError(t, err)

	_, ok := other.VerifyAccessToken(raw)
	assert.False(t, ok)
}

func TestRefreshTokenRoundtrip(t *testing.T) {
	svc := newTestService(time.Hour, time.Hour)

	raw, expiresAt, err := svc.IssueRefreshToken(7)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	userID, ok := svc.VerifyRefreshToken(raw)
	require.True(t, ok)
	assert.Equal(t, uint(7), userID)
}

func TestTokenKindsNotInterchangeable(t *testing.T) {
	// 访问令牌与刷新令牌使用不同的密钥，互相不能替用
	svc := newTestService(time.Hour, time.Hour)

	access, err := svc.IssueAccessToken(Identity{UserID: 1, Email: "a@b.com"})
	require.NoError(t, err)
	refresh, _, err := svc.IssueRefreshToken(1)
	require.NoError(t, err)

	_, ok := svc.VerifyRefreshToken(access)
	assert.False(t, ok)
	_, ok = svc.VerifyAccessToken(refresh)
	assert.False(t, ok)
}

func TestVerifyGarbageInput(t *testing.T) {
	svc := newTestService(time.Hour, time.Hour)

	_, ok := svc.VerifyAccessToken("not-a-jwt")
	assert.False(t, ok)
	_, ok = svc.VerifyAccessToken("")
	assert.False(t, ok)
}
