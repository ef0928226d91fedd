package steam

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSteamIDPattern(t *testing.T) {
	valid := []string{
		"https://steamcommunity.com/openid/id/76561198000000001",
		"http://steamcommunity.com/openid/id/76561197960287930",
	}
	for _, s := range valid {
		assert.True(t, steamIDPattern.MatchString(s), s)
	}

	invalid := []string{
		"https://steamcommunity.com/openid/id/12345",
		"https://steamcommunity.com/openid/id/86561198000000001",      // 前缀不对
		"https://steamcommunity.com/openid/id/765611980000000012",     // 18位
		"https://evil.example.com/openid/id/76561198000000001",        // 域名不对
		"https://steamcommunity.com/openid/id/76561198000000001/more", // 带后缀
	}
	for _, s := range invalid {
		assert.False(t, steamIDPattern.MatchString(s), s)
	}
}

func newTestVerifier(states LinkStateStore) *Verifier {
	return NewVerifier("http://localhost:8080", "http://localhost:8080/api/steam/auth/callback", states)
}

func TestBeginLinkEmbedsState(t *testing.T) {
	states := NewMemoryStateStore()
	v := newTestVerifier(states)

	redirect, err := v.BeginLink(context.Background(), 7)
	require.NoError(t, err)

	u, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, "steamcommunity.com", u.Host)

	// 回调地址里带着已登记的防伪令牌
	returnTo, err := url.Parse(u.Query().Get("openid.return_to"))
	require.NoError(t, err)
	state := returnTo.Query().Get("state")
	require.NotEmpty(t, state)

	userID, ok, err := states.Consume(context.Background(), state)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint(7), userID)
}

func callbackURL(t *testing.T, params map[string]string) *url.URL {
	t.Helper()
	u, err := url.Parse("http://localhost:8080/api/steam/auth/callback")
	require.NoError(t, err)
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u
}

func TestCompleteLinkRejectsNonAssertionMode(t *testing.T) {
	v := newTestVerifier(NewMemoryStateStore())

	_, err := v.CompleteLink(context.Background(), callbackURL(t, map[string]string{
		"openid.mode": "cancel",
	}))
	var failure *LinkFailure
	require.ErrorAs(t, err, &failure)
}

func TestCompleteLinkRejectsMissingState(t *testing.T) {
	v := newTestVerifier(NewMemoryStateStore())

	_, err := v.CompleteLink(context.Background(), callbackURL(t, map[string]string{
		"openid.mode":      "id_res",
		"openid.return_to": "http://localhost:8080/api/steam/auth/callback",
	}))
	var failure *LinkFailure
	require.ErrorAs(t, err, &failure)
	assert.Contains(t, failure.Reason, "防伪令牌")
}

func TestCompleteLinkRejectsUnknownState(t *testing.T) {
	v := newTestVerifier(NewMemoryStateStore())

	_, err := v.CompleteLink(context.Background(), callbackURL(t, map[string]string{
		"openid.mode":      "id_res",
		"openid.return_to": "http://localhost:8080/api/steam/auth/callback?state=never-issued",
	}))
	var failure *LinkFailure
	require.ErrorAs(t, err, &failure)
	assert.Contains(t, failure.Reason, "过期")
}

func TestCompleteLinkStateIsSingleUse(t *testing.T) {
	states := NewMemoryStateStore()
	v := newTestVerifier(states)
	require.NoError(t, states.Put(context.Background(), "state-x", 1))

	// 第一次尝试在令牌消费之后才失败（断言验证阶段）
	_, err := v.CompleteLink(context.Background(), callbackURL(t, map[string]string{
		"openid.mode":      "id_res",
		"openid.return_to": "http://localhost:8080/api/steam/auth/callback?state=state-x",
	}))
	require.Error(t, err)

	// 令牌已被销毁，重放同一回调直接被令牌检查拒绝
	_, err = v.CompleteLink(context.Background(), callbackURL(t, map[string]string{
		"openid.mode":      "id_res",
		"openid.return_to": "http://localhost:8080/api/steam/auth/callback?state=state-x",
	}))
	var failure *LinkFailure
	require.ErrorAs(t, err, &failure)
	assert.Contains(t, failure.Reason, "过期")
}
