package steam

import (
	"context"
	"fmt"
	"net/url"
	"regexp"

	"github.com/yohcop/openid-go"
)

// steamOpenIDEndpoint 是Steam的OpenID 2.0发现地址，固定不变。
const steamOpenIDEndpoint = "https://steamcommunity.com/openid"

// steamIDPattern 匹配Steam返回的claimed_id。
// SteamID64是17位数字，个人账号固定以7656119开头。
var steamIDPattern = regexp.MustCompile(`^https?://steamcommunity\.com/openid/id/(7656119[0-9]{10})$`)

// LinkFailure 是绑定流程中某一步被拒绝时返回的错误。
// Reason 是面向用户的说明，会被带到前端。
type LinkFailure struct {
	Reason string
}

func (e *LinkFailure) Error() string {
	return e.Reason
}

// LinkResult 是一次绑定验证成功的结果。
type LinkResult struct {
	SteamID string
	UserID  uint
}

// Verifier 执行无状态的Steam OpenID握手，并用防伪令牌
// 把出站跳转和回调关联起来。
type Verifier struct {
	realm       string
	callbackURL string
	states      LinkStateStore

	// OpenID库的nonce存储与服务发现缓存，防止断言重放
	nonceStore     openid.NonceStore
	discoveryCache openid.DiscoveryCache
}

// NewVerifier 创建一个身份验证器。
func NewVerifier(realm, callbackURL string, states LinkStateStore) *Verifier {
	return &Verifier{
		realm:          realm,
		callbackURL:    callbackURL,
		states:         states,
		nonceStore:     openid.NewSimpleNonceStore(),
		discoveryCache: openid.NewSimpleDiscoveryCache(),
	}
}

// BeginLink 为一次绑定尝试生成Steam登录跳转地址。
// state令牌被嵌入回调URL，有效期10分钟。
func (v *Verifier) BeginLink(ctx context.Context, userID uint) (string, error) {
	// 1. 生成并登记防伪令牌
	state, err := NewLinkState()
	if err != nil {
		return "", err
	}
	if err := v.states.Put(ctx, state, userID); err != nil {
		return "", err
	}

	// 2. 把令牌拼进回调地址
	callback, err := v.callbackWithState(state)
	if err != nil {
		return "", err
	}

	// 3. 通过OpenID库构造提供方跳转地址
	redirect, err := openid.RedirectURL(steamOpenIDEndpoint, callback, v.realm)
	if err != nil {
		return "", fmt.Errorf("构造Steam跳转地址失败: %w", err)
	}
	return redirect, nil
}

// CompleteLink 处理Steam的OpenID回调。
// requestURL 必须是本次回调请求的完整URL（含全部query参数）。
// 任何一步被拒绝都返回 *LinkFailure。
func (v *Verifier) CompleteLink(ctx context.Context, requestURL *url.URL) (*LinkResult, error) {
	query := requestURL.Query()

	// 1. 提供方必须返回成功断言
	if query.Get("openid.mode") != "id_res" {
		return nil, &LinkFailure{Reason: "Steam未返回成功的登录断言"}
	}

	// 2. 从回调内嵌的return_to中取出state令牌
	returnTo, err := url.Parse(query.Get("openid.return_to"))
	if err != nil || returnTo.Query().Get("state") == "" {
		return nil, &LinkFailure{Reason: "回调中缺少防伪令牌"}
	}
	state := returnTo.Query().Get("state")

	// 3. 令牌必须存在且未过期；查到即销毁（单次使用）
	userID, ok, err := v.states.Consume(ctx, state)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &LinkFailure{Reason: "防伪令牌无效或已过期，请重新发起绑定"}
	}

	// 4. 让OpenID库验证Steam的签名断言
	// 验证使用与第1步相同的回调地址（含state），防止断言被移花接木
	claimedID, err := openid.Verify(requestURL.String(), v.discoveryCache, v.nonceStore)
	if err != nil {
		return nil, &LinkFailure{Reason: "Steam身份断言验证失败"}
	}

	// 5. 从claimed_id中解析出SteamID64
	matches := steamIDPattern.FindStringSubmatch(claimedID)
	if len(matches) != 2 {
		return nil, &LinkFailure{Reason: "Steam返回的身份标识格式不正确"}
	}

	return &LinkResult{SteamID: matches[1], UserID: userID}, nil
}

// callbackWithState 把state令牌追加到配置的回调地址上。
func (v *Verifier) callbackWithState(state string) (string, error) {
	u, err := url.Parse(v.callbackURL)
	if err != nil {
		return "", fmt.Errorf("回调地址配置无效: %w", err)
	}
	q := u.Query()
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
