package token

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config 定义了令牌服务所需的全部参数。
// 访问令牌与刷新令牌使用不同的密钥签名，互相不能替用。
type Config struct {
	AccessSecret    []byte
	RefreshSecret   []byte
	Issuer          string
	Audience        string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// Identity 是访问令牌中携带的身份信息。
type Identity struct {
	UserID uint
	Email  string
}

// Service 负责签发和校验自包含的JWT令牌。
// 校验失败（包括格式错误的输入）一律返回 ok=false，绝不panic。
type Service struct {
	cfg Config
}

// NewService 创建一个令牌服务实例。
func NewService(cfg Config) *Service {
	return &Service{cfg: cfg}
}

// accessClaims 是访问令牌的JWT负载。
type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// refreshClaims 是刷新令牌的JWT负载。
type refreshClaims struct {
	jwt.RegisteredClaims
}

// registeredClaims 构造两类令牌共用的标准声明。
func (s *Service) registeredClaims(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    s.cfg.Issuer,
		Audience:  jwt.ClaimStrings{s.cfg.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

// IssueAccessToken 为给定身份签发一个访问令牌（默认7天有效）。
func (s *Service) IssueAccessToken(id Identity) (string, error) {
	claims := accessClaims{
		Email:            id.Email,
		RegisteredClaims: s.registeredClaims(fmt.Sprintf("%d", id.UserID), s.cfg.AccessTokenTTL),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.AccessSecret)
	if err != nil {
		return "", fmt.Errorf("无法签发访问令牌: %w", err)
	}
	return signed, nil
}

// IssueRefreshToken 为给定用户签发一个刷新令牌（默认30天有效）。
func (s *Service) IssueRefreshToken(userID uint) (string, time.Time, error) {
	claims := refreshClaims{
		RegisteredClaims: s.registeredClaims(fmt.Sprintf("%d", userID), s.cfg.RefreshTokenTTL),
	}
	expiresAt := claims.ExpiresAt.Time
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.RefreshSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("无法签发刷新令牌: %w", err)
	}
	return signed, expiresAt, nil
}

// parse 按给定密钥解析并校验令牌的签名、有效期、签发者和受众。
func (s *Service) parse(raw string, secret []byte, claims jwt.Claims) bool {
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		// 只接受HMAC族算法，防止算法替换攻击
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("意外的签名算法: %v", t.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience),
		jwt.WithExpirationRequired(),
	)
	return err == nil && parsed.Valid
}

// VerifyAccessToken 校验访问令牌并返回其中的身份信息。
// 签名、有效期、签发者、受众任何一项不符都返回 ok=false。
func (s *Service) VerifyAccessToken(raw string) (Identity, bool) {
	var claims accessClaims
	if !s.parse(raw, s.cfg.AccessSecret, &claims) {
		return Identity{}, false
	}
	userID, ok := parseSubject(claims.Subject)
	if !ok {
		return Identity{}, false
	}
	return Identity{UserID: userID, Email: claims.Email}, true
}

// VerifyRefreshToken 校验刷新令牌并返回所属的用户ID。
func (s *Service) VerifyRefreshToken(raw string) (uint, bool) {
	var claims refreshClaims
	if !s.parse(raw, s.cfg.RefreshSecret, &claims) {
		return 0, false
	}
	return parseSubject(claims.Subject)
}

// parseSubject 将subject声明解析为用户ID。
func parseSubject(sub string) (uint, bool) {
	id, err := strconv.ParseUint(sub, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
