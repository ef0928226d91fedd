package user

import (
	"errors"
	"fmt"
	"time"

	"github.com/SlpAus/gametracker-backend/pkg/token"
	"golang.org/x/crypto/bcrypt"
)

// 业务错误，由handler层翻译为对应的HTTP状态
var (
	ErrEmailTaken         = errors.New("邮箱已被注册")
	ErrUsernameTaken      = errors.New("用户名已被占用")
	ErrInvalidCredentials = errors.New("凭证无效")
)

// TokenPair 是一次认证成功后返回的令牌对。
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Service 实现账号注册、登录、令牌轮换和资料维护。
type Service struct {
	repo       *Repository
	tokens     *token.Service
	bcryptCost int
}

// NewService 创建用户服务。
func NewService(repo *Repository, tokens *token.Service, bcryptCost int) *Service {
	if bcryptCost == 0 {
		bcryptCost = 12
	}
	return &Service{repo: repo, tokens: tokens, bcryptCost: bcryptCost}
}

// Register 注册一个新账号。
// 邮箱和用户名冲突分别返回 ErrEmailTaken / ErrUsernameTaken。
func (s *Service) Register(email, username, password string) (*User, error) {
	// 1. 先做冲突检查，给前端明确的409提示
	if _, err := s.repo.FindByEmail(email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if _, err := s.repo.FindByUsername(username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// 2. 散列密码（固定代价因子）
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("密码散列失败: %w", err)
	}

	u := &User{
		Email:            email,
		Username:         username,
		PasswordHash:     string(hash),
		SteamSyncEnabled: true,
	}
	if err := s.repo.Create(u); err != nil {
		return nil, fmt.Errorf("创建用户失败: %w", err)
	}
	return u, nil
}

// Login 校验凭证并签发新的令牌对。
// 无论是用户不存在还是密码错误，都返回同一个 ErrInvalidCredentials。
func (s *Service) Login(email, password string) (*User, *TokenPair, error) {
	u, err := s.repo.FindByEmail(email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.issueTokenPair(u)
	if err != nil {
		return nil, nil, err
	}
	return u, pair, nil
}

// Refresh 校验刷新令牌并轮换出一对新令牌。
// 旧令牌（及该用户的其他所有刷新令牌）随轮换立即失效。
func (s *Service) Refresh(rawRefresh string) (*User, *TokenPair, error) {
	// 1. 校验JWT本身
	userID, ok := s.tokens.VerifyRefreshToken(rawRefresh)
	if !ok {
		return nil, nil, ErrInvalidCredentials
	}

	// 2. 令牌必须仍被服务端持有（登出或轮换后即不再持有）
	persisted, err := s.repo.FindRefreshToken(rawRefresh)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if persisted.UserID != userID || time.Now().After(persisted.ExpiresAt) {
		return nil, nil, ErrInvalidCredentials
	}

	u, err := s.repo.FindByID(userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	pair, err := s.issueTokenPair(u)
	if err != nil {
		return nil, nil, err
	}
	return u, pair, nil
}

// Logout 删除用户的全部刷新令牌。
func (s *Service) Logout(userID uint) error {
	return s.repo.DeleteRefreshTokens(userID)
}

// ProfileUpdate 描述一次资料修改。nil字段表示不修改。
type ProfileUpdate struct {
	Username        *string
	IsPublic        *bool
	CurrentPassword *string
	NewPassword     *string
}

// UpdateProfile 修改用户名、公开状态或密码。
// 改密码必须提供正确的当前密码。
func (s *Service) UpdateProfile(userID uint, upd ProfileUpdate) (*User, error) {
	u, err := s.repo.FindByID(userID)
	if err != nil {
		return nil, err
	}

	if upd.Username != nil && *upd.Username != u.Username {
		if _, err := s.repo.FindByUsername(*upd.Username); err == nil {
			return nil, ErrUsernameTaken
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		u.Username = *upd.Username
	}

	if upd.IsPublic != nil {
		u.IsPublic = *upd.IsPublic
	}

	if upd.NewPassword != nil {
		if upd.CurrentPassword == nil ||
			bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(*upd.CurrentPassword)) != nil {
			return nil, ErrInvalidCredentials
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*upd.NewPassword), s.bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("密码散列失败: %w", err)
		}
		u.PasswordHash = string(hash)
	}

	if err := s.repo.Save(u); err != nil {
		return nil, fmt.Errorf("保存用户资料失败: %w", err)
	}
	return u, nil
}

// GetByID 返回一个用户。
func (s *Service) GetByID(userID uint) (*User, error) {
	return s.repo.FindByID(userID)
}

// issueTokenPair 签发访问/刷新令牌，并把刷新令牌持久化（替换旧记录）。
func (s *Service) issueTokenPair(u *User) (*TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(token.Identity{UserID: u.ID, Email: u.Email})
	if err != nil {
		return nil, err
	}
	refresh, expiresAt, err := s.tokens.IssueRefreshToken(u.ID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.ReplaceRefreshToken(u.ID, refresh, expiresAt); err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
