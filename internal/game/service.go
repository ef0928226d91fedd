package game

import (
	"errors"
	"math"

	"github.com/SlpAus/gametracker-backend/pkg/pagination"
)

// 业务错误，由handler层翻译为对应的HTTP状态
var (
	ErrInvalidRating = errors.New("评分必须在0到5之间，步长0.5")
	ErrInvalidStatus = errors.New("无效的生命周期状态")
)

// Service 实现游戏库条目的增删改查和统计。
type Service struct {
	repo *Repository
}

// NewService 创建游戏库服务。
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// validRating 校验评分取值：0到5之间，半分粒度。
func validRating(r float64) bool {
	if r < 0 || r > 5 {
		return false
	}
	// 乘2后必须是整数
	doubled := r * 2
	return doubled == math.Trunc(doubled)
}

// CreateInput 描述手动添加一个条目。
type CreateInput struct {
	Title       string
	Rating      *float64
	HoursPlayed float64
	Status      Status
	CoverURL    string
	Notes       string
}

// Create 手动添加一个条目。
func (s *Service) Create(userID uint, in CreateInput) (*Game, error) {
	if in.Status == "" {
		in.Status = StatusBacklog
	}
	if !ValidStatus(in.Status) {
		return nil, ErrInvalidStatus
	}
	if in.Rating != nil && !validRating(*in.Rating) {
		return nil, ErrInvalidRating
	}

	g := &Game{
		UserID:      userID,
		Title:       in.Title,
		Rating:      in.Rating,
		HoursPlayed: in.HoursPlayed,
		Status:      in.Status,
		CoverURL:    in.CoverURL,
		Notes:       in.Notes,
		Source:      SourceManual,
	}
	if err := s.repo.Create(g); err != nil {
		return nil, err
	}
	return g, nil
}

// UpdateInput 描述一次部分更新。nil字段表示不修改。
type UpdateInput struct {
	Title       *string
	Rating      *float64
	ClearRating bool
	HoursPlayed *float64
	Status      *Status
	CoverURL    *string
	Notes       *string
}

// Update 部分更新一个条目。
func (s *Service) Update(userID, gameID uint, in UpdateInput) (*Game, error) {
	g, err := s.repo.FindForUser(userID, gameID)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		g.Title = *in.Title
	}
	if in.ClearRating {
		g.Rating = nil
	} else if in.Rating != nil {
		if !validRating(*in.Rating) {
			return nil, ErrInvalidRating
		}
		g.Rating = in.Rating
	}
	if in.HoursPlayed != nil {
		g.HoursPlayed = *in.HoursPlayed
	}
	if in.Status != nil {
		if !ValidStatus(*in.Status) {
			return nil, ErrInvalidStatus
		}
		g.Status = *in.Status
	}
	if in.CoverURL != nil {
		g.CoverURL = *in.CoverURL
	}
	if in.Notes != nil {
		g.Notes = *in.Notes
	}

	if err := s.repo.Save(g); err != nil {
		return nil, err
	}
	return g, nil
}

// Get 返回用户名下的单个条目。
func (s *Service) Get(userID, gameID uint) (*Game, error) {
	return s.repo.FindForUser(userID, gameID)
}

// Delete 软删除一个条目。
func (s *Service) Delete(userID, gameID uint) error {
	return s.repo.SoftDelete(userID, gameID)
}

// List 返回用户游戏库的一页数据。
func (s *Service) List(userID uint, filter ListFilter, p pagination.Params) ([]Game, int64, error) {
	return s.repo.ListForUser(userID, filter, p)
}

// Overview 返回用户游戏库的聚合统计。
func (s *Service) Overview(userID uint) (*Stats, error) {
	return s.repo.StatsForUser(userID)
}
