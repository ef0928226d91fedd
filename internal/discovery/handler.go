package discovery

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/SlpAus/gametracker-backend/internal/game"
	"github.com/SlpAus/gametracker-backend/internal/platform/response"
	"github.com/SlpAus/gametracker-backend/internal/user"
	"github.com/SlpAus/gametracker-backend/pkg/pagination"
	"github.com/gin-gonic/gin"
)

// Handler 持有公开发现模块的全部路由处理函数。
// 这些路由不要求登录，只暴露公开账号的数据。
type Handler struct {
	repo  *Repository
	users *user.Repository
	games *game.Repository
}

// NewHandler 创建发现路由处理器。
func NewHandler(repo *Repository, users *user.Repository, games *game.Repository) *Handler {
	return &Handler{repo: repo, users: users, games: games}
}

// bindPagination 解析并裁剪分页参数。
func bindPagination(c *gin.Context) (pagination.Params, bool) {
	var p pagination.Params
	if err := c.ShouldBindQuery(&p); err != nil {
		response.Error(c, response.Binding(err))
		return pagination.Params{}, false
	}
	return pagination.Normalize(p.Page, p.Limit), true
}

// PopularGames 处理 GET /api/public/games/popular
func (h *Handler) PopularGames(c *gin.Context) {
	p, ok := bindPagination(c)
	if !ok {
		return
	}

	rows, total, err := h.repo.Popular(p)
	if err != nil {
		response.Error(c, response.Internal(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"games": rows, "pagination": pagination.NewMeta(p, total)})
}

// RecentGames 处理 GET /api/public/games/recent
func (h *Handler) RecentGames(c *gin.Context) {
	p, ok := bindPagination(c)
	if !ok {
		return
	}

	rows, total, err := h.repo.Recent(p)
	if err != nil {
		response.Error(c, response.Internal(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"games": rows, "pagination": pagination.NewMeta(p, total)})
}

// SearchGames 处理 GET /api/public/games/search?q=
func (h *Handler) SearchGames(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		response.Error(c, response.Validation(map[string]string{"q": "检索关键词不能为空"}))
		return
	}
	p, ok := bindPagination(c)
	if !ok {
		return
	}

	rows, total, err := h.repo.Search(query, p)
	if err != nil {
		response.Error(c, response.Internal(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"games": rows, "pagination": pagination.NewMeta(p, total)})
}

// PublicStats 处理 GET /api/public/stats
func (h *Handler) PublicStats(c *gin.Context) {
	stats, err := h.repo.Stats()
	if err != nil {
		response.Error(c, response.Internal(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// --- 用户检索与公开主页 ---

// PublicProfile 是对外暴露的他人账号视图，比本人视图窄得多。
type PublicProfile struct {
	ID               uint      `json:"id"`
	Username         string    `json:"username"`
	SteamPersonaName string    `json:"steamPersonaName,omitempty"`
	SteamAvatarURL   string    `json:"steamAvatarUrl,omitempty"`
	MemberSince      time.Time `json:"memberSince"`
}

func formatPublicProfile(u *user.User) PublicProfile {
	return PublicProfile{
		ID:               u.ID,
		Username:         u.Username,
		SteamPersonaName: u.SteamPersonaName,
		SteamAvatarURL:   u.SteamAvatarURL,
		MemberSince:      u.CreatedAt,
	}
}

// SearchUsers 处理 GET /api/users/search?q=
func (h *Handler) SearchUsers(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		response.Error(c, response.Validation(map[string]string{"q": "检索关键词不能为空"}))
		return
	}
	p, ok := bindPagination(c)
	if !ok {
		return
	}

	users, total, err := h.users.SearchPublic(query, p)
	if err != nil {
		response.Error(c, response.Internal(err))
		return
	}

	profiles := make([]PublicProfile, 0, len(users))
	for i := range users {
		profiles = append(profiles, formatPublicProfile(&users[i]))
	}
	c.JSON(http.StatusOK, gin.H{"users": profiles, "pagination": pagination.NewMeta(p, total)})
}

// loadPublicUser 解析路径参数并加载一个公开账号。
// 账号不存在或不公开时统一返回404，不泄露私有账号的存在性。
func (h *Handler) loadPublicUser(c *gin.Context) *user.User {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		response.Error(c, response.Validation(map[string]string{"id": "必须是正整数"}))
		return nil
	}

	u, err := h.users.FindByID(uint(id))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			response.Error(c, response.NotFound("USER_NOT_FOUND", "用户不存在或未公开"))
		} else {
			response.Error(c, response.Internal(err))
		}
		return nil
	}
	if !u.IsPublic {
		response.Error(c, response.NotFound("USER_NOT_FOUND", "用户不存在或未公开"))
		return nil
	}
	return u
}

// UserProfile 处理 GET /api/users/:id/profile
func (h *Handler) UserProfile(c *gin.Context) {
	u := h.loadPublicUser(c)
	if u == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": formatPublicProfile(u)})
}

// UserStats 处理 GET /api/users/:id/games/stats
func (h *Handler) UserStats(c *gin.Context) {
	u := h.loadPublicUser(c)
	if u == nil {
		return
	}

	stats, err := h.games.StatsForUser(u.ID)
	if err != nil {
		response.Error(c, response.Internal(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": formatPublicProfile(u), "stats": stats})
}
