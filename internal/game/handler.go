package game

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/SlpAus/gametracker-backend/internal/platform/response"
	"github.com/SlpAus/gametracker-backend/internal/user"
	"github.com/SlpAus/gametracker-backend/pkg/pagination"
	"github.com/gin-gonic/gin"
)

// Handler 持有game模块的全部路由处理函数。
type Handler struct {
	svc *Service
}

// NewHandler 创建游戏库路由处理器。
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// --- 请求与响应模型 ---

type CreateGameRequest struct {
	Title       string   `json:"title" binding:"required,min=1,max=255"`
	Rating      *float64 `json:"rating"`
	HoursPlayed float64  `json:"hoursPlayed" binding:"omitempty,min=0"`
	Status      Status   `json:"status"`
	CoverURL    string   `json:"coverUrl" binding:"omitempty,url"`
	Notes       string   `json:"notes" binding:"omitempty,max=10000"`
}

type UpdateGameRequest struct {
	Title       *string  `json:"title" binding:"omitempty,min=1,max=255"`
	Rating      *float64 `json:"rating"`
	ClearRating bool     `json:"clearRating"`
	HoursPlayed *float64 `json:"hoursPlayed" binding:"omitempty,min=0"`
	Status      *Status  `json:"status"`
	CoverURL    *string  `json:"coverUrl" binding:"omitempty,url"`
	Notes       *string  `json:"notes" binding:"omitempty,max=10000"`
}

type listQuery struct {
	pagination.Params
	Status Status `form:"status"`
	Search string `form:"search"`
	SortBy string `form:"sortBy"`
	Order  string `form:"order"`
}

// GameResponse 是对外暴露的条目信息。
type GameResponse struct {
	ID          uint       `json:"id"`
	Title       string     `json:"title"`
	Rating      *float64   `json:"rating,omitempty"`
	HoursPlayed float64    `json:"hoursPlayed"`
	Status      Status     `json:"status"`
	CoverURL    string     `json:"coverUrl,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	Source      Source     `json:"source"`
	SteamAppID  *uint      `json:"steamAppId,omitempty"`
	LastPlayed  *time.Time `json:"lastPlayed,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// FormatGame 将持久化模型转换为响应模型。
// 封面优先使用用户设置的CoverURL，其次是Steam侧的图片。
func FormatGame(g *Game) GameResponse {
	cover := g.CoverURL
	if cover == "" {
		cover = g.SteamImageURL
	}
	return GameResponse{
		ID:          g.ID,
		Title:       g.Title,
		Rating:      g.Rating,
		HoursPlayed: g.HoursPlayed,
		Status:      g.Status,
		CoverURL:    cover,
		Notes:       g.Notes,
		Source:      g.Source,
		SteamAppID:  g.SteamAppID,
		LastPlayed:  g.SteamLastPlayed,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

// translateError 把service层的业务错误映射为API错误。
func translateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.Error(c, response.NotFound("GAME_NOT_FOUND", "游戏条目不存在"))
	case errors.Is(err, ErrInvalidRating):
		response.Error(c, response.Validation(map[string]string{"rating": err.Error()}))
	case errors.Is(err, ErrInvalidStatus):
		response.Error(c, response.Validation(map[string]string{"status": err.Error()}))
	default:
		response.Error(c, response.Internal(err))
	}
}

// parseGameID 解析路径中的条目ID。
func parseGameID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		response.Error(c, response.Validation(map[string]string{"id": "必须是正整数"}))
		return 0, false
	}
	return uint(id), true
}

// --- 控制器函数 ---

// Create 处理 POST /api/games
func (h *Handler) Create(c *gin.Context) {
	var body CreateGameRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, response.Binding(err))
		return
	}

	g, err := h.svc.Create(user.CurrentUser(c).ID, CreateInput{
		Title:       body.Title,
		Rating:      body.Rating,
		HoursPlayed: body.HoursPlayed,
		Status:      body.Status,
		CoverURL:    body.CoverURL,
		Notes:       body.Notes,
	})
	if err != nil {
		translateError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"game": FormatGame(g)})
}

// List 处理 GET /api/games
func (h *Handler) List(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, response.Binding(err))
		return
	}
	if q.Status != "" && !ValidStatus(q.Status) {
		response.Error(c, response.Validation(map[string]string{"status": "无效的生命周期状态"}))
		return
	}

	p := pagination.Normalize(q.Page, q.Limit)
	games, total, err := h.svc.List(user.CurrentUser(c).ID, ListFilter{
		Status: q.Status,
		Search: q.Search,
		SortBy: q.SortBy,
		Order:  q.Order,
	}, p)
	if err != nil {
		translateError(c, err)
		return
	}

	responses := make([]GameResponse, 0, len(games))
	for i := range games {
		responses = append(responses, FormatGame(&games[i]))
	}
	c.JSON(http.StatusOK, gin.H{"games": responses, "pagination": pagination.NewMeta(p, total)})
}

// Get 处理 GET /api/games/:id
func (h *Handler) Get(c *gin.Context) {
	gameID, ok := parseGameID(c)
	if !ok {
		return
	}
	g, err := h.svc.Get(user.CurrentUser(c).ID, gameID)
	if err != nil {
		translateError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"game": FormatGame(g)})
}

// Update 处理 PATCH /api/games/:id
func (h *Handler) Update(c *gin.Context) {
	gameID, ok := parseGameID(c)
	if !ok {
		return
	}
	var body UpdateGameRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, response.Binding(err))
		return
	}

	g, err := h.svc.Update(user.CurrentUser(c).ID, gameID, UpdateInput{
		Title:       body.Title,
		Rating:      body.Rating,
		ClearRating: body.ClearRating,
		HoursPlayed: body.HoursPlayed,
		Status:      body.Status,
		CoverURL:    body.CoverURL,
		Notes:       body.Notes,
	})
	if err != nil {
		translateError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"game": FormatGame(g)})
}

// Delete 处理 DELETE /api/games/:id
func (h *Handler) Delete(c *gin.Context) {
	gameID, ok := parseGameID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(user.CurrentUser(c).ID, gameID); err != nil {
		translateError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "已删除"})
}

// StatsOverview 处理 GET /api/games/stats/overview
func (h *Handler) StatsOverview(c *gin.Context) {
	stats, err := h.svc.Overview(user.CurrentUser(c).ID)
	if err != nil {
		translateError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}
