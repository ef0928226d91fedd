package steam

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/SlpAus/gametracker-backend/internal/game"
	"github.com/SlpAus/gametracker-backend/internal/platform/logger"
	"github.com/SlpAus/gametracker-backend/internal/platform/response"
	"github.com/SlpAus/gametracker-backend/internal/user"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// manualSteamIDPattern 校验手动提交的SteamID64。
var manualSteamIDPattern = regexp.MustCompile(`^7656119[0-9]{10}$`)

// Handler 持有steam模块的全部路由处理函数。
type Handler struct {
	verifier *Verifier
	client   *Client
	metadata *MetadataCache
	sync     *Synchronizer
	users    *user.Repository
	games    *game.Repository

	// frontendURL 是OpenID回调完成后跳转回的前端地址
	frontendURL string

	// ready 报告依赖（Redis）是否健康；为nil时不做门控
	ready func() bool
}

// NewHandler 创建Steam路由处理器。
func NewHandler(verifier *Verifier, client *Client, metadata *MetadataCache, sync *Synchronizer, users *user.Repository, games *game.Repository, frontendURL string, ready func() bool) *Handler {
	return &Handler{
		verifier:    verifier,
		client:      client,
		metadata:    metadata,
		sync:        sync,
		users:       users,
		games:       games,
		frontendURL: frontendURL,
		ready:       ready,
	}
}

// guardReady 在依赖不健康时拒绝请求。
func (h *Handler) guardReady(c *gin.Context) bool {
	if h.ready != nil && !h.ready() {
		response.Error(c, response.Unavailable("Steam相关功能暂时不可用，请稍后再试"))
		return false
	}
	return true
}

// --- 账号绑定 ---

// GetAuthURL 处理 GET /api/steam/auth/url
// 返回一次性的Steam登录跳转地址。
func (h *Handler) GetAuthURL(c *gin.Context) {
	if !h.guardReady(c) {
		return
	}

	redirect, err := h.verifier.BeginLink(c.Request.Context(), user.CurrentUser(c).ID)
	if err != nil {
		response.Error(c, response.Internal(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": redirect})
}

// Callback 处理 GET /api/steam/auth/callback
// 这是Steam跳转回来的公开路由，身份由防伪令牌而不是JWT证明。
// 无论成败都把用户重定向回前端，结果通过query参数传递。
func (h *Handler) Callback(c *gin.Context) {
	result, err := h.verifier.CompleteLink(c.Request.Context(), c.Request.URL)
	if err != nil {
		var failure *LinkFailure
		if errors.As(err, &failure) {
			h.redirectFrontend(c, "error", failure.Reason)
		} else {
			logger.L().Error("Steam回调处理失败", zap.Error(err))
			h.redirectFrontend(c, "error", "绑定过程中发生内部错误")
		}
		return
	}

	if err := h.linkAccount(c, result.UserID, result.SteamID); err != nil {
		var failure *LinkFailure
		if errors.As(err, &failure) {
			h.redirectFrontend(c, "error", failure.Reason)
		} else {
			logger.L().Error("写入Steam绑定失败", zap.Error(err))
			h.redirectFrontend(c, "error", "绑定过程中发生内部错误")
		}
		return
	}

	h.redirectFrontend(c, "linked", "")
}

type linkRequest struct {
	SteamID string `json:"steamId" binding:"required"`
}

// Link 处理 POST /api/steam/link
// 手动绑定一个SteamID64，跳过OpenID握手（适用于资料公开的账号）。
func (h *Handler) Link(c *gin.Context) {
	if !h.guardReady(c) {
		return
	}

	var body linkRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, response.Binding(err))
		return
	}
	if !manualSteamIDPattern.MatchString(body.SteamID) {
		response.Error(c, response.Validation(map[string]string{"steamId": "必须是17位的SteamID64"}))
		return
	}

	if err := h.linkAccount(c, user.CurrentUser(c).ID, body.SteamID); err != nil {
		var failure *LinkFailure
		if errors.As(err, &failure) {
			response.Error(c, response.Conflict("STEAM_ALREADY_LINKED", failure.Reason))
		} else {
			response.Error(c, response.Internal(err))
		}
		return
	}

	u, err := h.users.FindByID(user.CurrentUser(c).ID)
	if err != nil {
		response.Error(c, response.Internal(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user.FormatUser(u)})
}

// linkAccount 把SteamID写到账号上，并尽力补全资料快照。
// SteamID已被其他账号占用时返回 *LinkFailure。
func (h *Handler) linkAccount(c *gin.Context, userID uint, steamID string) error {
	// 一个SteamID只能绑定到一个账号
	owner, err := h.users.FindBySteamID(steamID)
	if err != nil && !errors.Is(err, user.ErrNotFound) {
		return err
	}
	if owner != nil && owner.ID != userID {
		return &LinkFailure{Reason: "该Steam账号已被其他用户绑定"}
	}

	u, err := h.users.FindByID(userID)
	if err != nil {
		return err
	}

	now := time.Now()
	u.SteamID = &steamID
	u.SteamLinkedAt = &now

	// 资料快照是锦上添花，拉取失败不阻塞绑定
	if summary, err := h.client.GetPlayerSummary(c.Request.Context(), steamID); err != nil {
		logger.L().Warn("拉取Steam资料快照失败", zap.String("steamID", steamID), zap.Error(err))
	} else if summary != nil {
		u.SteamPersonaName = summary.PersonaName
		u.SteamAvatarURL = summary.AvatarURL
	}

	return h.users.Save(u)
}

// Unlink 处理 DELETE /api/steam/unlink
// 解绑只清除账号上的Steam字段，已导入的游戏条目保持不动。
func (h *Handler) Unlink(c *gin.Context) {
	u, err := h.users.FindByID(user.CurrentUser(c).ID)
	if err != nil {
		response.Error(c, response.Internal(err))
		return
	}
	if u.SteamID == nil {
		response.Error(c, response.NotFound("STEAM_NOT_LINKED", "账号未绑定Steam"))
		return
	}

	u.SteamID = nil
	u.SteamPersonaName = ""
	u.SteamAvatarURL = ""
	u.SteamLinkedAt = nil
	if err := h.users.Save(u); err != nil {
		response.Error(c, response.Internal(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user.FormatUser(u)})
}

// Profile 处理 GET /api/steam/profile
// 实时拉取已绑定账号的Steam资料。
func (h *Handler) Profile(c *gin.Context) {
	if !h.guardReady(c) {
		return
	}

	u := user.CurrentUser(c)
	if u.SteamID == nil {
		response.Error(c, response.NotFound("STEAM_NOT_LINKED", "账号未绑定Steam"))
		return
	}

	summary, err := h.client.GetPlayerSummary(c.Request.Context(), *u.SteamID)
	if err != nil {
		h.translateSteamError(c, err)
		return
	}
	if summary == nil {
		response.Error(c, response.NotFound("STEAM_PROFILE_NOT_FOUND", "Steam未返回该账号的资料"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": summary})
}

// --- 库同步 ---

type syncRequest struct {
	SkipExisting       *bool `json:"skipExisting"`
	UpdatePlaytime     *bool `json:"updatePlaytime"`
	MinPlaytimeMinutes int   `json:"minPlaytimeMinutes" binding:"omitempty,min=0"`
	MaxItems           int   `json:"maxItems" binding:"omitempty,min=1"`
}

// Sync 处理 POST /api/steam/sync
// 同步在请求线程内同步执行；部分条目失败不会变成HTTP错误，
// 而是体现在返回的汇总里。
func (h *Handler) Sync(c *gin.Context) {
	if !h.guardReady(c) {
		return
	}

	u := user.CurrentUser(c)
	if u.SteamID == nil {
		response.Error(c, response.NotFound("STEAM_NOT_LINKED", "账号未绑定Steam"))
		return
	}

	// 请求体可省略，省略时使用默认策略
	var body syncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			response.Error(c, response.Binding(err))
			return
		}
	}

	// 冷却检查
	ok, retryAt, err := h.sync.CanSync(u.ID)
	if err != nil {
		response.Error(c, response.Internal(err))
		return
	}
	if !ok {
		response.Error(c, response.RateLimited(retryAt))
		return
	}

	opts := SyncOptions{SkipExisting: false, UpdatePlaytime: true}
	if body.SkipExisting != nil {
		opts.SkipExisting = *body.SkipExisting
	}
	if body.UpdatePlaytime != nil {
		opts.UpdatePlaytime = *body.UpdatePlaytime
	}
	opts.MinPlaytimeMinutes = body.MinPlaytimeMinutes
	opts.MaxItems = body.MaxItems

	summary, err := h.sync.Sync(c.Request.Context(), u.ID, opts)
	if err != nil {
		response.Error(c, response.Internal(err))
		return
	}

	logger.L().Info("Steam库同步完成",
		zap.Uint("userID", u.ID),
		zap.Uint("runID", summary.RunID),
		zap.String("status", string(summary.Status)),
		zap.Int("processed", summary.Processed),
		zap.Int("imported", summary.Imported),
		zap.Int("updated", summary.Updated),
		zap.Int("skipped", summary.Skipped),
		zap.Int("itemErrors", len(summary.ItemErrors)))

	c.JSON(http.StatusOK, gin.H{"sync": summary})
}

// SyncStatus 处理 GET /api/steam/sync/status
// 返回最近一次同步记录和当前的冷却状态。
func (h *Handler) SyncStatus(c *gin.Context) {
	u := user.CurrentUser(c)

	run, err := h.sync.LatestRun(u.ID)
	if err != nil {
		response.Error(c, response.Internal(err))
		return
	}

	ok, retryAt, err := h.sync.CanSync(u.ID)
	if err != nil {
		response.Error(c, response.Internal(err))
		return
	}

	payload := gin.H{"canSync": ok, "lastSyncAt": u.LastSyncAt}
	if !ok {
		payload["nextSyncAt"] = retryAt
	}
	if run != nil {
		payload["lastRun"] = gin.H{
			"runId":       run.ID,
			"status":      run.Status,
			"processed":   run.Processed,
			"imported":    run.Imported,
			"updated":     run.Updated,
			"skipped":     run.Skipped,
			"error":       run.Error,
			"startedAt":   run.StartedAt,
			"completedAt": run.CompletedAt,
		}
	}
	c.JSON(http.StatusOK, payload)
}

type settingsRequest struct {
	SyncEnabled *bool `json:"syncEnabled" binding:"required"`
}

// UpdateSettings 处理 PATCH /api/steam/settings
func (h *Handler) UpdateSettings(c *gin.Context) {
	var body settingsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, response.Binding(err))
		return
	}

	u, err := h.users.FindByID(user.CurrentUser(c).ID)
	if err != nil {
		response.Error(c, response.Internal(err))
		return
	}
	u.SteamSyncEnabled = *body.SyncEnabled
	if err := h.users.Save(u); err != nil {
		response.Error(c, response.Internal(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user.FormatUser(u)})
}

// FixImages 处理 POST /api/steam/fix-images
// 为用户已导入的条目补齐缺失的Steam封面地址。
func (h *Handler) FixImages(c *gin.Context) {
	games, err := h.games.SteamSourced(user.CurrentUser(c).ID)
	if err != nil {
		response.Error(c, response.Internal(err))
		return
	}

	fixed := 0
	for i := range games {
		g := &games[i]
		if g.SteamAppID == nil || g.SteamImageURL != "" {
			continue
		}
		g.SteamImageURL = CoverImageURL(*g.SteamAppID)
		if err := h.games.Save(g); err != nil {
			response.Error(c, response.Internal(err))
			return
		}
		fixed++
	}
	c.JSON(http.StatusOK, gin.H{"fixed": fixed, "total": len(games)})
}

// --- 商店元数据 ---

// GetGameMetadata 处理 GET /api/steam/games/:appid
// 走24小时缓存，未命中时穿透到Steam商店。
func (h *Handler) GetGameMetadata(c *gin.Context) {
	h.serveMetadata(c, false)
}

// RefreshGameMetadata 处理 POST /api/steam/games/:appid/cache
// 跳过缓存新鲜度检查，强制重新拉取。
func (h *Handler) RefreshGameMetadata(c *gin.Context) {
	if !h.guardReady(c) {
		return
	}
	h.serveMetadata(c, true)
}

func (h *Handler) serveMetadata(c *gin.Context, force bool) {
	appID, err := strconv.ParseUint(c.Param("appid"), 10, 32)
	if err != nil || appID == 0 {
		response.Error(c, response.Validation(map[string]string{"appid": "必须是正整数"}))
		return
	}

	meta, err := h.metadata.Get(c.Request.Context(), uint(appID), force)
	if err != nil {
		h.translateSteamError(c, err)
		return
	}
	if meta == nil {
		response.Error(c, response.NotFound("STEAM_APP_NOT_FOUND", "Steam商店中没有该应用"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"metadata": meta})
}

// translateSteamError 把客户端错误翻译为对应的HTTP错误。
func (h *Handler) translateSteamError(c *gin.Context, err error) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		response.Error(c, response.RateLimited(rle.RetryAt))
		return
	}
	response.Error(c, response.Upstream("调用Steam失败", err))
}

// redirectFrontend 带结果参数跳转回前端。
func (h *Handler) redirectFrontend(c *gin.Context, status, reason string) {
	target := fmt.Sprintf("%s?steam=%s", h.frontendURL, url.QueryEscape(status))
	if reason != "" {
		target += "&reason=" + url.QueryEscape(reason)
	}
	c.Redirect(http.StatusFound, target)
}
