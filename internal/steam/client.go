package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/SlpAus/gametracker-backend/pkg/ratelimit"
)

const (
	defaultAPIBase   = "https://api.steampowered.com"
	defaultStoreBase = "https://store.steampowered.com"

	// requestTimeout 是所有对Steam的HTTP调用的统一超时
	requestTimeout = 10 * time.Second
)

// RateLimitError 表示调用被本地滑动窗口限流器拒绝。
type RateLimitError struct {
	RetryAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("Steam调用被限流，%s 后可重试", time.Until(e.RetryAt).Round(time.Second))
}

// PlayerSummary 是Steam玩家资料的摘要。
type PlayerSummary struct {
	SteamID     string `json:"steamid"`
	PersonaName string `json:"personaname"`
	ProfileURL  string `json:"profileurl"`
	AvatarURL   string `json:"avatarfull"`
	// VisibilityState 为3表示资料公开
	VisibilityState int `json:"communityvisibilitystate"`
}

// OwnedGame 是库存列表中的一个条目。
type OwnedGame struct {
	AppID           uint   `json:"appid"`
	Name            string `json:"name"`
	PlaytimeMinutes int    `json:"playtime_forever"`
	// LastPlayedUnix 是最后游玩时间的Unix秒；0表示Steam没有记录
	LastPlayedUnix int64  `json:"rtime_last_played"`
	ImgIconHash    string `json:"img_icon_url"`
}

// LastPlayed 把Steam的时间戳转换为时间指针；没有记录时返回nil。
func (g OwnedGame) LastPlayed() *time.Time {
	if g.LastPlayedUnix <= 0 {
		return nil
	}
	t := time.Unix(g.LastPlayedUnix, 0)
	return &t
}

// OwnedGames 是一次库存拉取的结果。
type OwnedGames struct {
	Count int         `json:"game_count"`
	Games []OwnedGame `json:"games"`
}

// AppDetails 是商店接口返回的应用详情。
type AppDetails struct {
	AppID            uint
	Name             string
	HeaderImage      string
	ShortDescription string
	Developers       []string
	Publishers       []string
	Genres           []string
	ReleaseDate      string
	Price            string
	MetacriticScore  int
}

// Client 封装对Steam Web API和商店API的全部调用。
// 进程内所有调用方共享同一个限流窗口。
type Client struct {
	apiKey  string
	http    *http.Client
	limiter ratelimit.Window

	// 可替换的基础地址，测试时指向httptest服务器
	apiBase   string
	storeBase string

	// detailPause 是批量拉取详情时每次调用之间的停顿
	detailPause time.Duration
}

// NewClient 创建一个Steam客户端。
func NewClient(apiKey string, limiter ratelimit.Window, detailPause time.Duration) *Client {
	if detailPause <= 0 {
		detailPause = time.Second
	}
	return &Client{
		apiKey:      apiKey,
		http:        &http.Client{Timeout: requestTimeout},
		limiter:     limiter,
		apiBase:     defaultAPIBase,
		storeBase:   defaultStoreBase,
		detailPause: detailPause,
	}
}

// allow 在每次外呼前检查限流窗口。
func (c *Client) allow(ctx context.Context) error {
	ok, retryAt, err := c.limiter.Allow(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("限流器检查失败: %w", err)
	}
	if !ok {
		return &RateLimitError{RetryAt: retryAt}
	}
	return nil
}

// getJSON 执行一次GET调用并解析JSON响应。
func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	if err := c.allow(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("意外的HTTP状态码 %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// GetPlayerSummary 拉取单个玩家的资料摘要。
// Steam对未知ID返回空列表，此时返回 (nil, nil) 而不是错误。
func (c *Client) GetPlayerSummary(ctx context.Context, steamID string) (*PlayerSummary, error) {
	endpoint := fmt.Sprintf("%s/ISteamUser/GetPlayerSummaries/v2/?key=%s&steamids=%s",
		c.apiBase, url.QueryEscape(c.apiKey), url.QueryEscape(steamID))

	var payload struct {
		Response struct {
			Players []PlayerSummary `json:"players"`
		} `json:"response"`
	}
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("拉取Steam玩家资料失败: %w", err)
	}
	if len(payload.Response.Players) == 0 {
		return nil, nil
	}
	return &payload.Response.Players[0], nil
}

// GetOwnedGames 拉取玩家的游戏库存（含应用信息和免费游戏）。
// 资料不公开时Steam返回空对象，此时返回 (nil, nil)。
func (c *Client) GetOwnedGames(ctx context.Context, steamID string) (*OwnedGames, error) {
	endpoint := fmt.Sprintf("%s/IPlayerService/GetOwnedGames/v1/?key=%s&steamid=%s&include_appinfo=1&include_played_free_games=1",
		c.apiBase, url.QueryEscape(c.apiKey), url.QueryEscape(steamID))

	var payload struct {
		Response *struct {
			GameCount int         `json:"game_count"`
			Games     []OwnedGame `json:"games"`
		} `json:"response"`
	}
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("拉取Steam库存失败: %w", err)
	}
	if payload.Response == nil || (payload.Response.GameCount == 0 && payload.Response.Games == nil) {
		return nil, nil
	}
	return &OwnedGames{Count: payload.Response.GameCount, Games: payload.Response.Games}, nil
}

// GetAppDetails 拉取单个应用的商店详情。
// 应用不存在或已下架时商店返回 success=false，此时返回 (nil, nil)。
func (c *Client) GetAppDetails(ctx context.Context, appID uint) (*AppDetails, error) {
	endpoint := fmt.Sprintf("%s/api/appdetails?appids=%d", c.storeBase, appID)

	var payload map[string]struct {
		Success bool `json:"success"`
		Data    struct {
			Name             string   `json:"name"`
			HeaderImage      string   `json:"header_image"`
			ShortDescription string   `json:"short_description"`
			Developers       []string `json:"developers"`
			Publishers       []string `json:"publishers"`
			Genres           []struct {
				Description string `json:"description"`
			} `json:"genres"`
			ReleaseDate struct {
				Date string `json:"date"`
			} `json:"release_date"`
			PriceOverview struct {
				FinalFormatted string `json:"final_formatted"`
			} `json:"price_overview"`
			Metacritic struct {
				Score int `json:"score"`
			} `json:"metacritic"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("拉取Steam应用详情失败: %w", err)
	}

	entry, found := payload[strconv.FormatUint(uint64(appID), 10)]
	if !found || !entry.Success {
		return nil, nil
	}

	genres := make([]string, 0, len(entry.Data.Genres))
	for _, g := range entry.Data.Genres {
		genres = append(genres, g.Description)
	}

	return &AppDetails{
		AppID:            appID,
		Name:             entry.Data.Name,
		HeaderImage:      entry.Data.HeaderImage,
		ShortDescription: stripHTML(entry.Data.ShortDescription),
		Developers:       entry.Data.Developers,
		Publishers:       entry.Data.Publishers,
		Genres:           genres,
		ReleaseDate:      entry.Data.ReleaseDate.Date,
		Price:            entry.Data.PriceOverview.FinalFormatted,
		MetacriticScore:  entry.Data.Metacritic.Score,
	}, nil
}

// GetAppDetailsBatch 顺序拉取一组应用的详情，每次调用之间停顿固定时长，
// 避免触发商店侧的节流。单个应用的失败会被吞掉并从结果中省略；
// 无论成败，每处理完一个应用都会调用一次进度回调。
func (c *Client) GetAppDetailsBatch(ctx context.Context, appIDs []uint, onProgress func(done, total int)) (map[uint]*AppDetails, error) {
	results := make(map[uint]*AppDetails, len(appIDs))

	for i, appID := range appIDs {
		if i > 0 {
			if err := sleepCtx(ctx, c.detailPause); err != nil {
				return results, err
			}
		}

		details, err := c.GetAppDetails(ctx, appID)
		if err == nil && details != nil {
			results[appID] = details
		}

		if onProgress != nil {
			onProgress(i+1, len(appIDs))
		}
	}
	return results, nil
}

// CoverImageURL 根据应用ID生成确定性的竖版封面地址。
func CoverImageURL(appID uint) string {
	return fmt.Sprintf("https://steamcdn-a.akamaihd.net/steam/apps/%d/library_600x900.jpg", appID)
}

// HeaderImageURL 根据应用ID生成横版头图地址（竖版缺失时的回退）。
func HeaderImageURL(appID uint) string {
	return fmt.Sprintf("https://steamcdn-a.akamaihd.net/steam/apps/%d/header.jpg", appID)
}

// stripHTML 把商店返回的富文本描述还原为纯文本。
func stripHTML(s string) string {
	if !strings.ContainsRune(s, '<') {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(doc.Text())
}

// sleepCtx 暂停指定时长，上下文取消时提前返回。
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
