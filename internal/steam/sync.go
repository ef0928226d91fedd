package steam

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/SlpAus/gametracker-backend/internal/game"
	"github.com/SlpAus/gametracker-backend/internal/user"
	"gorm.io/gorm"
)

// 同步的默认参数，可被配置覆盖
const (
	DefaultSyncCooldown = 5 * time.Minute
	DefaultMaxItems     = 1000
	DefaultBatchSize    = 50
	DefaultBatchPause   = 100 * time.Millisecond

	// playingWindow 内游玩过的游戏推断为"在玩"
	playingWindow = 7 * 24 * time.Hour
	// completedThresholdMinutes 以上且近期未玩的游戏推断为"已通关"
	completedThresholdMinutes = 600
)

// ErrSyncNotEligible 表示冷却时间未到。
var ErrSyncNotEligible = errors.New("距离上次同步的时间太短")

// libraryFetcher 抽象出同步器对Steam客户端的依赖，便于测试。
type libraryFetcher interface {
	GetOwnedGames(ctx context.Context, steamID string) (*OwnedGames, error)
}

// SyncOptions 控制一次同步的行为。
type SyncOptions struct {
	// SkipExisting 为true时，已存在的条目不做任何修改
	SkipExisting bool
	// UpdatePlaytime 为true时，对已存在的条目更新游玩时长（单调不减）
	UpdatePlaytime bool
	// MinPlaytimeMinutes 低于该游玩分钟数的条目直接跳过
	MinPlaytimeMinutes int
	// MaxItems 为0时使用同步器的默认上限
	MaxItems int
}

// SyncSummary 是一次同步的结果汇总。
// 部分条目失败是合法结果：失败信息收集在ItemErrors中，批次继续。
type SyncSummary struct {
	RunID       uint       `json:"runId"`
	Status      RunStatus  `json:"status"`
	Processed   int        `json:"processed"`
	Imported    int        `json:"imported"`
	Updated     int        `json:"updated"`
	Skipped     int        `json:"skipped"`
	Error       string     `json:"error,omitempty"`
	ItemErrors  []string   `json:"itemErrors,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Synchronizer 把Steam库存核对到本地游戏库。
type Synchronizer struct {
	db      *gorm.DB
	users   *user.Repository
	games   *game.Repository
	fetcher libraryFetcher

	cooldown   time.Duration
	maxItems   int
	batchSize  int
	batchPause time.Duration
}

// SynchronizerConfig 是同步器的可调参数；零值使用默认值。
type SynchronizerConfig struct {
	Cooldown   time.Duration
	MaxItems   int
	BatchSize  int
	BatchPause time.Duration
}

// NewSynchronizer 创建库同步器。
func NewSynchronizer(db *gorm.DB, users *user.Repository, games *game.Repository, fetcher libraryFetcher, cfg SynchronizerConfig) *Synchronizer {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultSyncCooldown
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultMaxItems
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchPause <= 0 {
		cfg.BatchPause = DefaultBatchPause
	}
	return &Synchronizer{
		db:         db,
		users:      users,
		games:      games,
		fetcher:    fetcher,
		cooldown:   cfg.Cooldown,
		maxItems:   cfg.MaxItems,
		batchSize:  cfg.BatchSize,
		batchPause: cfg.BatchPause,
	}
}

// InferStatus 在首次导入时根据游玩数据推断生命周期状态。
// 规则按顺序匹配：没玩过或没有记录 -> 积压；最近7天玩过 -> 在玩；
// 累计超过10小时 -> 已通关；其余 -> 积压。
func InferStatus(playtimeMinutes int, lastPlayed *time.Time, now time.Time) game.Status {
	if playtimeMinutes == 0 {
		return game.StatusBacklog
	}
	if lastPlayed == nil {
		return game.StatusBacklog
	}
	if now.Sub(*lastPlayed) <= playingWindow {
		return game.StatusPlaying
	}
	if playtimeMinutes > completedThresholdMinutes {
		return game.StatusCompleted
	}
	return game.StatusBacklog
}

// CanSync 检查账号是否满足同步冷却。
// 只考察最近一次处于 pending/success 的运行；error运行不占用冷却。
func (s *Synchronizer) CanSync(userID uint) (bool, time.Time, error) {
	var latest SyncRun
	err := s.db.Where("user_id = ? AND status IN ?", userID, []RunStatus{RunPending, RunSuccess}).
		Order("started_at desc").First(&latest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return true, time.Time{}, nil
		}
		return false, time.Time{}, fmt.Errorf("查询同步历史失败: %w", err)
	}

	nextAt := latest.StartedAt.Add(s.cooldown)
	if time.Now().Before(nextAt) {
		return false, nextAt, nil
	}
	return true, time.Time{}, nil
}

// Sync 执行一次完整的库同步并返回汇总。
// 顶层失败会把运行标记为error并返回零计数的失败汇总（err仍为nil，
// 调用方通过 Status 区分）；只有基础设施错误才返回非nil的err。
func (s *Synchronizer) Sync(ctx context.Context, userID uint, opts SyncOptions) (*SyncSummary, error) {
	// 1. 记录一次新的运行
	run := SyncRun{UserID: userID, Status: RunPending, StartedAt: time.Now()}
	if err := s.db.Create(&run).Error; err != nil {
		return nil, fmt.Errorf("创建同步记录失败: %w", err)
	}

	summary := &SyncSummary{RunID: run.ID, StartedAt: run.StartedAt}

	// 2. 加载账号并校验同步前提
	u, err := s.users.FindByID(userID)
	if err != nil {
		return s.failRun(&run, summary, fmt.Sprintf("加载账号失败: %v", err)), nil
	}
	if u.SteamID == nil {
		return s.failRun(&run, summary, "账号未绑定Steam"), nil
	}
	if !u.SteamSyncEnabled {
		return s.failRun(&run, summary, "该账号已关闭Steam同步"), nil
	}

	// 3. 拉取库存
	owned, err := s.fetcher.GetOwnedGames(ctx, *u.SteamID)
	if err != nil {
		return s.failRun(&run, summary, fmt.Sprintf("拉取Steam库存失败: %v", err)), nil
	}
	if owned == nil {
		return s.failRun(&run, summary, "Steam资料不公开，无法读取库存"), nil
	}

	// 4. 截断到上限，按固定批次处理
	maxItems := opts.MaxItems
	if maxItems <= 0 || maxItems > s.maxItems {
		maxItems = s.maxItems
	}
	items := owned.Games
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	now := time.Now()
	for start := 0; start < len(items); start += s.batchSize {
		if start > 0 {
			// 批次之间的固定停顿，进一步保护上游
			if err := sleepCtx(ctx, s.batchPause); err != nil {
				return s.failRun(&run, summary, "同步被中断"), nil
			}
		}

		end := start + s.batchSize
		if end > len(items) {
			end = len(items)
		}
		for _, item := range items[start:end] {
			summary.Processed++
			outcome, err := s.processItem(u, item, opts, now)
			if err != nil {
				// 按策略吞掉单条失败并继续
				summary.ItemErrors = append(summary.ItemErrors,
					fmt.Sprintf("appid %d (%s): %v", item.AppID, item.Name, err))
				continue
			}
			switch outcome {
			case outcomeImported:
				summary.Imported++
			case outcomeUpdated:
				summary.Updated++
			default:
				summary.Skipped++
			}
		}
	}

	// 5. 落成功终态，并盖上账号的最后同步时间
	completedAt := time.Now()
	u.LastSyncAt = &completedAt
	if err := s.users.Save(u); err != nil {
		return s.failRun(&run, summary, fmt.Sprintf("更新账号同步时间失败: %v", err)), nil
	}

	run.Status = RunSuccess
	run.Processed = summary.Processed
	run.Imported = summary.Imported
	run.Updated = summary.Updated
	run.Skipped = summary.Skipped
	run.CompletedAt = &completedAt
	if err := s.db.Save(&run).Error; err != nil {
		return nil, fmt.Errorf("写入同步结果失败: %w", err)
	}

	summary.Status = RunSuccess
	summary.CompletedAt = &completedAt
	return summary, nil
}

type itemOutcome int

const (
	outcomeSkipped itemOutcome = iota
	outcomeImported
	outcomeUpdated
)

// processItem 核对单个库存条目，返回它的处理结果。
func (s *Synchronizer) processItem(u *user.User, item OwnedGame, opts SyncOptions, now time.Time) (itemOutcome, error) {
	// 低于游玩时长门槛的条目直接跳过
	if item.PlaytimeMinutes < opts.MinPlaytimeMinutes {
		return outcomeSkipped, nil
	}

	existing, err := s.games.FindBySteamApp(u.ID, item.AppID)
	if err != nil && !errors.Is(err, game.ErrNotFound) {
		return outcomeSkipped, err
	}

	// --- 新条目：导入 ---
	if existing == nil {
		appID := item.AppID
		g := &game.Game{
			UserID:               u.ID,
			Title:                item.Name,
			HoursPlayed:          minutesToHours(item.PlaytimeMinutes),
			Status:               InferStatus(item.PlaytimeMinutes, item.LastPlayed(), now),
			Source:               game.SourceSteam,
			SteamAppID:           &appID,
			SteamPlaytimeMinutes: item.PlaytimeMinutes,
			SteamLastPlayed:      item.LastPlayed(),
			SteamImageURL:        CoverImageURL(item.AppID),
		}
		if err := s.games.Create(g); err != nil {
			return outcomeSkipped, err
		}
		return outcomeImported, nil
	}

	// --- 已有条目 ---
	if opts.SkipExisting && !opts.UpdatePlaytime {
		return outcomeSkipped, nil
	}

	if opts.UpdatePlaytime {
		changed := false

		// 单调棘轮：只有上游报告的分钟数超过已记录值时才更新，
		// 同步绝不会降低游玩时长
		if item.PlaytimeMinutes > existing.SteamPlaytimeMinutes {
			existing.SteamPlaytimeMinutes = item.PlaytimeMinutes
			existing.HoursPlayed = math.Max(existing.HoursPlayed, minutesToHours(item.PlaytimeMinutes))
			if lp := item.LastPlayed(); lp != nil {
				existing.SteamLastPlayed = lp
			}
			changed = true
		}

		// 补齐缺失的封面
		if existing.SteamImageURL == "" {
			existing.SteamImageURL = CoverImageURL(item.AppID)
			changed = true
		}

		if changed {
			if err := s.games.Save(existing); err != nil {
				return outcomeSkipped, err
			}
			return outcomeUpdated, nil
		}
	}

	return outcomeSkipped, nil
}

// failRun 把运行落为error终态，并返回对应的失败汇总（计数清零）。
func (s *Synchronizer) failRun(run *SyncRun, summary *SyncSummary, reason string) *SyncSummary {
	completedAt := time.Now()
	run.Status = RunError
	run.Error = reason
	run.CompletedAt = &completedAt
	if err := s.db.Save(run).Error; err != nil {
		fmt.Printf("警告: 无法写入失败的同步记录 (run %d): %v\n", run.ID, err)
	}

	return &SyncSummary{
		RunID:       run.ID,
		Status:      RunError,
		Error:       reason,
		StartedAt:   run.StartedAt,
		CompletedAt: &completedAt,
	}
}

// LatestRun 返回账号最近的一次同步记录；没有历史时返回 (nil, nil)。
func (s *Synchronizer) LatestRun(userID uint) (*SyncRun, error) {
	var run SyncRun
	err := s.db.Where("user_id = ?", userID).Order("started_at desc").First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询同步历史失败: %w", err)
	}
	return &run, nil
}

// minutesToHours 把分钟换算为小时，保留一位小数。
func minutesToHours(minutes int) float64 {
	return math.Round(float64(minutes)/60*10) / 10
}
