package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Cfg 是一个全局变量，用于存储所有应用程序的配置
var Cfg *Config

// StoreBackend 表示共享状态（限流窗口、防伪令牌）的存储后端
type StoreBackend string

const (
	StoreMemory StoreBackend = "memory"
	StoreRedis  StoreBackend = "redis"
)

// Config 结构体定义了应用程序的所有配置项
// 它与 config.yaml 文件的结构完全对应
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Steam    SteamConfig    `mapstructure:"steam"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Stores   StoresConfig   `mapstructure:"stores"`
}

// ServerConfig 定义了服务器相关的配置
type ServerConfig struct {
	Mode    string     `mapstructure:"mode"` // debug / release
	Address string     `mapstructure:"address"`
	Cors    CorsConfig `mapstructure:"cors"`
}

// CorsConfig 定义了CORS相关的配置
type CorsConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// DatabaseConfig 定义了关系型数据库的配置
// Driver 可以是 sqlite 或 postgres，DSN 对应驱动的连接字符串
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// RedisConfig 定义了Redis的配置
// Enabled 为 false 时，所有共享状态都使用进程内实现
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig 定义了密码散列与JWT签发的配置
type AuthConfig struct {
	AccessSecret    string        `mapstructure:"accessSecret"`
	RefreshSecret   string        `mapstructure:"refreshSecret"`
	Issuer          string        `mapstructure:"issuer"`
	Audience        string        `mapstructure:"audience"`
	AccessTokenTTL  time.Duration `mapstructure:"accessTokenTTL"`
	RefreshTokenTTL time.Duration `mapstructure:"refreshTokenTTL"`
	BcryptCost      int           `mapstructure:"bcryptCost"`
}

// SteamConfig 定义了Steam开放平台相关的配置
type SteamConfig struct {
	APIKey      string `mapstructure:"apiKey"`
	Realm       string `mapstructure:"realm"`       // OpenID realm，例如 https://api.example.com
	CallbackURL string `mapstructure:"callbackURL"` // OpenID 回调地址
	FrontendURL string `mapstructure:"frontendURL"` // 回调完成后跳转的前端地址

	RateLimit  int           `mapstructure:"rateLimit"`  // 滑动窗口内允许的调用次数
	RateWindow time.Duration `mapstructure:"rateWindow"` // 滑动窗口长度

	SyncCooldown time.Duration `mapstructure:"syncCooldown"` // 每个账号两次同步之间的最短间隔
	MaxItems     int           `mapstructure:"maxItems"`     // 单次同步处理的最大条目数
	BatchSize    int           `mapstructure:"batchSize"`    // 同步批次大小
	BatchPause   time.Duration `mapstructure:"batchPause"`   // 批次之间的停顿
	DetailPause  time.Duration `mapstructure:"detailPause"`  // 逐条拉取详情之间的停顿
}

// UploadConfig 定义了封面图片上传的配置
type UploadConfig struct {
	Dir      string `mapstructure:"dir"`
	MaxBytes int64  `mapstructure:"maxBytes"`
}

// StoresConfig 选择各个共享状态的存储后端
type StoresConfig struct {
	LinkState StoreBackend `mapstructure:"linkState"`
	RateLimit StoreBackend `mapstructure:"rateLimit"`
}

// LoadConfig 函数负责查找、加载和解析配置文件
// 它会在指定的路径中查找名为 config.yaml 的文件
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. 设置配置文件名和类型
	v.SetConfigName("config") // 文件名 (不带扩展名)
	v.SetConfigType("yaml")   // 文件类型

	// 2. 添加配置文件搜索路径
	// 可以添加多个路径，Viper会按顺序查找
	v.AddConfigPath("./config") // `config/config.yaml`
	v.AddConfigPath(".")        // `./config.yaml` (如果在根目录)

	// 3. 设置环境变量支持
	// 允许通过环境变量覆盖配置，例如 STEAM_APIKEY=xxx
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. 为可省略的配置项设置缺省值
	setDefaults(v)

	// 5. 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	// 6. 将配置反序列化到结构体中
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// 7. 校验无法继续运行的关键配置
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// 8. 将加载的配置赋值给全局变量
	Cfg = &cfg

	return Cfg, nil
}

// setDefaults 为所有有合理缺省值的配置项赋默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.address", ":8080")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "gametracker.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.issuer", "gametracker")
	v.SetDefault("auth.audience", "gametracker-web")
	v.SetDefault("auth.accessTokenTTL", 7*24*time.Hour)
	v.SetDefault("auth.refreshTokenTTL", 30*24*time.Hour)
	v.SetDefault("auth.bcryptCost", 12)

	v.SetDefault("steam.rateLimit", 200)
	v.SetDefault("steam.rateWindow", time.Minute)
	v.SetDefault("steam.syncCooldown", 5*time.Minute)
	v.SetDefault("steam.maxItems", 1000)
	v.SetDefault("steam.batchSize", 50)
	v.SetDefault("steam.batchPause", 100*time.Millisecond)
	v.SetDefault("steam.detailPause", time.Second)

	v.SetDefault("upload.dir", "./uploads")
	v.SetDefault("upload.maxBytes", 5*1024*1024)

	v.SetDefault("stores.linkState", string(StoreMemory))
	v.SetDefault("stores.rateLimit", string(StoreMemory))
}

// validate 检查缺少后无法安全启动的配置项
func (c *Config) validate() error {
	if c.Auth.AccessSecret == "" || c.Auth.RefreshSecret == "" {
		return fmt.Errorf("缺少JWT密钥配置: auth.accessSecret / auth.refreshSecret")
	}
	if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		return fmt.Errorf("访问令牌与刷新令牌必须使用不同的密钥")
	}
	if (c.Stores.LinkState == StoreRedis || c.Stores.RateLimit == StoreRedis) && !c.Redis.Enabled {
		return fmt.Errorf("选择了Redis存储后端，但redis.enabled为false")
	}
	return nil
}
