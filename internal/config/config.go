package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构体（与 config/config.yaml 对应）
type Config struct {
	Server    ServerConfig             `mapstructure:"server"`     // 服务器配置
	Log       LogConfig                `mapstructure:"log"`        // 日志配置
	Database  DatabaseConfig           `mapstructure:"database"`   // 数据库配置
	Sync      SyncConfig               `mapstructure:"sync"`       // 同步调度配置
	RateLimit RateLimitConfig          `mapstructure:"rate_limit"` // 限流配置
	Health    HealthConfig             `mapstructure:"health"`     // 适配器健康检查配置
	Auth      AuthConfig               `mapstructure:"auth"`       // 鉴权配置
	Adapters  map[string]AdapterConfig `mapstructure:"adapters"`   // 各适配器独立配置
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port int    `mapstructure:"port"` // 服务端口
	Mode string `mapstructure:"mode"` // Gin运行模式：debug/release/test
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug/info/warn/error
	Format string `mapstructure:"format"` // text/json
}

// DatabaseConfig 数据库配置，driver 支持 postgres / sqlite
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogSQL          bool          `mapstructure:"log_sql"` // 是否打印SQL
}

// SyncConfig 同步配置
type SyncConfig struct {
	Interval     time.Duration `mapstructure:"interval"`      // 定时全量同步间隔，0 表示关闭
	ChangePolicy string        `mapstructure:"change_policy"` // 变更判定策略：timestamps / broad
}

// RateLimitConfig 限流配置（单实例内存计数）
type RateLimitConfig struct {
	Max    int           `mapstructure:"max"`    // 窗口内最大请求数
	Window time.Duration `mapstructure:"window"` // 窗口长度
}

// HealthConfig 健康检查配置
type HealthConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// AuthConfig 启动时确保存在的初始用户（令牌建议放 .env）
type AuthConfig struct {
	BootstrapEmail string `mapstructure:"bootstrap_email"`
	BootstrapToken string `mapstructure:"bootstrap_token"`
}

// AdapterConfig 单个适配器的配置（base_url 可被站点配置覆盖）
type AdapterConfig struct {
	BaseURL  string `mapstructure:"base_url"`  // API基础地址
	Timeout  int    `mapstructure:"timeout"`   // 请求超时（秒）
	Proxy    string `mapstructure:"proxy"`     // 代理地址
	PageSize int    `mapstructure:"page_size"` // 分页大小
	MaxPages int    `mapstructure:"max_pages"` // 单次同步最多拉取页数
	Section  string `mapstructure:"section"`   // 默认分区（category）
}

const (
	ChangePolicyTimestamps = "timestamps"
	ChangePolicyBroad      = "broad"
)

// LoadConfig 加载配置文件（config/config.yaml），敏感项从 .env 覆盖（不提交 git）
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // .env 可不存在

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}
	return decode(v)
}

// LoadFromReader 从 yaml 内容加载配置（测试与嵌入场景使用）
func LoadFromReader(content string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	if err := v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("解析配置内容失败: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	overrideFromEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("sync.interval", 0)
	v.SetDefault("sync.change_policy", ChangePolicyTimestamps)
	v.SetDefault("rate_limit.max", 5)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("health.timeout", 15*time.Second)
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("不支持的数据库驱动: %q", c.Database.Driver)
	}
	switch c.Sync.ChangePolicy {
	case ChangePolicyTimestamps, ChangePolicyBroad:
	default:
		return fmt.Errorf("未知的变更判定策略: %q", c.Sync.ChangePolicy)
	}
	if c.RateLimit.Max <= 0 {
		return fmt.Errorf("rate_limit.max 必须大于0")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window 必须大于0")
	}
	if c.Health.Timeout <= 0 {
		return fmt.Errorf("health.timeout 必须大于0")
	}
	return nil
}

// overrideFromEnv 用环境变量覆盖敏感配置
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("AUTH_BOOTSTRAP_TOKEN"); v != "" {
		cfg.Auth.BootstrapToken = v
	}
	if cfg.Adapters == nil {
		cfg.Adapters = map[string]AdapterConfig{}
	}
	for key, a := range cfg.Adapters {
		prefix := strings.ToUpper(key)
		if v := os.Getenv(prefix + "_BASE_URL"); v != "" {
			a.BaseURL = v
		}
		if v := os.Getenv(prefix + "_PROXY"); v != "" {
			a.Proxy = v
		}
		cfg.Adapters[key] = a
	}
}
