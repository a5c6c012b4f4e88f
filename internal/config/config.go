package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ceyewan/minichat/internal/clog"
	"gopkg.in/yaml.v3"
)

// Config 定义服务的完整配置结构
type Config struct {
	// 服务器配置
	Server ServerConfig `yaml:"server" json:"server"`

	// 数据库配置
	Database DatabaseConfig `yaml:"database" json:"database"`

	// 缓存配置
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// 业务配置
	Business BusinessConfig `yaml:"business" json:"business"`

	// 日志配置
	Log clog.Config `yaml:"log" json:"log"`
}

// ServerConfig 服务器相关配置
type ServerConfig struct {
	// HTTP 服务器监听地址
	HTTPAddr string `yaml:"http_addr" json:"http_addr"`

	// WebSocket 路径
	WSPath string `yaml:"ws_path" json:"ws_path"`

	// WebSocket 配置
	WebSocket WebSocketConfig `yaml:"websocket" json:"websocket"`
}

// WebSocketConfig WebSocket 相关配置
type WebSocketConfig struct {
	// 读缓冲区大小
	ReadBufferSize int `yaml:"read_buffer_size" json:"read_buffer_size"`

	// 写缓冲区大小
	WriteBufferSize int `yaml:"write_buffer_size" json:"write_buffer_size"`

	// 心跳间隔
	PingInterval time.Duration `yaml:"ping_interval" json:"ping_interval"`

	// 心跳超时
	PongTimeout time.Duration `yaml:"pong_timeout" json:"pong_timeout"`

	// 写超时
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// 最大消息大小
	MaxMessageSize int64 `yaml:"max_message_size" json:"max_message_size"`

	// 每个连接的发送队列长度
	SendQueueSize int `yaml:"send_queue_size" json:"send_queue_size"`
}

// DatabaseConfig 数据库相关配置
type DatabaseConfig struct {
	// 驱动 (mysql/postgres/sqlite)
	Driver string `yaml:"driver" json:"driver"`

	// 数据源
	DSN string `yaml:"dsn" json:"dsn"`

	// 最大打开连接数
	MaxOpenConns int `yaml:"max_open_conns" json:"max_open_conns"`

	// 最大空闲连接数
	MaxIdleConns int `yaml:"max_idle_conns" json:"max_idle_conns"`

	// 连接最大存活时间
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// CacheConfig 缓存相关配置
type CacheConfig struct {
	// Redis 地址
	Addr string `yaml:"addr" json:"addr"`

	// Redis 密码
	Password string `yaml:"password" json:"password"`

	// Redis 数据库编号
	DB int `yaml:"db" json:"db"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" json:"pool_size"`

	// 连接超时
	DialTimeout time.Duration `yaml:"dial_timeout" json:"dial_timeout"`

	// 读超时
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`

	// 写超时
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// 键前缀
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// BusinessConfig 业务相关配置
type BusinessConfig struct {
	// 历史消息回溯天数
	HistoryDays int `yaml:"history_days" json:"history_days"`

	// 消息保留天数，超过后由清理任务删除
	CleanupAfterDays int `yaml:"cleanup_after_days" json:"cleanup_after_days"`

	// 清理任务执行间隔
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`

	// 输入状态的保持时间，超时自动清除
	TypingTTL time.Duration `yaml:"typing_ttl" json:"typing_ttl"`

	// 雪花算法节点 ID
	NodeID int64 `yaml:"node_id" json:"node_id"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr: ":8080",
			WSPath:   "/ws",
			WebSocket: WebSocketConfig{
				ReadBufferSize:  4096,
				WriteBufferSize: 4096,
				PingInterval:    30 * time.Second,
				PongTimeout:     60 * time.Second,
				WriteTimeout:    10 * time.Second,
				MaxMessageSize:  512 * 1024,
				SendQueueSize:   256,
			},
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "minichat.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
		Cache: CacheConfig{
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     10,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			KeyPrefix:    "minichat",
		},
		Business: BusinessConfig{
			HistoryDays:      7,
			CleanupAfterDays: 30,
			CleanupInterval:  30 * time.Minute,
			TypingTTL:        3 * time.Second,
			NodeID:           1,
		},
		Log: clog.DefaultConfig(),
	}
}

// Load 加载配置文件
// path 为空或文件不存在时返回默认配置，文件内容覆盖默认值
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 验证配置的合理性
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("不支持的数据库驱动: %s", c.Database.Driver)
	}
	if c.Business.NodeID < 0 || c.Business.NodeID > 1023 {
		return fmt.Errorf("node_id 必须在 0-1023 之间, 当前值: %d", c.Business.NodeID)
	}
	if c.Business.HistoryDays <= 0 {
		return fmt.Errorf("history_days 必须大于 0, 当前值: %d", c.Business.HistoryDays)
	}
	return nil
}
