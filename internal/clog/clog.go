package clog

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config 日志配置
type Config struct {
	// 日志级别 (debug/info/warn/error)
	Level string `yaml:"level" json:"level"`

	// 输出格式 (json/console)
	Format string `yaml:"format" json:"format"`

	// 输出目标 (stdout/file)
	Output string `yaml:"output" json:"output"`

	// 日志文件路径（当 output 为 file 时）
	FilePath string `yaml:"file_path" json:"file_path"`

	// 单个日志文件最大体积（MB）
	MaxSizeMB int `yaml:"max_size_mb" json:"max_size_mb"`

	// 保留的历史文件数量
	MaxBackups int `yaml:"max_backups" json:"max_backups"`

	// 历史文件保留天数
	MaxAgeDays int `yaml:"max_age_days" json:"max_age_days"`
}

// DefaultConfig 返回默认日志配置
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		FilePath:   "logs/minichat.log",
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 14,
	}
}

// Logger 定义结构化日志接口
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)
	With(fields ...Field) Logger
}

type zapLogger struct {
	l *zap.Logger
}

func (z *zapLogger) Debug(msg string, fields ...Field) { z.l.Debug(msg, fields...) }
func (z *zapLogger) Info(msg string, fields ...Field)  { z.l.Info(msg, fields...) }
func (z *zapLogger) Warn(msg string, fields ...Field)  { z.l.Warn(msg, fields...) }
func (z *zapLogger) Error(msg string, fields ...Field) { z.l.Error(msg, fields...) }
func (z *zapLogger) Fatal(msg string, fields ...Field) { z.l.Fatal(msg, fields...) }

func (z *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{l: z.l.With(fields...)}
}

var (
	// 使用 atomic.Value 保证 root logger 的并发安全
	root          atomic.Value
	initOnce      sync.Once
	moduleLoggers sync.Map
)

// Init 根据配置初始化全局日志系统
// 必须在进程启动时调用一次；未调用时 Module 返回基于默认配置的 logger
func Init(cfg Config) error {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("解析日志级别失败: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var enc zapcore.Encoder
	if cfg.Format == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer
	if cfg.Output == "file" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		})
	} else {
		sink = zapcore.AddSync(os.Stdout)
	}

	core := zapcore.NewCore(enc, sink, level)
	root.Store(zap.New(core, zap.AddCaller()))

	// 已缓存的模块 logger 在下一次 Module 调用时重建
	moduleLoggers.Range(func(key, _ any) bool {
		moduleLoggers.Delete(key)
		return true
	})
	return nil
}

func rootLogger() *zap.Logger {
	if l, ok := root.Load().(*zap.Logger); ok {
		return l
	}
	initOnce.Do(func() {
		if _, ok := root.Load().(*zap.Logger); !ok {
			_ = Init(DefaultConfig())
		}
	})
	return root.Load().(*zap.Logger)
}

// Module 返回带模块名的 logger，同名模块复用同一实例
func Module(name string) Logger {
	if l, ok := moduleLoggers.Load(name); ok {
		return l.(Logger)
	}
	l := &zapLogger{l: rootLogger().Named(name)}
	actual, _ := moduleLoggers.LoadOrStore(name, Logger(l))
	return actual.(Logger)
}

// Sync 刷新缓冲的日志条目
func Sync() {
	_ = rootLogger().Sync()
}
