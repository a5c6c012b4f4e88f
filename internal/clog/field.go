package clog

import (
	"time"

	"go.uber.org/zap"
)

// Field 日志字段，底层复用 zap 的强类型字段
type Field = zap.Field

// String 创建一个字符串类型的日志字段。
func String(key, value string) Field { return zap.String(key, value) }

// Int 创建一个 int 类型的日志字段。
func Int(key string, value int) Field { return zap.Int(key, value) }

// Int64 创建一个 int64 类型的日志字段。
func Int64(key string, value int64) Field { return zap.Int64(key, value) }

// Uint64 创建一个 uint64 类型的日志字段。
func Uint64(key string, value uint64) Field { return zap.Uint64(key, value) }

// Bool 创建一个 bool 类型的日志字段。
func Bool(key string, value bool) Field { return zap.Bool(key, value) }

// Time 创建一个 time.Time 类型的日志字段。
func Time(key string, value time.Time) Field { return zap.Time(key, value) }

// Duration 创建一个 time.Duration 类型的日志字段。
func Duration(key string, value time.Duration) Field { return zap.Duration(key, value) }

// Any 创建一个任意类型的日志字段。
func Any(key string, value any) Field { return zap.Any(key, value) }

// Err 创建一个错误类型的日志字段。
func Err(err error) Field { return zap.Error(err) }
