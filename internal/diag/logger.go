package diag

import (
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 为结构化日志器：基于 zap，单行 JSON。
// 固定字段：corr_id、comp、stage（start|finish|error）；nil *Logger 的全部方法为 no-op。
type Logger struct {
	z *zap.Logger
}

// NewLoggerTo 以配置的 level 初始化，写往 w（通常为 RotatingFile；测试可用 bytes.Buffer）。
// 返回的 Logger 需在退出前 Sync。
func NewLoggerTo(w io.Writer, corrID, level string) *Logger {
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		LineEnding:     zapcore.DefaultLineEnding,
	})
	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), ParseLevel(level))
	return &Logger{z: zap.New(core).With(zap.String("corr_id", corrID))}
}

// ParseLevel 解析 debug|info|warn|error，未知值回落到 info。
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Zap 暴露底层 zap.Logger；nil Logger 返回 Nop。
func (l *Logger) Zap() *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.z
}

// Sync 刷新缓冲。
func (l *Logger) Sync() error {
	if l == nil {
		return nil
	}
	return l.z.Sync()
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	return l.StartWith(comp, msg, "")
}

// StartWith 记录带 file_id 的 start。
func (l *Logger) StartWith(comp, msg, fileID string) *Timer {
	if l == nil {
		return nil
	}
	l.z.Info(msg, withFile([]zap.Field{zap.String("comp", comp), zap.String("stage", "start")}, fileID)...)
	return &Timer{l: l, comp: comp, fileID: fileID, t0: time.Now()}
}

// ErrorWith 记录 error 事件；since 非空时附带耗时。
func (l *Logger) ErrorWith(comp string, code Code, msg string, since *time.Time, fileID string, err error) {
	if l == nil {
		return
	}
	fields := []zap.Field{zap.String("comp", comp), zap.String("stage", "error"), zap.String("code", string(code))}
	if since != nil {
		fields = append(fields, zap.Int64("dur_ms", time.Since(*since).Milliseconds()))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	l.z.Error(msg, withFile(fields, fileID)...)
}

// Debug 输出调试事件（仅 level=debug 时生效）。
func (l *Logger) Debug(comp, msg string, kv ...zap.Field) {
	if l == nil {
		return
	}
	l.z.Debug(msg, append([]zap.Field{zap.String("comp", comp)}, kv...)...)
}

// Warn 输出告警事件。
func (l *Logger) Warn(comp, msg string, kv ...zap.Field) {
	if l == nil {
		return
	}
	l.z.Warn(msg, append([]zap.Field{zap.String("comp", comp)}, kv...)...)
}

func withFile(fields []zap.Field, fileID string) []zap.Field {
	if fileID != "" {
		fields = append(fields, zap.String("file_id", fileID))
	}
	return fields
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l      *Logger
	comp   string
	fileID string
	t0     time.Time
}

// Since 返回起点，供 ErrorWith 计算耗时。
func (t *Timer) Since() *time.Time {
	if t == nil {
		return nil
	}
	return &t.t0
}

// Finish 记录 finish；count 为该阶段处理的条目数。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	t.l.z.Info(msg, withFile([]zap.Field{
		zap.String("comp", t.comp),
		zap.String("stage", "finish"),
		zap.Int64("dur_ms", time.Since(t.t0).Milliseconds()),
		zap.Int64("count", count),
	}, t.fileID)...)
}
