// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Logger 是全局的结构化日志实例，所有服务共享同一份输出配置。
var Logger zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// Init 设置服务名和日志级别，应在进程启动时调用一次。
func Init(serviceName string) {
	level := zerolog.InfoLevel
	if lv, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lv != zerolog.NoLevel {
		level = lv
	}
	Logger = Logger.Level(level).With().Str("service", serviceName).Logger()
}

// Ctx 返回一个绑定了追踪上下文的 Logger。
// 如果 ctx 中存在有效的 Span，日志会自动带上 trace_id/span_id，方便与 Jaeger 关联。
func Ctx(ctx context.Context) *zerolog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return &Logger
	}
	l := Logger.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
	return &l
}
