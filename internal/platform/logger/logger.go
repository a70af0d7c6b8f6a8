package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config はロガーの設定
type Config struct {
	Level  slog.Level
	Format string    // "json" or "text"
	Output io.Writer // nil の場合は標準エラー出力
}

// DefaultConfig はデフォルトのロガー設定
func DefaultConfig() Config {
	return Config{
		Level:  slog.LevelInfo,
		Format: "json",
	}
}

// ParseLevel は "debug" "info" "warn" "error" をログレベルに変換します
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// FromSettings は文字列の設定値から Config を組み立てます。不正なレベルは info として扱います。
func FromSettings(level, format string) Config {
	cfg := DefaultConfig()
	if level != "" {
		if l, err := ParseLevel(level); err == nil {
			cfg.Level = l
		}
	}
	if format != "" {
		cfg.Format = format
	}
	return cfg
}

// New は新しいロガーを作成し、デフォルトロガーとして設定します。
// 標準出力は検索結果とMCPのstdioトランスポートが使うため、ログは標準エラー出力に書きます。
func New(cfg Config) *slog.Logger {
	var handler slog.Handler

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level: cfg.Level,
	}

	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default: // "json"
		handler = slog.NewJSONHandler(out, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}
