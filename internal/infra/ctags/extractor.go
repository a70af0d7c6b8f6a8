package ctags

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/jinford/refmap/internal/core/funcrange"
)

// DefaultPath は ctags 実行ファイルの既定名
const DefaultPath = "ctags"

var functionLine = regexp.MustCompile(`^(\S+)\s+function\s+(\d+)`)

// Extractor は ctags のクロスリファレンス出力から関数定義を抽出する
type Extractor struct {
	path   string
	logger *slog.Logger
}

// Option は Extractor の設定オプション
type Option func(*Extractor)

// WithPath は ctags 実行ファイルのパスを設定する
func WithPath(path string) Option {
	return func(e *Extractor) {
		if path != "" {
			e.path = path
		}
	}
}

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExtractor は新しい Extractor を作成する
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		path:   DefaultPath,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract は path の関数定義を返す
func (e *Extractor) Extract(ctx context.Context, path string) ([]funcrange.Function, error) {
	cmd := exec.CommandContext(ctx, e.path, "--sort=no", "--fields=+n", "-x", path)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to run ctags on %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	starts := ParseOutput(string(out))
	e.logger.Debug("ctags parsed", "path", path, "functions", len(starts))

	return funcrange.Build(path, string(data), starts), nil
}

// ParseOutput は `ctags -x` の出力から関数の開始位置を取り出す。
// 同じ行に複数の関数が報告された場合は後のものを採用する。
func ParseOutput(out string) []funcrange.Start {
	byLine := make(map[int]int)
	var starts []funcrange.Start

	sc := bufio.NewScanner(strings.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		m := functionLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		line, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		if i, ok := byLine[line]; ok {
			starts[i].Name = m[1]
			continue
		}
		byLine[line] = len(starts)
		starts = append(starts, funcrange.Start{Name: m[1], Line: line})
	}
	return starts
}

// インターフェース実装の確認
var _ funcrange.Extractor = (*Extractor)(nil)
