package textsearch

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// Engine はコンテキスト付き全文検索とクエリ緩和を提供する
type Engine struct {
	logger *slog.Logger
}

// Option は Engine の設定オプション
type Option func(*Engine)

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine は新しい Engine を作成する
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search は query を1回だけ検索し、重複を除いた結果を最大 maxHits 件返す。
// query が1語の場合はインライン関数定義パターンによる検索も行う。
func (e *Engine) Search(ctx context.Context, query, dir string, maxHits int) *ResultSet {
	rs := NewResultSet(maxHits)
	e.collect(ctx, query, dir, rs)
	return rs
}

// Relax は結果が上限に満たない間、クエリ末尾の語を1つずつ落としながら再検索する。
// 各ラウンドの結果は同じ ResultSet に蓄積され、ラウンドをまたいで重複は除かれる。
// 1語まで落としても満たない場合は、それまでに集まった結果を返す。
func (e *Engine) Relax(ctx context.Context, query, dir string, maxHits int) string {
	words := strings.Fields(query)
	if len(words) == 0 {
		return EmptyQuery
	}

	rs := NewResultSet(maxHits)
	for round := 1; ; round++ {
		current := strings.Join(words, " ")
		before := rs.Len()
		e.collect(ctx, current, dir, rs)

		e.logger.Debug("relaxation round completed",
			"round", round,
			"query", current,
			"added", rs.Len()-before,
			"total", rs.Len(),
			"maxHits", rs.Max())

		if rs.Full() || len(words) <= 1 || ctx.Err() != nil {
			break
		}
		words = words[:len(words)-1]
	}

	return rs.String()
}

// collect は query の検索結果を rs が満杯になるまで追加する
func (e *Engine) collect(ctx context.Context, query, dir string, rs *ResultSet) {
	if rs.Full() {
		return
	}

	var patterns []*regexp.Regexp
	if isSingleWord(query) {
		patterns = InlinePatterns(strings.TrimSpace(query))
	}

	for m := range scan(ctx, query, dir, patterns) {
		if m.Kind == KindError {
			e.logger.Warn("failed to read source file", "path", m.Path, "error", m.Err)
		}
		rs.Add(m.Format())
		if rs.Full() {
			return
		}
	}
}

// Search はデフォルトの Engine で1回だけ検索し、整形済みの結果を返す
func Search(ctx context.Context, query, dir string, maxHits int) string {
	return NewEngine().Search(ctx, query, dir, maxHits).String()
}

// Relax はデフォルトの Engine でクエリ緩和検索を行う
func Relax(ctx context.Context, query, dir string, maxHits int) string {
	return NewEngine().Relax(ctx, query, dir, maxHits)
}
