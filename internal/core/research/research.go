package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"

	"github.com/jinford/refmap/internal/core/llm"
	"github.com/jinford/refmap/internal/core/textsearch"
)

// ErrInvalidReply はLLMの応答がスキーマに合わない場合のエラー
var ErrInvalidReply = errors.New("reply does not match schema")

// Researcher はローカルのソースツリーを対象に反復的な調査を行う
type Researcher struct {
	client   llm.Client
	searcher Searcher
	trimmer  Trimmer
	dir      string
	logger   *slog.Logger
	progress ProgressFunc
	now      func() time.Time
}

// Option は Researcher の設定オプション
type Option func(*Researcher)

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(r *Researcher) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithProgress は進行状況の通知先を設定する
func WithProgress(fn ProgressFunc) Option {
	return func(r *Researcher) {
		r.progress = fn
	}
}

// WithClock はシステムプロンプトに埋め込む現在時刻の取得元を差し替える
func WithClock(now func() time.Time) Option {
	return func(r *Researcher) {
		if now != nil {
			r.now = now
		}
	}
}

// NewResearcher は dir を検索対象とする Researcher を作成する
func NewResearcher(client llm.Client, searcher Searcher, trimmer Trimmer, dir string, opts ...Option) *Researcher {
	r := &Researcher{
		client:   client,
		searcher: searcher,
		trimmer:  trimmer,
		dir:      dir,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GenerateQueries は query から最大 n 件の調査クエリを生成する
func (r *Researcher) GenerateQueries(ctx context.Context, query string, n int, learnings []string) ([]Query, error) {
	var out struct {
		Queries []Query `json:"queries"`
	}
	if err := r.generateJSON(ctx, queriesPrompt(query, n, learnings), queriesSchema(n), &out); err != nil {
		return nil, fmt.Errorf("failed to generate queries: %w", err)
	}
	r.logger.Info("generated research queries", "count", len(out.Queries))

	if len(out.Queries) > n {
		out.Queries = out.Queries[:n]
	}
	return out.Queries, nil
}

// ProcessResults は検索結果から学びと追加の問いを抽出する
func (r *Researcher) ProcessResults(ctx context.Context, query string, results []string, numLearnings, numFollowUps int) (Processed, error) {
	contents := make([]string, 0, len(results))
	for _, res := range results {
		if res == "" {
			continue
		}
		contents = append(contents, r.trimmer.Trim(res, ContentTokens))
	}
	r.logger.Debug("processing research results", "query", query, "contents", len(contents))

	var out Processed
	if err := r.generateJSON(ctx, learningsPrompt(query, contents, numLearnings), learningsSchema(numLearnings, numFollowUps), &out); err != nil {
		return Processed{}, fmt.Errorf("failed to process results: %w", err)
	}
	r.logger.Info("extracted learnings", "query", query, "count", len(out.Learnings))
	return out, nil
}

// SearchLocal は検索対象ディレクトリを緩和検索し、ヒットをブロック単位に分割して返す。
// 行一致・インライン定義・読み込みエラーのいずれもそれぞれ1ブロックになる。
func (r *Researcher) SearchLocal(ctx context.Context, query string) []string {
	r.logger.Debug("searching local data", "query", query, "dir", r.dir)

	text := r.searcher.Relax(ctx, query, r.dir, SearchHits)
	if text == textsearch.NoMatches {
		return []string{"No matches found for query: " + query}
	}

	return textsearch.SplitBlocks(text)
}

// Research はクエリ生成、検索、学びの抽出を breadth×depth で再帰的に繰り返す。
// 個々のクエリの失敗はログに残して空の結果として扱う。
func (r *Researcher) Research(ctx context.Context, query string, breadth, depth int) (Result, error) {
	p := &Progress{
		CurrentDepth:   depth,
		TotalDepth:     depth,
		CurrentBreadth: breadth,
		TotalBreadth:   breadth,
	}
	learnings, sources, err := r.research(ctx, query, breadth, depth, nil, nil, p)
	if err != nil {
		return Result{}, err
	}
	return Result{
		RunID:     uuid.New(),
		Learnings: learnings,
		Sources:   sources,
	}, nil
}

func (r *Researcher) research(ctx context.Context, query string, breadth, depth int, learnings, sources []string, p *Progress) ([]string, []string, error) {
	queries, err := r.GenerateQueries(ctx, query, breadth, learnings)
	if err != nil {
		return nil, nil, err
	}

	p.TotalQueries += len(queries)
	if len(queries) > 0 {
		p.CurrentQuery = queries[0].Query
	}
	r.report(p)

	var allLearnings, allSources []string
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		l, s, err := r.explore(ctx, q, breadth, depth, learnings, sources, p)
		if err != nil {
			r.logger.Warn("research query failed", "query", q.Query, "error", err)
			continue
		}
		allLearnings = append(allLearnings, l...)
		allSources = append(allSources, s...)
	}
	return unique(allLearnings), unique(allSources), nil
}

// explore は1件のクエリを検索し、深さが残っていれば追加の問いで掘り下げる
func (r *Researcher) explore(ctx context.Context, q Query, breadth, depth int, learnings, sources []string, p *Progress) ([]string, []string, error) {
	nextBreadth := max(1, breadth/2)

	results := r.SearchLocal(ctx, q.Query)
	processed, err := r.ProcessResults(ctx, q.Query, results, DefaultLearnings, nextBreadth)
	if err != nil {
		return nil, nil, err
	}

	allLearnings := unique(append(slices.Clone(learnings), processed.Learnings...))
	allSources := unique(append(slices.Clone(sources), sourcePrefix+q.Query))

	nextDepth := depth - 1
	p.CompletedQueries++
	p.CurrentQuery = q.Query
	if nextDepth <= 0 {
		p.CurrentDepth = 0
		r.report(p)
		return allLearnings, allSources, nil
	}

	p.CurrentDepth = nextDepth
	p.CurrentBreadth = nextBreadth
	r.report(p)

	r.logger.Info("researching deeper", "breadth", nextBreadth, "depth", nextDepth)
	return r.research(ctx, nextQuery(q.ResearchGoal, processed.FollowUpQuestions), nextBreadth, nextDepth, allLearnings, allSources, p)
}

// WriteReport は学びから最終レポートをMarkdownで作成し、情報源の一覧を付け加える
func (r *Researcher) WriteReport(ctx context.Context, prompt string, learnings, sources []string) (string, error) {
	var out struct {
		ReportMarkdown string `json:"reportMarkdown"`
	}
	if err := r.generateJSON(ctx, reportPrompt(prompt, learnings), reportSchema(), &out); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	lines := make([]string, 0, len(sources))
	for _, s := range sources {
		lines = append(lines, "- "+s)
	}
	return out.ReportMarkdown + "\n\n## Sources\n\n" + strings.Join(lines, "\n"), nil
}

// Feedback は調査の方向性を明確にするための質問を最大 n 件返す
func (r *Researcher) Feedback(ctx context.Context, query string, n int) ([]string, error) {
	var out struct {
		Questions []string `json:"questions"`
	}
	if err := r.generateJSON(ctx, feedbackPrompt(query, n), feedbackSchema(n), &out); err != nil {
		return nil, fmt.Errorf("failed to generate feedback: %w", err)
	}
	if len(out.Questions) > n {
		out.Questions = out.Questions[:n]
	}
	return out.Questions, nil
}

// generateJSON はスキーマ付きでJSON応答を要求し、検証してから out に展開する
func (r *Researcher) generateJSON(ctx context.Context, prompt string, schema *jsonschema.Schema, out any) error {
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("failed to resolve schema: %w", err)
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return err
	}

	resp, err := r.client.Complete(ctx, llm.Request{
		System:      systemPrompt(r.now()),
		Prompt:      prompt + "\n\nRespond with a JSON object that conforms to this JSON schema:\n" + string(raw),
		Temperature: Temperature,
		JSON:        true,
	})
	if err != nil {
		return err
	}

	var instance any
	if err := json.Unmarshal([]byte(resp.Content), &instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReply, err)
	}
	if err := resolved.Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReply, err)
	}
	return json.Unmarshal([]byte(resp.Content), out)
}

func (r *Researcher) report(p *Progress) {
	if r.progress != nil {
		r.progress(*p)
	}
}

// unique は重複を除いて整列した結果を返す
func unique(items []string) []string {
	out := slices.Clone(items)
	slices.Sort(out)
	return slices.Compact(out)
}
