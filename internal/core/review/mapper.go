package review

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/jinford/refmap/internal/core/funcindex"
	"github.com/jinford/refmap/internal/core/funcrange"
	"github.com/jinford/refmap/internal/core/llm"
	"github.com/jinford/refmap/internal/core/report"
	"github.com/jinford/refmap/internal/core/textsearch"
)

const (
	// DefaultMaxFollowUps は追加調査の最大回数
	DefaultMaxFollowUps = 3

	// ReferenceHits は元コード内の参照検索の最大件数
	ReferenceHits = 20

	// CandidateCount はベクトル検索で提示する候補数
	CandidateCount = 3

	// Temperature はレビュアー呼び出しの温度
	Temperature = 0.5
)

// TextSearcher は文脈付きテキスト検索
type TextSearcher interface {
	Search(ctx context.Context, query, dir string, maxHits int) *textsearch.ResultSet
	Relax(ctx context.Context, query, dir string, maxHits int) string
}

// FunctionIndex はリファクタリング後コードの関数索引
type FunctionIndex interface {
	Search(ctx context.Context, query string, k int) ([]funcindex.Result, error)
	Locate(ctx context.Context, name string, candidates []funcindex.Result) (funcindex.Record, bool)
}

// Config はマッピング対象のディレクトリ
type Config struct {
	OriginalRoot   string
	RefactoredRoot string
	MaxFollowUps   int
	Only           string // 指定した場合はこの名前の関数のみ処理する
}

// Mapper は元コードの各関数についてリファクタリング後の対応関数を求める
type Mapper struct {
	cfg       Config
	client    llm.Client
	text      TextSearcher
	index     FunctionIndex
	extractor funcrange.Extractor
	lister    funcindex.Lister
	writer    report.Writer
	logger    *slog.Logger
}

// Option は Mapper の設定オプション
type Option func(*Mapper)

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(m *Mapper) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMapper は新しい Mapper を返す
func NewMapper(cfg Config, client llm.Client, text TextSearcher, index FunctionIndex,
	extractor funcrange.Extractor, lister funcindex.Lister, writer report.Writer, opts ...Option,
) *Mapper {
	if cfg.MaxFollowUps <= 0 {
		cfg.MaxFollowUps = DefaultMaxFollowUps
	}
	m := &Mapper{
		cfg:       cfg,
		client:    client,
		text:      text,
		index:     index,
		extractor: extractor,
		lister:    lister,
		writer:    writer,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run は元コードの全ファイルを処理し、得られた対応を書き出して返す。
// ファイル単位の抽出失敗はログに残して続行する。
func (m *Mapper) Run(ctx context.Context) ([]report.Mapping, error) {
	files, err := m.lister.List(ctx, m.cfg.OriginalRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to list original sources: %w", err)
	}

	var all []report.Mapping
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return all, err
		}

		m.logger.Info("processing file", "file", file.Path)
		functions, err := m.extractor.Extract(ctx, file.Path)
		if err != nil {
			m.logger.Warn("failed to extract functions", "file", file.Path, "error", err)
			continue
		}
		if len(functions) == 0 {
			m.logger.Info("no functions found", "file", file.Path)
			continue
		}

		for _, fn := range functions {
			if m.cfg.Only != "" && fn.Name != m.cfg.Only {
				continue
			}
			if err := ctx.Err(); err != nil {
				return all, err
			}

			mappings := m.MapFunction(ctx, file, fn)
			for _, mp := range mappings {
				if err := m.writer.Write(mp); err != nil {
					return all, fmt.Errorf("failed to write mapping for %s: %w", mp.Original, err)
				}
				m.logger.Info("mapping added", "original", mp.Original, "refactored", mp.Refactored, "concern", mp.Concern != "")
			}
			all = append(all, mappings...)
		}
	}
	return all, nil
}

// MapFunction は1関数の対応を求める。
// 最初の問い合わせが失敗した場合は Failed、確信のある応答が得られなければ Unresolved を返す。
func (m *Mapper) MapFunction(ctx context.Context, file funcindex.SourceFile, fn funcrange.Function) []report.Mapping {
	logger := m.logger.With("function", fn.Name, "file", file.RelPath)
	logger.Info("mapping function", "start", fn.StartLine, "end", fn.EndLine)

	base := report.Mapping{
		Original:     fn.Name,
		OriginalFile: file.RelPath,
		OriginalLine: fn.StartLine,
	}

	references := m.text.Search(ctx, fn.Name, m.cfg.OriginalRoot, ReferenceHits).String()

	candidates, err := m.index.Search(ctx, fn.Content, CandidateCount)
	if err != nil {
		logger.Warn("vector search failed", "error", err)
	}

	prompt := InitialPrompt(fn.Name, fn.Content, references, funcindex.FormatResults(candidates))
	text := m.complete(ctx, prompt)
	if llm.IsErrorText(text) {
		logger.Warn("reviewer request failed", "error", text)
		return []report.Mapping{withRefactored(base, report.Failed)}
	}

	reply := ParseReply(text)
	logger.Debug("reviewer replied", "kind", reply.Kind())
	if reply.Kind() == ReplyConfident {
		return m.resolve(ctx, base, reply, candidates)
	}

	var state FollowUp
	state.Merge(reply)
	if !state.CanContinue() {
		logger.Info("not enough information for follow-up searches")
		return []report.Mapping{withRefactored(base, report.Unresolved)}
	}

	for round := 1; round <= m.cfg.MaxFollowUps; round++ {
		if ctx.Err() != nil {
			break
		}
		logger.Info("follow-up round", "round", round, "max", m.cfg.MaxFollowUps)

		var originalResults, refactoredResults string
		if state.SearchOriginal != "" {
			originalResults = m.text.Relax(ctx, state.SearchOriginal, m.cfg.OriginalRoot, ReferenceHits)
		}
		if state.SearchRefactored != "" {
			refactoredResults = m.text.Relax(ctx, state.SearchRefactored, m.cfg.RefactoredRoot, ReferenceHits)
		}

		// 失敗した応答もラウンドを1回消費する
		text := m.complete(ctx, FollowUpPrompt(prompt, state, originalResults, refactoredResults))
		if llm.IsErrorText(text) {
			logger.Warn("reviewer request failed", "round", round, "error", text)
			continue
		}

		reply := ParseReply(text)
		logger.Debug("reviewer replied", "round", round, "kind", reply.Kind())
		if reply.Kind() == ReplyConfident {
			return m.resolve(ctx, base, reply, candidates)
		}
		state.Merge(reply)
	}

	logger.Info("no confident mapping", "rounds", m.cfg.MaxFollowUps)
	return []report.Mapping{withRefactored(base, report.Unresolved)}
}

// complete はレビュアーに問い合わせる。失敗は "Error: ..." 形式の文字列で返る。
func (m *Mapper) complete(ctx context.Context, prompt string) string {
	return llm.CompleteText(ctx, m.client, llm.Request{
		System:      SystemPrompt,
		Prompt:      prompt,
		Temperature: Temperature,
	})
}

// resolve は応答の関数名ごとに位置を解決して対応を作る。名前が空なら対応先なしの1件を返す。
func (m *Mapper) resolve(ctx context.Context, base report.Mapping, reply Reply, candidates []funcindex.Result) []report.Mapping {
	concern := reply.Concern.OrEmpty()
	names := reply.Names()
	if len(names) == 0 {
		mp := base
		mp.Concern = concern
		return []report.Mapping{mp}
	}

	mappings := make([]report.Mapping, 0, len(names))
	for _, name := range names {
		mp := withRefactored(base, name)
		mp.Concern = concern
		if rec, ok := m.index.Locate(ctx, name, candidates); ok {
			mp.RefactoredFile = relativeTo(m.cfg.RefactoredRoot, rec)
			mp.RefactoredLine = rec.Function.StartLine
		}
		mappings = append(mappings, mp)
	}
	return mappings
}

func withRefactored(base report.Mapping, name string) report.Mapping {
	base.Refactored = name
	return base
}

func relativeTo(root string, rec funcindex.Record) string {
	if rec.RelPath != "" {
		return rec.RelPath
	}
	if rel, err := filepath.Rel(root, rec.Function.File); err == nil {
		return filepath.ToSlash(rel)
	}
	return rec.Source
}
