package funcindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/hbollon/go-edlib"
	"golang.org/x/sync/errgroup"

	"github.com/jinford/refmap/internal/core/funcrange"
)

const (
	// DefaultConcurrency は関数抽出の並列数
	DefaultConcurrency = 8

	// DefaultNameThreshold は関数名のあいまい一致に必要な類似度
	DefaultNameThreshold = 0.92

	// DefaultBatchSize は1回の埋め込み要求に含める関数の数
	DefaultBatchSize = 100
)

// ErrNoVectorIndex はインデックスが未作成の場合のエラー
var ErrNoVectorIndex = errors.New("no vector index loaded: build one first")

// recordNamespace は Record.ID を決定的に生成するための名前空間
var recordNamespace = uuid.MustParse("5b0c6d0e-3f4a-4c8e-9a53-2f1e7d8b9c10")

// BuildStats はインデックス構築結果の集計
type BuildStats struct {
	Files      int
	Functions  int
	Duplicates int
	Indexed    int
}

// Index は関数本体のベクトル索引
type Index struct {
	store       Store
	embedder    Embedder
	extractor   funcrange.Extractor
	lister      Lister
	concurrency int
	batchSize   int
	logger      *slog.Logger
}

// Option は Index の設定オプション
type Option func(*Index)

// WithIndexLogger はロガーを設定する
func WithIndexLogger(logger *slog.Logger) Option {
	return func(ix *Index) {
		if logger != nil {
			ix.logger = logger
		}
	}
}

// WithConcurrency は関数抽出の並列数を設定する
func WithConcurrency(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.concurrency = n
		}
	}
}

// WithBatchSize は1回の埋め込み要求に含める関数の数を設定する
func WithBatchSize(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.batchSize = n
		}
	}
}

// NewIndex は新しい Index を作成する
func NewIndex(store Store, embedder Embedder, extractor funcrange.Extractor, lister Lister, opts ...Option) *Index {
	ix := &Index{
		store:       store,
		embedder:    embedder,
		extractor:   extractor,
		lister:      lister,
		concurrency: DefaultConcurrency,
		batchSize:   DefaultBatchSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Ready はインデックスに1件以上の関数があるかを返す
func (ix *Index) Ready(ctx context.Context) (bool, error) {
	n, err := ix.store.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to count records: %w", err)
	}
	return n > 0, nil
}

// Build は root 配下の関数を抽出し、インデックスを作り直す。
// 本体が同一の関数は最初の1件だけを登録する。
func (ix *Index) Build(ctx context.Context, root string) (BuildStats, error) {
	var stats BuildStats

	files, err := ix.lister.List(ctx, root)
	if err != nil {
		return stats, fmt.Errorf("failed to list source files: %w", err)
	}
	stats.Files = len(files)

	ix.logger.Info("extracting functions", "root", root, "files", len(files))

	extracted, err := ix.extractAll(ctx, files)
	if err != nil {
		return stats, err
	}

	seen := make(map[uint64]string)
	var records []Record
	for i, funcs := range extracted {
		for _, fn := range funcs {
			stats.Functions++
			hash := xxhash.Sum64String(fn.Content)
			if prev, ok := seen[hash]; ok && prev == fn.Content {
				stats.Duplicates++
				continue
			}
			seen[hash] = fn.Content
			records = append(records, newRecord(files[i], fn, hash))
		}
	}

	if stats.Duplicates > 0 {
		ix.logger.Info("filtered out duplicate functions", "duplicates", stats.Duplicates)
	}

	if err := ix.store.Reset(ctx); err != nil {
		return stats, fmt.Errorf("failed to reset store: %w", err)
	}

	for start := 0; start < len(records); start += ix.batchSize {
		end := min(start+ix.batchSize, len(records))
		batch := records[start:end]

		texts := make([]string, len(batch))
		for i, r := range batch {
			texts[i] = r.Function.Content
		}

		vectors, err := ix.embed(ctx, texts)
		if err != nil {
			return stats, fmt.Errorf("failed to embed functions: %w", err)
		}
		for i := range batch {
			batch[i].Embedding = vectors[i]
		}

		if err := ix.store.Upsert(ctx, batch); err != nil {
			return stats, fmt.Errorf("failed to store functions: %w", err)
		}
		stats.Indexed += len(batch)

		ix.logger.Debug("embedded batch", "indexed", stats.Indexed, "total", len(records))
	}

	ix.logger.Info("function index built",
		"files", stats.Files,
		"functions", stats.Functions,
		"indexed", stats.Indexed)

	return stats, nil
}

// extractAll はファイルごとの関数抽出を並列に行う。抽出に失敗したファイルは読み飛ばす。
func (ix *Index) extractAll(ctx context.Context, files []SourceFile) ([][]funcrange.Function, error) {
	extracted := make([][]funcrange.Function, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.concurrency)
	for i, f := range files {
		g.Go(func() error {
			funcs, err := ix.extractor.Extract(gctx, f.Path)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				ix.logger.Warn("failed to extract functions", "path", f.Path, "error", err)
				return nil
			}
			extracted[i] = funcs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("function extraction aborted: %w", err)
	}
	return extracted, nil
}

func newRecord(f SourceFile, fn funcrange.Function, hash uint64) Record {
	key := f.RelPath + ":" + fn.Name + ":" + strconv.Itoa(fn.StartLine)
	return Record{
		ID:          uuid.NewSHA1(recordNamespace, []byte(key)),
		Function:    fn,
		Source:      filepath.Base(fn.File),
		RelPath:     f.RelPath,
		Language:    f.Language,
		ContentHash: strconv.FormatUint(hash, 16),
	}
}

// Search は query に近い関数を最大 k 件返す
func (ix *Index) Search(ctx context.Context, query string, k int) ([]Result, error) {
	ready, err := ix.Ready(ctx)
	if err != nil {
		return nil, err
	}
	if !ready {
		return nil, ErrNoVectorIndex
	}

	vectors, err := ix.embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := ix.store.Search(ctx, vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("failed to search functions: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for i, h := range hits {
		results = append(results, Result{
			Rank:       i + 1,
			Record:     h.Record,
			Similarity: Similarity(h.Distance),
		})
	}
	return results, nil
}

// Locate は関数名から定義位置を解決する。
// 候補内の完全一致、インデックス内の完全一致、候補内のあいまい一致の順に探す。
func (ix *Index) Locate(ctx context.Context, name string, candidates []Result) (Record, bool) {
	for _, c := range candidates {
		if c.Record.Function.Name == name {
			return c.Record, true
		}
	}

	records, err := ix.store.FindByName(ctx, name)
	if err != nil {
		ix.logger.Warn("failed to look up function", "function", name, "error", err)
	} else if len(records) > 0 {
		return records[0], true
	}

	if r, ok := ClosestName(name, candidates, DefaultNameThreshold); ok {
		return r.Record, true
	}
	return Record{}, false
}

// ClosestName は候補のうち名前が最も近いものを返す。類似度が threshold 未満なら見つからない扱い。
func ClosestName(name string, candidates []Result, threshold float32) (Result, bool) {
	var best Result
	var bestScore float32 = -1
	for _, c := range candidates {
		score, err := edlib.StringsSimilarity(name, c.Record.Function.Name, edlib.JaroWinkler)
		if err != nil {
			continue
		}
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	if bestScore < threshold {
		return Result{}, false
	}
	return best, true
}
