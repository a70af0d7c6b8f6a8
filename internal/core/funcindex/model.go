package funcindex

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jinford/refmap/internal/core/funcrange"
)

// separatorWidth は検索結果ブロックの区切り線の幅
const separatorWidth = 80

// SourceFile はインデックス対象のソースファイル
type SourceFile struct {
	Path     string // 読み込みに使うパス
	RelPath  string // ルートからの相対パス（スラッシュ区切り）
	Language string
}

// Record は保存される関数1件分のデータ
type Record struct {
	ID          uuid.UUID
	Function    funcrange.Function
	Source      string // ファイル名
	RelPath     string
	Language    string
	ContentHash string
	Embedding   []float32
}

// Hit はベクトル検索の1件
type Hit struct {
	Record   Record
	Distance float64 // コサイン距離（0: 同一 〜 2: 逆向き）
}

// Result は整形済みの検索結果
type Result struct {
	Rank       int // 1始まり
	Record     Record
	Similarity float64 // 0〜100
}

// Lister はルート配下のソースファイルを列挙する
type Lister interface {
	List(ctx context.Context, root string) ([]SourceFile, error)
}

// Embedding は入力位置付きのベクトル
type Embedding struct {
	Index  int // texts 内の位置
	Vector []float32
}

// Embedder は1回の呼び出しで texts をベクトルに変換する。返す順序は問わない。
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([]Embedding, error)
}

// Store は関数ベクトルの保存先
type Store interface {
	Reset(ctx context.Context) error
	Upsert(ctx context.Context, records []Record) error
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)
	FindByName(ctx context.Context, name string) ([]Record, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Similarity はコサイン距離を 0〜100 の類似度に変換する
func Similarity(distance float64) float64 {
	return (1 - distance/2) * 100
}

// Format は結果を人間が読めるブロックに整形する
func (r Result) Format() string {
	fn := r.Record.Function

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Result %d: [Similarity: %.2f%%]\n", r.Rank, r.Similarity))
	sb.WriteString(fmt.Sprintf("  Function: %s\n", fn.Name))
	sb.WriteString(fmt.Sprintf("  Source: %s (lines %d-%d)\n", r.Record.Source, fn.StartLine, fn.EndLine))
	sb.WriteString("  Content:\n")
	sb.WriteString(fn.Content)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", separatorWidth))
	return sb.String()
}

// FormatResults は結果ブロックを改行で連結する
func FormatResults(results []Result) string {
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, r.Format())
	}
	return strings.Join(blocks, "\n")
}
