package textsearch

import (
	"fmt"
	"strings"
)

const (
	// NoMatches は検索結果が0件のときに返す文字列（呼び出し側が完全一致で判定する）
	NoMatches = "No matches found."

	// EmptyQuery は空クエリが渡されたときに返す文字列
	EmptyQuery = "Empty query provided."

	// DefaultMaxHits は呼び出し側が上限を指定しない場合の件数
	DefaultMaxHits = 10

	// ContextLines はマッチ行の前後に含める行数
	ContextLines = 3

	matchHeader  = "Found match in: "
	inlineHeader = "Found inline function in: "
	errorHeader  = "Error reading "
)

// Kind はマッチの種類を表す
type Kind int

const (
	// KindLine は行単位の部分一致
	KindLine Kind = iota
	// KindInline は関数定義パターンへの一致
	KindInline
	// KindError はファイル読み込みエラー
	KindError
)

// String はログ出力用のラベルを返す
func (k Kind) String() string {
	switch k {
	case KindLine:
		return "match"
	case KindInline:
		return "inline function"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// ContextLine はコンテキストウィンドウ内の1行
type ContextLine struct {
	Number int // 1始まりの行番号
	Text   string
}

// Match は1件の検索ヒットを表す。生成後は変更しない。
type Match struct {
	Path    string
	Line    int // 1始まり
	Kind    Kind
	Text    string // 一致したテキスト
	Context []ContextLine
	Err     error // KindError の場合のみ
}

// Format はマッチを人間が読めるブロック形式に整形する
func (m Match) Format() string {
	if m.Kind == KindError {
		return fmt.Sprintf("%s%s: %v", errorHeader, m.Path, m.Err)
	}

	var sb strings.Builder
	if m.Kind == KindInline {
		sb.WriteString(inlineHeader)
	} else {
		sb.WriteString(matchHeader)
	}
	sb.WriteString(m.Path)
	sb.WriteString("\n")
	for _, cl := range m.Context {
		sb.WriteString(fmt.Sprintf("%4d | %s\n", cl.Number, cl.Text))
	}
	return sb.String()
}

// window は0始まりの行インデックス idx を中心としたコンテキストを切り出す
func window(lines []string, idx int) []ContextLine {
	start := max(0, idx-ContextLines)
	end := min(len(lines), idx+ContextLines+1)

	ctx := make([]ContextLine, 0, end-start)
	for j := start; j < end; j++ {
		ctx = append(ctx, ContextLine{
			Number: j + 1,
			Text:   strings.TrimRight(lines[j], " \t\r\n\v\f"),
		})
	}
	return ctx
}
