package report

import (
	"fmt"
	"path"
	"strings"
)

const (
	// Unresolved は確信のある対応が得られなかった場合の対応先
	Unresolved = "???"

	// Failed は最初の問い合わせが失敗した場合の対応先
	Failed = "ERROR"
)

// Format はレポートの出力形式
type Format string

const (
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
)

// ParseFormat は文字列を Format に変換する
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV, "":
		return FormatCSV, nil
	case FormatMarkdown, "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", s)
	}
}

// Mapping は元の関数とリファクタリング後の関数の対応1件
type Mapping struct {
	Original     string
	OriginalFile string // 元コードルートからの相対パス
	OriginalLine int

	Refactored     string // 関数名、Unresolved、Failed、または空（対応先なし）
	RefactoredFile string
	RefactoredLine int

	Concern string
}

// Resolved は対応先が確定しているかを返す
func (m Mapping) Resolved() bool {
	return m.Refactored != Unresolved && m.Refactored != Failed
}

// String はサマリ用の1行表現
func (m Mapping) String() string {
	if m.Concern != "" {
		return fmt.Sprintf("%s → %s (Concern: %s)", m.Original, m.Refactored, m.Concern)
	}
	return fmt.Sprintf("%s → %s", m.Original, m.Refactored)
}

// Writer は対応を出力先に追記する
type Writer interface {
	Write(m Mapping) error
	Path() string
}

// Repo はパーマリンクの生成に使うリポジトリ情報
type Repo struct {
	WebURL string // 例: https://github.com/espressif/esp-protocols
	SHA    string
	Prefix string // リポジトリルートからコードルートまでのパス（スラッシュ区切り）
}

// Link は <WebURL>/blob/<SHA>/<Prefix>/<relPath>#L<line> を返す。生成できない場合は空文字。
func (r Repo) Link(relPath string, line int) string {
	if r.WebURL == "" || relPath == "" || line <= 0 {
		return ""
	}
	sha := r.SHA
	if sha == "" {
		sha = "main"
	}
	p := path.Join(r.Prefix, relPath)
	return fmt.Sprintf("%s/blob/%s/%s#L%d", strings.TrimSuffix(r.WebURL, "/"), sha, p, line)
}

// Summary は実行結果のサマリを整形する
func Summary(mappings []Mapping, dest string) string {
	var sb strings.Builder
	sb.WriteString("=== SUMMARY OF REFACTORING MAPPINGS ===\n")
	if len(mappings) == 0 {
		sb.WriteString("No refactoring mappings were found.\n")
		return sb.String()
	}
	for _, m := range mappings {
		sb.WriteString(m.String())
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "\nTotal mappings found: %d\n", len(mappings))
	if dest != "" {
		fmt.Fprintf(&sb, "Mappings saved to %s\n", dest)
	}
	return sb.String()
}

// Counts は結果の内訳
type Counts struct {
	Mapped     int
	Unresolved int
	Failed     int
}

// Count は結果の内訳を数える
func Count(mappings []Mapping) Counts {
	var c Counts
	for _, m := range mappings {
		switch m.Refactored {
		case Unresolved:
			c.Unresolved++
		case Failed:
			c.Failed++
		default:
			c.Mapped++
		}
	}
	return c
}
