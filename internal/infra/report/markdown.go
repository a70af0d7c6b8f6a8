package report

import (
	"fmt"
	"os"
	"strings"

	"github.com/jinford/refmap/internal/core/report"
)

// DefaultMarkdownPath はMarkdownレポートの既定パス
const DefaultMarkdownPath = "refactoring.md"

const markdownHeader = "| Original Function | Refactored Function | Concerns |\n" +
	"|------------------|--------------------|---------|\n"

var cellEscaper = strings.NewReplacer("|", `\|`, "\r\n", "<br>", "\n", "<br>")

// MarkdownWriter は対応をMarkdownの表に追記する
type MarkdownWriter struct {
	path       string
	original   report.Repo
	refactored report.Repo
}

// NewMarkdownWriter は新しい MarkdownWriter を返す。original と refactored はリンク生成に使う。
func NewMarkdownWriter(path string, original, refactored report.Repo) *MarkdownWriter {
	if path == "" {
		path = DefaultMarkdownPath
	}
	return &MarkdownWriter{path: path, original: original, refactored: refactored}
}

// Path は出力先のパス
func (w *MarkdownWriter) Path() string {
	return w.path
}

// Write は1行追記する。ファイルが新規の場合のみ表のヘッダを書く。
func (w *MarkdownWriter) Write(m report.Mapping) error {
	exists, err := fileExists(w.path)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", w.path, err)
	}
	defer f.Close()

	var sb strings.Builder
	if !exists {
		sb.WriteString(markdownHeader)
	}
	fmt.Fprintf(&sb, "| %s | %s | %s |\n", w.originalCell(m), w.refactoredCell(m), cellEscaper.Replace(m.Concern))

	if _, err := f.WriteString(sb.String()); err != nil {
		return fmt.Errorf("failed to write %s: %w", w.path, err)
	}
	return nil
}

func (w *MarkdownWriter) originalCell(m report.Mapping) string {
	return link(m.Original, w.original.Link(m.OriginalFile, m.OriginalLine))
}

func (w *MarkdownWriter) refactoredCell(m report.Mapping) string {
	if !m.Resolved() || m.Refactored == "" {
		return m.Refactored
	}
	return link(m.Refactored, w.refactored.Link(m.RefactoredFile, m.RefactoredLine))
}

func link(name, url string) string {
	if url == "" {
		return name
	}
	return fmt.Sprintf("[%s](%s)", name, url)
}

// インターフェース実装の確認
var _ report.Writer = (*MarkdownWriter)(nil)
