package funcrange

import (
	"context"
	"sort"
	"strings"
)

// Function はソースファイル内の1つの関数定義
type Function struct {
	Name      string
	File      string
	StartLine int // 1始まり
	EndLine   int // 1始まり（含む）
	Content   string
}

// Extractor はファイルから関数定義を抽出する
type Extractor interface {
	Extract(ctx context.Context, path string) ([]Function, error)
}

// Start は関数名と開始行の組
type Start struct {
	Name string
	Line int
}

// SplitLines は改行を保持したまま行に分割する
func SplitLines(content string) []string {
	lines := strings.SplitAfter(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// EndLine は startLine（1始まり）から波括弧の対応を数え、関数の終了行を返す。
// 開始行より後で対応が取れた最初の行で終了とし、対応が取れない場合は開始行を返す。
func EndLine(lines []string, startLine int) int {
	if startLine < 1 {
		return startLine
	}

	depth := 0
	for i := startLine - 1; i < len(lines); i++ {
		depth += strings.Count(lines[i], "{")
		depth -= strings.Count(lines[i], "}")

		// i は0始まりのため、開始行の2行後以降で判定される
		if depth == 0 && i > startLine {
			return i + 1
		}
	}
	return startLine
}

// Build は開始位置の一覧とファイル内容から Function を組み立てる。
// 同名の関数が複数ある場合は後のものを採用し、出現順は最初の位置を保つ。
func Build(path, content string, starts []Start) []Function {
	lines := SplitLines(content)

	sorted := make([]Start, len(starts))
	copy(sorted, starts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Line < sorted[j].Line })

	index := make(map[string]int, len(sorted))
	funcs := make([]Function, 0, len(sorted))
	for _, s := range sorted {
		if s.Line < 1 || s.Line > len(lines) {
			continue
		}
		end := EndLine(lines, s.Line)
		fn := Function{
			Name:      s.Name,
			File:      path,
			StartLine: s.Line,
			EndLine:   end,
			Content:   strings.Join(lines[s.Line-1:end], ""),
		}
		if i, ok := index[s.Name]; ok {
			funcs[i] = fn
			continue
		}
		index[s.Name] = len(funcs)
		funcs = append(funcs, fn)
	}
	return funcs
}
