package textsearch

import (
	"fmt"
	"regexp"
	"strings"
)

// inlineTemplates はインライン関数定義を検出する正規表現のひな形。%s に関数名が入る。
// 戻り値型はポインタ (char* など) も含む。
var inlineTemplates = []string{
	`static\s+inline\s+[\w\*]+\s+%s\s*\(`,
	`inline\s+static\s+[\w\*]+\s+%s\s*\(`,
	`IRAM_ATTR\s+[\w\*]+\s+%s\s*\(`,
	`INLINE_FN\s+[\w\*]+\s+%s\s*\(`,
}

// InlinePatterns は name に対する定義パターンをコンパイルする。
// 名前はエスケープしたうえで、大文字小文字を区別しない複数行モードで照合する。
func InlinePatterns(name string) []*regexp.Regexp {
	quoted := regexp.QuoteMeta(name)
	patterns := make([]*regexp.Regexp, 0, len(inlineTemplates))
	for _, tmpl := range inlineTemplates {
		patterns = append(patterns, regexp.MustCompile("(?mi)"+fmt.Sprintf(tmpl, quoted)))
	}
	return patterns
}

// isSingleWord はクエリが空白を含まない1語かどうかを返す
func isSingleWord(query string) bool {
	return len(strings.Fields(query)) == 1
}

// matchPatterns はファイル全体に patterns を適用し、各一致を KindInline の Match として返す。
// 行番号は一致開始位置までの改行数から求める。
func matchPatterns(path, content string, lines []string, patterns []*regexp.Regexp) []Match {
	var matches []Match
	for _, re := range patterns {
		for _, loc := range re.FindAllStringIndex(content, -1) {
			idx := strings.Count(content[:loc[0]], "\n")
			if idx >= len(lines) {
				continue
			}
			matches = append(matches, Match{
				Path:    path,
				Line:    idx + 1,
				Kind:    KindInline,
				Text:    content[loc[0]:loc[1]],
				Context: window(lines, idx),
			})
		}
	}
	return matches
}
