package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// ignoreFiles はルート直下で読み込む除外ファイル
var ignoreFiles = []string{".gitignore", ".refmapignore"}

// IgnoreFilter は .gitignore と .refmapignore のパターンマッチングを提供します
type IgnoreFilter struct {
	patterns *gitignore.GitIgnore
}

// NewIgnoreFilter は root 直下の除外ファイルを読み込んで IgnoreFilter を作成します
func NewIgnoreFilter(root string) (*IgnoreFilter, error) {
	var patterns []string
	for _, name := range ignoreFiles {
		path := filepath.Join(root, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		lines, err := readIgnoreFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		patterns = append(patterns, lines...)
	}

	if len(patterns) == 0 {
		return &IgnoreFilter{}, nil
	}
	return &IgnoreFilter{patterns: gitignore.CompileIgnoreLines(patterns...)}, nil
}

// ShouldIgnore はスラッシュ区切りの相対パスが除外対象かどうかを判定します
func (f *IgnoreFilter) ShouldIgnore(relPath string) bool {
	if f == nil || f.patterns == nil {
		return false
	}
	return f.patterns.MatchesPath(relPath)
}

func readIgnoreFile(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var patterns []string
	for _, line := range strings.FieldsFunc(string(content), func(r rune) bool { return r == '\n' || r == '\r' }) {
		// 空行とコメント行をスキップ
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, nil
}
