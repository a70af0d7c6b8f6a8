package textsearch

import (
	"context"
	"errors"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrInvalidEncoding はファイルがUTF-8として読めない場合のエラー
var ErrInvalidEncoding = errors.New("invalid UTF-8 encoding")

// excludedDirs は走査対象から外すディレクトリ名（ビルド成果物・VCSメタデータ）
var excludedDirs = map[string]struct{}{
	"build":               {},
	"build_esp32_default": {},
	".git":                {},
	"cmake-build":         {},
}

// sourceSuffixes は走査対象とするファイルの拡張子
var sourceSuffixes = []string{".c", ".h"}

// IsExcludedDir はディレクトリ名が除外対象かどうかを返す
func IsExcludedDir(name string) bool {
	_, ok := excludedDirs[name]
	return ok
}

// IsSourceFile はファイル名が走査対象の拡張子かどうかを返す
func IsSourceFile(name string) bool {
	for _, suffix := range sourceSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// Scan は dir 配下のソースファイルを走査し、query を大文字小文字を区別せずに含む行ごとに Match を返す。
// 返すシーケンスは状態を持たないため、何度でも走査し直せる。
func Scan(ctx context.Context, query, dir string) iter.Seq[Match] {
	return scan(ctx, query, dir, nil)
}

// scan はファイルごとに行マッチ、続いて patterns によるマッチを返す
func scan(ctx context.Context, query, dir string, patterns []*regexp.Regexp) iter.Seq[Match] {
	needle := strings.ToLower(query)

	return func(yield func(Match) bool) {
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return filepath.SkipAll
			}
			if err != nil {
				// ディレクトリの読み込み失敗は黙ってスキップする
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				if d == nil {
					return nil
				}
			}
			if d.IsDir() {
				if path != dir && IsExcludedDir(d.Name()) {
					return fs.SkipDir
				}
				return nil
			}
			if !IsSourceFile(d.Name()) {
				return nil
			}

			if !scanFile(path, needle, patterns, yield) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

// scanFile は1ファイル分のマッチを yield に渡す。false を返した場合は走査を打ち切る。
func scanFile(path, needle string, patterns []*regexp.Regexp, yield func(Match) bool) bool {
	lines, content, err := readLines(path)
	if err != nil {
		// 走査中に削除されたファイルはエラーとして報告しない
		if _, statErr := os.Stat(path); statErr != nil {
			return true
		}
		return yield(Match{Path: path, Kind: KindError, Err: err})
	}

	for i, line := range lines {
		if !strings.Contains(strings.ToLower(line), needle) {
			continue
		}
		m := Match{
			Path:    path,
			Line:    i + 1,
			Kind:    KindLine,
			Text:    strings.TrimSpace(line),
			Context: window(lines, i),
		}
		if !yield(m) {
			return false
		}
	}

	for _, m := range matchPatterns(path, content, lines, patterns) {
		if !yield(m) {
			return false
		}
	}
	return true
}

// readLines はファイルを読み込み、改行を保持したまま行に分割する
func readLines(path string) ([]string, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	if !utf8.Valid(data) {
		return nil, "", ErrInvalidEncoding
	}

	content := string(data)
	lines := strings.SplitAfter(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines, content, nil
}
