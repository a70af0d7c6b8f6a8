package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-enry/go-enry/v2"

	"github.com/jinford/refmap/internal/core/funcindex"
	"github.com/jinford/refmap/internal/core/textsearch"
)

// sourcePattern はインデックス対象のCソースとヘッダ
const sourcePattern = "**/*.{c,h}"

// sniffSize は言語判定に読む先頭バイト数
const sniffSize = 8 * 1024

// Loader はルート配下のC/Hファイルを列挙する
type Loader struct {
	logger *slog.Logger
}

// Option は Loader の設定
type Option func(*Loader)

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader は新しい Loader を返す
func NewLoader(opts ...Option) *Loader {
	l := &Loader{logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// List は root 配下のソースファイルを相対パス順に返す
func (l *Loader) List(ctx context.Context, root string) ([]funcindex.SourceFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	filter, err := NewIgnoreFilter(root)
	if err != nil {
		return nil, err
	}

	matches, err := doublestar.Glob(os.DirFS(root), sourcePattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to glob %s: %w", root, err)
	}

	var files []funcindex.SourceFile
	for _, rel := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if inExcludedDir(rel) || filter.ShouldIgnore(rel) {
			continue
		}

		abs := filepath.Join(root, filepath.FromSlash(rel))
		files = append(files, funcindex.SourceFile{
			Path:     abs,
			RelPath:  rel,
			Language: l.detectLanguage(abs),
		})
	}

	l.logger.Debug("source files listed", "root", root, "files", len(files))
	return files, nil
}

func (l *Loader) detectLanguage(file string) string {
	f, err := os.Open(file)
	if err != nil {
		return ""
	}
	defer f.Close()

	head := make([]byte, sniffSize)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		l.logger.Warn("failed to read file head", "file", file, "error", err)
		return ""
	}
	return enry.GetLanguage(filepath.Base(file), head[:n])
}

// inExcludedDir はディレクトリ部分に除外名が含まれるかを判定する
func inExcludedDir(rel string) bool {
	dir := path.Dir(rel)
	if dir == "." {
		return false
	}
	for _, seg := range strings.Split(dir, "/") {
		if textsearch.IsExcludedDir(seg) {
			return true
		}
	}
	return false
}

// インターフェース実装の確認
var _ funcindex.Lister = (*Loader)(nil)
