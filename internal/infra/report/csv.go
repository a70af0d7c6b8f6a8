package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"

	"github.com/jinford/refmap/internal/core/report"
)

const (
	// DefaultCSVPath はCSVレポートの既定パス
	DefaultCSVPath = "refactoring.csv"

	csvDelimiter = ';'
)

var csvHeader = []string{"original_func_name", "refactored_func_name", "concern"}

// CSVWriter は対応を ; 区切りのCSVに追記する
type CSVWriter struct {
	path string
}

// NewCSVWriter は新しい CSVWriter を返す
func NewCSVWriter(path string) *CSVWriter {
	if path == "" {
		path = DefaultCSVPath
	}
	return &CSVWriter{path: path}
}

// Path は出力先のパス
func (w *CSVWriter) Path() string {
	return w.path
}

// Write は1件追記する。ファイルが新規の場合のみヘッダを書く。
func (w *CSVWriter) Write(m report.Mapping) error {
	exists, err := fileExists(w.path)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", w.path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	cw.Comma = csvDelimiter
	if !exists {
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
	}
	if err := cw.Write([]string{m.Original, m.Refactored, m.Concern}); err != nil {
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", w.path, err)
	}
	return nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat %s: %w", path, err)
}

// インターフェース実装の確認
var _ report.Writer = (*CSVWriter)(nil)
