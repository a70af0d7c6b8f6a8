package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jinford/refmap/internal/core/funcindex"
	"github.com/jinford/refmap/internal/core/funcrange"
)

// DefaultPath はベクトルDBの既定パス
const DefaultPath = "db/functions.sqlite"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS functions (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        file TEXT NOT NULL,
        rel_path TEXT NOT NULL,
        source TEXT NOT NULL,
        language TEXT,
        start_line INTEGER NOT NULL,
        end_line INTEGER NOT NULL,
        content TEXT NOT NULL,
        content_hash TEXT NOT NULL,
        dim INTEGER NOT NULL,
        vector TEXT NOT NULL
    );`,
	`CREATE INDEX IF NOT EXISTS idx_functions_name ON functions(name);`,
}

// FunctionStore はSQLiteに関数ベクトルをJSONとして保存し、全件走査で近傍を求める
type FunctionStore struct {
	db *sql.DB
}

// Open はDBファイルを開き、スキーマを適用する
func Open(ctx context.Context, path string) (*FunctionStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// modernc sqlite は単一接続で使う
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return &FunctionStore{db: db}, nil
}

// Reset は全レコードを削除する
func (s *FunctionStore) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM functions`)
	return err
}

// Upsert はレコードを保存する。同じIDは置き換える。
func (s *FunctionStore) Upsert(ctx context.Context, records []funcindex.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO functions
        (id, name, file, rel_path, source, language, start_line, end_line, content, content_hash, dim, vector)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		vec, err := json.Marshal(r.Embedding)
		if err != nil {
			return err
		}
		fn := r.Function
		if _, err := stmt.ExecContext(ctx,
			r.ID.String(), fn.Name, fn.File, r.RelPath, r.Source, r.Language,
			fn.StartLine, fn.EndLine, fn.Content, r.ContentHash, len(r.Embedding), string(vec),
		); err != nil {
			return fmt.Errorf("failed to insert %s: %w", fn.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Search はコサイン距離の小さい順に最大 k 件返す
func (s *FunctionStore) Search(ctx context.Context, vector []float32, k int) ([]funcindex.Hit, error) {
	if len(vector) == 0 || k <= 0 {
		return nil, nil
	}

	// 次元の異なるモデルのベクトルは比較しない
	rows, err := s.db.QueryContext(ctx, `SELECT `+columns+`, vector FROM functions WHERE dim = ?`, len(vector))
	if err != nil {
		return nil, fmt.Errorf("failed to query functions: %w", err)
	}
	defer rows.Close()

	var hits []funcindex.Hit
	for rows.Next() {
		var r funcindex.Record
		var vecStr string
		if err := scanRecord(rows, &r, &vecStr); err != nil {
			return nil, err
		}
		var vec []float32
		if err := json.Unmarshal([]byte(vecStr), &vec); err != nil || len(vec) != len(vector) {
			continue
		}
		hits = append(hits, funcindex.Hit{Record: r, Distance: 1 - cosine(vector, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.SortStableFunc(hits, func(a, b funcindex.Hit) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		default:
			return 0
		}
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// FindByName は関数名が一致するレコードを返す
func (s *FunctionStore) FindByName(ctx context.Context, name string) ([]funcindex.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+columns+`, '' FROM functions WHERE name = ? ORDER BY rel_path, start_line`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query functions: %w", err)
	}
	defer rows.Close()

	var records []funcindex.Record
	for rows.Next() {
		var r funcindex.Record
		var ignored string
		if err := scanRecord(rows, &r, &ignored); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Count は保存済みのレコード数を返す
func (s *FunctionStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM functions`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Close はDBを閉じる
func (s *FunctionStore) Close() error {
	return s.db.Close()
}

const columns = `id, name, file, rel_path, source, language, start_line, end_line, content, content_hash`

func scanRecord(rows *sql.Rows, r *funcindex.Record, vec *string) error {
	var id string
	var lang sql.NullString
	var fn funcrange.Function
	if err := rows.Scan(&id, &fn.Name, &fn.File, &r.RelPath, &r.Source, &lang,
		&fn.StartLine, &fn.EndLine, &fn.Content, &r.ContentHash, vec); err != nil {
		return fmt.Errorf("failed to scan function: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid function id %q: %w", id, err)
	}
	r.ID = parsed
	r.Language = lang.String
	r.Function = fn
	return nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// インターフェース実装の確認
var _ funcindex.Store = (*FunctionStore)(nil)
