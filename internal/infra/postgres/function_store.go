package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/refmap/internal/core/funcindex"
	"github.com/jinford/refmap/internal/core/funcrange"
)

// FunctionStore は funcindex.Store を実装する pgvector バックエンド
type FunctionStore struct {
	db        *DB
	dimension int
}

// NewFunctionStore は新しい FunctionStore を返す
func NewFunctionStore(db *DB, dimension int) *FunctionStore {
	return &FunctionStore{db: db, dimension: dimension}
}

// Migrate は拡張機能とテーブルを作成する
func (s *FunctionStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS functions (
            id UUID PRIMARY KEY,
            name TEXT NOT NULL,
            file TEXT NOT NULL,
            rel_path TEXT NOT NULL,
            source TEXT NOT NULL,
            language TEXT,
            start_line INTEGER NOT NULL,
            end_line INTEGER NOT NULL,
            content TEXT NOT NULL,
            content_hash TEXT NOT NULL,
            embedding vector(%d) NOT NULL
        )`, s.dimension),
		`CREATE INDEX IF NOT EXISTS idx_functions_name ON functions (name)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

// writeLock は functions テーブルへの書き込みを直列化するロック
var writeLock = LockID("refmap", "functions")

// Reset は全レコードを削除する
func (s *FunctionStore) Reset(ctx context.Context) error {
	_, err := Transact(ctx, s.db, func(tx pgx.Tx) (struct{}, error) {
		if err := AcquireXactLock(ctx, tx, writeLock); err != nil {
			return struct{}{}, err
		}
		if _, err := tx.Exec(ctx, `TRUNCATE functions`); err != nil {
			return struct{}{}, fmt.Errorf("failed to truncate functions: %w", err)
		}
		return struct{}{}, nil
	})
	return err
}

// Upsert はレコードを1トランザクションで保存する。同じIDは上書きする。
func (s *FunctionStore) Upsert(ctx context.Context, records []funcindex.Record) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		fn := r.Function
		batch.Queue(`INSERT INTO functions
            (id, name, file, rel_path, source, language, start_line, end_line, content, content_hash, embedding)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
            ON CONFLICT (id) DO UPDATE SET
                name = EXCLUDED.name,
                file = EXCLUDED.file,
                rel_path = EXCLUDED.rel_path,
                source = EXCLUDED.source,
                language = EXCLUDED.language,
                start_line = EXCLUDED.start_line,
                end_line = EXCLUDED.end_line,
                content = EXCLUDED.content,
                content_hash = EXCLUDED.content_hash,
                embedding = EXCLUDED.embedding`,
			UUIDToPgtype(r.ID), fn.Name, fn.File, r.RelPath, r.Source, StringToNullableText(r.Language),
			int32(fn.StartLine), int32(fn.EndLine), fn.Content, r.ContentHash, pgvector.NewVector(r.Embedding),
		)
	}

	_, err := Transact(ctx, s.db, func(tx pgx.Tx) (int, error) {
		if err := AcquireXactLock(ctx, tx, writeLock); err != nil {
			return 0, err
		}
		results := tx.SendBatch(ctx, batch)
		for range records {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return 0, fmt.Errorf("failed to upsert function: %w", err)
			}
		}
		return len(records), results.Close()
	})
	return err
}

// Search はコサイン距離の小さい順に最大 k 件返す
func (s *FunctionStore) Search(ctx context.Context, vector []float32, k int) ([]funcindex.Hit, error) {
	rows, err := s.db.Pool.Query(ctx, `SELECT `+columns+`, embedding <=> $1 AS distance
        FROM functions
        ORDER BY embedding <=> $1
        LIMIT $2`, pgvector.NewVector(vector), int32(k))
	if err != nil {
		return nil, fmt.Errorf("failed to search functions: %w", err)
	}
	defer rows.Close()

	var hits []funcindex.Hit
	for rows.Next() {
		var h funcindex.Hit
		if err := scanRecord(rows, &h.Record, &h.Distance); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// FindByName は関数名が一致するレコードを返す
func (s *FunctionStore) FindByName(ctx context.Context, name string) ([]funcindex.Record, error) {
	rows, err := s.db.Pool.Query(ctx, `SELECT `+columns+`, 0::float8
        FROM functions
        WHERE name = $1
        ORDER BY rel_path, start_line`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to find function: %w", err)
	}
	defer rows.Close()

	var records []funcindex.Record
	for rows.Next() {
		var r funcindex.Record
		var ignored float64
		if err := scanRecord(rows, &r, &ignored); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Count は保存済みのレコード数を返す
func (s *FunctionStore) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM functions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count functions: %w", err)
	}
	return int(n), nil
}

// Close は接続プールを閉じる
func (s *FunctionStore) Close() error {
	s.db.Close()
	return nil
}

const columns = `id, name, file, rel_path, source, language, start_line, end_line, content, content_hash`

func scanRecord(rows pgx.Rows, r *funcindex.Record, distance *float64) error {
	var (
		id         pgtype.UUID
		lang       pgtype.Text
		start, end int32
		fn         funcrange.Function
	)
	if err := rows.Scan(&id, &fn.Name, &fn.File, &r.RelPath, &r.Source, &lang,
		&start, &end, &fn.Content, &r.ContentHash, distance); err != nil {
		return fmt.Errorf("failed to scan function: %w", err)
	}
	fn.StartLine = int(start)
	fn.EndLine = int(end)
	r.ID = PgtypeToUUID(id)
	r.Language = PgtextToString(lang)
	r.Function = fn
	return nil
}

// インターフェース実装の確認
var _ funcindex.Store = (*FunctionStore)(nil)
