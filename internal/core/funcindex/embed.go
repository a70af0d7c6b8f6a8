package funcindex

import (
	"context"
	"fmt"
)

// embed は texts を埋め込み、入力順に並べたベクトルを返す
func (ix *Index) embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	return arrange(len(texts), embeddings)
}

// arrange は位置付きのベクトルを入力順に並べる。
// 範囲外の位置、重複、欠けがあればエラーにする。
func arrange(n int, embeddings []Embedding) ([][]float32, error) {
	if len(embeddings) != n {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(embeddings), n)
	}

	vectors := make([][]float32, n)
	for _, e := range embeddings {
		if e.Index < 0 || e.Index >= n {
			return nil, fmt.Errorf("embedding index %d out of range", e.Index)
		}
		if vectors[e.Index] != nil {
			return nil, fmt.Errorf("duplicate embedding for input %d", e.Index)
		}
		if len(e.Vector) == 0 {
			return nil, fmt.Errorf("empty embedding for input %d", e.Index)
		}
		vectors[e.Index] = e.Vector
	}
	return vectors, nil
}
