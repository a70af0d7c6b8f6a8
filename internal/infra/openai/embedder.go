package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/jinford/refmap/internal/core/funcindex"
)

// DefaultEmbeddingModel は関数本文の埋め込みに使うモデル
const DefaultEmbeddingModel = "text-embedding-3-small"

// ErrNoEmbeddingInput は埋め込み対象が空の場合のエラー
var ErrNoEmbeddingInput = errors.New("no texts to embed")

// FunctionEmbedder は関数本文と検索クエリを Embeddings API でベクトル化する
type FunctionEmbedder struct {
	client    openai.Client
	model     string
	dimension int
}

// NewFunctionEmbedder は FunctionEmbedder を作成する。
// model が空なら既定モデル、dimension が0以下なら次元指定なしで要求する。
func NewFunctionEmbedder(apiKey, baseURL, model string, dimension int) *FunctionEmbedder {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &FunctionEmbedder{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL),
		),
		model:     model,
		dimension: dimension,
	}
}

// Embed は texts を1回の要求で埋め込む。並べ替えは呼び出し側で行う。
func (e *FunctionEmbedder) Embed(ctx context.Context, texts []string) ([]funcindex.Embedding, error) {
	if len(texts) == 0 {
		return nil, ErrNoEmbeddingInput
	}

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d functions with %s: %w", len(texts), e.model, err)
	}

	out := make([]funcindex.Embedding, 0, len(resp.Data))
	for _, d := range resp.Data {
		vector := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vector[i] = float32(v)
		}
		out = append(out, funcindex.Embedding{Index: int(d.Index), Vector: vector})
	}
	return out, nil
}

var _ funcindex.Embedder = (*FunctionEmbedder)(nil)
