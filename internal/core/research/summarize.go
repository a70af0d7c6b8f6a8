package research

import (
	"context"
	"fmt"

	"github.com/jinford/refmap/internal/core/llm"
)

// SummaryTemperature は要約時の温度
const SummaryTemperature = 1.0

// Summarize は query で緩和検索した結果をLLMに要約させる
func (r *Researcher) Summarize(ctx context.Context, query string) (string, error) {
	text := r.searcher.Relax(ctx, query, r.dir, SearchHits)
	r.logger.Debug("summarizing search results", "query", query, "bytes", len(text))

	resp, err := r.client.Complete(ctx, llm.Request{
		System:      summarizerSystemPrompt(query),
		Prompt:      summarizerPrompt(text),
		Temperature: SummaryTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to summarize: %w", err)
	}
	return resp.Content, nil
}
