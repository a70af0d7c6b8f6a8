package research

import (
	"context"

	"github.com/google/uuid"
)

const (
	// SearchHits はローカル検索1回あたりの最大ヒット数
	SearchHits = 10

	// ContentTokens は1件の検索結果に許すトークン数
	ContentTokens = 25000

	// DefaultLearnings は ProcessResults が求める学びの最大数
	DefaultLearnings = 3

	// DefaultFeedbackQuestions は Feedback が返す質問の最大数
	DefaultFeedbackQuestions = 3

	// Temperature は構造化応答を求める際の温度
	Temperature = 0.7

	sourcePrefix = "Local search for: "
)

// Query は生成された調査クエリ
type Query struct {
	Query        string `json:"query"`
	ResearchGoal string `json:"researchGoal"`
}

// Processed は検索結果から抽出した学びと追加の問い
type Processed struct {
	Learnings         []string `json:"learnings"`
	FollowUpQuestions []string `json:"followUpQuestions"`
}

// Result は調査全体の成果
type Result struct {
	RunID     uuid.UUID
	Learnings []string
	Sources   []string
}

// Progress は調査の進行状況
type Progress struct {
	CurrentDepth     int
	TotalDepth       int
	CurrentBreadth   int
	TotalBreadth     int
	CurrentQuery     string
	TotalQueries     int
	CompletedQueries int
}

// ProgressFunc は進行状況の通知先
type ProgressFunc func(Progress)

// Searcher はクエリ緩和付きのテキスト検索
type Searcher interface {
	Relax(ctx context.Context, query, dir string, maxHits int) string
}

// Trimmer はテキストをトークン数で切り詰める
type Trimmer interface {
	Trim(text string, maxTokens int) string
}
