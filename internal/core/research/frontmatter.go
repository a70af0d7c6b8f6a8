package research

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Metadata はレポートファイル先頭に付けるメタデータ
type Metadata struct {
	RunID     string    `yaml:"run_id"`
	Query     string    `yaml:"query"`
	Breadth   int       `yaml:"breadth"`
	Depth     int       `yaml:"depth"`
	Learnings int       `yaml:"learnings"`
	Sources   int       `yaml:"sources"`
	Generated time.Time `yaml:"generated"`
}

// NewMetadata は調査結果からメタデータを作る
func NewMetadata(query string, breadth, depth int, res Result, now time.Time) Metadata {
	return Metadata{
		RunID:     res.RunID.String(),
		Query:     query,
		Breadth:   breadth,
		Depth:     depth,
		Learnings: len(res.Learnings),
		Sources:   len(res.Sources),
		Generated: now.UTC(),
	}
}

// WithFrontMatter は report の先頭にYAML形式のメタデータを付ける
func WithFrontMatter(report string, meta Metadata) (string, error) {
	out, err := yaml.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to marshal front matter: %w", err)
	}
	return "---\n" + string(out) + "---\n\n" + report, nil
}

// ClarifiedQuery は元の問い合わせに確認質問とその回答を付け加える
func ClarifiedQuery(query string, questions, answers []string) string {
	s := "Initial Query: " + query + "\nFollow-up Questions and Answers:\n"
	for i, q := range questions {
		var a string
		if i < len(answers) {
			a = answers[i]
		}
		s += "Q: " + q + "\nA: " + a + "\n"
	}
	return s
}
