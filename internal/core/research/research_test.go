package research

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/refmap/internal/core/llm"
	"github.com/jinford/refmap/internal/core/textsearch"
)

// promptClient はプロンプトの書き出しに応じて応答を返す
type promptClient struct {
	mu       sync.Mutex
	replies  map[string]string
	fail     map[string]error
	requests []llm.Request
}

func (c *promptClient) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	for prefix, err := range c.fail {
		if strings.Contains(req.Prompt, prefix) {
			return llm.Response{}, err
		}
	}
	for prefix, reply := range c.replies {
		if strings.HasPrefix(req.Prompt, prefix) {
			return llm.Response{Content: reply}, nil
		}
	}
	return llm.Response{}, errors.New("unexpected prompt")
}

type stubSearcher struct {
	result  string
	queries []string
}

func (s *stubSearcher) Relax(_ context.Context, query, _ string, maxHits int) string {
	s.queries = append(s.queries, query)
	return s.result
}

type charTrimmer struct{}

func (charTrimmer) Trim(text string, n int) string {
	if len(text) > n {
		return text[:n]
	}
	return text
}

const (
	queriesPrefix   = "Given the following prompt from the user, generate"
	learningsPrefix = "Given the following contents"
	reportPrefix    = "Given the following prompt from the user, write"
	feedbackPrefix  = "Given the following query from the user"
)

func fixedClock() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}

func newResearcher(client llm.Client, searcher Searcher, opts ...Option) *Researcher {
	opts = append([]Option{WithClock(fixedClock)}, opts...)
	return NewResearcher(client, searcher, charTrimmer{}, "/src", opts...)
}

func TestGenerateQueries_TruncatesAndValidates(t *testing.T) {
	client := &promptClient{replies: map[string]string{
		queriesPrefix: `{"queries":[{"query":"a","researchGoal":"ga"},{"query":"b","researchGoal":"gb"},{"query":"c","researchGoal":"gc"}]}`,
	}}
	r := newResearcher(client, &stubSearcher{})

	queries, err := r.GenerateQueries(context.Background(), "mdns probing", 2, []string{"learned"})
	require.NoError(t, err)
	assert.Equal(t, []Query{{Query: "a", ResearchGoal: "ga"}, {Query: "b", ResearchGoal: "gb"}}, queries)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.True(t, req.JSON)
	assert.Equal(t, Temperature, req.Temperature)
	assert.Contains(t, req.System, "Today is 2024-05-01T12:00:00Z")
	assert.Contains(t, req.Prompt, "<prompt>mdns probing</prompt>")
	assert.Contains(t, req.Prompt, "Return a maximum of 2 queries")
	assert.Contains(t, req.Prompt, "use them to generate more specific queries: learned")
	assert.Contains(t, req.Prompt, `"researchGoal"`)
}

func TestGenerateQueries_RejectsReplyOutsideSchema(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{name: "not json", reply: "sure, here you go"},
		{name: "missing field", reply: `{"items":[]}`},
		{name: "wrong type", reply: `{"queries":[{"query":1,"researchGoal":"g"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &promptClient{replies: map[string]string{queriesPrefix: tt.reply}}
			_, err := newResearcher(client, &stubSearcher{}).GenerateQueries(context.Background(), "q", 3, nil)
			assert.ErrorIs(t, err, ErrInvalidReply)
		})
	}
}

func TestProcessResults_TrimsAndWrapsContents(t *testing.T) {
	client := &promptClient{replies: map[string]string{
		learningsPrefix: `{"learnings":["l1"],"followUpQuestions":["f1","f2"]}`,
	}}
	r := newResearcher(client, &stubSearcher{})

	long := strings.Repeat("x", ContentTokens+100)
	got, err := r.ProcessResults(context.Background(), "q", []string{"first", "", long}, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"l1"}, got.Learnings)
	assert.Equal(t, []string{"f1", "f2"}, got.FollowUpQuestions)

	prompt := client.requests[0].Prompt
	assert.Contains(t, prompt, "<content>\nfirst\n</content>\n<content>\n")
	assert.NotContains(t, prompt, strings.Repeat("x", ContentTokens+1))
	assert.Equal(t, 2, strings.Count(prompt, "<content>"))
}

func TestSearchLocal(t *testing.T) {
	t.Run("no matches", func(t *testing.T) {
		r := newResearcher(&promptClient{}, &stubSearcher{result: textsearch.NoMatches})
		assert.Equal(t, []string{"No matches found for query: mdns"}, r.SearchLocal(context.Background(), "mdns"))
	})

	t.Run("splits every block kind", func(t *testing.T) {
		blocks := []string{
			"Found match in: a.c\n   1 | mdns\n",
			"Found inline function in: a.h\n   4 | static inline int\n   5 | mdns(void)\n",
			"Error reading b.c: permission denied",
			"Found match in: c.c\n   2 | mdns\n",
		}
		s := &stubSearcher{result: strings.Join(blocks, "\n")}
		r := newResearcher(&promptClient{}, s)

		got := r.SearchLocal(context.Background(), "mdns")
		assert.Equal(t, blocks, got)
		assert.Equal(t, []string{"mdns"}, s.queries)
	})
}

func TestResearch_RecursesAndCombines(t *testing.T) {
	client := &promptClient{replies: map[string]string{
		queriesPrefix:   `{"queries":[{"query":"q1","researchGoal":"g1"},{"query":"q2","researchGoal":"g2"}]}`,
		learningsPrefix: `{"learnings":["shared","b"],"followUpQuestions":["next"]}`,
	}}
	s := &stubSearcher{result: "Found match in: a.c\n   1 | x\n"}

	var updates []Progress
	r := newResearcher(client, s, WithProgress(func(p Progress) { updates = append(updates, p) }))

	res, err := r.Research(context.Background(), "topic", 2, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "shared"}, res.Learnings)
	assert.Equal(t, []string{"Local search for: q1", "Local search for: q2"}, res.Sources)
	assert.NotEqual(t, uuid.Nil, res.RunID)

	// 深さ2: 上位クエリ2件それぞれが breadth 1 で1段掘り下げる
	var nested []string
	for _, req := range client.requests {
		if strings.HasPrefix(req.Prompt, queriesPrefix) && strings.Contains(req.Prompt, "Previous research goal") {
			nested = append(nested, req.Prompt)
		}
	}
	require.Len(t, nested, 2)
	assert.Contains(t, nested[0], "<prompt>Previous research goal: g1\nFollow-up research directions: next</prompt>")
	assert.Contains(t, nested[0], "Return a maximum of 1 queries")

	require.NotEmpty(t, updates)
	last := updates[len(updates)-1]
	assert.Equal(t, 2, last.TotalDepth)
	assert.Equal(t, 2, last.TotalBreadth)
	assert.Equal(t, 0, last.CurrentDepth)
	assert.Equal(t, 4, last.CompletedQueries)
}

func TestResearch_BranchFailureIsNotFatal(t *testing.T) {
	client := &promptClient{
		replies: map[string]string{
			queriesPrefix:   `{"queries":[{"query":"good","researchGoal":"g"},{"query":"bad","researchGoal":"g"}]}`,
			learningsPrefix: `{"learnings":["ok"],"followUpQuestions":[]}`,
		},
		fail: map[string]error{"<query>bad</query>": errors.New("boom")},
	}
	r := newResearcher(client, &stubSearcher{result: textsearch.NoMatches})

	res, err := r.Research(context.Background(), "topic", 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, res.Learnings)
	assert.Equal(t, []string{"Local search for: good"}, res.Sources)
}

func TestResearch_TopLevelQueryFailure(t *testing.T) {
	client := &promptClient{replies: map[string]string{queriesPrefix: "nope"}}
	_, err := newResearcher(client, &stubSearcher{}).Research(context.Background(), "topic", 2, 1)
	assert.ErrorIs(t, err, ErrInvalidReply)
}

func TestWriteReport_AppendsSources(t *testing.T) {
	client := &promptClient{replies: map[string]string{
		reportPrefix: `{"reportMarkdown":"# Report"}`,
	}}
	r := newResearcher(client, &stubSearcher{})

	got, err := r.WriteReport(context.Background(), "topic", []string{"l1", "l2"}, []string{"s1", "s2"})
	require.NoError(t, err)
	assert.Equal(t, "# Report\n\n## Sources\n\n- s1\n- s2", got)
	assert.Contains(t, client.requests[0].Prompt, "<learning>\nl1\n</learning>\n<learning>\nl2\n</learning>")
}

func TestFeedback(t *testing.T) {
	client := &promptClient{replies: map[string]string{
		feedbackPrefix: `{"questions":["which stack?","which version?","why?"]}`,
	}}
	got, err := newResearcher(client, &stubSearcher{}).Feedback(context.Background(), "mdns", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"which stack?", "which version?"}, got)
	assert.Contains(t, client.requests[0].Prompt, "<query>mdns</query>")
}

func TestSummarize(t *testing.T) {
	client := &promptClient{replies: map[string]string{"Summarize the following text:": "summary"}}
	s := &stubSearcher{result: "Found match in: a.c\n   1 | announce\n"}
	r := newResearcher(client, s)

	got, err := r.Summarize(context.Background(), "announce timer")
	require.NoError(t, err)
	assert.Equal(t, "summary", got)

	req := client.requests[0]
	assert.False(t, req.JSON)
	assert.Equal(t, "Summarize the following text:\n\nFound match in: a.c\n   1 | announce\n", req.Prompt)
	assert.Equal(t, "\nYou are an experienced SW architect, that gives a summary of the partial code search\ngiven this initial query:\nannounce timer\n", req.System)
	assert.Equal(t, []string{"announce timer"}, s.queries)
}

func TestSummarize_Error(t *testing.T) {
	client := &promptClient{fail: map[string]error{"Summarize": errors.New("down")}}
	_, err := newResearcher(client, &stubSearcher{result: textsearch.NoMatches}).Summarize(context.Background(), "q")
	assert.ErrorContains(t, err, "down")
}
