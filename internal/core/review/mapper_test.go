package review

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/refmap/internal/core/funcindex"
	"github.com/jinford/refmap/internal/core/funcrange"
	"github.com/jinford/refmap/internal/core/llm"
	"github.com/jinford/refmap/internal/core/report"
	"github.com/jinford/refmap/internal/core/textsearch"
)

// scriptedClient は呼び出し順に応答を返す
type scriptedClient struct {
	replies []any // string または error
	prompts []string
}

func (c *scriptedClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	c.prompts = append(c.prompts, req.Prompt)
	if len(c.replies) == 0 {
		return llm.Response{}, errors.New("no more replies")
	}
	next := c.replies[0]
	c.replies = c.replies[1:]
	if err, ok := next.(error); ok {
		return llm.Response{}, err
	}
	return llm.Response{Content: next.(string)}, nil
}

type stubText struct {
	searches []string
	relaxed  []string
}

func (s *stubText) Search(ctx context.Context, query, dir string, maxHits int) *textsearch.ResultSet {
	s.searches = append(s.searches, dir+":"+query)
	return textsearch.NewResultSet(maxHits)
}

func (s *stubText) Relax(ctx context.Context, query, dir string, maxHits int) string {
	s.relaxed = append(s.relaxed, dir+":"+query)
	return "relaxed " + query
}

type stubIndex struct {
	results []funcindex.Result
	err     error
	known   map[string]funcindex.Record
}

func (s *stubIndex) Search(ctx context.Context, query string, k int) ([]funcindex.Result, error) {
	return s.results, s.err
}

func (s *stubIndex) Locate(ctx context.Context, name string, candidates []funcindex.Result) (funcindex.Record, bool) {
	r, ok := s.known[name]
	return r, ok
}

type stubExtractor struct {
	functions map[string][]funcrange.Function
}

func (s *stubExtractor) Extract(ctx context.Context, path string) ([]funcrange.Function, error) {
	fns, ok := s.functions[path]
	if !ok {
		return nil, errors.New("ctags failed")
	}
	return fns, nil
}

type stubLister struct {
	files []funcindex.SourceFile
}

func (s *stubLister) List(ctx context.Context, root string) ([]funcindex.SourceFile, error) {
	return s.files, nil
}

type memoryWriter struct {
	rows []report.Mapping
}

func (w *memoryWriter) Write(m report.Mapping) error {
	w.rows = append(w.rows, m)
	return nil
}

func (w *memoryWriter) Path() string { return "memory" }

var originalFile = funcindex.SourceFile{Path: "/old/mdns.c", RelPath: "mdns.c"}

var mdnsInit = funcrange.Function{Name: "mdns_init", File: "/old/mdns.c", StartLine: 10, EndLine: 20, Content: "void mdns_init(void) {}"}

func newMapper(client llm.Client, text *stubText, index *stubIndex) *Mapper {
	return NewMapper(Config{OriginalRoot: "/old", RefactoredRoot: "/new"}, client, text, index,
		&stubExtractor{}, &stubLister{}, &memoryWriter{})
}

func TestMapFunction_ConfidentFirstReply(t *testing.T) {
	client := &scriptedClient{replies: []any{"<refactored_function>\nmdns_init\nmdns_netif_init\n</refactored_function><concern>c</concern>"}}
	text := &stubText{}
	index := &stubIndex{
		results: []funcindex.Result{{Rank: 1, Similarity: 99, Record: funcindex.Record{Source: "mdns.c", Function: funcrange.Function{Name: "mdns_init"}}}},
		known: map[string]funcindex.Record{
			"mdns_init": {RelPath: "core/mdns.c", Function: funcrange.Function{Name: "mdns_init", StartLine: 42}},
		},
	}

	got := newMapper(client, text, index).MapFunction(context.Background(), originalFile, mdnsInit)

	assert.Equal(t, []report.Mapping{
		{Original: "mdns_init", OriginalFile: "mdns.c", OriginalLine: 10, Refactored: "mdns_init", RefactoredFile: "core/mdns.c", RefactoredLine: 42, Concern: "c"},
		{Original: "mdns_init", OriginalFile: "mdns.c", OriginalLine: 10, Refactored: "mdns_netif_init", Concern: "c"},
	}, got)
	assert.Equal(t, []string{"/old:mdns_init"}, text.searches)
	assert.Empty(t, text.relaxed)
	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "Result 1: [Similarity: 99.00%]")
	assert.Contains(t, client.prompts[0], textsearch.NoMatches)
}

func TestMapFunction_FirstCallError(t *testing.T) {
	client := &scriptedClient{replies: []any{llm.ErrAPIKeyNotSet}}
	got := newMapper(client, &stubText{}, &stubIndex{err: funcindex.ErrNoVectorIndex}).
		MapFunction(context.Background(), originalFile, mdnsInit)

	require.Len(t, got, 1)
	assert.Equal(t, report.Failed, got[0].Refactored)
	assert.Equal(t, 10, got[0].OriginalLine)
}

func TestMapFunction_FollowUpResolves(t *testing.T) {
	client := &scriptedClient{replies: []any{
		"<summary>split?</summary><follow_up>check</follow_up><search_original>mdns_init</search_original><search_refactored>mdns_init_internal</search_refactored>",
		errors.New("rate limited"),
		"<summary>closer</summary><search_refactored>mdns_receiver_init</search_refactored>",
		"<refactored_function>\nmdns_receiver_init\n</refactored_function>",
	}}
	text := &stubText{}

	got := newMapper(client, text, &stubIndex{}).MapFunction(context.Background(), originalFile, mdnsInit)

	require.Len(t, got, 1)
	assert.Equal(t, "mdns_receiver_init", got[0].Refactored)
	require.Len(t, client.prompts, 4)
	assert.Equal(t, []string{
		"/old:mdns_init", "/new:mdns_init_internal",
		"/old:mdns_init", "/new:mdns_init_internal",
		"/old:mdns_init", "/new:mdns_receiver_init",
	}, text.relaxed)

	// 追加の文脈は最初のプロンプトに付け足される
	assert.True(t, len(client.prompts[3]) > len(client.prompts[0]))
	assert.Contains(t, client.prompts[3], client.prompts[0])
	assert.Contains(t, client.prompts[3], "### Summary of previous findings\ncloser\n")
	assert.Contains(t, client.prompts[3], "relaxed mdns_receiver_init")
}

func TestMapFunction_UnresolvedAfterMaxRounds(t *testing.T) {
	follow := "<summary>s</summary><search_original>x</search_original>"
	client := &scriptedClient{replies: []any{follow, follow, follow, follow, "<refactored_function>late</refactored_function>"}}

	got := newMapper(client, &stubText{}, &stubIndex{}).MapFunction(context.Background(), originalFile, mdnsInit)

	require.Len(t, got, 1)
	assert.Equal(t, report.Unresolved, got[0].Refactored)
	assert.Len(t, client.prompts, 1+DefaultMaxFollowUps)
}

func TestMapFunction_ErrorRepliesConsumeRounds(t *testing.T) {
	client := &scriptedClient{replies: []any{
		"<summary>s</summary><search_original>x</search_original>",
		llm.ErrMaxRetriesExceeded,
		llm.ErrMaxRetriesExceeded,
		llm.ErrMaxRetriesExceeded,
		"<refactored_function>late</refactored_function>",
	}}
	text := &stubText{}

	got := newMapper(client, text, &stubIndex{}).MapFunction(context.Background(), originalFile, mdnsInit)

	require.Len(t, got, 1)
	assert.Equal(t, report.Unresolved, got[0].Refactored)
	assert.Len(t, client.prompts, 1+DefaultMaxFollowUps)
	assert.Len(t, text.relaxed, DefaultMaxFollowUps)
}

func TestMapFunction_InconclusiveWithoutSearchTerms(t *testing.T) {
	client := &scriptedClient{replies: []any{"<summary>unsure</summary>"}}

	got := newMapper(client, &stubText{}, &stubIndex{}).MapFunction(context.Background(), originalFile, mdnsInit)

	require.Len(t, got, 1)
	assert.Equal(t, report.Unresolved, got[0].Refactored)
	assert.Len(t, client.prompts, 1)
}

func TestMapFunction_RemovedFunction(t *testing.T) {
	client := &scriptedClient{replies: []any{"<refactored_function>\n</refactored_function>"}}

	got := newMapper(client, &stubText{}, &stubIndex{}).MapFunction(context.Background(), originalFile, mdnsInit)

	require.Len(t, got, 1)
	assert.Empty(t, got[0].Refactored)
	assert.True(t, got[0].Resolved())
}

func TestMapper_Run(t *testing.T) {
	other := funcindex.SourceFile{Path: "/old/broken.c", RelPath: "broken.c"}
	helper := funcrange.Function{Name: "helper", File: "/old/mdns.c", StartLine: 30, EndLine: 31}
	writer := &memoryWriter{}
	client := &scriptedClient{replies: []any{
		"<refactored_function>mdns_init</refactored_function>",
		"<refactored_function>helper2</refactored_function>",
	}}

	m := NewMapper(Config{OriginalRoot: "/old", RefactoredRoot: "/new"}, client, &stubText{}, &stubIndex{},
		&stubExtractor{functions: map[string][]funcrange.Function{"/old/mdns.c": {mdnsInit, helper}}},
		&stubLister{files: []funcindex.SourceFile{other, originalFile}},
		writer)

	got, err := m.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, got, writer.rows)
	assert.Equal(t, "helper2", got[1].Refactored)
}

func TestMapper_RunOnly(t *testing.T) {
	helper := funcrange.Function{Name: "helper", File: "/old/mdns.c", StartLine: 30, EndLine: 31}
	client := &scriptedClient{replies: []any{"<refactored_function>helper2</refactored_function>"}}

	m := NewMapper(Config{OriginalRoot: "/old", RefactoredRoot: "/new", Only: "helper"}, client, &stubText{}, &stubIndex{},
		&stubExtractor{functions: map[string][]funcrange.Function{"/old/mdns.c": {mdnsInit, helper}}},
		&stubLister{files: []funcindex.SourceFile{originalFile}},
		&memoryWriter{})

	got, err := m.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "helper", got[0].Original)
	assert.Len(t, client.prompts, 1)
}
