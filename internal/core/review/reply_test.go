package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		kind     ReplyKind
		names    []string
		concern  string
		summary  string
		original string
	}{
		{
			name:  "single name",
			text:  "```xml\n<refactored_function>\nmdns_init\n</refactored_function>\n```",
			kind:  ReplyConfident,
			names: []string{"mdns_init"},
		},
		{
			name:    "split with concern",
			text:    "<refactored_function>\n mdns_init_internal \n\nmdns_receiver_init\n</refactored_function>\n<concern>\npcb is not checked\n</concern>",
			kind:    ReplyConfident,
			names:   []string{"mdns_init_internal", "mdns_receiver_init"},
			concern: "pcb is not checked",
		},
		{
			name:  "removed",
			text:  "<refactored_function>\n</refactored_function>",
			kind:  ReplyConfident,
			names: []string{},
		},
		{
			name:     "follow up",
			text:     "<summary>\nmaybe split\n</summary>\n<follow_up>verify</follow_up>\n<search_original>\nmdns_init\n</search_original>",
			kind:     ReplyNeedsFollowUp,
			names:    []string{},
			summary:  "maybe split",
			original: "mdns_init",
		},
		{
			name:    "summary without search terms",
			text:    "<summary>no idea</summary>",
			kind:    ReplyInconclusive,
			names:   []string{},
			summary: "no idea",
		},
		{
			name:     "empty summary",
			text:     "<summary></summary><search_original>x</search_original>",
			kind:     ReplyInconclusive,
			names:    []string{},
			original: "x",
		},
		{
			name:  "free text",
			text:  "I think it is mdns_init.",
			kind:  ReplyInconclusive,
			names: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ParseReply(tt.text)
			assert.Equal(t, tt.kind, r.Kind())
			assert.Equal(t, tt.names, append([]string{}, r.Names()...))
			assert.Equal(t, tt.concern, r.Concern.OrEmpty())
			assert.Equal(t, tt.summary, r.Summary.OrEmpty())
			assert.Equal(t, tt.original, r.SearchOriginal.OrEmpty())
		})
	}
}

func TestParseReply_FirstTagWins(t *testing.T) {
	r := ParseReply("<concern>first</concern> <concern>second</concern>")
	assert.Equal(t, "first", r.Concern.MustGet())
}

func TestReplyKind_String(t *testing.T) {
	assert.Equal(t, "confident", ReplyConfident.String())
	assert.Equal(t, "needs_follow_up", ReplyNeedsFollowUp.String())
	assert.Equal(t, "inconclusive", ReplyInconclusive.String())
}

func TestFollowUp_MergeAndPrompt(t *testing.T) {
	var f FollowUp
	f.Merge(ParseReply("<summary>s1</summary><follow_up>q1</follow_up><search_refactored>new_fn</search_refactored>"))
	assert.True(t, f.CanContinue())

	f.Merge(ParseReply("<summary>s2</summary>"))
	assert.Equal(t, FollowUp{Summary: "s2", Questions: "q1", SearchRefactored: "new_fn"}, f)

	p := FollowUpPrompt("BASE", f, "orig results", "ref results")
	assert.Contains(t, p, "BASE\n## Additional context from previous analysis\n\n### Summary of previous findings\ns2\n")
	assert.Contains(t, p, "### Questions to consider\nq1\n")
	assert.NotContains(t, p, "from original codebase")
	assert.NotContains(t, p, "orig results")
	assert.Contains(t, p, "### Additional search results from refactored codebase for \"new_fn\"\nref results\n")
	assert.Contains(t, p, "only use the <refactored_function> tag if you have 95% confidence")
}

func TestInitialPrompt(t *testing.T) {
	p := InitialPrompt("mdns_init", "void mdns_init(void) {}", "REFS", "CANDIDATES")
	assert.Contains(t, p, "refactoring of the function mdns_init.")
	assert.Contains(t, p, "```c\nvoid mdns_init(void) {}\n```")
	assert.Contains(t, p, "### Function references in the original codebase\nREFS\n")
	assert.Contains(t, p, "### Refactored code\n\nCANDIDATES\n")
	assert.Contains(t, p, "If you have 95% confidence")
	assert.NotContains(t, p, "%!")
}
