package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat("Markdown")
	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, f)

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
}

func TestRepo_Link(t *testing.T) {
	r := Repo{WebURL: "https://github.com/espressif/esp-protocols/", SHA: "abc123", Prefix: "components/mdns"}
	assert.Equal(t,
		"https://github.com/espressif/esp-protocols/blob/abc123/components/mdns/mdns.c#L42",
		r.Link("mdns.c", 42))

	assert.Equal(t, "https://h/x/blob/main/a/b.c#L1", Repo{WebURL: "https://h/x"}.Link("a/b.c", 1))
	assert.Empty(t, r.Link("mdns.c", 0))
	assert.Empty(t, Repo{}.Link("mdns.c", 3))
}

func TestSummary(t *testing.T) {
	mappings := []Mapping{
		{Original: "mdns_init", Refactored: "mdns_init"},
		{Original: "_mdns_send", Refactored: "mdns_send_packet", Concern: "missing NULL check"},
		{Original: "old", Refactored: Unresolved},
	}
	got := Summary(mappings, "refactoring.csv")
	assert.Equal(t, "=== SUMMARY OF REFACTORING MAPPINGS ===\n"+
		"mdns_init → mdns_init\n"+
		"_mdns_send → mdns_send_packet (Concern: missing NULL check)\n"+
		"old → ???\n"+
		"\nTotal mappings found: 3\n"+
		"Mappings saved to refactoring.csv\n", got)

	assert.Contains(t, Summary(nil, "x"), "No refactoring mappings were found.")
}

func TestCount(t *testing.T) {
	c := Count([]Mapping{
		{Refactored: "a"}, {Refactored: ""}, {Refactored: Unresolved}, {Refactored: Failed}, {Refactored: Failed},
	})
	assert.Equal(t, Counts{Mapped: 2, Unresolved: 1, Failed: 2}, c)
	assert.False(t, Mapping{Refactored: Failed}.Resolved())
	assert.True(t, Mapping{Refactored: ""}.Resolved())
}
