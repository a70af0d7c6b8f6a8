package cli

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

// setupEnv は .env を使わずに環境変数だけで設定する
func setupEnv(t *testing.T) string {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := t.TempDir()
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("VECTOR_STORE", "sqlite")
	t.Setenv("VECTOR_DB_PATH", filepath.Join(dir, "functions.sqlite"))
	t.Setenv("FUNCTION_EXTRACTOR", "treesitter")
	t.Setenv("API_KEY", "")
	return filepath.Join(dir, "missing.env")
}

func run(t *testing.T, action cli.ActionFunc, flags []cli.Flag, args ...string) (string, error) {
	t.Helper()
	envFile := setupEnv(t)

	var buf bytes.Buffer
	app := &cli.Command{
		Name:   "refmap",
		Writer: &buf,
		Commands: []*cli.Command{{
			Name:   "sub",
			Flags:  append(flags, &cli.StringFlag{Name: "env", Value: envFile}),
			Action: action,
		}},
	}
	err := app.Run(context.Background(), append([]string{"refmap", "sub"}, args...))
	return buf.String(), err
}

// フラグは解析状態を持つため実行ごとに作り直す
func searchFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "dir"},
		&cli.IntFlag{Name: "max", Value: 10},
		&cli.BoolFlag{Name: "exact"},
	}
}

func writeSource(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	src := "#include <stdio.h>\n\nstatic void mdns_announce(void)\n{\n    puts(\"announce\");\n}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mdns.c"), []byte(src), 0o644))
	return dir
}

func TestSearchAction(t *testing.T) {
	dir := writeSource(t)

	out, err := run(t, SearchAction, searchFlags(), "--dir", dir, "--exact", "mdns_announce")
	require.NoError(t, err)
	assert.Contains(t, out, "Found match in: "+filepath.Join(dir, "mdns.c"))
	assert.Contains(t, out, "mdns_announce")

	out, err = run(t, SearchAction, searchFlags(), "--dir", dir, "mdns_announce", "nothing", "here")
	require.NoError(t, err)
	assert.Contains(t, out, "mdns_announce")

	out, err = run(t, SearchAction, searchFlags(), "--dir", dir, "--exact", "zeroconf")
	require.NoError(t, err)
	assert.Equal(t, "No matches found.\n", out)

	out, err = run(t, SearchAction, searchFlags(), "--dir", dir)
	require.NoError(t, err)
	assert.Equal(t, "Empty query provided.\n", out)
}

func functionsFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "file"},
		&cli.StringFlag{Name: "doxygen"},
	}
}

func TestFunctionsAction_File(t *testing.T) {
	dir := writeSource(t)

	out, err := run(t, FunctionsAction, functionsFlags(), "--file", filepath.Join(dir, "mdns.c"))
	require.NoError(t, err)
	assert.Regexp(t, `mdns_announce\s*[│|]\s*3\s*[│|]\s*6`, out)
}

func TestFunctionsAction_Doxygen(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.xml"), []byte(`<doxygenindex>
  <compound refid="a_8c" kind="file"><name>a.c</name></compound>
</doxygenindex>`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_8c.xml"), []byte(`<doxygen>
  <compounddef id="a_8c" kind="file">
    <sectiondef kind="func">
      <memberdef kind="function"><definition>int b_fn</definition><name>b_fn</name><location file="a.c" line="9"/></memberdef>
      <memberdef kind="function"><definition>int a_fn</definition><name>a_fn</name><location file="a.c" line="3"/></memberdef>
    </sectiondef>
  </compounddef>
</doxygen>`), 0o644))

	out, err := run(t, FunctionsAction, functionsFlags(), "--doxygen", dir)
	require.NoError(t, err)
	assert.Less(t, bytes.Index([]byte(out), []byte("Function: a_fn")), bytes.Index([]byte(out), []byte("Function: b_fn")))
	assert.Contains(t, out, "File: a.c, Line: 3\n")
}

func TestFunctionsAction_RequiresExactlyOneSource(t *testing.T) {
	_, err := run(t, FunctionsAction, functionsFlags())
	assert.Error(t, err)

	_, err = run(t, FunctionsAction, functionsFlags(), "--file", "a.c", "--doxygen", "xml")
	assert.Error(t, err)
}

func TestSummarizeAction_RequiresAPIKey(t *testing.T) {
	_, err := run(t, SummarizeAction, []cli.Flag{&cli.StringFlag{Name: "dir"}}, "announce")
	assert.ErrorContains(t, err, "No API key provided")
}

func TestResearchAction_ValidatesArguments(t *testing.T) {
	flags := func() []cli.Flag {
		return []cli.Flag{
			&cli.StringFlag{Name: "dir"},
			&cli.IntFlag{Name: "breadth", Value: 4},
			&cli.IntFlag{Name: "depth", Value: 2},
			&cli.StringFlag{Name: "out"},
			&cli.IntFlag{Name: "clarify"},
		}
	}

	_, err := run(t, ResearchAction, flags())
	assert.Error(t, err)

	_, err = run(t, ResearchAction, flags(), "--depth", "0", "topic")
	assert.ErrorContains(t, err, "--depth")
}

func TestSimilarAction_NoIndex(t *testing.T) {
	_, err := run(t, SimilarAction, []cli.Flag{&cli.IntFlag{Name: "top", Value: 5}}, "mdns_init")
	assert.ErrorContains(t, err, "no vector index loaded")
}
