package ctags

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/jinford/refmap/internal/core/funcrange"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutput(t *testing.T) {
	out := `mdns_init        function     12 mdns.c           esp_err_t mdns_init(void)
MDNS_PORT        macro         3 mdns.c           #define MDNS_PORT 5353
_mdns_free       function     40 mdns.c           static void _mdns_free(void)
mdns_server_t    typedef       8 mdns.c           typedef struct mdns_server_s mdns_server_t;
`

	starts := ParseOutput(out)

	assert.Equal(t, []funcrange.Start{
		{Name: "mdns_init", Line: 12},
		{Name: "_mdns_free", Line: 40},
	}, starts)
}

func TestParseOutput_SameLineKeepsLast(t *testing.T) {
	out := "a  function  5 x.c  int a(void)\nb  function  5 x.c  int b(void)\n"

	assert.Equal(t, []funcrange.Start{{Name: "b", Line: 5}}, ParseOutput(out))
}

func TestExtractor_Extract(t *testing.T) {
	if _, err := exec.LookPath(DefaultPath); err != nil {
		t.Skip("ctags not installed")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "a.c")
	require.NoError(t, os.WriteFile(path, []byte("int add(int a, int b)\n{\n    return a + b;\n}\n"), 0o644))

	funcs, err := NewExtractor().Extract(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, funcs, 1)
	assert.Equal(t, "add", funcs[0].Name)
	assert.Equal(t, 1, funcs[0].StartLine)
	assert.Equal(t, 4, funcs[0].EndLine)
}

func TestExtractor_MissingBinary(t *testing.T) {
	e := NewExtractor(WithPath(filepath.Join(t.TempDir(), "no-ctags")))

	_, err := e.Extract(context.Background(), "a.c")
	assert.Error(t, err)
}
