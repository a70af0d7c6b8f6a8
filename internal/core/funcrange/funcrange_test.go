package funcrange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `#include <stdio.h>

static int add(int a, int b)
{
    return a + b;
}

void mdns_init(void)
{
    if (ready) {
        start();
    }
}
`

func TestEndLine(t *testing.T) {
	lines := SplitLines(sample)

	assert.Equal(t, 6, EndLine(lines, 3))
	assert.Equal(t, 13, EndLine(lines, 8))
}

func TestEndLine_Unbalanced(t *testing.T) {
	lines := SplitLines("int broken(void)\n{\n    return 0;\n")
	assert.Equal(t, 1, EndLine(lines, 1))
}

func TestEndLine_OneLinerExtendsPastStart(t *testing.T) {
	// 開始行の直後では終了と判定しない
	lines := SplitLines("int one(void) { return 1; }\nint x;\nint y;\nint z;\n")
	assert.Equal(t, 3, EndLine(lines, 1))
}

func TestBuild(t *testing.T) {
	funcs := Build("a.c", sample, []Start{{Name: "mdns_init", Line: 8}, {Name: "add", Line: 3}})

	require.Len(t, funcs, 2)
	assert.Equal(t, "add", funcs[0].Name)
	assert.Equal(t, 3, funcs[0].StartLine)
	assert.Equal(t, 6, funcs[0].EndLine)
	assert.Equal(t, "static int add(int a, int b)\n{\n    return a + b;\n}\n", funcs[0].Content)
	assert.Equal(t, "a.c", funcs[0].File)

	assert.Equal(t, "mdns_init", funcs[1].Name)
	assert.Equal(t, 13, funcs[1].EndLine)
}

func TestBuild_DuplicateNameKeepsLast(t *testing.T) {
	content := "int f(void)\n{\n}\n\nint f(void)\n{\n  return 2;\n}\n"
	funcs := Build("dup.c", content, []Start{{Name: "f", Line: 1}, {Name: "f", Line: 5}})

	require.Len(t, funcs, 1)
	assert.Equal(t, 5, funcs[0].StartLine)
	assert.Contains(t, funcs[0].Content, "return 2;")
}

func TestBuild_SkipsOutOfRange(t *testing.T) {
	funcs := Build("a.c", "int x;\n", []Start{{Name: "ghost", Line: 42}})
	assert.Empty(t, funcs)
}
