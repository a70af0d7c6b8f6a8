package treesitter

import (
	"context"
	"fmt"
	"os"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"

	"github.com/jinford/refmap/internal/core/funcrange"
)

// Extractor は C/C++ 文法の構文木から関数定義を抽出する。
// パーサはスレッドセーフではないため、呼び出しごとに生成する。
type Extractor struct {
	language *tree_sitter.Language
}

// NewExtractor は新しい Extractor を作成する
func NewExtractor() *Extractor {
	return &Extractor{
		language: tree_sitter.NewLanguage(tree_sitter_cpp.Language()),
	}
}

// Extract は path の関数定義を返す
func (e *Extractor) Extract(ctx context.Context, path string) ([]funcrange.Function, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return e.ExtractSource(ctx, path, src)
}

// ExtractSource はソースコードから関数定義を返す
func (e *Extractor) ExtractSource(ctx context.Context, path string, src []byte) ([]funcrange.Function, error) {
	parser := tree_sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(e.language); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}

	tree := parser.Parse(src, nil)
	if tree == nil {
		return nil, fmt.Errorf("failed to parse %s", path)
	}
	defer tree.Close()

	lines := funcrange.SplitLines(string(src))
	var funcs []funcrange.Function

	var walk func(node *tree_sitter.Node)
	walk = func(node *tree_sitter.Node) {
		if ctx.Err() != nil {
			return
		}
		if node.Kind() == "function_definition" {
			if name := functionName(node, src); name != "" {
				start := int(node.StartPosition().Row) + 1
				end := min(int(node.EndPosition().Row)+1, len(lines))
				funcs = append(funcs, funcrange.Function{
					Name:      name,
					File:      path,
					StartLine: start,
					EndLine:   end,
					Content:   strings.Join(lines[start-1:end], ""),
				})
			}
			// C では関数定義は入れ子にならない
			return
		}
		for i := uint(0); i < node.ChildCount(); i++ {
			if child := node.Child(i); child != nil {
				walk(child)
			}
		}
	}
	walk(tree.RootNode())

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return funcs, nil
}

// functionName は declarator を辿って関数名を取り出す
func functionName(node *tree_sitter.Node, src []byte) string {
	decl := node.ChildByFieldName("declarator")
	for decl != nil {
		switch decl.Kind() {
		case "identifier", "field_identifier", "qualified_identifier", "destructor_name", "operator_name":
			return string(src[decl.StartByte():decl.EndByte()])
		}
		decl = decl.ChildByFieldName("declarator")
	}
	return ""
}

// インターフェース実装の確認
var _ funcrange.Extractor = (*Extractor)(nil)
