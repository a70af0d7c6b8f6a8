package doxygen

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Unknown は位置やプロトタイプが不明な場合の値
const Unknown = "Unknown"

// Function は Doxygen XML から得た関数情報
type Function struct {
	Name      string
	File      string
	Line      int // 不明な場合は 0
	Prototype string
	Doc       string
}

type index struct {
	Compounds []struct {
		RefID string `xml:"refid,attr"`
		Kind  string `xml:"kind,attr"`
	} `xml:"compound"`
}

type compoundFile struct {
	Members []memberDef `xml:"compounddef>sectiondef>memberdef"`
}

type memberDef struct {
	Kind       string    `xml:"kind,attr"`
	Name       string    `xml:"name"`
	Definition *string   `xml:"definition"`
	Location   *location `xml:"location"`
	Brief      *textNode `xml:"briefdescription"`
}

type location struct {
	File string `xml:"file,attr"`
	Line string `xml:"line,attr"`
}

// textNode は子要素を含む全テキストを連結して保持する
type textNode struct {
	Text string
}

func (n *textNode) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var sb strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			sb.Write(t)
		}
	}
	n.Text = strings.TrimSpace(sb.String())
	return nil
}

// Parser は Doxygen の XML 出力を読む
type Parser struct {
	logger *slog.Logger
}

// NewParser は新しい Parser を返す
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// Parse は xmlDir/index.xml から file と namespace の compound を辿り、関数名をキーにした一覧を返す。
// 同名の関数は後から読んだものが残る。
func (p *Parser) Parse(xmlDir string) (map[string]Function, error) {
	var idx index
	if err := decodeFile(filepath.Join(xmlDir, "index.xml"), &idx); err != nil {
		return nil, fmt.Errorf("failed to load doxygen index: %w", err)
	}

	functions := make(map[string]Function)
	for _, c := range idx.Compounds {
		if c.Kind != "file" && c.Kind != "namespace" {
			continue
		}

		path := filepath.Join(xmlDir, c.RefID+".xml")
		var cf compoundFile
		if err := decodeFile(path, &cf); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				p.logger.Warn("doxygen compound file not found", "path", path)
				continue
			}
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}

		for _, m := range cf.Members {
			if m.Kind != "function" {
				continue
			}
			functions[m.Name] = m.toFunction()
		}
	}

	p.logger.Debug("doxygen functions parsed", "count", len(functions))
	return functions, nil
}

func (m memberDef) toFunction() Function {
	fn := Function{Name: m.Name, File: Unknown, Prototype: Unknown}
	if m.Location != nil {
		fn.File = m.Location.File
		fmt.Sscanf(m.Location.Line, "%d", &fn.Line)
	}
	if m.Definition != nil {
		fn.Prototype = *m.Definition
	}
	if m.Brief != nil {
		fn.Doc = m.Brief.Text
	}
	return fn
}

func decodeFile(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return decode(f, v)
}

func decode(r io.Reader, v any) error {
	return xml.NewDecoder(r).Decode(v)
}

// Format は関数情報を表示用に整形する
func (f Function) Format() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Function: %s\n", f.Name)
	if f.Line > 0 {
		fmt.Fprintf(&sb, "File: %s, Line: %d\n", f.File, f.Line)
	} else {
		fmt.Fprintf(&sb, "File: %s, Line: None\n", f.File)
	}
	fmt.Fprintf(&sb, "Prototype: %s\n", f.Prototype)
	if f.Doc != "" {
		fmt.Fprintf(&sb, "Documentation:\n%s\n", f.Doc)
	}
	sb.WriteString(strings.Repeat("-", 50))
	return sb.String()
}
