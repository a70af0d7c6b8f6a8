package lsp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
)

// DefaultPath は clangd の既定コマンド
const DefaultPath = "clangd"

// Options は clangd の起動設定
type Options struct {
	Path               string // clangd 実行ファイル
	CompileCommandsDir string // compile_commands.json のあるディレクトリ
	Args               []string
	Logger             *slog.Logger
}

// Position は0始まりの行と文字位置
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range はテキスト範囲
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location は定義や参照の位置
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// Path は file URI をローカルパスに変換する
func (l Location) Path() string {
	return URIToPath(l.URI)
}

// Client は clangd との LSP セッション
type Client struct {
	conn   *conn
	cmd    *exec.Cmd
	logger *slog.Logger
}

// Start は clangd を子プロセスとして起動し、標準入出力で接続する
func Start(ctx context.Context, opts Options) (*Client, error) {
	path := opts.Path
	if path == "" {
		path = DefaultPath
	}
	args := append([]string{}, opts.Args...)
	if opts.CompileCommandsDir != "" {
		args = append(args, "--compile-commands-dir="+opts.CompileCommandsDir)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout: %w", err)
	}
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", path, err)
	}

	c := NewClient(stdout, stdin, opts.Logger)
	c.cmd = cmd
	return c, nil
}

// NewClient は任意のストリーム上に Client を作成する
func NewClient(r io.Reader, w io.WriteCloser, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{conn: newConn(r, w, logger), logger: logger}
}

// Initialize は initialize リクエストと initialized 通知を送る
func (c *Client) Initialize(ctx context.Context, rootDir string) error {
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return err
	}
	params := map[string]any{
		"processId": os.Getpid(),
		"rootUri":   PathToURI(abs),
		"capabilities": map[string]any{
			"textDocument": map[string]any{
				"definition": map[string]any{"linkSupport": false},
			},
		},
	}
	var result json.RawMessage
	if err := c.conn.call(ctx, "initialize", params, &result); err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	return c.conn.notify("initialized", map[string]any{})
}

// DidOpen はファイルを開いたことを通知する。text が空ならファイルを読む。
func (c *Client) DidOpen(ctx context.Context, path, text string) error {
	if text == "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		text = string(content)
	}
	return c.conn.notify("textDocument/didOpen", map[string]any{
		"textDocument": map[string]any{
			"uri":        PathToURI(path),
			"languageId": "c",
			"version":    1,
			"text":       text,
		},
	})
}

// Definition はシンボルの定義位置を返す
func (c *Client) Definition(ctx context.Context, path string, pos Position) ([]Location, error) {
	var raw json.RawMessage
	if err := c.conn.call(ctx, "textDocument/definition", positionParams(path, pos), &raw); err != nil {
		return nil, fmt.Errorf("definition request failed: %w", err)
	}
	return decodeLocations(raw)
}

// References はシンボルの参照位置を返す
func (c *Client) References(ctx context.Context, path string, pos Position, includeDeclaration bool) ([]Location, error) {
	params := positionParams(path, pos)
	params["context"] = map[string]any{"includeDeclaration": includeDeclaration}

	var raw json.RawMessage
	if err := c.conn.call(ctx, "textDocument/references", params, &raw); err != nil {
		return nil, fmt.Errorf("references request failed: %w", err)
	}
	return decodeLocations(raw)
}

// Close は shutdown と exit を送り、接続とプロセスを終了する
func (c *Client) Close(ctx context.Context) error {
	var errs []error
	if err := c.conn.call(ctx, "shutdown", nil, nil); err != nil && !errors.Is(err, ErrClosed) {
		errs = append(errs, err)
	}
	if err := c.conn.notify("exit", nil); err != nil {
		c.logger.Debug("failed to send exit", "error", err)
	}
	if err := c.conn.closeWrite(); err != nil {
		errs = append(errs, err)
	}

	select {
	case <-c.conn.done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	if c.cmd != nil {
		if err := c.cmd.Wait(); err != nil {
			c.logger.Debug("clangd exited", "error", err)
		}
	}
	return errors.Join(errs...)
}

func positionParams(path string, pos Position) map[string]any {
	return map[string]any{
		"textDocument": map[string]any{"uri": PathToURI(path)},
		"position":     pos,
	}
}

type locationOrLink struct {
	URI                  string `json:"uri"`
	Range                *Range `json:"range"`
	TargetURI            string `json:"targetUri"`
	TargetSelectionRange *Range `json:"targetSelectionRange"`
}

func (l locationOrLink) location() Location {
	if l.TargetURI != "" && l.TargetSelectionRange != nil {
		return Location{URI: l.TargetURI, Range: *l.TargetSelectionRange}
	}
	loc := Location{URI: l.URI}
	if l.Range != nil {
		loc.Range = *l.Range
	}
	return loc
}

// decodeLocations は Location / Location[] / LocationLink[] / null を受け付ける
func decodeLocations(raw json.RawMessage) ([]Location, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var items []locationOrLink
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("failed to decode locations: %w", err)
		}
	} else {
		var one locationOrLink
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, fmt.Errorf("failed to decode location: %w", err)
		}
		items = append(items, one)
	}

	locs := make([]Location, 0, len(items))
	for _, it := range items {
		locs = append(locs, it.location())
	}
	return locs, nil
}

// PathToURI はローカルパスを file URI に変換する
func PathToURI(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

// URIToPath は file URI をローカルパスに変換する。file 以外はそのまま返す。
func URIToPath(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return uri
	}
	return filepath.FromSlash(u.Path)
}
