package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/jinford/refmap/internal/infra/lsp"
)

// LSPDefinitionAction は clangd で定義位置（または参照箇所）を解決するコマンドのアクション。
// 行と桁は1始まりで受け取る。
func LSPDefinitionAction(ctx context.Context, cmd *cli.Command) error {
	file := cmd.String("file")
	line := cmd.Int("line")
	char := cmd.Int("char")
	references := cmd.Bool("references")
	envFile := cmd.String("env")
	if line < 1 || char < 1 {
		return fmt.Errorf("--line と --char は1以上を指定してください")
	}

	path, err := filepath.Abs(file)
	if err != nil {
		return err
	}
	text, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("ファイルの読み込みに失敗: %w", err)
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	root := firstNonEmpty(cmd.String("root"), filepath.Dir(path))
	client, err := appCtx.Container.StartLSP(ctx, root)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("clangd の終了に失敗しました", "error", err)
		}
	}()

	if err := client.DidOpen(ctx, path, string(text)); err != nil {
		return err
	}

	pos := lsp.Position{Line: line - 1, Character: char - 1}
	var locations []lsp.Location
	if references {
		locations, err = client.References(ctx, path, pos, true)
	} else {
		locations, err = client.Definition(ctx, path, pos)
	}
	if err != nil {
		slog.Error("clangd への問い合わせに失敗しました", "error", err)
		return err
	}

	w := output(cmd)
	if len(locations) == 0 {
		fmt.Fprintln(w, "No locations found.")
		return nil
	}
	for _, loc := range locations {
		fmt.Fprintf(w, "%s:%d:%d\n", loc.Path(), loc.Range.Start.Line+1, loc.Range.Start.Character+1)
	}
	return nil
}
