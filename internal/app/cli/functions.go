package cli

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
)

// FunctionsAction はファイル内の関数範囲、またはDoxygen XMLの関数一覧を表示するコマンドのアクション
func FunctionsAction(ctx context.Context, cmd *cli.Command) error {
	file := cmd.String("file")
	doxygenDir := cmd.String("doxygen")
	envFile := cmd.String("env")
	if (file == "") == (doxygenDir == "") {
		return fmt.Errorf("--file と --doxygen のどちらか一方を指定してください")
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	w := output(cmd)

	if doxygenDir != "" {
		functions, err := appCtx.Container.Doxygen().Parse(doxygenDir)
		if err != nil {
			slog.Error("Doxygen XMLの解析に失敗しました", "error", err)
			return err
		}
		for _, name := range slices.Sorted(maps.Keys(functions)) {
			fmt.Fprintln(w, functions[name].Format())
		}
		slog.Info("Doxygen XMLの解析が完了しました", "functions", len(functions))
		return nil
	}

	functions, err := appCtx.Container.Extractor.Extract(ctx, file)
	if err != nil {
		slog.Error("関数の抽出に失敗しました", "file", file, "error", err)
		return err
	}
	table := tablewriter.NewWriter(w)
	table.Header("関数名", "開始行", "終了行")
	for _, fn := range functions {
		table.Append(fn.Name, fmt.Sprintf("%d", fn.StartLine), fmt.Sprintf("%d", fn.EndLine))
	}
	table.Render()
	slog.Info("関数の抽出が完了しました", "file", file, "functions", len(functions))
	return nil
}
