package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/jinford/refmap/internal/core/funcindex"
	"github.com/jinford/refmap/internal/platform/scheduler"
)

// IndexAction は関数ベクトル索引を構築するコマンドのアクション
func IndexAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	dir := firstNonEmpty(cmd.String("dir"), appCtx.Config.Mapping.RefactoredPath)
	if dir == "" {
		return fmt.Errorf("--dir または REFACTORED_CODE_PATH を指定してください")
	}

	index, err := appCtx.Container.FunctionIndex(ctx)
	if err != nil {
		return err
	}

	build := func(ctx context.Context) error {
		slog.Info("関数索引の構築を開始", "dir", dir)
		stats, err := index.Build(ctx, dir)
		if err != nil {
			slog.Error("関数索引の構築に失敗しました", "error", err)
			return err
		}
		renderBuildStats(output(cmd), stats)
		slog.Info("関数索引の構築が完了しました",
			"files", stats.Files,
			"functions", stats.Functions,
			"duplicates", stats.Duplicates,
			"indexed", stats.Indexed,
		)
		return nil
	}

	// スケジュール指定時は中断されるまで定期的に作り直す
	if schedule := cmd.String("schedule"); schedule != "" {
		return scheduler.NewJob("index", schedule, build, appCtx.Logger()).Run(ctx)
	}
	return build(ctx)
}

// renderBuildStats は索引構築の集計を表形式で出力する
func renderBuildStats(w io.Writer, stats funcindex.BuildStats) {
	table := tablewriter.NewWriter(w)
	table.Header("メトリクス", "値")
	table.Append("ファイル数", fmt.Sprintf("%d", stats.Files))
	table.Append("抽出した関数数", fmt.Sprintf("%d", stats.Functions))
	table.Append("重複として除外", fmt.Sprintf("%d", stats.Duplicates))
	table.Append("登録した関数数", fmt.Sprintf("%d", stats.Indexed))
	table.Render()
}

// SimilarAction は関数索引から類似関数を検索するコマンドのアクション
func SimilarAction(ctx context.Context, cmd *cli.Command) error {
	topK := cmd.Int("top")
	envFile := cmd.String("env")
	query := queryArg(cmd)
	if query == "" {
		return fmt.Errorf("検索する関数本体またはキーワードを指定してください")
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	index, err := appCtx.Container.FunctionIndex(ctx)
	if err != nil {
		return err
	}

	slog.Info("類似関数の検索を開始", "topK", topK)
	results, err := index.Search(ctx, query, topK)
	if err != nil {
		slog.Error("類似関数の検索に失敗しました", "error", err)
		return err
	}

	fmt.Fprintln(output(cmd), funcindex.FormatResults(results))
	slog.Info("類似関数の検索が完了しました", "results", len(results))
	return nil
}
