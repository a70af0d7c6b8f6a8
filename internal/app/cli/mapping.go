package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/jinford/refmap/internal/core/report"
	"github.com/jinford/refmap/internal/core/review"
)

// MapAction は元コードとリファクタリング後コードの関数対応表を生成するコマンドのアクション
func MapAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	m := &appCtx.Config.Mapping
	m.OriginalPath = firstNonEmpty(cmd.String("original"), m.OriginalPath)
	m.RefactoredPath = firstNonEmpty(cmd.String("refactored"), m.RefactoredPath)
	if m.OriginalPath == "" || m.RefactoredPath == "" {
		return fmt.Errorf("元コードとリファクタリング後コードのパスを指定してください")
	}

	format, err := report.ParseFormat(firstNonEmpty(cmd.String("format"), m.OutputFormat))
	if err != nil {
		return err
	}

	// 索引が無ければリファクタリング後コードから作る
	index, err := appCtx.Container.FunctionIndex(ctx)
	if err != nil {
		return err
	}
	ready, err := index.Ready(ctx)
	if err != nil {
		return err
	}
	if !ready {
		slog.Info("関数索引が無いため構築します", "dir", m.RefactoredPath)
		stats, err := index.Build(ctx, m.RefactoredPath)
		if err != nil {
			return fmt.Errorf("関数索引の構築に失敗: %w", err)
		}
		slog.Info("関数索引を構築しました", "indexed", stats.Indexed)
	}

	writer := appCtx.Container.ReportWriter(format, cmd.String("out"))
	mapper, err := appCtx.Container.Mapper(ctx, review.Config{
		OriginalRoot:   m.OriginalPath,
		RefactoredRoot: m.RefactoredPath,
		MaxFollowUps:   cmd.Int("follow-ups"),
		Only:           cmd.String("only"),
	}, writer)
	if err != nil {
		return err
	}

	slog.Info("関数対応表の生成を開始",
		"original", m.OriginalPath,
		"refactored", m.RefactoredPath,
		"format", format,
		"out", writer.Path(),
	)

	mappings, err := mapper.Run(ctx)
	if err != nil {
		slog.Error("関数対応表の生成に失敗しました", "error", err)
		return err
	}

	fmt.Fprint(output(cmd), report.Summary(mappings, writer.Path()))

	counts := report.Count(mappings)
	slog.Info("関数対応表の生成が完了しました",
		"total", len(mappings),
		"mapped", counts.Mapped,
		"unresolved", counts.Unresolved,
		"failed", counts.Failed,
	)
	return nil
}
