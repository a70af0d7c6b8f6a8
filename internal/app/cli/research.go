package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/urfave/cli/v3"

	"github.com/jinford/refmap/internal/core/research"
)

// ResearchAction はローカルのソースツリーを対象に調査レポートを作成するコマンドのアクション
func ResearchAction(ctx context.Context, cmd *cli.Command) error {
	breadth := cmd.Int("breadth")
	depth := cmd.Int("depth")
	outPath := cmd.String("out")
	clarify := cmd.Int("clarify")
	interactive := cmd.Bool("interactive")
	envFile := cmd.String("env")
	query := queryArg(cmd)
	if query == "" {
		return fmt.Errorf("調査内容を指定してください")
	}
	if breadth < 1 || depth < 1 {
		return fmt.Errorf("--breadth と --depth は1以上を指定してください")
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	researcher, err := appCtx.Container.Researcher(cmd.String("dir"), research.WithProgress(func(p research.Progress) {
		slog.Info("調査の進捗",
			"depth", p.CurrentDepth,
			"totalDepth", p.TotalDepth,
			"breadth", p.CurrentBreadth,
			"completedQueries", p.CompletedQueries,
			"totalQueries", p.TotalQueries,
			"currentQuery", p.CurrentQuery,
		)
	}))
	if err != nil {
		return err
	}

	// 調査方針を確認するための質問だけを出力する
	if clarify > 0 {
		questions, err := researcher.Feedback(ctx, query, clarify)
		if err != nil {
			return err
		}
		for _, q := range questions {
			fmt.Fprintln(output(cmd), q)
		}
		return nil
	}

	// 確認質問に対話的に答えてから調査する
	if interactive {
		query, err = clarifyInteractively(ctx, researcher, query)
		if err != nil {
			return err
		}
	}

	slog.Info("調査を開始", "query", query, "breadth", breadth, "depth", depth)
	result, err := researcher.Research(ctx, query, breadth, depth)
	if err != nil {
		slog.Error("調査に失敗しました", "error", err)
		return err
	}
	slog.Info("調査が完了しました",
		"runID", result.RunID,
		"learnings", len(result.Learnings),
		"sources", len(result.Sources),
	)

	reportText, err := researcher.WriteReport(ctx, query, result.Learnings, result.Sources)
	if err != nil {
		return err
	}

	if outPath == "" {
		fmt.Fprintln(output(cmd), reportText)
		return nil
	}
	reportText, err = research.WithFrontMatter(reportText, research.NewMetadata(query, breadth, depth, result, time.Now()))
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, []byte(reportText), 0o644); err != nil {
		return fmt.Errorf("レポートの書き込みに失敗: %w", err)
	}
	slog.Info("レポートを保存しました", "path", outPath)
	return nil
}

// clarifyInteractively は確認質問を生成し、端末で回答を受け付けて問い合わせに付け加える
func clarifyInteractively(ctx context.Context, researcher *research.Researcher, query string) (string, error) {
	questions, err := researcher.Feedback(ctx, query, research.DefaultFeedbackQuestions)
	if err != nil {
		return "", err
	}

	answers := make([]string, 0, len(questions))
	for _, q := range questions {
		prompt := promptui.Prompt{
			Label: q,
		}
		answer, err := prompt.Run()
		if err != nil {
			return "", fmt.Errorf("回答の入力が中断されました: %w", err)
		}
		answers = append(answers, answer)
	}
	return research.ClarifiedQuery(query, questions, answers), nil
}

// SummarizeAction は検索結果をLLMで要約するコマンドのアクション
func SummarizeAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	query := queryArg(cmd)
	if query == "" {
		return fmt.Errorf("検索語を指定してください")
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	researcher, err := appCtx.Container.Researcher(cmd.String("dir"))
	if err != nil {
		return err
	}

	slog.Info("検索結果の要約を開始", "query", query)
	summary, err := researcher.Summarize(ctx, query)
	if err != nil {
		slog.Error("要約に失敗しました", "error", err)
		return err
	}

	fmt.Fprintln(output(cmd), summary)
	return nil
}
