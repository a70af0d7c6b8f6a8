package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jinford/refmap/internal/core/textsearch"
)

// SearchAction は文脈付きテキスト検索コマンドのアクション
func SearchAction(ctx context.Context, cmd *cli.Command) error {
	dir := cmd.String("dir")
	maxHits := cmd.Int("max")
	exact := cmd.Bool("exact")
	envFile := cmd.String("env")
	query := queryArg(cmd)

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	dir = firstNonEmpty(dir, appCtx.Config.SearchDirectory)
	slog.Info("テキスト検索を開始", "query", query, "dir", dir, "maxHits", maxHits, "exact", exact)

	var result string
	switch {
	case strings.TrimSpace(query) == "":
		result = textsearch.EmptyQuery
	case exact:
		result = appCtx.Container.TextSearch.Search(ctx, query, dir, maxHits).String()
	default:
		result = appCtx.Container.TextSearch.Relax(ctx, query, dir, maxHits)
	}

	fmt.Fprintln(output(cmd), result)
	slog.Info("テキスト検索が完了しました")
	return nil
}
