package cli

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v3"
)

// MCPAction は検索機能をstdioのMCPサーバーとして公開するコマンドのアクション
func MCPAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	slog.Info("MCPサーバーを起動します", "searchDirectory", appCtx.Config.SearchDirectory)
	if err := appCtx.Container.MCPServer(ctx).Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("MCPサーバーが異常終了しました", "error", err)
		return err
	}
	slog.Info("MCPサーバーを終了しました")
	return nil
}
