package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jinford/refmap/internal/platform/config"
	"github.com/jinford/refmap/internal/platform/container"
	"github.com/jinford/refmap/internal/platform/logger"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config    *config.Config
	Container *container.ServiceContainer
}

// NewAppContext は設定ファイルを読み込み、ロガーとコンテナを初期化して AppContext を作成する
func NewAppContext(ctx context.Context, envFile string, opts ...container.ContainerOption) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	appLogger := logger.New(logger.FromSettings(cfg.Log.Level, cfg.Log.Format))

	opts = append([]container.ContainerOption{container.WithContainerLogger(appLogger)}, opts...)
	return &AppContext{
		Config:    cfg,
		Container: container.NewContainer(cfg, opts...),
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Container != nil {
		ac.Container.Close()
	}
}

// Logger はAppContextのロガーを返す
func (ac *AppContext) Logger() *slog.Logger {
	if ac.Container != nil {
		return ac.Container.Logger()
	}
	return slog.Default()
}

// output は結果の出力先を返す
func output(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

// queryArg は位置引数を空白で連結して検索語にする
func queryArg(cmd *cli.Command) string {
	return strings.Join(cmd.Args().Slice(), " ")
}

// firstNonEmpty は最初の空でない値を返す
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
