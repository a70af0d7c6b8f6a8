package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	appcli "github.com/jinford/refmap/internal/app/cli"
)

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}

func dirFlag(usage string) cli.Flag {
	return &cli.StringFlag{
		Name:  "dir",
		Usage: usage,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "refmap",
		Usage: "C コードベースのリファクタリング前後の関数対応付けと文脈付きコード検索",
		Commands: []*cli.Command{
			{
				Name:      "search",
				Usage:     "文脈付きテキスト検索（ヒット不足時は末尾の語から順に緩和）",
				ArgsUsage: "QUERY",
				Flags: []cli.Flag{
					envFlag(),
					dirFlag("検索対象ディレクトリ（省略時は SEARCH_DIRECTORY）"),
					&cli.IntFlag{
						Name:  "max",
						Usage: "最大ヒット数",
						Value: 10,
					},
					&cli.BoolFlag{
						Name:  "exact",
						Usage: "クエリを緩和せず1回だけ検索",
					},
				},
				Action: appcli.SearchAction,
			},
			{
				Name:  "index",
				Usage: "関数本体のベクトル索引を構築",
				Flags: []cli.Flag{
					envFlag(),
					dirFlag("索引対象ディレクトリ（省略時は REFACTORED_CODE_PATH）"),
					&cli.StringFlag{
						Name:  "schedule",
						Usage: "cron形式のスケジュールで中断されるまで定期的に再構築（例: \"@every 1h\"）",
					},
				},
				Action: appcli.IndexAction,
			},
			{
				Name:      "similar",
				Usage:     "関数索引から類似関数を検索",
				ArgsUsage: "QUERY",
				Flags: []cli.Flag{
					envFlag(),
					&cli.IntFlag{
						Name:  "top",
						Usage: "表示件数",
						Value: 5,
					},
				},
				Action: appcli.SimilarAction,
			},
			{
				Name:  "map",
				Usage: "元コードの各関数に対応するリファクタリング後の関数を求める",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:  "original",
						Usage: "元コードのパス（省略時は ORIGINAL_CODE_PATH）",
					},
					&cli.StringFlag{
						Name:  "refactored",
						Usage: "リファクタリング後コードのパス（省略時は REFACTORED_CODE_PATH）",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "出力形式 (csv|markdown)",
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "出力ファイル（省略時は refactoring.csv または refactoring.md）",
					},
					&cli.StringFlag{
						Name:  "only",
						Usage: "指定した名前の関数のみ処理",
					},
					&cli.IntFlag{
						Name:  "follow-ups",
						Usage: "追加調査の最大回数",
						Value: 3,
					},
				},
				Action: appcli.MapAction,
			},
			{
				Name:      "research",
				Usage:     "ソースツリーを反復的に調査してレポートを作成",
				ArgsUsage: "QUERY",
				Flags: []cli.Flag{
					envFlag(),
					dirFlag("検索対象ディレクトリ（省略時は SEARCH_DIRECTORY）"),
					&cli.IntFlag{
						Name:  "breadth",
						Usage: "各段階で生成するクエリ数",
						Value: 4,
					},
					&cli.IntFlag{
						Name:  "depth",
						Usage: "掘り下げる深さ",
						Value: 2,
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "レポートの出力先（省略時は標準出力）",
					},
					&cli.IntFlag{
						Name:  "clarify",
						Usage: "調査せずに方針確認の質問を指定数まで出力",
					},
					&cli.BoolFlag{
						Name:  "interactive",
						Usage: "方針確認の質問に端末で回答してから調査",
					},
				},
				Action: appcli.ResearchAction,
			},
			{
				Name:      "summarize",
				Usage:     "検索結果をLLMで要約",
				ArgsUsage: "QUERY",
				Flags: []cli.Flag{
					envFlag(),
					dirFlag("検索対象ディレクトリ（省略時は SEARCH_DIRECTORY）"),
				},
				Action: appcli.SummarizeAction,
			},
			{
				Name:  "functions",
				Usage: "関数範囲またはDoxygen XMLの関数一覧を表示",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:  "file",
						Usage: "関数範囲を抽出するソースファイル",
					},
					&cli.StringFlag{
						Name:  "doxygen",
						Usage: "Doxygen XML の出力ディレクトリ",
					},
				},
				Action: appcli.FunctionsAction,
			},
			{
				Name:  "lsp",
				Usage: "clangd を使ったコードナビゲーション",
				Commands: []*cli.Command{
					{
						Name:  "definition",
						Usage: "指定位置のシンボルの定義位置を表示",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "file",
								Usage:    "ソースファイル",
								Required: true,
							},
							&cli.IntFlag{
								Name:     "line",
								Usage:    "行（1始まり）",
								Required: true,
							},
							&cli.IntFlag{
								Name:     "char",
								Usage:    "桁（1始まり）",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "root",
								Usage: "ワークスペースのルート（省略時はファイルのディレクトリ）",
							},
							&cli.BoolFlag{
								Name:  "references",
								Usage: "定義ではなく参照箇所を表示",
							},
						},
						Action: appcli.LSPDefinitionAction,
					},
				},
			},
			{
				Name:   "mcp",
				Usage:  "検索機能を stdio の MCP サーバーとして公開",
				Flags:  []cli.Flag{envFlag()},
				Action: appcli.MCPAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
