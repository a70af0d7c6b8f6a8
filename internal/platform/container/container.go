package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jinford/refmap/internal/core/funcindex"
	"github.com/jinford/refmap/internal/core/funcrange"
	"github.com/jinford/refmap/internal/core/llm"
	"github.com/jinford/refmap/internal/core/report"
	"github.com/jinford/refmap/internal/core/research"
	"github.com/jinford/refmap/internal/core/review"
	"github.com/jinford/refmap/internal/core/textsearch"
	"github.com/jinford/refmap/internal/infra/ctags"
	"github.com/jinford/refmap/internal/infra/doxygen"
	"github.com/jinford/refmap/internal/infra/git"
	"github.com/jinford/refmap/internal/infra/lsp"
	"github.com/jinford/refmap/internal/infra/mcpserver"
	"github.com/jinford/refmap/internal/infra/openai"
	"github.com/jinford/refmap/internal/infra/postgres"
	reportio "github.com/jinford/refmap/internal/infra/report"
	"github.com/jinford/refmap/internal/infra/source"
	"github.com/jinford/refmap/internal/infra/sqlite"
	"github.com/jinford/refmap/internal/infra/tokenizer"
	"github.com/jinford/refmap/internal/infra/treesitter"
	"github.com/jinford/refmap/internal/platform/config"
)

// ServiceContainer はコマンドが使うサービスの依存関係を保持する。
// 軽量なものは生成時に作り、LLMクライアントとベクトルストアは必要になった時点で作る。
type ServiceContainer struct {
	Config     *config.Config
	TextSearch *textsearch.Engine
	Loader     *source.Loader
	Extractor  funcrange.Extractor
	Git        *git.Client
	Tokenizer  *tokenizer.Counter

	logger   *slog.Logger
	llm      llm.Client
	embedder funcindex.Embedder
	store    funcindex.Store
}

type containerOptions struct {
	logger    *slog.Logger
	llmClient llm.Client
	embedder  funcindex.Embedder
	store     funcindex.Store
	extractor funcrange.Extractor
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerLLMClient は LLM クライアントを差し替える
func WithContainerLLMClient(client llm.Client) ContainerOption {
	return func(opts *containerOptions) {
		opts.llmClient = client
	}
}

// WithContainerEmbedder はカスタム Embedder を注入する
func WithContainerEmbedder(embedder funcindex.Embedder) ContainerOption {
	return func(opts *containerOptions) {
		opts.embedder = embedder
	}
}

// WithContainerStore はベクトルストアを差し替える
func WithContainerStore(store funcindex.Store) ContainerOption {
	return func(opts *containerOptions) {
		opts.store = store
	}
}

// WithContainerExtractor は関数抽出器を差し替える
func WithContainerExtractor(extractor funcrange.Extractor) ContainerOption {
	return func(opts *containerOptions) {
		opts.extractor = extractor
	}
}

// NewContainer は設定からコンテナを生成する。
func NewContainer(cfg *config.Config, opts ...ContainerOption) *ServiceContainer {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	logger := options.logger

	extractor := options.extractor
	if extractor == nil {
		switch cfg.Tools.Extractor {
		case config.ExtractorTreeSitter:
			extractor = treesitter.NewExtractor()
		default:
			extractor = ctags.NewExtractor(ctags.WithPath(cfg.Tools.CtagsPath), ctags.WithLogger(logger))
		}
	}

	return &ServiceContainer{
		Config:     cfg,
		TextSearch: textsearch.NewEngine(textsearch.WithLogger(logger)),
		Loader:     source.NewLoader(source.WithLogger(logger)),
		Extractor:  extractor,
		Git:        git.NewClient(),
		Tokenizer:  tokenizer.NewCounterOrFallback(),
		logger:     logger,
		llm:        options.llmClient,
		embedder:   options.embedder,
		store:      options.store,
	}
}

// Close は内部リソースを解放する。
func (c *ServiceContainer) Close() {
	if c == nil || c.store == nil {
		return
	}
	if err := c.store.Close(); err != nil {
		c.logger.Warn("failed to close vector store", "error", err)
	}
	c.store = nil
}

// Logger はロガーを返す。
func (c *ServiceContainer) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// LLMClient はチャット補完クライアントを返す。APIキーが無い場合は llm.ErrAPIKeyNotSet。
func (c *ServiceContainer) LLMClient() (llm.Client, error) {
	if c.llm != nil {
		return c.llm, nil
	}
	cfg := c.Config.LLM
	client, err := openai.NewClient(cfg.APIKey,
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithSystemPrompt(cfg.SystemPrompt),
		openai.WithRequestsPerMinute(cfg.RequestsPerMinute),
		openai.WithClientLogger(c.logger),
	)
	if err != nil {
		return nil, err
	}
	c.llm = client
	return client, nil
}

// Embedder は関数本文の埋め込みを作る Embedder を返す
func (c *ServiceContainer) Embedder() funcindex.Embedder {
	if c.embedder == nil {
		c.embedder = openai.NewFunctionEmbedder(c.Config.LLM.APIKey, c.Config.LLM.BaseURL,
			c.Config.Embedding.Model, c.Config.Embedding.Dimension)
	}
	return c.embedder
}

// Store は設定に応じたベクトルストアを開く
func (c *ServiceContainer) Store(ctx context.Context) (funcindex.Store, error) {
	if c.store != nil {
		return c.store, nil
	}

	switch c.Config.VectorStore.Kind {
	case config.VectorStorePostgres:
		db, err := postgres.Connect(ctx, postgres.ConnectionParams{
			Host:     c.Config.Database.Host,
			Port:     c.Config.Database.Port,
			User:     c.Config.Database.User,
			Password: c.Config.Database.Password,
			DBName:   c.Config.Database.DBName,
			SSLMode:  c.Config.Database.SSLMode,
		})
		if err != nil {
			return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
		}
		store := postgres.NewFunctionStore(db, c.Config.Embedding.Dimension)
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		c.store = store
	default:
		store, err := sqlite.Open(ctx, c.Config.VectorStore.Path)
		if err != nil {
			return nil, fmt.Errorf("ベクトルDBを開けませんでした: %w", err)
		}
		c.store = store
	}

	c.logger.Debug("vector store opened", "kind", c.Config.VectorStore.Kind)
	return c.store, nil
}

// FunctionIndex は関数のベクトル索引を返す
func (c *ServiceContainer) FunctionIndex(ctx context.Context) (*funcindex.Index, error) {
	store, err := c.Store(ctx)
	if err != nil {
		return nil, err
	}
	return funcindex.NewIndex(store, c.Embedder(), c.Extractor, c.Loader, funcindex.WithIndexLogger(c.logger)), nil
}

// Researcher は dir を検索対象とする調査サービスを返す
func (c *ServiceContainer) Researcher(dir string, opts ...research.Option) (*research.Researcher, error) {
	client, err := c.LLMClient()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		dir = c.Config.SearchDirectory
	}
	opts = append([]research.Option{research.WithLogger(c.logger)}, opts...)
	return research.NewResearcher(client, c.TextSearch, c.Tokenizer, dir, opts...), nil
}

// Repo は path を含むリポジトリのリンク情報を返す。sha が空の場合は HEAD を使う。
// origin が無い場合は REPORT_BASE_URL をリンク先にする。
func (c *ServiceContainer) Repo(path, sha string) report.Repo {
	repo := report.Repo{WebURL: c.Config.Mapping.ReportBaseURL, SHA: sha}

	info, err := c.Git.Resolve(path)
	if err != nil {
		c.logger.Debug("not a git repository", "path", path, "error", err)
		return repo
	}
	if info.WebURL != "" {
		repo.WebURL = info.WebURL
	}
	repo.Prefix = info.PathPrefix(path)

	if sha == "" {
		repo.SHA = info.HeadSHA
		return repo
	}
	// 解決できない参照はそのままリンクに使う
	if resolved, err := c.Git.ResolveRef(path, sha); err == nil {
		repo.SHA = resolved
	} else {
		c.logger.Debug("failed to resolve report ref", "ref", sha, "error", err)
	}
	return repo
}

// ReportWriter は出力形式に応じた書き込み先を返す。dest が空の場合は既定のファイル名。
func (c *ServiceContainer) ReportWriter(format report.Format, dest string) report.Writer {
	m := c.Config.Mapping
	switch format {
	case report.FormatMarkdown:
		if dest == "" {
			dest = reportio.DefaultMarkdownPath
		}
		return reportio.NewMarkdownWriter(dest,
			c.Repo(m.OriginalPath, m.OriginalSHA),
			c.Repo(m.RefactoredPath, m.RefactoredSHA),
		)
	default:
		if dest == "" {
			dest = reportio.DefaultCSVPath
		}
		return reportio.NewCSVWriter(dest)
	}
}

// Mapper はリファクタリング対応表の生成サービスを返す。
// リファクタリング後のコードの関数索引が無い場合は funcindex.ErrNoVectorIndex。
func (c *ServiceContainer) Mapper(ctx context.Context, cfg review.Config, writer report.Writer) (*review.Mapper, error) {
	client, err := c.LLMClient()
	if err != nil {
		return nil, err
	}
	index, err := c.readyIndex(ctx)
	if err != nil {
		return nil, err
	}
	return review.NewMapper(cfg, client, c.TextSearch, index, c.Extractor, c.Loader, writer,
		review.WithLogger(c.logger)), nil
}

// MCPServer は検索ツールを公開する MCP サーバーを返す。
// 関数索引を開けない場合や空の場合は function_search を公開しない。
func (c *ServiceContainer) MCPServer(ctx context.Context) *mcpserver.Server {
	var functions mcpserver.FunctionSearcher
	if index, err := c.readyIndex(ctx); err != nil {
		c.logger.Info("function_search disabled", "reason", err)
	} else {
		functions = index
	}
	return mcpserver.New(c.TextSearch, functions, c.Config.SearchDirectory, c.logger)
}

func (c *ServiceContainer) readyIndex(ctx context.Context) (*funcindex.Index, error) {
	index, err := c.FunctionIndex(ctx)
	if err != nil {
		return nil, err
	}
	ready, err := index.Ready(ctx)
	if err != nil {
		return nil, err
	}
	if !ready {
		return nil, funcindex.ErrNoVectorIndex
	}
	return index, nil
}

// Doxygen はDoxygen XMLのパーサーを返す
func (c *ServiceContainer) Doxygen() *doxygen.Parser {
	return doxygen.NewParser(c.logger)
}

// StartLSP は clangd を起動して初期化済みのクライアントを返す
func (c *ServiceContainer) StartLSP(ctx context.Context, rootDir string) (*lsp.Client, error) {
	client, err := lsp.Start(ctx, lsp.Options{
		Path:               c.Config.Tools.ClangdPath,
		CompileCommandsDir: c.Config.Tools.CompileCommandsDir,
		Logger:             c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("clangd の起動に失敗しました: %w", err)
	}
	if err := client.Initialize(ctx, rootDir); err != nil {
		return nil, errors.Join(err, client.Close(ctx))
	}
	return client, nil
}
