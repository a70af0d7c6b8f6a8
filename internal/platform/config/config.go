package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// ベクトルストアの種類
const (
	VectorStoreSQLite   = "sqlite"
	VectorStorePostgres = "postgres"
)

// 関数抽出の実装
const (
	ExtractorCtags      = "ctags"
	ExtractorTreeSitter = "treesitter"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// LLM設定（OpenAI互換API）
	LLM LLMConfig

	// 埋め込みとベクトルストア設定
	Embedding   EmbeddingConfig
	VectorStore VectorStoreConfig

	// Database設定（VECTOR_STORE=postgres の場合のみ使用）
	Database DatabaseConfig

	// 比較対象のコードベース
	Mapping MappingConfig

	// 検索・解析ツール設定
	Tools ToolsConfig

	// 調査コマンドの検索対象
	SearchDirectory string

	Log LogConfig
}

// LLMConfig はチャット補完APIの設定
type LLMConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	SystemPrompt      string
	RequestsPerMinute int // 0 の場合は制限しない
}

// EmbeddingConfig は埋め込みモデルの設定
type EmbeddingConfig struct {
	Model     string
	Dimension int
}

// VectorStoreConfig は関数ベクトルの保存先
type VectorStoreConfig struct {
	Kind string // "sqlite" or "postgres"
	Path string // sqlite のDBファイル
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// MappingConfig はリファクタリング対応表の生成設定
type MappingConfig struct {
	OriginalPath   string
	RefactoredPath string
	OutputFormat   string // "csv" or "markdown"
	OriginalSHA    string // 空の場合は HEAD
	RefactoredSHA  string
	ReportBaseURL  string // origin が無い場合のリンク先
}

// ToolsConfig は外部コマンドの設定
type ToolsConfig struct {
	Extractor          string // "ctags" or "treesitter"
	CtagsPath          string
	ClangdPath         string
	CompileCommandsDir string
}

// LogConfig はログ出力設定
type LogConfig struct {
	Level  string
	Format string
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cwd, _ := os.Getwd()

	cfg := &Config{
		LLM: LLMConfig{
			APIKey:            getEnv("API_KEY", ""),
			BaseURL:           getEnv("BASE_URL", "https://api.openai.com/v1"),
			Model:             getEnv("MODEL", "gpt-4-0125-preview"),
			SystemPrompt:      getEnv("SYSTEM_PROMPT", "You are a helpful assistant specializing in code analysis."),
			RequestsPerMinute: getEnvAsInt("LLM_REQUESTS_PER_MINUTE", 0),
		},
		Embedding: EmbeddingConfig{
			Model:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimension: getEnvAsInt("EMBEDDING_DIMENSION", 1536),
		},
		VectorStore: VectorStoreConfig{
			Kind: getEnv("VECTOR_STORE", VectorStoreSQLite),
			Path: getEnv("VECTOR_DB_PATH", "db/functions.sqlite"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "refmap"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "refmap"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Mapping: MappingConfig{
			OriginalPath:   getEnv("ORIGINAL_CODE_PATH", ""),
			RefactoredPath: getEnv("REFACTORED_CODE_PATH", ""),
			OutputFormat:   getEnv("OUTPUT_FORMAT", "csv"),
			OriginalSHA:    getEnv("ORIG_SHA", ""),
			RefactoredSHA:  getEnv("NEW_SHA", ""),
			ReportBaseURL:  getEnv("REPORT_BASE_URL", ""),
		},
		Tools: ToolsConfig{
			Extractor:          getEnv("FUNCTION_EXTRACTOR", ExtractorCtags),
			CtagsPath:          getEnv("CTAGS_PATH", "ctags"),
			ClangdPath:         getEnv("CLANGD_PATH", "clangd"),
			CompileCommandsDir: getEnv("COMPILE_COMMANDS_DIR", ""),
		},
		SearchDirectory: getEnv("SEARCH_DIRECTORY", cwd),
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は列挙値の設定を検証します
func (c *Config) Validate() error {
	switch c.VectorStore.Kind {
	case VectorStoreSQLite, VectorStorePostgres:
	default:
		return fmt.Errorf("invalid VECTOR_STORE %q: must be %s or %s", c.VectorStore.Kind, VectorStoreSQLite, VectorStorePostgres)
	}
	switch c.Tools.Extractor {
	case ExtractorCtags, ExtractorTreeSitter:
	default:
		return fmt.Errorf("invalid FUNCTION_EXTRACTOR %q: must be %s or %s", c.Tools.Extractor, ExtractorCtags, ExtractorTreeSitter)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("invalid EMBEDDING_DIMENSION %d", c.Embedding.Dimension)
	}
	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
