package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jinford/refmap/internal/core/llm"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"golang.org/x/time/rate"
)

const (
	// DefaultModel はモデル未指定時に使用するモデル
	DefaultModel = "gpt-4-0125-preview"

	// DefaultBaseURL はエンドポイント未指定時のURL
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultSystemPrompt はシステムプロンプト未指定時の既定値
	DefaultSystemPrompt = "You are a helpful assistant specializing in code analysis."

	// DefaultTimeout は1回のAPI呼び出しのタイムアウト
	DefaultTimeout = 120 * time.Second

	// JSONParseMaxRetries はJSON解析エラー時の最大リトライ回数
	JSONParseMaxRetries = 1
)

// ErrInvalidResponseFormat は不正なレスポンス形式のエラー
var ErrInvalidResponseFormat = errors.New("invalid response format")

// Client は OpenAI 互換APIを使用した LLM クライアント実装
type Client struct {
	client       openai.Client
	model        string
	systemPrompt string
	timeout      time.Duration
	retry        llm.RetryPolicy
	limiter      *rate.Limiter
	logger       *slog.Logger
}

type clientOptions struct {
	baseURL           string
	model             string
	systemPrompt      string
	timeout           time.Duration
	retry             llm.RetryPolicy
	requestsPerMinute int
	logger            *slog.Logger
}

// ClientOption は Client のオプション設定
type ClientOption func(*clientOptions)

// WithBaseURL はAPIエンドポイントを上書きする
func WithBaseURL(baseURL string) ClientOption {
	return func(o *clientOptions) {
		if baseURL != "" {
			o.baseURL = baseURL
		}
	}
}

// WithModel はモデル名を上書きする
func WithModel(model string) ClientOption {
	return func(o *clientOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithSystemPrompt は既定のシステムプロンプトを上書きする
func WithSystemPrompt(prompt string) ClientOption {
	return func(o *clientOptions) {
		if prompt != "" {
			o.systemPrompt = prompt
		}
	}
}

// WithTimeout は1回のAPI呼び出しのタイムアウトを設定する
func WithTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.timeout = timeout
	}
}

// WithRetryPolicy はリトライ設定を差し替える
func WithRetryPolicy(policy llm.RetryPolicy) ClientOption {
	return func(o *clientOptions) {
		o.retry = policy
	}
}

// WithRequestsPerMinute は1分あたりのリクエスト数の上限を設定する（0以下は無制限）
func WithRequestsPerMinute(n int) ClientOption {
	return func(o *clientOptions) {
		o.requestsPerMinute = n
	}
}

// WithClientLogger はロガーを設定する
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// NewClient は新しい Client を作成する。APIキーが空の場合は llm.ErrAPIKeyNotSet を返す。
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, llm.ErrAPIKeyNotSet
	}

	options := clientOptions{
		baseURL:      DefaultBaseURL,
		model:        DefaultModel,
		systemPrompt: DefaultSystemPrompt,
		timeout:      DefaultTimeout,
		retry:        llm.DefaultRetryPolicy(),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if options.requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(options.requestsPerMinute)), 1)
	}

	return &Client{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(options.baseURL),
			// リトライは RetryPolicy 側で行う
			option.WithMaxRetries(0),
		),
		model:        options.model,
		systemPrompt: options.systemPrompt,
		timeout:      options.timeout,
		retry:        options.retry,
		limiter:      limiter,
		logger:       options.logger,
	}, nil
}

// ModelName はモデル名を返す
func (c *Client) ModelName() string {
	return c.model
}

// Complete はチャット補完を実行する。失敗時は RetryPolicy に従って再試行する。
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	var jsonParseRetries int
	for {
		resp, err := c.completeWithRetry(ctx, req)
		if err != nil {
			return llm.Response{}, err
		}

		if req.JSON && !isValidJSON(resp.Content) {
			jsonParseRetries++
			if jsonParseRetries > JSONParseMaxRetries {
				return llm.Response{}, fmt.Errorf("%w: JSON parse failed after %d retries", ErrInvalidResponseFormat, JSONParseMaxRetries)
			}
			continue
		}

		return resp, nil
	}
}

func (c *Client) completeWithRetry(ctx context.Context, req llm.Request) (llm.Response, error) {
	var resp llm.Response
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		r, err := c.completeOnce(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}, func(attempt int, delay time.Duration, err error) {
		c.logger.Warn("LLM API error, retrying",
			"attempt", attempt,
			"maxAttempts", c.retry.MaxAttempts,
			"delay", delay.Round(10*time.Millisecond).String(),
			"rateLimited", isRateLimitError(err),
			"error", err)
	})
	if err != nil {
		return llm.Response{}, err
	}
	return resp, nil
}

func (c *Client) completeOnce(ctx context.Context, req llm.Request) (llm.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return llm.Response{}, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	system := req.System
	if system == "" {
		system = c.systemPrompt
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(req.Temperature),
	}

	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		}
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.Response{}, fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		return llm.Response{}, llm.ErrEmptyResponse
	}

	return llm.Response{
		Content:    completion.Choices[0].Message.Content,
		TokensUsed: int(completion.Usage.TotalTokens),
		Model:      string(completion.Model),
	}, nil
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}

	return false
}

func isValidJSON(s string) bool {
	var js json.RawMessage
	return json.Unmarshal([]byte(s), &js) == nil
}

// インターフェース実装の確認
var _ llm.Client = (*Client)(nil)
