package llm

import (
	"context"
	"errors"
	"strings"
)

// ErrorPrefix はエラーを文字列として返す場合の接頭辞
const ErrorPrefix = "Error: "

var (
	// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
	ErrAPIKeyNotSet = errors.New("No API key provided. Set API_KEY in .env file or provide it when initializing.")

	// ErrMaxRetriesExceeded は最大リトライ回数を超過した場合のエラー
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")

	// ErrEmptyResponse は応答に候補が含まれていない場合のエラー
	ErrEmptyResponse = errors.New("no completion choices returned")
)

// Request はチャット補完リクエスト
type Request struct {
	System      string // 空の場合はクライアント既定のシステムプロンプト
	Prompt      string
	Temperature float64
	JSON        bool // JSONオブジェクト形式の応答を要求する
}

// Response はチャット補完レスポンス
type Response struct {
	Content    string
	TokensUsed int
	Model      string
}

// Client はLLMへの問い合わせを抽象化する
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// ErrorText はエラーを "Error: <msg>" 形式の文字列に変換する
func ErrorText(err error) string {
	if err == nil {
		return ""
	}
	return ErrorPrefix + err.Error()
}

// IsErrorText は s が ErrorText で生成された文字列かどうかを返す
func IsErrorText(s string) bool {
	return strings.HasPrefix(s, ErrorPrefix)
}

// CompleteText は Complete を呼び出し、失敗時はエラーを ErrorText 形式の文字列で返す
func CompleteText(ctx context.Context, c Client, req Request) string {
	resp, err := c.Complete(ctx, req)
	if err != nil {
		return ErrorText(err)
	}
	return resp.Content
}
