package tokenizer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Encoding は使用する tiktoken エンコーディング
const Encoding = "cl100k_base"

// MinChunkSize は文字数で切り詰める場合の下限
const MinChunkSize = 140

// Counter はトークン数の計測とプロンプトの切り詰めを行う
type Counter struct {
	encoding *tiktoken.Tiktoken
}

// NewCounter は cl100k_base を使う Counter を作成する
func NewCounter() (*Counter, error) {
	encoding, err := tiktoken.GetEncoding(Encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding: %w", err)
	}
	return &Counter{encoding: encoding}, nil
}

// NewCharCounter はエンコーダを持たず文字数で近似する Counter を返す
func NewCharCounter() *Counter {
	return &Counter{}
}

// NewCounterOrFallback はエンコーダが取得できなければ文字数近似に切り替える
func NewCounterOrFallback() *Counter {
	c, err := NewCounter()
	if err != nil {
		return NewCharCounter()
	}
	return c
}

// Count はテキストのトークン数を返す。エンコーダが無い場合は文字数。
func (c *Counter) Count(text string) int {
	if c.encoding == nil {
		return utf8.RuneCountInString(text)
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// Trim はテキストを maxTokens 以内に切り詰める
func (c *Counter) Trim(text string, maxTokens int) string {
	if text == "" {
		return ""
	}
	if c.encoding == nil {
		return trimChars(text, maxTokens)
	}

	tokens := c.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	// 途中で切れたマルチバイト文字は落とす
	return strings.ToValidUTF8(c.encoding.Decode(tokens[:max(maxTokens, 0)]), "")
}

func trimChars(text string, size int) string {
	runes := []rune(text)
	if len(runes) <= size {
		return text
	}
	return string(runes[:max(MinChunkSize, size)])
}
