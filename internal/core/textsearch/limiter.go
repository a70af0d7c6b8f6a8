package textsearch

import (
	"strconv"
	"strings"
)

// ResultSet は重複を除いたマッチブロックを最大 max 件まで保持する。
// 同じ ResultSet を使い回すと、以前に見たキーは再度追加されない。
type ResultSet struct {
	max    int
	seen   map[string]struct{}
	blocks []string
}

// NewResultSet は上限 maxHits の ResultSet を作成する。0以下の場合は DefaultMaxHits を使う。
func NewResultSet(maxHits int) *ResultSet {
	if maxHits <= 0 {
		maxHits = DefaultMaxHits
	}
	return &ResultSet{
		max:  maxHits,
		seen: make(map[string]struct{}),
	}
}

// Add はブロックを追加する。重複または上限到達で追加しなかった場合は false を返す。
func (r *ResultSet) Add(block string) bool {
	if r.Full() {
		return false
	}
	key := BlockKey(block)
	if _, ok := r.seen[key]; ok {
		return false
	}
	r.seen[key] = struct{}{}
	r.blocks = append(r.blocks, block)
	return true
}

// Full は上限に達しているかを返す
func (r *ResultSet) Full() bool {
	return len(r.blocks) >= r.max
}

// Len は保持しているブロック数を返す
func (r *ResultSet) Len() int {
	return len(r.blocks)
}

// Max は上限件数を返す
func (r *ResultSet) Max() int {
	return r.max
}

// Blocks は保持しているブロックのコピーを返す
func (r *ResultSet) Blocks() []string {
	out := make([]string, len(r.blocks))
	copy(out, r.blocks)
	return out
}

// String は保持順にブロックを改行で連結する。0件なら NoMatches を返す。
func (r *ResultSet) String() string {
	if len(r.blocks) == 0 {
		return NoMatches
	}
	return strings.Join(r.blocks, "\n")
}

// BlockKey はブロックの重複判定キーを返す。
// キーはファイルパスとコンテキスト先頭行の行番号。解析できないブロックは全文をキーにする。
func BlockKey(block string) string {
	header, rest, ok := strings.Cut(block, "\n")
	if !ok {
		return block
	}

	var path string
	switch {
	case strings.HasPrefix(header, matchHeader):
		path = strings.TrimPrefix(header, matchHeader)
	case strings.HasPrefix(header, inlineHeader):
		path = strings.TrimPrefix(header, inlineHeader)
	default:
		return block
	}

	first, _, _ := strings.Cut(rest, "\n")
	num, _, ok := strings.Cut(first, "|")
	if !ok {
		return block
	}
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil {
		return block
	}
	return path + ":" + strconv.Itoa(n)
}

// SplitBlocks は String や Relax が連結した出力を元のブロックに分割する。
// コンテキスト行は "%4d | " で始まるため、見出しで始まる行だけをブロックの先頭とみなす。
func SplitBlocks(text string) []string {
	if text == "" || text == NoMatches || text == EmptyQuery {
		return nil
	}

	var starts []int
	for i := 0; i < len(text); {
		if isBlockStart(text[i:]) {
			starts = append(starts, i)
		}
		j := strings.IndexByte(text[i:], '\n')
		if j < 0 {
			break
		}
		i += j + 1
	}
	if len(starts) == 0 || starts[0] != 0 {
		starts = append([]int{0}, starts...)
	}

	blocks := make([]string, 0, len(starts))
	for k, start := range starts {
		end := len(text)
		if k+1 < len(starts) {
			// 連結に使った改行を除く
			end = starts[k+1] - 1
		}
		blocks = append(blocks, text[start:end])
	}
	return blocks
}

func isBlockStart(s string) bool {
	return strings.HasPrefix(s, matchHeader) ||
		strings.HasPrefix(s, inlineHeader) ||
		strings.HasPrefix(s, errorHeader)
}
