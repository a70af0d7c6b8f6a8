package review

import (
	"regexp"
	"strings"

	"github.com/samber/mo"
)

// ReplyKind はレビュアー応答の分類
type ReplyKind int

const (
	// ReplyConfident は対応先の関数名（空を含む）が示された応答
	ReplyConfident ReplyKind = iota
	// ReplyNeedsFollowUp は要約と検索語が示され、追加調査が必要な応答
	ReplyNeedsFollowUp
	// ReplyInconclusive はどちらにも当てはまらない応答
	ReplyInconclusive
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyConfident:
		return "confident"
	case ReplyNeedsFollowUp:
		return "needs_follow_up"
	default:
		return "inconclusive"
	}
}

const (
	tagRefactored       = "refactored_function"
	tagConcern          = "concern"
	tagSummary          = "summary"
	tagFollowUp         = "follow_up"
	tagSearchOriginal   = "search_original"
	tagSearchRefactored = "search_refactored"
)

var tagPatterns = map[string]*regexp.Regexp{}

func init() {
	for _, tag := range []string{tagRefactored, tagConcern, tagSummary, tagFollowUp, tagSearchOriginal, tagSearchRefactored} {
		tagPatterns[tag] = regexp.MustCompile(`(?s)<` + tag + `>(.*?)</` + tag + `>`)
	}
}

// Reply はレビュアー応答から取り出したタグの内容
type Reply struct {
	Refactored       mo.Option[[]string]
	Concern          mo.Option[string]
	Summary          mo.Option[string]
	FollowUp         mo.Option[string]
	SearchOriginal   mo.Option[string]
	SearchRefactored mo.Option[string]
}

// ParseReply はタグ付きの応答を解析する。各タグは最初の出現のみ使う。
func ParseReply(text string) Reply {
	r := Reply{
		Concern:          extract(text, tagConcern),
		Summary:          extract(text, tagSummary),
		FollowUp:         extract(text, tagFollowUp),
		SearchOriginal:   extract(text, tagSearchOriginal),
		SearchRefactored: extract(text, tagSearchRefactored),
	}
	if body, ok := extract(text, tagRefactored).Get(); ok {
		names := []string{}
		for _, line := range strings.Split(body, "\n") {
			if name := strings.TrimSpace(line); name != "" {
				names = append(names, name)
			}
		}
		r.Refactored = mo.Some(names)
	}
	return r
}

// Kind は応答を分類する
func (r Reply) Kind() ReplyKind {
	if r.Refactored.IsPresent() {
		return ReplyConfident
	}
	if nonEmpty(r.Summary) && (nonEmpty(r.SearchOriginal) || nonEmpty(r.SearchRefactored)) {
		return ReplyNeedsFollowUp
	}
	return ReplyInconclusive
}

// Names は対応先の関数名。空の場合は対応先なしを意味する。
func (r Reply) Names() []string {
	return r.Refactored.OrEmpty()
}

func extract(text, tag string) mo.Option[string] {
	m := tagPatterns[tag].FindStringSubmatch(text)
	if m == nil {
		return mo.None[string]()
	}
	return mo.Some(strings.TrimSpace(m[1]))
}

func nonEmpty(o mo.Option[string]) bool {
	return o.OrEmpty() != ""
}
