package review

import (
	"fmt"
	"strings"
)

// SystemPrompt はレビュアーのシステムプロンプト
const SystemPrompt = `You are an expert code reviewer specializing in C programming, networking protocols, and MDNS implementation.
Your expertise includes:
- Deep understanding of C language patterns, memory management, and optimization techniques
- Comprehensive knowledge of network programming, socket APIs, and protocol implementation
- Specific expertise in multicast DNS (MDNS) protocol specifications, service discovery, and Zero-configuration networking
- Ability to identify refactoring patterns, code structure changes, and function renaming
- Experience analyzing complex codebases and tracing function relationships

When reviewing code changes between original and refactored implementations:
1. Focus on functional equivalence rather than syntactic differences
2. Identify when functions are split, merged, renamed, or otherwise restructured
3. Pay special attention to error handling, resource management, and protocol-specific logic
4. Consider implementation details specific to embedded systems and constrained environments

Provide clear, precise answers with high confidence when possible, or structured analytical responses when further investigation is needed.`

const instructions = `
Please review the following refactoring of the function %[1]s. Mostly code structure changes and renaming.
The below context shows the original function and the refactored code containing multiple functions that might replace the original function.
Your goal is to find the actual refactored function. If unsure, please summarize what you learned and give follow up questions.
In the next iteration, you can run contextual search or full-text search of the original and refactored code.

Format your response as follows:
* If you have 95%% confidence, just state the name of the function you think is the refactored function. If everything looks safe do not say anything else just the function name withing xml tags, for example:
` + "```xml" + `
<refactored_function>
mdns_init
</refactored_function>
* If you have 95%% confidence that the function the refactored one, but you have a concern, that a subtle bug might have been introduced, say the name of the function and the concern you have, for example:
` + "```xml" + `
<refactored_function>
mdns_init
</refactored_function>
<concern>
the new mdns_init function does not check if the pcb is not NULL.
</concern>
` + "```" + `
* If you have 95%% confidence that the original function is not present in the refactored code, just say empty xml tags:
` + "```xml" + `
<refactored_function>
</refactored_function>
` + "```" + `
* If you have 95%% confidence that the original function has been split into several functions, just say the refactored function names within xml tags:
` + "```xml" + `
<refactored_function>
mdns_init_internal
mdns_receiver_init
</refactored_function>
` + "```" + `
* Otherwise, summarize what you have learned and give follow up questions and search queries, within xml tags, for example:
` + "```xml" + `
<summary>
I learned that the function mdns_init might have been split into multiple functions, mdns_init_internal and mdns_receiver_init.
Add more details here, to help the next reviewer understand why you think another search and reasoning is needed.
</summary>
<follow_up>
You have to verify if mdns_init_internal and mdns_receiver_init are the replacements for the original function.
</follow_up>
<search_original>
mdns_init
</search_original>
<search_refactored>
mdns_init_internal
mdns_receiver_init
</search_refactored>
` + "```" + `

## Original function

` + "```c" + `
%[2]s
` + "```" + `

### Function references in the original codebase
%[3]s

`

const candidatesSection = `
### Refactored code

%s
`

const reminder = `
Based on this additional context, please reconsider your analysis and provide a more confident answer if possible.
Remember, only use the <refactored_function> tag if you have 95% confidence in your determination.
`

// InitialPrompt は最初の問い合わせのプロンプトを組み立てる
func InitialPrompt(name, content, references, candidates string) string {
	return fmt.Sprintf(instructions, name, content, references) + fmt.Sprintf(candidatesSection, candidates)
}

// FollowUp は追加調査のための状態。新しい応答の値で上書きされる。
type FollowUp struct {
	Summary          string
	Questions        string
	SearchOriginal   string
	SearchRefactored string
}

// Merge は応答に含まれるタグで状態を更新する
func (f *FollowUp) Merge(r Reply) {
	if v, ok := r.Summary.Get(); ok {
		f.Summary = v
	}
	if v, ok := r.FollowUp.Get(); ok {
		f.Questions = v
	}
	if v, ok := r.SearchOriginal.Get(); ok {
		f.SearchOriginal = v
	}
	if v, ok := r.SearchRefactored.Get(); ok {
		f.SearchRefactored = v
	}
}

// CanContinue は追加調査に必要な情報が揃っているかを返す
func (f FollowUp) CanContinue() bool {
	return f.Summary != "" && (f.SearchOriginal != "" || f.SearchRefactored != "")
}

// FollowUpPrompt は最初のプロンプトに追加の文脈を付けたプロンプトを返す。
// 検索結果は検索語がある場合のみ含める。
func FollowUpPrompt(base string, f FollowUp, originalResults, refactoredResults string) string {
	var sb strings.Builder
	sb.WriteString(base)
	fmt.Fprintf(&sb, "\n## Additional context from previous analysis\n\n### Summary of previous findings\n%s\n\n", f.Summary)
	if f.Questions != "" {
		fmt.Fprintf(&sb, "\n### Questions to consider\n%s\n\n", f.Questions)
	}
	if f.SearchOriginal != "" {
		fmt.Fprintf(&sb, "\n### Additional search results from original codebase for \"%s\"\n%s\n\n", f.SearchOriginal, originalResults)
	}
	if f.SearchRefactored != "" {
		fmt.Fprintf(&sb, "\n### Additional search results from refactored codebase for \"%s\"\n%s\n\n", f.SearchRefactored, refactoredResults)
	}
	sb.WriteString(reminder)
	return sb.String()
}
