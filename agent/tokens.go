package agent

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/smallnest/agentgraph/engine"
)

// encoding is loaded lazily and cached: cl100k_base covers every model
// invoke_llm is likely to run this turn closely enough for a budget check,
// which only needs to be in the right ballpark, not exact.
var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

func getEncoding() *tiktoken.Tiktoken {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	return encoding
}

// estimateTokens counts text's tokens under cl100k_base, falling back to a
// length/4 heuristic if the encoder failed to load.
func estimateTokens(text string) int {
	if enc := getEncoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return len(text) / 4
}

// messagesTokenCount sums the estimated token cost of every message's
// content, used by the summarize node to decide whether to fold.
func messagesTokenCount(msgs []engine.Message) int {
	total := 0
	for _, m := range msgs {
		total += estimateTokens(m.Content)
	}
	return total
}
