package provider

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"genhub/internal/domain/ports/adapter"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// per-message framing overhead used by chat-format token counting
const tokensPerMessage = 4

// EstimateTokens approximates the token count of a chat exchange with the
// cl100k_base encoding. When the encoding cannot be loaded it falls back to
// one token per four bytes.
func EstimateTokens(messages []adapter.Message, reply string) int {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			enc = e
		}
	})
	count := func(s string) int {
		if enc != nil {
			return len(enc.Encode(s, nil, nil))
		}
		return (len(s) + 3) / 4
	}
	n := count(reply)
	for _, m := range messages {
		n += tokensPerMessage + count(m.Content)
	}
	return n
}
