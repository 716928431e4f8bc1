// Package budget provides token estimation for prompts sent to the chat
// model. Backends use different tokenizers, so this package applies a
// conservative character heuristic: 1 token ≈ 4 characters.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input budget for the retrieved
	// context in tokens. It fits 8k-context models with room for the answer.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// FitBlocks returns the longest prefix of blocks whose estimated size, joined
// by sep, fits within maxTokens. blocks are expected in priority order; the
// first block is always kept even when it alone exceeds the budget, so a
// caller never ends up with an empty context. maxTokens <= 0 disables the
// bound.
func FitBlocks(blocks []string, sep string, maxTokens int) []string {
	if maxTokens <= 0 || len(blocks) <= 1 {
		return blocks
	}
	used := Estimate(blocks[0])
	sepTokens := Estimate(sep)
	for i := 1; i < len(blocks); i++ {
		used += sepTokens + Estimate(blocks[i])
		if used > maxTokens {
			return blocks[:i]
		}
	}
	return blocks
}
