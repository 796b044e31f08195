package runtime

import "CorpusAgent/pkg/engine/api"

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Usage and Cost
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// CostFunc computes the dollar cost of a turn from its token usage.
// Pricing tables are injected by the caller; the engine ships no rates.
type CostFunc func(model string, usage api.Usage) float64

// ZeroCost is the default cost function.
func ZeroCost(model string, usage api.Usage) float64 { return 0 }

// charsPerToken is the coarse chars-to-tokens ratio used when the provider
// reports no usage.
const charsPerToken = 4

// EstimateUsage derives approximate token counts from character volumes.
// Only used as a fallback; the result is marked Estimated.
func EstimateUsage(queryChars, toolChars, reasoningChars, answerChars int) api.Usage {
	in := (queryChars + toolChars) / charsPerToken
	reasoning := reasoningChars / charsPerToken
	out := answerChars/charsPerToken + reasoning
	return api.Usage{
		InputTokens:     in,
		OutputTokens:    out,
		ReasoningTokens: reasoning,
		TotalTokens:     in + out,
		Estimated:       true,
	}
}
