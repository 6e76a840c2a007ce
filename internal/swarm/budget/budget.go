// Package budget tracks the run's global token and cost accumulators and
// decides when the run must terminate for exceeding its caps.
package budget

import (
	"math"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter is the global, thread-safe budget accumulator.
type Counter struct {
	mu sync.Mutex

	TokensUsed int64
	CostUSD    float64

	TokenCap int64
	CostCap  float64

	// ReserveRatio reserves headroom below the raw cap: HardExceeded trips
	// once usage crosses cap*(1-ReserveRatio), not the raw cap itself, so
	// a run winds down before a hard external limit is hit.
	ReserveRatio float64

	// CharsPerTokenFallback estimates token count from text length when a
	// worker event reports no usage.
	CharsPerTokenFallback float64
	// CostPerThousandTokens prices the fallback-estimated tokens.
	CostPerThousandTokens float64

	enc *tiktoken.Tiktoken
}

// NewCounter constructs a Counter with the given caps. encoding selects the
// tiktoken encoding used for real usage estimation (cl100k_base is the
// teacher's own default, matching internal/app/context's EstimateTokens);
// an unknown/unavailable encoding degrades silently to the chars-per-token
// estimator for every fallback estimate.
func NewCounter(tokenCap int64, costCap, reserveRatio, charsPerTokenFallback, costPerThousandTokens float64, encoding string) *Counter {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, _ := tiktoken.GetEncoding(encoding)
	return &Counter{
		TokenCap:              tokenCap,
		CostCap:               costCap,
		ReserveRatio:          reserveRatio,
		CharsPerTokenFallback: charsPerTokenFallback,
		CostPerThousandTokens: costPerThousandTokens,
		enc:                   enc,
	}
}

// EstimateTokens counts tokens in text using the tiktoken encoding when
// available, falling back to len(text)/CharsPerTokenFallback (rounded up).
func (c *Counter) EstimateTokens(text string) int64 {
	if text == "" {
		return 0
	}
	if c.enc != nil {
		return int64(len(c.enc.Encode(text, nil, nil)))
	}
	ratio := c.CharsPerTokenFallback
	if ratio <= 0 {
		ratio = 4.0
	}
	return int64(math.Ceil(float64(len(text)) / ratio))
}

// AddUsage records one worker event's usage. When tokenUsage is zero but
// text is non-empty, tokens and cost are estimated from text instead of
// trusting an absent report.
func (c *Counter) AddUsage(tokenUsage int64, costUSD float64, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tokenUsage == 0 && text != "" {
		estimated := c.EstimateTokens(text)
		tokenUsage = estimated
		if costUSD == 0 && c.CostPerThousandTokens > 0 {
			costUSD = float64(estimated) / 1000.0 * c.CostPerThousandTokens
		}
	}
	c.TokensUsed += tokenUsage
	c.CostUSD += costUSD
}

// Restore overwrites the accumulators with values recovered from a prior
// run's persisted snapshot, for resume.
func (c *Counter) Restore(tokensUsed int64, costUSD float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TokensUsed = tokensUsed
	c.CostUSD = costUSD
}

// HardExceeded reports whether usage has crossed either cap, net of the
// reserve ratio's headroom.
func (c *Counter) HardExceeded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	reserve := c.ReserveRatio
	if reserve < 0 {
		reserve = 0
	}
	if reserve > 1 {
		reserve = 1
	}
	if c.TokenCap > 0 {
		threshold := float64(c.TokenCap) * (1 - reserve)
		if float64(c.TokensUsed) >= threshold {
			return true
		}
	}
	if c.CostCap > 0 {
		threshold := c.CostCap * (1 - reserve)
		if c.CostUSD >= threshold {
			return true
		}
	}
	return false
}

// AsDict returns a snapshot suitable for embedding in the state snapshot's
// "budget" field.
func (c *Counter) AsDict() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]any{
		"tokens_used":   c.TokensUsed,
		"cost_usd":      c.CostUSD,
		"token_cap":     c.TokenCap,
		"cost_cap":      c.CostCap,
		"reserve_ratio": c.ReserveRatio,
		"hard_exceeded": c.hardExceededLocked(),
	}
}

func (c *Counter) hardExceededLocked() bool {
	reserve := c.ReserveRatio
	if reserve < 0 {
		reserve = 0
	}
	if reserve > 1 {
		reserve = 1
	}
	if c.TokenCap > 0 && float64(c.TokensUsed) >= float64(c.TokenCap)*(1-reserve) {
		return true
	}
	if c.CostCap > 0 && c.CostUSD >= c.CostCap*(1-reserve) {
		return true
	}
	return false
}
