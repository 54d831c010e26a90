// Package cost prices language model calls for the usage ledger.
package cost

import (
	"strings"

	"github.com/sells-group/court-inventory/internal/config"
	"github.com/sells-group/court-inventory/pkg/anthropic"
)

// ModelRate holds per-model token pricing in USD per million tokens.
type ModelRate struct {
	Input         float64
	Output        float64
	CacheWriteMul float64
	CacheReadMul  float64
}

// Calculator computes the cost of Claude calls.
type Calculator struct {
	rates map[string]ModelRate
}

// DefaultRates returns list prices for the supported models.
func DefaultRates() map[string]ModelRate {
	return map[string]ModelRate{
		"claude-haiku-4-5-20251001":  {Input: 1.00, Output: 5.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
		"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
		"claude-opus-4-6":            {Input: 15.00, Output: 75.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
	}
}

// NewCalculator starts from DefaultRates and applies configured overrides.
// An override that leaves a multiplier at zero keeps the default multiplier.
func NewCalculator(overrides map[string]config.ModelPricing) *Calculator {
	rates := DefaultRates()
	for model, p := range overrides {
		r := rates[model]
		r.Input, r.Output = p.Input, p.Output
		if p.CacheWriteMul > 0 {
			r.CacheWriteMul = p.CacheWriteMul
		} else if r.CacheWriteMul == 0 {
			r.CacheWriteMul = 1.25
		}
		if p.CacheReadMul > 0 {
			r.CacheReadMul = p.CacheReadMul
		} else if r.CacheReadMul == 0 {
			r.CacheReadMul = 0.1
		}
		rates[model] = r
	}
	return &Calculator{rates: rates}
}

// Rate returns the pricing for model. Undated aliases such as
// "claude-haiku-4-5" match the dated model they prefix.
func (c *Calculator) Rate(model string) (ModelRate, bool) {
	if r, ok := c.rates[model]; ok {
		return r, true
	}
	for name, r := range c.rates {
		if strings.HasPrefix(name, model+"-") {
			return r, true
		}
	}
	return ModelRate{}, false
}

// Claude returns the USD cost of one call. Unknown models cost 0.
func (c *Calculator) Claude(model string, u anthropic.TokenUsage) float64 {
	rate, ok := c.Rate(model)
	if !ok {
		return 0
	}
	in := float64(u.InputTokens) / 1e6 * rate.Input
	out := float64(u.OutputTokens) / 1e6 * rate.Output
	cw := float64(u.CacheCreationInputTokens) / 1e6 * rate.Input * rate.CacheWriteMul
	cr := float64(u.CacheReadInputTokens) / 1e6 * rate.Input * rate.CacheReadMul
	return in + out + cw + cr
}
