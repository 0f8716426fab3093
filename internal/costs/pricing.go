package costs

import (
	_ "embed"
	"encoding/json"
)

//go:embed pricing.json
var defaultPricingJSON []byte

// Pricing holds the per-1000-token rates in USD, with distinct rates for
// prompt and completion tokens. Rates live in configuration data rather
// than code so a price change never needs a logic change.
type Pricing struct {
	PromptPer1K     float64 `json:"prompt_per_1k" toml:"prompt_per_1k"`
	CompletionPer1K float64 `json:"completion_per_1k" toml:"completion_per_1k"`
}

// DefaultPricing loads the embedded rate table.
func DefaultPricing() (Pricing, error) {
	var p Pricing
	if err := json.Unmarshal(defaultPricingJSON, &p); err != nil {
		return Pricing{}, err
	}
	return p, nil
}

// Cost computes the USD cost of one call at these rates.
func (p Pricing) Cost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1000*p.PromptPer1K +
		float64(completionTokens)/1000*p.CompletionPer1K
}
