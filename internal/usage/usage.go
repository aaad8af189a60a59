// Package usage accumulates token usage and cost across the rounds of a
// single request. Totals are folded with Add, which is associative and
// commutative, so per-round usage can be merged in any grouping without
// changing the result.
package usage

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/draftmind/draftmind/internal/llm"
	"github.com/draftmind/draftmind/pkg/log"
)

// Totals is the accumulated usage for one request
type Totals struct {
	Model        string  `json:"model"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	Rounds       int     `json:"rounds"`
}

// Price is the per-million-token pricing for one model
type Price struct {
	InputPerMillion  float64 `json:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million"`
}

// PriceTable maps model names to their pricing
type PriceTable map[string]Price

// DefaultPrices covers the models the service ships configured for.
// Unknown models fold with zero cost.
func DefaultPrices() PriceTable {
	return PriceTable{
		"openai/gpt-4o":          {InputPerMillion: 2.50, OutputPerMillion: 10.00},
		"openai/gpt-4o-mini":     {InputPerMillion: 0.15, OutputPerMillion: 0.60},
		"openai/gpt-3.5-turbo":   {InputPerMillion: 0.50, OutputPerMillion: 1.50},
		"anthropic/claude-3-haiku": {InputPerMillion: 0.25, OutputPerMillion: 1.25},
	}
}

// LoadPrices reads a JSON price table from the given file and merges it
// over the defaults, so deployments only list the models whose pricing
// differs or is missing.
func LoadPrices(path string) (PriceTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read price table: %w", err)
	}
	var overrides PriceTable
	if err := json.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("parse price table %s: %w", path, err)
	}

	table := DefaultPrices()
	for model, price := range overrides {
		table[model] = price
	}
	return table, nil
}

// Cost computes the dollar cost of one round of usage for a model.
// Unknown models cost zero; token accounting never depends on pricing.
func (p PriceTable) Cost(model string, u llm.Usage) float64 {
	price, ok := p[model]
	if !ok {
		log.Warn("no pricing for model %q, recording zero cost", model)
		return 0
	}
	return float64(u.PromptTokens)/1e6*price.InputPerMillion +
		float64(u.CompletionTokens)/1e6*price.OutputPerMillion
}

// Fold merges one round of model usage into the running totals
func Fold(t Totals, model string, u llm.Usage, prices PriceTable) Totals {
	t.Model = model
	t.InputTokens += u.PromptTokens
	t.OutputTokens += u.CompletionTokens
	t.TotalTokens += u.TotalTokens
	t.CostUSD += prices.Cost(model, u)
	t.Rounds++
	return t
}

// Merge combines two totals, for callers that aggregate across requests
func Merge(a, b Totals) Totals {
	if a.Model == "" {
		a.Model = b.Model
	}
	a.InputTokens += b.InputTokens
	a.OutputTokens += b.OutputTokens
	a.TotalTokens += b.TotalTokens
	a.CostUSD += b.CostUSD
	a.Rounds += b.Rounds
	return a
}
