package model

import "time"

// APIUsage is one ledger row for a call to the language model API.
type APIUsage struct {
	ID           int64     `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Endpoint     string    `json:"endpoint"`
	Model        string    `json:"model"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	RunID        string    `json:"run_id,omitempty"`
}

// TokensUsed returns input plus output tokens.
func (u APIUsage) TokensUsed() int64 {
	return u.InputTokens + u.OutputTokens
}
