package llm

// Pricing converts token counts to USD
type Pricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

// Cost returns the USD cost of one call
func (p Pricing) Cost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1000*p.InputPer1K + float64(completionTokens)/1000*p.OutputPer1K
}
