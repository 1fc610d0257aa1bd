package llm

// Usage: 토큰 사용량 정보를 담습니다.
type Usage struct {
	InputTokens     int `json:"input_tokens"`
	OutputTokens    int `json:"output_tokens"`
	TotalTokens     int `json:"total_tokens"`
	ReasoningTokens int `json:"reasoning_tokens"`
	CachedTokens    int `json:"cached_tokens"` // 암시적 캐싱된 토큰 수 (CachedContentTokenCount)
}

// Add: 두 사용량을 합칩니다.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:     u.InputTokens + other.InputTokens,
		OutputTokens:    u.OutputTokens + other.OutputTokens,
		TotalTokens:     u.TotalTokens + other.TotalTokens,
		ReasoningTokens: u.ReasoningTokens + other.ReasoningTokens,
		CachedTokens:    u.CachedTokens + other.CachedTokens,
	}
}

// CacheHitRatio: 캐시 적중률을 계산합니다 (0.0 ~ 1.0).
// InputTokens가 0이면 0을 반환합니다.
func (u Usage) CacheHitRatio() float64 {
	if u.InputTokens == 0 {
		return 0
	}
	return float64(u.CachedTokens) / float64(u.InputTokens)
}

// EstimateCostUSD: 백만 토큰당 단가로 비용을 추정합니다. 추론 토큰은 출력 단가로 계산됩니다.
func EstimateCostUSD(inputTokens int64, outputTokens int64, inputPricePerMTok float64, outputPricePerMTok float64) float64 {
	return (float64(inputTokens)*inputPricePerMTok + float64(outputTokens)*outputPricePerMTok) / 1_000_000
}
