package intent

const (
	// NegativeSentimentThreshold 低于该值视为负面情绪。
	NegativeSentimentThreshold = 0.3
	// LowConfidenceThreshold 低于该值视为无法可靠识别。
	LowConfidenceThreshold = 0.4
)

const (
	ReasonHumanRequested    = "User requested human agent"
	ReasonNegativeSentiment = "Negative sentiment detected"
	ReasonUrgent            = "Urgent request detected"
	ReasonLowConfidence     = "Low confidence in intent detection"
)

// ShouldHandoff 判断本轮是否需要转人工。
func ShouldHandoff(a Analysis) bool {
	return a.RequestsHuman ||
		a.Sentiment < NegativeSentimentThreshold ||
		a.Confidence < LowConfidenceThreshold ||
		a.IsUrgent
}

// HandoffRecordReason 返回写入 handoffs 表的原因，按实际触发的条件给出。
func HandoffRecordReason(a Analysis) string {
	if a.HandoffReason != "" {
		return a.HandoffReason
	}
	if a.IsUrgent {
		return ReasonUrgent
	}
	if a.Confidence < LowConfidenceThreshold {
		return ReasonLowConfidence
	}
	return ""
}
