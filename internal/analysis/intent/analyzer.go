package intent

import (
	"regexp"

	"github.com/zhouzirui/echo-voice/backend/internal/model/chat"
)

// Label 表示可识别的用户意图。
type Label string

const (
	Greeting       Label = "greeting"
	Help           Label = "help"
	Refund         Label = "refund"
	Billing        Label = "billing"
	Account        Label = "account"
	Technical      Label = "technical"
	Feedback       Label = "feedback"
	Farewell       Label = "farewell"
	GeneralInquiry Label = "general_inquiry"
)

const (
	matchedConfidence  = 0.85
	fallbackConfidence = 0.5

	negativeSentiment = 0.2
	positiveSentiment = 0.8
	neutralSentiment  = 0.5
)

// Analysis 是单条用户消息的识别结果。
type Analysis struct {
	Intent        Label
	Confidence    float64
	Sentiment     float64
	IsUrgent      bool
	RequestsHuman bool
	HandoffReason string
}

type rule struct {
	label   Label
	pattern *regexp.Regexp
}

// 顺序即优先级，第一条命中的规则决定意图。
var intentRules = []rule{
	{Greeting, regexp.MustCompile(`(?i)^(hi|hello|hey|good morning|good afternoon)`)},
	{Help, regexp.MustCompile(`(?i)(help|support|assist|need|problem|issue)`)},
	{Refund, regexp.MustCompile(`(?i)(refund|money back|return|reimburse)`)},
	{Billing, regexp.MustCompile(`(?i)(bill|invoice|charge|payment|cost|price)`)},
	{Account, regexp.MustCompile(`(?i)(account|login|password|access|profile)`)},
	{Technical, regexp.MustCompile(`(?i)(not working|broken|error|bug|crash|fix)`)},
	{Feedback, regexp.MustCompile(`(?i)(feedback|complaint|suggestion|review)`)},
	{Farewell, regexp.MustCompile(`(?i)(bye|goodbye|thanks|thank you|that's all)`)},
}

var (
	positivePattern = regexp.MustCompile(`(?i)(great|good|thanks|thank|excellent|happy|love|appreciate)`)
	negativePattern = regexp.MustCompile(`(?i)(bad|terrible|awful|hate|angry|frustrated|disappointed|poor|worst)`)
	urgentPattern   = regexp.MustCompile(`(?i)(urgent|immediately|asap|emergency|critical|now)`)
	humanPattern    = regexp.MustCompile(`(?i)(speak to|talk to|human|agent|person|representative)`)
)

// Analyze 基于关键词规则识别意图、情绪、紧急程度以及是否要求人工。
// history 目前不参与判断。
func Analyze(message string, _ []chat.HistoryEntry) Analysis {
	result := Analysis{Intent: GeneralInquiry, Confidence: fallbackConfidence}
	for _, r := range intentRules {
		if r.pattern.MatchString(message) {
			result.Intent = r.label
			result.Confidence = matchedConfidence
			break
		}
	}

	result.Sentiment = scoreSentiment(message)
	result.IsUrgent = urgentPattern.MatchString(message)
	result.RequestsHuman = humanPattern.MatchString(message)

	switch {
	case result.RequestsHuman:
		result.HandoffReason = ReasonHumanRequested
	case result.Sentiment < NegativeSentimentThreshold:
		result.HandoffReason = ReasonNegativeSentiment
	}
	return result
}

// 负面词优先于正面词。
func scoreSentiment(message string) float64 {
	switch {
	case negativePattern.MatchString(message):
		return negativeSentiment
	case positivePattern.MatchString(message):
		return positiveSentiment
	default:
		return neutralSentiment
	}
}
