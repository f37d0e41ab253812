package intent

import (
	"strings"

	"github.com/zhouzirui/echo-voice/backend/internal/model/chat"
)

// Reply 是为某条消息挑选出的固定回复。
type Reply struct {
	Content        string
	Suggestions    []string
	ContextSummary string
}

type template struct {
	content     string
	suggestions []string
}

var templates = map[Label]template{
	Greeting: {
		content:     "Hello! I'm Echo, your AI customer support assistant. How can I help you today?",
		suggestions: []string{"Account issues", "Billing questions", "Technical support", "General inquiry"},
	},
	Help: {
		content:     "I'm here to help! I can assist with account issues, billing questions, technical problems, and general inquiries. What would you like help with?",
		suggestions: []string{"Account access", "Billing inquiry", "Technical issue", "Product information"},
	},
	Refund: {
		content:     "I understand you're inquiring about a refund. To help you best, I'll need some information. Could you please provide your order number or describe the issue you're experiencing?",
		suggestions: []string{"Provide order number", "Describe the issue", "Speak to billing specialist"},
	},
	Billing: {
		content:     "I can help with billing questions. What specific billing issue are you experiencing? This could include invoices, payment methods, charges, or subscription details.",
		suggestions: []string{"View invoice", "Update payment method", "Question about charges", "Cancel subscription"},
	},
	Account: {
		content:     "I can assist with account-related issues. Are you having trouble logging in, need to update your profile, or have questions about account settings?",
		suggestions: []string{"Reset password", "Update email", "Account settings", "Delete account"},
	},
	Technical: {
		content:     "I'm sorry you're experiencing technical difficulties. Can you describe the problem in more detail? What were you trying to do when the issue occurred?",
		suggestions: []string{"Describe the problem", "Provide error message", "Connect with tech support"},
	},
	Feedback: {
		content:     "Thank you for sharing your feedback! Your input is valuable to us. Please tell me more about your experience so I can make sure your feedback reaches the right team.",
		suggestions: []string{"Share positive feedback", "Report an issue", "Suggest improvement"},
	},
	Farewell: {
		content:     "You're welcome! Is there anything else I can help you with today? If not, have a great day!",
		suggestions: []string{"Ask another question", "No, I'm all set", "Speak to human agent"},
	},
	GeneralInquiry: {
		content:     "I'm here to help! Could you please provide more details about what you need assistance with? I can help with accounts, billing, technical issues, and general questions about our services.",
		suggestions: []string{"Account help", "Billing question", "Technical support", "Product info"},
	},
}

var humanHandoffTemplate = template{
	content:     "I understand you'd like to speak with a human agent. I'm connecting you now with one of our customer support specialists who can provide personalized assistance. They'll have access to our conversation history.",
	suggestions: []string{"Wait for agent", "Continue with AI", "Leave a message"},
}

const (
	apologyPrefix      = "I sense you may be frustrated, and I sincerely apologize for any inconvenience. "
	offerHumanSuffix   = " If you'd prefer, I can connect you with a human agent for more personalized support."
	offerHumanSuggests = "Speak to human agent"
)

// Select 根据识别结果挑选回复模板，并生成供人工坐席参考的上下文摘要。
// 要求人工优先于负面情绪安抚。
func Select(a Analysis, _ string, history []chat.HistoryEntry) Reply {
	tpl, ok := templates[a.Intent]
	if !ok {
		tpl = templates[GeneralInquiry]
	}

	content := tpl.content
	suggestions := append([]string(nil), tpl.suggestions...)

	switch {
	case a.RequestsHuman:
		content = humanHandoffTemplate.content
		suggestions = append([]string(nil), humanHandoffTemplate.suggestions...)
	case a.Sentiment < NegativeSentimentThreshold:
		content = apologyPrefix + content + offerHumanSuffix
		suggestions = append(suggestions, offerHumanSuggests)
	}

	return Reply{
		Content:        content,
		Suggestions:    suggestions,
		ContextSummary: summarize(a.Intent, history),
	}
}

func summarize(current Label, history []chat.HistoryEntry) string {
	if len(history) == 0 {
		return "New conversation. User intent: " + string(current) + "."
	}

	intents := make([]string, 0, len(history))
	for _, entry := range history {
		if entry.Intent == "" {
			intents = append(intents, "general")
			continue
		}
		intents = append(intents, entry.Intent)
	}
	return "User has discussed: " + strings.Join(intents, ", ") + ". Current intent: " + string(current) + "."
}
