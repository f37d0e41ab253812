package speech

// TTSRequest 语音合成请求
type TTSRequest struct {
	Text           string `json:"text"`
	ConversationID string `json:"conversationId"`
	VoiceID        string `json:"voiceId"`
}
