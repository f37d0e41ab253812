package speech

import "time"

// Credential 浏览器直连 Deepgram 使用的临时凭证
type Credential struct {
	WSURL     string  `json:"wsUrl"`
	Token     string  `json:"token"`
	ExpiresAt *string `json:"expiresAt"`
	Success   bool    `json:"success"`
}

// CredentialFailure 凭证接口的失败响应
type CredentialFailure struct {
	Error   string  `json:"error"`
	Details string  `json:"details,omitempty"`
	WSURL   *string `json:"wsUrl"`
	Success bool    `json:"success"`
}

// TTSResponse 语音合成结果
type TTSResponse struct {
	AudioData   []byte    `json:"-"`
	AudioURL    string    `json:"audioUrl,omitempty"`
	ContentType string    `json:"contentType"`
	Voice       string    `json:"voice"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TTSFallback 指示调用方改用本地语音合成
type TTSFallback struct {
	Success      bool   `json:"success"`
	Text         string `json:"text"`
	UseClientTTS bool   `json:"useClientTTS"`
	VoiceID      string `json:"voiceId"`
}

// Transcript 识别结果片段
type Transcript struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"isFinal"`
}

// Voice 可用音色
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Gender   string `json:"gender"`
}
