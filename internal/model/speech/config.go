package speech

import "time"

// SpeechConfig 语音服务配置
type SpeechConfig struct {
	// Deepgram 语音识别
	DeepgramAPIKey    string        `json:"-"`
	DeepgramBaseURL   string        `json:"deepgramBaseUrl"`
	DeepgramListenURL string        `json:"deepgramListenUrl"`
	DeepgramModel     string        `json:"deepgramModel"`
	EphemeralKeyTTL   int           `json:"ephemeralKeyTtl"` // seconds
	SampleRate        int           `json:"sampleRate"`
	MaxRetries        int           `json:"maxRetries"`
	RetryDelay        time.Duration `json:"retryDelay"`
	ProjectIDCacheTTL time.Duration `json:"projectIdCacheTtl"`

	// Azure 语音合成
	AzureKey     string        `json:"-"`
	AzureRegion  string        `json:"azureRegion"`
	AzureBaseURL string        `json:"azureBaseUrl,omitempty"` // 为空时按 region 拼接
	DefaultVoice string        `json:"defaultVoice"`
	OutputFormat string        `json:"outputFormat"`
	Timeout      time.Duration `json:"timeout"`
}
