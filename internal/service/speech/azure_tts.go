package speech

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	speechmodel "github.com/zhouzirui/echo-voice/backend/internal/model/speech"
)

// AzureTTSClient Azure 认知服务语音合成客户端
type AzureTTSClient struct {
	client *resty.Client
	config *speechmodel.SpeechConfig
}

// NewAzureTTSClient 创建 Azure TTS 客户端
func NewAzureTTSClient(config *speechmodel.SpeechConfig) *AzureTTSClient {
	baseURL := config.AzureBaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.tts.speech.microsoft.com", config.AzureRegion)
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(config.Timeout)
	client.SetHeader("Ocp-Apim-Subscription-Key", config.AzureKey)

	return &AzureTTSClient{client: client, config: config}
}

// Synthesize 合成一段文本，返回 MP3 音频。
func (c *AzureTTSClient) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if c.config.AzureKey == "" {
		return nil, fmt.Errorf("azure tts key not configured")
	}

	format := c.config.OutputFormat
	if format == "" {
		format = "audio-24khz-48kbitrate-mono-mp3"
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/ssml+xml").
		SetHeader("X-Microsoft-OutputFormat", format).
		SetBody(BuildSSML(text, voice)).
		Post("/cognitiveservices/v1")
	if err != nil {
		return nil, fmt.Errorf("azure tts request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("azure tts returned status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(resp.Body()) == 0 {
		return nil, fmt.Errorf("azure tts returned empty audio")
	}
	return resp.Body(), nil
}

// BuildSSML 生成固定语速 0.9 的 SSML 文档，voice 与 text 都会做 XML 转义。
func BuildSSML(text, voice string) string {
	var b strings.Builder
	b.WriteString(`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang="en-US">`)
	b.WriteString(`<voice name="`)
	b.WriteString(escapeXML(voice))
	b.WriteString(`"><prosody rate="0.9">`)
	b.WriteString(escapeXML(text))
	b.WriteString(`</prosody></voice></speak>`)
	return b.String()
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	// EscapeText 只会在写入失败时返回错误，bytes.Buffer 不会失败。
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
