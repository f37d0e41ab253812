package speech

import (
	"strings"

	speechmodel "github.com/zhouzirui/echo-voice/backend/internal/model/speech"
)

// DefaultVoice 未指定音色时使用。
const DefaultVoice = "en-US-AriaNeural"

// voiceAliases 前端历史音色名到 Azure 神经网络音色的映射。
var voiceAliases = map[string]string{
	"English_Trustworth_Man": "en-US-GuyNeural",
}

var voiceCatalog = []speechmodel.Voice{
	{ID: "en-US-AriaNeural", Name: "Aria", Language: "en-US", Gender: "Female"},
	{ID: "en-US-GuyNeural", Name: "Guy", Language: "en-US", Gender: "Male"},
	{ID: "en-US-JennyNeural", Name: "Jenny", Language: "en-US", Gender: "Female"},
	{ID: "en-US-DavisNeural", Name: "Davis", Language: "en-US", Gender: "Male"},
	{ID: "en-GB-SoniaNeural", Name: "Sonia", Language: "en-GB", Gender: "Female"},
	{ID: "en-GB-RyanNeural", Name: "Ryan", Language: "en-GB", Gender: "Male"},
}

// ResolveVoice 将请求中的音色名解析为 Azure 音色，空值回落到 fallback。
func ResolveVoice(requested, fallback string) string {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		if fallback != "" {
			return fallback
		}
		return DefaultVoice
	}
	if mapped, ok := voiceAliases[requested]; ok {
		return mapped
	}
	return requested
}

// Voices 返回可选音色列表。
func Voices() []speechmodel.Voice {
	out := make([]speechmodel.Voice, len(voiceCatalog))
	copy(out, voiceCatalog)
	return out
}
