package speech

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/echo-voice/backend/internal/model/chat"
	speechmodel "github.com/zhouzirui/echo-voice/backend/internal/model/speech"
	"github.com/zhouzirui/echo-voice/backend/internal/storage"
	"github.com/zhouzirui/echo-voice/backend/pkg/utils"
)

// Synthesizer 文本转音频的最小接口。
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// MetricRecorder 记录附加统计数据，写入失败不影响调用方。
type MetricRecorder interface {
	RecordMetrics(ctx context.Context, sessionID string, rows ...chat.AnalyticsMetric)
}

// Service 语音服务核心业务逻辑
type Service struct {
	config   *speechmodel.SpeechConfig
	synth    Synthesizer
	uploader storage.Uploader
	metrics  MetricRecorder
	issuer   *CredentialIssuer
	pool     *ConnectionPool
	log      *logrus.Logger
	now      func() time.Time
}

// Options 创建 Service 时可选的依赖，nil 表示能力关闭。
type Options struct {
	Synthesizer Synthesizer
	Uploader    storage.Uploader
	Metrics     MetricRecorder
	Issuer      *CredentialIssuer
	Pool        *ConnectionPool
}

// NewService 创建语音服务实例
func NewService(config *speechmodel.SpeechConfig, opts Options, log *logrus.Logger) *Service {
	pool := opts.Pool
	if pool == nil {
		poolOpts := DefaultConnectionPoolOptions()
		if config.MaxRetries > 0 {
			poolOpts.Retry.Attempts = config.MaxRetries
		}
		if config.RetryDelay > 0 {
			poolOpts.Retry.Delay = config.RetryDelay
		}
		pool = NewConnectionPool(poolOpts, log)
	}

	return &Service{
		config:   config,
		synth:    opts.Synthesizer,
		uploader: opts.Uploader,
		metrics:  opts.Metrics,
		issuer:   opts.Issuer,
		pool:     pool,
		log:      log,
		now:      time.Now,
	}
}

// Cleanup 清理资源
func (s *Service) Cleanup() {
	if s.pool != nil {
		s.pool.Cleanup()
	}
}

// IssueCredential 签发浏览器使用的临时 Deepgram 凭证。
func (s *Service) IssueCredential(ctx context.Context) (speechmodel.Credential, error) {
	if s.issuer == nil {
		return speechmodel.Credential{}, &CredentialError{Message: "DEEPGRAM_API_KEY environment variable not configured"}
	}
	return s.issuer.Issue(ctx)
}

// Synthesize 合成语音。供应商失败时返回 fallback 而不是错误，仅空文本返回错误。
func (s *Service) Synthesize(ctx context.Context, req speechmodel.TTSRequest) (*speechmodel.TTSResponse, *speechmodel.TTSFallback, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, nil, utils.E(utils.CodeInvalidArgument, "speech.Service.Synthesize", "text is required", nil)
	}

	voice := ResolveVoice(req.VoiceID, s.config.DefaultVoice)
	fallback := &speechmodel.TTSFallback{
		Success:      true,
		Text:         req.Text,
		UseClientTTS: true,
		VoiceID:      req.VoiceID,
	}

	if s.synth == nil {
		return nil, fallback, nil
	}

	audio, err := s.synth.Synthesize(ctx, req.Text, voice)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"conversation_id": req.ConversationID,
			"voice":           voice,
		}).WithError(err).Warn("tts failed, falling back to client synthesis")
		return nil, fallback, nil
	}

	created := s.now().UTC()
	resp := &speechmodel.TTSResponse{
		AudioData:   audio,
		ContentType: "audio/mpeg",
		Voice:       voice,
		CreatedAt:   created,
	}
	resp.AudioURL = s.upload(ctx, req.ConversationID, created, audio)

	if s.metrics != nil && req.ConversationID != "" {
		s.metrics.RecordMetrics(ctx, req.ConversationID,
			chat.LabelMetric(req.ConversationID, chat.MetricAudioGenerated, resp.AudioURL))
	}
	return resp, nil, nil
}

func (s *Service) upload(ctx context.Context, conversationID string, created time.Time, audio []byte) string {
	if s.uploader == nil {
		return ""
	}
	name := AudioObjectName(conversationID, created)
	url, err := s.uploader.Upload(ctx, name, "audio/mpeg", bytes.NewReader(audio))
	if err != nil {
		s.log.WithField("object", name).WithError(err).Warn("audio upload failed")
		return ""
	}
	return url
}

// AudioObjectName 合成音频在存储桶中的对象名。
func AudioObjectName(conversationID string, t time.Time) string {
	if conversationID == "" {
		conversationID = "anonymous"
	}
	return fmt.Sprintf("conversation_%s_%d.mp3", conversationID, t.UnixMilli())
}

// OpenCapture 以服务端密钥建立一路 Deepgram 流式识别会话。
func (s *Service) OpenCapture(ctx context.Context, sessionID string, onTranscript func(speechmodel.Transcript)) (*CaptureSession, error) {
	if s.issuer == nil {
		return nil, &CredentialError{Message: "DEEPGRAM_API_KEY environment variable not configured"}
	}
	listenURL, err := s.issuer.ListenURL()
	if err != nil {
		return nil, err
	}
	return s.pool.OpenCapture(ctx, listenURL, s.issuer.MasterHeader(), sessionID, onTranscript)
}
