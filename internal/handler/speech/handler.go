package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/echo-voice/backend/internal/model/chat"
	"github.com/zhouzirui/echo-voice/backend/internal/model/speech"
	speechsvc "github.com/zhouzirui/echo-voice/backend/internal/service/speech"
	"github.com/zhouzirui/echo-voice/backend/pkg/utils"
)

// SpeechService 抽象语音业务，便于测试与替换实现
type SpeechService interface {
	IssueCredential(ctx context.Context) (speech.Credential, error)
	Synthesize(ctx context.Context, req speech.TTSRequest) (*speech.TTSResponse, *speech.TTSFallback, error)
	OpenCapture(ctx context.Context, sessionID string, onTranscript func(speech.Transcript)) (*speechsvc.CaptureSession, error)
}

// TurnService 语音链路最终交给对话服务处理
type TurnService interface {
	HandleTurn(ctx context.Context, req chat.TurnRequest) (chat.TurnResult, error)
	History(sessionID string) []chat.HistoryEntry
}

// Options 语音处理器的可选行为
type Options struct {
	// RequireSecure 为 true 时拒绝非 HTTPS 的语音 WebSocket。
	RequireSecure bool
}

// Handler 语音服务的HTTP处理器
type Handler struct {
	speechSvc SpeechService
	ws        *WebSocketHandler
	log       *logrus.Logger
}

// New 创建语音处理器，turns 为 nil 时不注册语音 WebSocket。
func New(speechSvc SpeechService, turns TurnService, opts Options, log *logrus.Logger) *Handler {
	h := &Handler{speechSvc: speechSvc, log: log}
	if turns != nil {
		h.ws = NewWebSocketHandler(speechSvc, turns, opts.RequireSecure, log)
	}
	return h
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/deepgram-websocket-url", h.handleCredential)
	r.Post("/tts", h.handleSynthesize)

	r.Route("/speech", func(speechRouter chi.Router) {
		speechRouter.Get("/voices", h.handleVoices)
		speechRouter.Get("/health", h.handleHealth)
	})

	if h.ws != nil {
		h.ws.RegisterWebSocketRoutes(r)
	} else {
		r.Get("/voice/ws/{sessionID}", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondError(w, http.StatusNotImplemented, "voice websocket not available")
		})
	}
}

// handleCredential 为浏览器签发 Deepgram 临时凭证
func (h *Handler) handleCredential(w http.ResponseWriter, r *http.Request) {
	cred, err := h.speechSvc.IssueCredential(r.Context())
	if err != nil {
		failure := speech.CredentialFailure{Error: err.Error(), Success: false}
		var ce *speechsvc.CredentialError
		if errors.As(err, &ce) {
			failure.Error = ce.Message
			failure.Details = ce.Details
			if failure.Details == "" && ce.Err != nil {
				failure.Details = ce.Err.Error()
			}
		}
		h.log.WithError(err).Error("deepgram credential failed")
		utils.RespondJSON(w, http.StatusInternalServerError, failure)
		return
	}

	utils.RespondJSON(w, http.StatusOK, cred)
}

// handleSynthesize 文本转语音，成功时直接返回音频字节
func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req speech.TTSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondAppError(w, utils.E(utils.CodeInvalidArgument, "speech.handleSynthesize", "invalid request body", err), utils.CodeInvalidArgument)
		return
	}

	resp, fallback, err := h.speechSvc.Synthesize(r.Context(), req)
	if err != nil {
		utils.RespondAppError(w, err, utils.CodeInternal)
		return
	}
	if fallback != nil {
		utils.RespondJSON(w, http.StatusOK, fallback)
		return
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.AudioData)))
	if resp.AudioURL != "" {
		w.Header().Set("X-Audio-URL", resp.AudioURL)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.AudioData); err != nil {
		h.log.WithError(err).Warn("failed to write audio response")
	}
}

// handleVoices 返回可选音色
func (h *Handler) handleVoices(w http.ResponseWriter, _ *http.Request) {
	utils.RespondData(w, http.StatusOK, speechsvc.Voices())
}

// handleHealth 健康检查端点
func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "speech",
	})
}
