package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/echo-voice/backend/internal/model/chat"
	"github.com/zhouzirui/echo-voice/backend/internal/model/speech"
	speechsvc "github.com/zhouzirui/echo-voice/backend/internal/service/speech"
	"github.com/zhouzirui/echo-voice/backend/pkg/utils"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
)

// WebSocketHandler 浏览器语音中继：接收 PCM16 帧转发给 Deepgram，停止后跑一轮对话。
type WebSocketHandler struct {
	speechSvc     SpeechService
	turns         TurnService
	requireSecure bool
	log           *logrus.Logger
	upgrader      websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(speechSvc SpeechService, turns TurnService, requireSecure bool, log *logrus.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		speechSvc:     speechSvc,
		turns:         turns,
		requireSecure: requireSecure,
		log:           log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/voice/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"` // start, stop, text, config
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

// ConfigMessage 配置消息
type ConfigMessage struct {
	Voice      string `json:"voice"`
	TTSEnabled *bool  `json:"ttsEnabled,omitempty"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// clientConn 串行化对浏览器连接的写入，识别回调与主循环会并发写。
type clientConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *clientConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(v)
}

func (c *clientConn) ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
}

type connectionState struct {
	sessionID  string
	voice      string
	ttsEnabled bool
	capture    *speechsvc.CaptureSession
}

func newConnectionState(sessionID string) *connectionState {
	return &connectionState{
		sessionID:  sessionID,
		ttsEnabled: true,
	}
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		utils.RespondAppError(w, utils.E(utils.CodeInvalidArgument, "speech.handleWebSocket", "sessionID is required", nil), utils.CodeInvalidArgument)
		return
	}

	if h.requireSecure && !isSecureRequest(r) {
		captureErr := speechsvc.NewCaptureError(speechsvc.InsecureContext, nil)
		utils.RespondAppError(w, utils.E(utils.CodeForbidden, "speech.handleWebSocket", captureErr.Error(), captureErr), utils.CodeForbidden)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer ws.Close()

	conn := &clientConn{conn: ws}
	state := newConnectionState(sessionID)
	logger := h.log.WithField("session_id", sessionID)
	logger.Info("voice websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		if state.capture != nil {
			state.capture.Close(ctx)
		}
		logger.Info("voice websocket closed")
	}()

	ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go h.pingLoop(ctx, conn)

	h.sendInfo(conn, sessionID, map[string]any{
		"type":       "connected",
		"sampleRate": speechsvc.CaptureSampleRate,
		"frameSize":  speechsvc.FrameSamples,
	})

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WithError(err).Warn("voice websocket read error")
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(readTimeout))

		if mt == websocket.BinaryMessage {
			// 未处于 streaming 状态的帧直接丢弃
			if state.capture != nil {
				state.capture.SendPCM(data)
			}
			continue
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(conn, "invalid message")
			continue
		}
		if msg.SessionID != "" && msg.SessionID != sessionID {
			h.sendError(conn, "session mismatch")
			continue
		}

		h.handleMessage(ctx, conn, state, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *clientConn, state *connectionState, msg *inboundMessage) {
	switch msg.Type {
	case "start":
		h.handleStart(ctx, conn, state)
	case "stop":
		h.handleStop(ctx, conn, state)
	case "text":
		h.handleTextMessage(ctx, conn, state, msg.Data)
	case "config":
		h.handleConfigMessage(conn, state, msg.Data)
	default:
		h.sendError(conn, "unsupported message type: "+msg.Type)
	}
}

func (h *WebSocketHandler) handleStart(ctx context.Context, conn *clientConn, state *connectionState) {
	if state.capture != nil && state.capture.State() != speechsvc.CaptureClosed {
		h.sendError(conn, "already listening")
		return
	}

	capture, err := h.speechSvc.OpenCapture(ctx, state.sessionID, func(t speech.Transcript) {
		h.sendInfo(conn, state.sessionID, map[string]any{
			"type":    "asr",
			"text":    t.Text,
			"isFinal": t.IsFinal,
		})
	})
	if err != nil {
		h.log.WithField("session_id", state.sessionID).WithError(err).Error("open capture failed")
		h.sendError(conn, "speech recognition unavailable")
		return
	}
	capture.Start()
	state.capture = capture

	h.sendInfo(conn, state.sessionID, map[string]any{"type": "listening"})
}

func (h *WebSocketHandler) handleStop(ctx context.Context, conn *clientConn, state *connectionState) {
	if state.capture == nil {
		h.sendError(conn, "not listening")
		return
	}

	capture := state.capture
	state.capture = nil
	transcript := strings.TrimSpace(capture.Close(ctx))
	stats := capture.Stats()

	h.log.WithFields(logrus.Fields{
		"session_id":     state.sessionID,
		"frames_sent":    stats.Sent,
		"frames_dropped": stats.Dropped,
	}).Debug("capture closed")

	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":    "asr",
		"text":    transcript,
		"isFinal": true,
		"stats":   stats,
	})

	if transcript == "" {
		return
	}
	h.processUserText(ctx, conn, state, transcript)
}

func (h *WebSocketHandler) handleTextMessage(ctx context.Context, conn *clientConn, state *connectionState, raw json.RawMessage) {
	var text TextMessage
	if err := json.Unmarshal(raw, &text); err != nil {
		h.sendError(conn, "invalid text payload")
		return
	}
	if strings.TrimSpace(text.Text) == "" {
		return
	}

	h.processUserText(ctx, conn, state, text.Text)
}

func (h *WebSocketHandler) processUserText(ctx context.Context, conn *clientConn, state *connectionState, userText string) {
	result, err := h.turns.HandleTurn(ctx, chat.TurnRequest{
		Message:             userText,
		SessionID:           state.sessionID,
		ConversationHistory: h.turns.History(state.sessionID),
	})
	if err != nil {
		h.sendError(conn, utils.MessageOf(err))
		return
	}

	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":          "turn",
		"text":          userText,
		"response":      result.Response,
		"intent":        result.Intent,
		"confidence":    result.Confidence,
		"sentiment":     result.Sentiment,
		"handoffNeeded": result.HandoffNeeded,
		"suggestions":   result.Suggestions,
	})

	if state.ttsEnabled && result.Response != "" {
		h.sendTTS(ctx, conn, state, result.Response)
	}
}

func (h *WebSocketHandler) sendTTS(ctx context.Context, conn *clientConn, state *connectionState, text string) {
	resp, fallback, err := h.speechSvc.Synthesize(ctx, speech.TTSRequest{
		Text:           text,
		ConversationID: state.sessionID,
		VoiceID:        state.voice,
	})
	if err != nil {
		h.sendError(conn, utils.MessageOf(err))
		return
	}

	if fallback != nil {
		h.sendInfo(conn, state.sessionID, map[string]any{
			"type":         "tts",
			"text":         fallback.Text,
			"useClientTTS": true,
			"voiceId":      fallback.VoiceID,
		})
		return
	}

	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":        "tts",
		"audioData":   base64.StdEncoding.EncodeToString(resp.AudioData),
		"contentType": resp.ContentType,
		"audioUrl":    resp.AudioURL,
		"voice":       resp.Voice,
		"isFinal":     true,
	})
}

func (h *WebSocketHandler) handleConfigMessage(conn *clientConn, state *connectionState, raw json.RawMessage) {
	var cfg ConfigMessage
	if err := json.Unmarshal(raw, &cfg); err != nil {
		h.sendError(conn, "invalid config payload")
		return
	}

	h.applyConfig(state, cfg)

	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":  "config",
		"voice": state.voice,
		"tts":   state.ttsEnabled,
	})
}

func (h *WebSocketHandler) applyConfig(state *connectionState, cfg ConfigMessage) {
	if cfg.Voice != "" {
		state.voice = cfg.Voice
	}
	if cfg.TTSEnabled != nil {
		state.ttsEnabled = *cfg.TTSEnabled
	}
}

func (h *WebSocketHandler) sendInfo(conn *clientConn, sessionID string, data map[string]any) {
	msg := outgoingMessage{
		Type:      "result",
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := conn.writeJSON(msg); err != nil {
		h.log.WithField("session_id", sessionID).WithError(err).Debug("write info failed")
	}
}

func (h *WebSocketHandler) sendError(conn *clientConn, message string) {
	msg := outgoingMessage{
		Type:      "error",
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().Unix(),
	}
	if err := conn.writeJSON(msg); err != nil {
		h.log.WithError(err).Debug("write error failed")
	}
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *clientConn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}

func isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
