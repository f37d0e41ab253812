package chat

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/echo-voice/backend/internal/model/chat"
	chatService "github.com/zhouzirui/echo-voice/backend/internal/service/chat"
	"github.com/zhouzirui/echo-voice/backend/internal/store"
	"github.com/zhouzirui/echo-voice/backend/pkg/utils"
)

const (
	defaultMessageLimit = 100
	maxMessageLimit     = 500
)

// Handler 对话回合的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	store   store.Store
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, s store.Store) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		store:   s,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat-response", h.handleChatResponse)
	r.Get("/sessions/{sessionID}/messages", h.handleListMessages)
}

// handleChatResponse 处理一次用户发言，返回 {data: TurnResult}
func (h *Handler) handleChatResponse(w http.ResponseWriter, r *http.Request) {
	var payload chat.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondAppError(w, utils.E(utils.CodeInvalidArgument, "chat.handleChatResponse", "invalid request body", err), utils.CodeInvalidArgument)
		return
	}

	result, err := h.chatSvc.HandleTurn(r.Context(), payload)
	if err != nil {
		utils.RespondAppError(w, err, utils.CodeChatResponseFailed)
		return
	}

	utils.RespondData(w, http.StatusOK, result)
}

// handleListMessages 返回已持久化的会话消息，按时间升序
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		utils.RespondAppError(w, utils.E(utils.CodeInvalidArgument, "chat.handleListMessages", "sessionID is required", nil), utils.CodeInvalidArgument)
		return
	}

	limit := defaultMessageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			utils.RespondAppError(w, utils.E(utils.CodeInvalidArgument, "chat.handleListMessages", "limit must be a positive integer", err), utils.CodeInvalidArgument)
			return
		}
		limit = min(n, maxMessageLimit)
	}

	messages, err := h.store.ListMessages(r.Context(), store.MessageQuery{SessionID: sessionID, Limit: limit})
	if err != nil {
		utils.RespondAppError(w, utils.E(utils.CodeUnavailable, "chat.handleListMessages", "failed to load messages", err), utils.CodeUnavailable)
		return
	}
	if messages == nil {
		messages = []chat.Message{}
	}

	utils.RespondData(w, http.StatusOK, messages)
}
