package analytics

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	analyticsService "github.com/zhouzirui/echo-voice/backend/internal/service/analytics"
	"github.com/zhouzirui/echo-voice/backend/pkg/utils"
)

// SummaryService 抽象统计汇总，便于测试
type SummaryService interface {
	Summary(ctx context.Context) (analyticsService.Summary, error)
}

// Handler 统计看板的HTTP处理器
type Handler struct {
	svc      SummaryService
	interval time.Duration
	log      *logrus.Logger
}

// New 创建统计处理器，interval 为 SSE 推送间隔
func New(svc SummaryService, interval time.Duration, log *logrus.Logger) *Handler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Handler{svc: svc, interval: interval, log: log}
}

// RegisterRoutes 注册统计相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/analytics", func(ar chi.Router) {
		ar.Get("/summary", h.handleSummary)
		ar.Get("/stream", h.handleStream)
	})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Summary(r.Context())
	if err != nil {
		h.log.WithError(err).Error("analytics summary failed")
		utils.RespondAppError(w, err, utils.CodeInternal)
		return
	}
	utils.RespondData(w, http.StatusOK, summary)
}

// handleStream 通过 SSE 周期性推送汇总，客户端断开即结束
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)

	ctx := r.Context()
	h.log.Debug("opening analytics stream")

	if err := utils.SendSSEEvent(w, flusher, "status", map[string]string{"message": "stream established"}); err != nil {
		return
	}
	if !h.pushSummary(ctx, w, flusher) {
		return
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Debug("closing analytics stream")
			return
		case <-ticker.C:
			if !h.pushSummary(ctx, w, flusher) {
				return
			}
		}
	}
}

// pushSummary 返回 false 表示连接已不可写
func (h *Handler) pushSummary(ctx context.Context, w http.ResponseWriter, flusher http.Flusher) bool {
	summary, err := h.svc.Summary(ctx)
	if err != nil {
		h.log.WithError(err).Warn("analytics summary failed")
		return utils.SendSSEEvent(w, flusher, "error", map[string]string{"message": utils.MessageOf(err)}) == nil
	}
	return utils.SendSSEEvent(w, flusher, "summary", summary) == nil
}
