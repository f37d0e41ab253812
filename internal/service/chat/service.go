package chat

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/echo-voice/backend/internal/model/chat"
	"github.com/zhouzirui/echo-voice/backend/pkg/utils"
)

// Service handles one conversational turn at a time. It holds no per-request
// state; Sessions is only consulted by callers that lack client history.
type Service struct {
	pipeline compose.Runnable[*turnState, *turnState]
	recorder *Recorder
	sessions *Sessions
	log      *logrus.Logger
	now      func() time.Time
}

// NewService compiles the turn pipeline.
func NewService(ctx context.Context, recorder *Recorder, sessions *Sessions, log *logrus.Logger) (*Service, error) {
	pipeline, err := buildPipeline(ctx)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, "chat.NewService", "compile turn pipeline", err)
	}
	if sessions == nil {
		sessions = NewSessions(0)
	}
	return &Service{
		pipeline: pipeline,
		recorder: recorder,
		sessions: sessions,
		log:      log,
		now:      time.Now,
	}, nil
}

// HandleTurn analyzes the message, selects a reply and hands persistence to
// the recorder. The reply is returned whether or not persistence succeeds.
func (s *Service) HandleTurn(ctx context.Context, req chat.TurnRequest) (chat.TurnResult, error) {
	const op = "chat.Service.HandleTurn"

	if strings.TrimSpace(req.Message) == "" || strings.TrimSpace(req.SessionID) == "" {
		return chat.TurnResult{}, utils.E(utils.CodeInvalidArgument, op, "Message and sessionId are required", nil)
	}

	start := s.now()
	st, err := s.pipeline.Invoke(ctx, &turnState{Request: req})
	if err != nil {
		return chat.TurnResult{}, utils.E(utils.CodeChatResponseFailed, op, "failed to process message", err)
	}
	latency := s.now().Sub(start)

	if s.recorder != nil {
		s.recorder.Record(ctx, TurnRecord{
			SessionID:     req.SessionID,
			UserMessage:   req.Message,
			Analysis:      st.Analysis,
			Reply:         st.Reply,
			HandoffNeeded: st.HandoffNeeded,
			Latency:       latency,
		})
	}

	s.sessions.Append(req.SessionID,
		chat.HistoryEntry{Role: chat.RoleUser, Content: req.Message},
		chat.HistoryEntry{Role: chat.RoleAssistant, Content: st.Reply.Content, Intent: string(st.Analysis.Intent)},
	)

	s.log.WithFields(logrus.Fields{
		"session_id": req.SessionID,
		"intent":     st.Analysis.Intent,
		"handoff":    st.HandoffNeeded,
	}).Debug("turn handled")

	return chat.TurnResult{
		Response:      st.Reply.Content,
		Intent:        string(st.Analysis.Intent),
		Confidence:    st.Analysis.Confidence,
		Sentiment:     st.Analysis.Sentiment,
		HandoffNeeded: st.HandoffNeeded,
		Suggestions:   st.Reply.Suggestions,
	}, nil
}

// History returns the server-side history for a session.
func (s *Service) History(sessionID string) []chat.HistoryEntry {
	return s.sessions.History(sessionID)
}

// Recorder exposes the best-effort writer for auxiliary metrics.
func (s *Service) Recorder() *Recorder {
	return s.recorder
}
