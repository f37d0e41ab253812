package chat

import (
	"context"

	"github.com/cloudwego/eino/compose"

	"github.com/zhouzirui/echo-voice/backend/internal/analysis/intent"
	"github.com/zhouzirui/echo-voice/backend/internal/model/chat"
)

// turnState flows through the analyze -> select -> handoff chain.
type turnState struct {
	Request       chat.TurnRequest
	Analysis      intent.Analysis
	Reply         intent.Reply
	HandoffNeeded bool
}

func buildPipeline(ctx context.Context) (compose.Runnable[*turnState, *turnState], error) {
	chain := compose.NewChain[*turnState, *turnState]()
	chain.
		AppendLambda(compose.InvokableLambda[*turnState, *turnState](analyzeStep)).
		AppendLambda(compose.InvokableLambda[*turnState, *turnState](selectStep)).
		AppendLambda(compose.InvokableLambda[*turnState, *turnState](handoffStep))

	return chain.Compile(ctx)
}

func analyzeStep(_ context.Context, st *turnState) (*turnState, error) {
	st.Analysis = intent.Analyze(st.Request.Message, st.Request.ConversationHistory)
	return st, nil
}

func selectStep(_ context.Context, st *turnState) (*turnState, error) {
	st.Reply = intent.Select(st.Analysis, st.Request.Message, st.Request.ConversationHistory)
	return st, nil
}

func handoffStep(_ context.Context, st *turnState) (*turnState, error) {
	st.HandoffNeeded = intent.ShouldHandoff(st.Analysis)
	return st, nil
}
