package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"nof0-agent/pkg/llm"
)

// LLMBackend invokes the teacher's LLM transport (pkg/llm, kept intact as
// the HTTP chat-completions collaborator named in spec §1's out-of-scope
// list — "the large-language-model planner transport itself") with
// structured output enforcing the BackendOutput schema, generalizing the
// prompt-building half of the teacher's executor.BasicExecutor.
// GetFullDecision away from the leveraged-perp prompt toward the core's
// buy/sell vocabulary. Strategy text is accepted as an opaque string per
// spec §1's non-goal ("discretionary strategy content").
type LLMBackend struct {
	client     llm.LLMClient
	model      string
	strategy   string
}

// NewLLMBackend constructs an LLMBackend. strategy is opaque planner
// guidance text, never interpreted by this package.
func NewLLMBackend(client llm.LLMClient, model, strategy string) *LLMBackend {
	return &LLMBackend{client: client, model: model, strategy: strategy}
}

// Propose implements Backend.
func (b *LLMBackend) Propose(ctx context.Context, input Input) (BackendOutput, error) {
	prompt := b.renderPrompt(input)
	req := &llm.ChatRequest{
		Model: b.model,
		Messages: []llm.Message{
			{Role: "system", Content: "You are a trading planner. Respond only with the requested JSON shape."},
			{Role: "user", Content: prompt},
		},
	}

	var out BackendOutput
	if _, err := b.client.ChatStructured(ctx, req, &out); err != nil {
		return BackendOutput{}, fmt.Errorf("planner: llm backend: %w", err)
	}
	return out, nil
}

func (b *LLMBackend) renderPrompt(input Input) string {
	var sb strings.Builder
	if b.strategy != "" {
		sb.WriteString("Strategy guidance:\n")
		sb.WriteString(b.strategy)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Token context (JSON):\n")
	data, err := json.Marshal(input.TokenContexts)
	if err != nil {
		logx.Errorf("planner: marshal token context failed: %v", err)
	} else {
		sb.Write(data)
	}
	sb.WriteString("\n\nRespond with {\"notes\": [...], \"intents\": [{\"signal\": \"buy|sell|hold\", \"mint\": \"...\", \"amount_lamports\": \"...\", \"slippage_bps\": N}]}.")
	return sb.String()
}

// HybridBackend tries primary (typically an LLMBackend) and falls back to
// fallback (typically a RuleBackend) on any error or context deadline,
// matching spec §4.7 step 2 and §7's PlannerUnavailable contract for
// hybrid mode.
type HybridBackend struct {
	Primary  Backend
	Fallback Backend
}

// Propose implements Backend.
func (h *HybridBackend) Propose(ctx context.Context, input Input) (BackendOutput, error) {
	out, err := h.Primary.Propose(ctx, input)
	if err == nil {
		return out, nil
	}
	logx.Errorf("planner: primary backend unavailable, falling back to rule backend: %v", err)
	return h.Fallback.Propose(ctx, input)
}
