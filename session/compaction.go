package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/message"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/model"
)

// SummarySentinel prefixes the synthesized summary message's text, the
// marker spec.md §4.6 uses to recognize an existing summary on reload.
const SummarySentinel = "Previous conversation summary:"

// CompactionPolicy configures per-session compaction (spec.md §4.6).
type CompactionPolicy struct {
	Enabled            bool
	MessageThreshold   int
	KeepRecentMessages int
	SummaryModel       model.Model
	SummaryPrompt      string
}

func isSummaryMessage(m message.Message) bool {
	return m.Role == message.RoleSystem && strings.HasPrefix(m.ConcatText(), SummarySentinel)
}

// Apply runs the four-step compaction algorithm of spec.md §4.6 over the
// full current message list and returns the replacement list
// [summary, ...recent]. Returns an error (never a partial result) if
// producing the summary fails, so callers can fall back to a sliding window.
func (p CompactionPolicy) Apply(ctx context.Context, current []message.Message) ([]message.Message, error) {
	priorSummary := ""
	rest := current
	if len(current) > 0 && isSummaryMessage(current[0]) {
		priorSummary = strings.TrimSpace(strings.TrimPrefix(current[0].ConcatText(), SummarySentinel))
		rest = current[1:]
	}

	keep := p.KeepRecentMessages
	if keep < 0 {
		keep = 0
	}
	var toSummarize, recent []message.Message
	if len(rest) <= keep {
		recent = rest
	} else {
		toSummarize = rest[:len(rest)-keep]
		recent = rest[len(rest)-keep:]
	}

	summaryText, err := p.summarize(ctx, priorSummary, toSummarize)
	if err != nil {
		return nil, err
	}

	out := make([]message.Message, 0, 1+len(recent))
	out = append(out, message.NewText(message.RoleSystem, SummarySentinel+" "+summaryText))
	out = append(out, recent...)
	return out, nil
}

func (p CompactionPolicy) summarize(ctx context.Context, priorSummary string, toSummarize []message.Message) (string, error) {
	if p.SummaryModel == nil {
		return heuristicSummary(priorSummary, toSummarize), nil
	}

	prompt := p.SummaryPrompt
	if prompt == "" {
		prompt = "Summarize the conversation so far, preserving identity and key facts."
	}
	var b strings.Builder
	if priorSummary != "" {
		b.WriteString(priorSummary)
		b.WriteString("\n\n")
	}
	for _, m := range toSummarize {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.ConcatText())
	}

	resp, err := p.SummaryModel.Generate(ctx, model.Request{
		SystemMessage: prompt,
		Messages:      []message.Message{message.NewText(message.RoleUser, b.String())},
	})
	if err != nil {
		return "", fmt.Errorf("session: summary model call failed: %w", err)
	}
	return resp.AssistantText, nil
}

// heuristicSummary is the deterministic, language-specific best-effort
// fallback of spec.md §4.6 when no summary model is configured: it keeps
// any prior summary body and appends sentences from the conversation that
// carry a first-person identity cue. This is intentionally not a contract
// (spec.md §9 Open Questions) — just a reasonable default.
func heuristicSummary(priorSummary string, toSummarize []message.Message) string {
	cues := []string{"I am", "I'm", "my name is", "I work", "I live", "I prefer"}
	var kept []string
	if priorSummary != "" {
		kept = append(kept, priorSummary)
	}
	for _, m := range toSummarize {
		for _, sentence := range splitSentences(m.ConcatText()) {
			lower := strings.ToLower(sentence)
			for _, cue := range cues {
				if strings.Contains(lower, strings.ToLower(cue)) {
					kept = append(kept, strings.TrimSpace(sentence))
					break
				}
			}
		}
	}
	if len(kept) == 0 {
		return "No durable identity facts were established."
	}
	return strings.Join(kept, " ")
}

func splitSentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
}
