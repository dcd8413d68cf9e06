// Package tool implements the Tool Registry & Dispatcher of spec.md §4.2:
// resolving which tool descriptors are enabled for a run, and concurrently
// executing the calls a model response requested.
package tool

import (
	"context"

	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/agent"
	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/transfer"
)

// Set is the resolved, enabled tool set for one run turn: a name→descriptor
// map plus the order descriptors were first resolved in, since spec.md §4.2
// requires the model-ready tool list to be presented deterministically.
type Set struct {
	Descriptors map[string]agent.ToolDescriptor
	Order       []string
}

// Ordered returns the descriptors in resolution order.
func (s Set) Ordered() []agent.ToolDescriptor {
	out := make([]agent.ToolDescriptor, 0, len(s.Order))
	for _, name := range s.Order {
		out = append(out, s.Descriptors[name])
	}
	return out
}

// BuildSet evaluates a's tool descriptors' Enabled predicates against rc and
// merges in the synthetic transfer tools for a's sub-agents (spec.md §4.2).
// Agent-defined tools win name collisions against synthesized ones; each
// such collision is appended to the returned warnings slice instead of
// failing the build.
func BuildSet(ctx context.Context, a *agent.Agent, rc *agent.RunContext) (Set, []string, error) {
	set := Set{Descriptors: make(map[string]agent.ToolDescriptor, len(a.Tools))}
	var warnings []string

	for _, td := range a.Tools {
		enabled := td.Enabled
		if enabled == nil {
			enabled = agent.AlwaysEnabled
		}
		ok, err := enabled(ctx, rc)
		if err != nil {
			return Set{}, warnings, err
		}
		if !ok {
			continue
		}
		if _, exists := set.Descriptors[td.Name]; !exists {
			set.Order = append(set.Order, td.Name)
		}
		set.Descriptors[td.Name] = td
	}

	for _, td := range transfer.SyntheticTools(a) {
		if _, exists := set.Descriptors[td.Name]; exists {
			warnings = append(warnings, "tool name collision: agent-defined tool \""+td.Name+"\" takes precedence over synthesized transfer tool")
			continue
		}
		set.Descriptors[td.Name] = td
		set.Order = append(set.Order, td.Name)
	}

	return set, warnings, nil
}
