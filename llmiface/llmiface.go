// Package llmiface specifies the engine's boundary to the language-model
// adapter layer (spec §6 "LLM boundary"). The adapter layer itself — prompt
// assembly, JSON-schema validation, provider-specific conversions — is out
// of scope (spec §1); this package holds only the interface the engine
// consumes and the shapes it exchanges across it.
package llmiface

import "context"

// Message is one turn of a conversation handed to the model, provider
// details elided at this boundary.
type Message struct {
	Role    string
	Content string
}

// ElementResult is the parsed shape of a findElement completion: which
// element the model picked, what it intends to do with it, and how sure it
// is (spec §6: "elementId, description, confidence in [0,1], method from
// the closed set, arguments as string array").
type ElementResult struct {
	EncodedID   string
	Description string
	Confidence  float64
	Method      string
	Arguments   []string
}

// AgentAction is the tagged union an agent-loop envelope carries (spec §6:
// "{thoughts, memory, action: {type, params}}"). Params is left as a raw
// map; the registered action set is defined by the integrator, not the
// engine.
type AgentAction struct {
	Type   string
	Params map[string]any
}

// AgentEnvelope is the multi-step agent-loop completion shape.
type AgentEnvelope struct {
	Thoughts string
	Memory   string
	Action   AgentAction
}

// Client is the two services the engine consumes from the LLM adapter
// layer (spec §6). schema describes the structured completion the engine
// wants back (either an ElementResult or an AgentEnvelope); the adapter is
// responsible for translating that into whatever provider-specific
// mechanism enforces it.
type Client interface {
	// InvokeStructured makes one structured call and returns both the raw
	// model text and the parsed result, or a nil parsed value if the model
	// failed to produce conforming output on every attempt the adapter
	// allows.
	InvokeStructured(ctx context.Context, schema any, messages []Message) (raw string, parsed any, err error)

	// Invoke makes one free-form completion call, used by extraction flows
	// that don't need a structured result.
	Invoke(ctx context.Context, messages []Message) (content string, err error)
}
