package frameagent

// elementResultSchema describes the structured completion FindElement asks
// llmiface.Client.InvokeStructured to produce (spec §6: "elementId,
// description, confidence in [0,1], method from the closed set, arguments as
// string array"). It is an opaque value as far as the engine is concerned;
// the adapter layer on the other side of llmiface.Client translates it into
// whatever provider-specific schema mechanism it uses.
func elementResultSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"encodedId":   map[string]any{"type": "string", "pattern": `^\d+-\d+$`},
			"description": map[string]any{"type": "string"},
			"confidence":  map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"method": map[string]any{
				"type": "string",
				"enum": []string{
					"click", "fill", "type", "press", "selectOptionFromDropdown",
					"check", "uncheck", "hover", "scrollToElement",
					"scrollToPercentage", "nextChunk", "prevChunk",
				},
			},
			"arguments": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []string{"encodedId", "method"},
	}
}

// agentEnvelopeSchema describes the multi-step agent-loop completion shape
// (spec §6: "{thoughts, memory, action: {type, params}}"), available to
// integrators driving an agent loop rather than a single findElement call.
func agentEnvelopeSchema(actionTypes []string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"thoughts": map[string]any{"type": "string"},
			"memory":   map[string]any{"type": "string"},
			"action": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"type":   map[string]any{"type": "string", "enum": actionTypes},
					"params": map[string]any{"type": "object"},
				},
				"required": []string{"type"},
			},
		},
		"required": []string{"thoughts", "action"},
	}
}
