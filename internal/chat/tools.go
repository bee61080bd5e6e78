package chat

// Tool identifies one of the closed set of capabilities a response may have
// exercised. The set is fixed at compile time; dispatch is by switch, not by
// name lookup.
type Tool string

const (
	ToolDocumentSearch       Tool = "document_search"
	ToolConversationSummary  Tool = "conversation_summary"
	ToolHumanEscalation      Tool = "human_escalation"
	ToolContentSafetyCheck   Tool = "content_safety_check"
	ToolIntentClassification Tool = "intent_classification"
)

func toolNames(tools ...Tool) []string {
	out := make([]string, len(tools))
	for i, t := range tools {
		out[i] = string(t)
	}
	return out
}
