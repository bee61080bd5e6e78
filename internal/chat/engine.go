// Package chat orchestrates a single user turn: safety gate, intent
// routing, retrieval-grounded generation, and conversation persistence.
package chat

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/historia-ai/historia/internal/llm"
	"github.com/historia-ai/historia/internal/memory"
	"github.com/historia-ai/historia/internal/metrics"
	"github.com/historia-ai/historia/internal/observability"
	"github.com/historia-ai/historia/internal/policy"
	"github.com/historia-ai/historia/internal/retrieval"
)

const (
	safetyRefusal = "No puedo procesar este mensaje ya que puede contener contenido inapropiado."

	offTopicRefusal = "Solo puedo responder preguntas sobre la Revolución Mexicana basándome en los documentos proporcionados. Por favor, hazme una pregunta relacionada con este período histórico."

	escalationIntro = "Entiendo que podrías necesitar asistencia humana. Permíteme escalar esta conversación por ti."

	// Markers the generator emits when it cannot ground an answer. The
	// off-topic branch keys on them, so they stay in English on purpose.
	noInfoMarker = "I don't have enough information"
	noDocsMarker = "No relevant documents found"

	emptyContext = "No relevant documents found."
)

var escalationIDPattern = regexp.MustCompile(`Escalation ID: ([a-f0-9\-]+)`)

const systemPromptTemplate = `You are an expert assistant on the Mexican Revolution with conversation memory.

<context_documents>
%s
</context_documents>

<conversation_history>
%s
</conversation_history>

<instructions>
- MAXIMUM 2-3 sentences per answer
- NO more than 50 words
- Go STRAIGHT to the main point
- DO NOT use lists or bullet points
- DO NOT use phrases like "According to the provided context"
- Only say "I don't have enough information" if you can't answer
- IGNORE questions not related to the Mexican Revolution
- ALWAYS consider the conversation history for contextual answers
- If the question refers to something mentioned earlier, answer based on the history
</instructions>

<response_format>
Respond in a compact paragraph without introductions.
Example: "Porfirio Díaz ruled Mexico for 30 years until 1910. His dictatorship led to the Revolution when Madero called for armed rebellion."
</response_format>

<current_question>
%s
</current_question>

ALWAYS answer in English if the question is in English, and in Spanish if the question is in Spanish.
Be EXTREMELY BRIEF considering the conversation context:`

// Result is the outcome of one processed turn.
type Result struct {
	Response       string   `json:"response"`
	ConversationID string   `json:"conversation_id"`
	ResponseID     string   `json:"response_id"`
	Sources        []string `json:"sources"`
	ToolsUsed      []string `json:"tools_used"`
	Confidence     float64  `json:"confidence_score"`
}

// Engine wires the store, retriever, and model client together. All
// dependencies are passed in; Engine holds no global state.
type Engine struct {
	store     memory.Store
	retriever retrieval.Searcher
	client    llm.Client
	agg       *metrics.Aggregator
	obs       *observability.Metrics

	historyWindow int
	topK          int
}

func NewEngine(store memory.Store, retriever retrieval.Searcher, client llm.Client, agg *metrics.Aggregator, obs *observability.Metrics, historyWindow, topK int) *Engine {
	if historyWindow <= 0 {
		historyWindow = 6
	}
	if topK <= 0 {
		topK = 3
	}
	return &Engine{
		store:         store,
		retriever:     retriever,
		client:        client,
		agg:           agg,
		obs:           obs,
		historyWindow: historyWindow,
		topK:          topK,
	}
}

// ProcessMessage runs the full pipeline for one user message. It never
// returns an error to the caller: failures are folded into a Result with
// an error response so the transport layer always has something to send.
func (e *Engine) ProcessMessage(ctx context.Context, conversationID, message string) Result {
	start := time.Now()
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	res, branch := e.process(ctx, conversationID, message)
	elapsed := time.Since(start)

	res.ResponseID = e.record(res, message, elapsed, branch == branchError)
	if e.obs != nil {
		e.obs.ObserveChat(string(branch), elapsed)
	}
	return res
}

type branchKind string

const (
	branchSafety     branchKind = "safety_blocked"
	branchEscalation branchKind = "escalation"
	branchSummary    branchKind = "summary"
	branchOffTopic   branchKind = "off_topic"
	branchAnswer     branchKind = "answer"
	branchError      branchKind = "error"
)

func (e *Engine) process(ctx context.Context, conversationID, message string) (res Result, branch branchKind) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("chat: panic processing conversation %s: %v", conversationID, r)
			res, branch = e.failure(ctx, conversationID, message, fmt.Errorf("%v", r))
		}
	}()

	history, err := e.store.Turns(ctx, conversationID)
	if err != nil {
		log.Printf("chat: load history for %s: %v", conversationID, err)
		history = nil
	}

	safety, err := e.client.CheckSafety(ctx, message)
	if err != nil {
		// The fallback verdict is safe; log and keep going.
		log.Printf("chat: safety check: %v", err)
		if e.obs != nil {
			e.obs.ProviderErrors.WithLabelValues("llm", "check_safety").Inc()
		}
	}
	if !safety.IsSafe {
		e.persistTurns(ctx, conversationID, message, safetyRefusal)
		return Result{
			Response:       safetyRefusal,
			ConversationID: conversationID,
			Sources:        []string{},
			ToolsUsed:      toolNames(ToolContentSafetyCheck),
			Confidence:     0.0,
		}, branchSafety
	}

	intent, err := e.client.ClassifyIntent(ctx, message)
	if err != nil {
		log.Printf("chat: classify intent: %v", err)
		if e.obs != nil {
			e.obs.ProviderErrors.WithLabelValues("llm", "classify_intent").Inc()
		}
	}

	var (
		response  string
		toolsUsed []string
	)
	branch = branchAnswer

	switch intent.Intent {
	case llm.IntentEscalation:
		branch = branchEscalation
		response = e.escalationResponse(ctx, conversationID, history)
		toolsUsed = toolNames(ToolHumanEscalation)

	case llm.IntentSummaryRequest:
		branch = branchSummary
		response = e.summaryResponse(ctx, conversationID)
		toolsUsed = toolNames(ToolConversationSummary)

	case llm.IntentOffTopic:
		branch = branchOffTopic
		response, toolsUsed, err = e.groundedAnswer(ctx, message, history)
		if err != nil {
			return e.failure(ctx, conversationID, message, err)
		}
		if strings.Contains(response, noInfoMarker) || strings.Contains(response, noDocsMarker) {
			response = offTopicRefusal
			toolsUsed = []string{}
		}

	default:
		response, toolsUsed, err = e.groundedAnswer(ctx, message, history)
		if err != nil {
			return e.failure(ctx, conversationID, message, err)
		}
	}

	e.persistTurns(ctx, conversationID, message, response)

	return Result{
		Response:       response,
		ConversationID: conversationID,
		Sources:        []string{},
		ToolsUsed:      toolsUsed,
		Confidence:     intent.Confidence,
	}, branch
}

func (e *Engine) failure(ctx context.Context, conversationID, message string, cause error) (Result, branchKind) {
	response := fmt.Sprintf("Ocurrió un error al procesar tu mensaje: %s", cause)
	e.persistTurns(ctx, conversationID, message, response)
	return Result{
		Response:       response,
		ConversationID: conversationID,
		Sources:        []string{},
		ToolsUsed:      []string{},
		Confidence:     0.0,
	}, branchError
}

// escalationResponse reuses a prior escalation when one exists in the
// transcript; a conversation carries at most one open case.
func (e *Engine) escalationResponse(ctx context.Context, conversationID string, history []memory.Turn) string {
	for _, turn := range history {
		if turn.Role != memory.RoleAssistant || !strings.Contains(turn.Content, "Escalation ID:") {
			continue
		}
		if m := escalationIDPattern.FindStringSubmatch(turn.Content); m != nil {
			return fmt.Sprintf("Ya existe un caso de escalamiento para esta conversación. Escalation ID: %s", m[1])
		}
	}

	response := escalationIntro
	result, err := e.Escalate(ctx, conversationID, "User requested escalation")
	if err != nil {
		return response + fmt.Sprintf(" Error escalating conversation: %s", err)
	}
	return response + " " + result
}

// Escalate opens an escalation record and marks the transcript with a
// system turn carrying the new ID.
func (e *Engine) Escalate(ctx context.Context, conversationID, reason string) (string, error) {
	escalationID := uuid.NewString()
	record := map[string]any{
		"escalation_id":   escalationID,
		"conversation_id": conversationID,
		"reason":          reason,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
		"status":          "pending",
	}
	if err := e.store.StorePreferences(ctx, "escalation:"+escalationID, record); err != nil {
		return "", fmt.Errorf("store escalation record: %w", err)
	}

	marker := fmt.Sprintf("Conversation escalated to human agent. Reason: %s. Escalation ID: %s", reason, escalationID)
	if err := e.store.AppendTurn(ctx, conversationID, memory.Turn{
		Role:      memory.RoleSystem,
		Content:   marker,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		return "", fmt.Errorf("append escalation marker: %w", err)
	}

	return fmt.Sprintf("Conversation escalated successfully. Escalation ID: %s", escalationID), nil
}

func (e *Engine) summaryResponse(ctx context.Context, conversationID string) string {
	turns, err := e.store.Turns(ctx, conversationID)
	if err != nil {
		return fmt.Sprintf("Error generating summary: %s", err)
	}
	if len(turns) == 0 {
		return "No conversation found to summarize."
	}

	if existing, ok, err := e.store.Summary(ctx, conversationID); err == nil && ok {
		return fmt.Sprintf("Existing summary: %s", existing)
	} else if err != nil {
		log.Printf("chat: load summary for %s: %v", conversationID, err)
	}

	summary, err := e.client.Summarize(ctx, toMessages(turns))
	if err != nil {
		if e.obs != nil {
			e.obs.ProviderErrors.WithLabelValues("llm", "summarize").Inc()
		}
		return fmt.Sprintf("Error generating summary: %s", err)
	}
	if err := e.store.StoreSummary(ctx, conversationID, summary); err != nil {
		log.Printf("chat: store summary for %s: %v", conversationID, err)
	}
	return fmt.Sprintf("Conversation summary generated: %s", summary)
}

// groundedAnswer runs retrieval over the corpus and asks the model for a
// short answer grounded in whatever came back. A retrieval failure is not
// fatal: the model is told no documents were found. A generation failure
// is fatal and surfaces as the error branch.
func (e *Engine) groundedAnswer(ctx context.Context, message string, history []memory.Turn) (string, []string, error) {
	toolsUsed := []string{}

	grounding := emptyContext
	snippets, err := e.retriever.Search(ctx, message, e.topK)
	if err != nil {
		log.Printf("chat: document search: %v", err)
		if e.obs != nil {
			e.obs.ProviderErrors.WithLabelValues("retriever", "search").Inc()
		}
	} else {
		texts := make([]string, 0, len(snippets))
		for _, s := range snippets {
			texts = append(texts, s.Text)
		}
		grounding = strings.Join(texts, "\n\n")
		toolsUsed = append(toolsUsed, string(ToolDocumentSearch))
	}

	systemPrompt := fmt.Sprintf(systemPromptTemplate, grounding, transcript(history, e.historyWindow), message)

	response, err := e.client.Generate(ctx, []llm.Message{{Role: "user", Content: message}}, grounding, systemPrompt)
	if err != nil {
		if e.obs != nil {
			e.obs.ProviderErrors.WithLabelValues("llm", "generate").Inc()
		}
		return "", nil, fmt.Errorf("generate response: %w", err)
	}
	return response, toolsUsed, nil
}

// transcript renders the last window turns as labeled lines for the
// prompt's history block.
func transcript(history []memory.Turn, window int) string {
	if len(history) == 0 {
		return ""
	}
	if len(history) > window {
		history = history[len(history)-window:]
	}
	lines := make([]string, 0, len(history))
	for _, turn := range history {
		label := "Asistente"
		if turn.Role == memory.RoleUser {
			label = "Usuario"
		}
		lines = append(lines, label+": "+turn.Content)
	}
	return strings.Join(lines, "\n")
}

func toMessages(turns []memory.Turn) []llm.Message {
	out := make([]llm.Message, len(turns))
	for i, t := range turns {
		out[i] = llm.Message{Role: string(t.Role), Content: t.Content}
	}
	return out
}

// persistTurns appends the user message and the assistant reply. User
// content is PII-redacted before it is written anywhere.
func (e *Engine) persistTurns(ctx context.Context, conversationID, userMessage, response string) {
	redacted, changed := policy.RedactPII(userMessage)
	now := time.Now().UTC()
	if err := e.store.AppendTurn(ctx, conversationID, memory.Turn{
		Role:        memory.RoleUser,
		Content:     redacted,
		PIIRedacted: changed,
		Timestamp:   now,
	}); err != nil {
		log.Printf("chat: persist user turn for %s: %v", conversationID, err)
	}
	if err := e.store.AppendTurn(ctx, conversationID, memory.Turn{
		Role:      memory.RoleAssistant,
		Content:   response,
		Timestamp: now,
	}); err != nil {
		log.Printf("chat: persist assistant turn for %s: %v", conversationID, err)
	}
}

func (e *Engine) record(res Result, message string, elapsed time.Duration, errorOccurred bool) string {
	if e.agg == nil {
		return ""
	}
	req := metrics.RecordRequest{
		ConversationID:  res.ConversationID,
		Query:           message,
		Response:        res.Response,
		ResponseTime:    elapsed.Seconds(),
		ConfidenceScore: res.Confidence,
		ToolsUsed:       res.ToolsUsed,
		SourcesCount:    len(res.Sources),
		ErrorOccurred:   errorOccurred,
	}
	if errorOccurred {
		req.ErrorMessage = res.Response
	}
	return e.agg.RecordResponse(req)
}

// History returns the stored transcript for a conversation.
func (e *Engine) History(ctx context.Context, conversationID string) ([]memory.Turn, error) {
	return e.store.Turns(ctx, conversationID)
}

// DeleteConversation removes the transcript; the bool reports whether
// anything existed to delete.
func (e *Engine) DeleteConversation(ctx context.Context, conversationID string) (bool, error) {
	return e.store.Delete(ctx, conversationID)
}

// Summarize produces a fresh summary of the stored transcript without
// consulting or updating the cached one.
func (e *Engine) Summarize(ctx context.Context, conversationID string) (string, error) {
	turns, err := e.store.Turns(ctx, conversationID)
	if err != nil {
		return "", err
	}
	if len(turns) == 0 {
		return "", memory.ErrNotFound
	}
	return e.client.Summarize(ctx, toMessages(turns))
}

// ClassifyIntent exposes the intent classifier for the standalone
// classification endpoint.
func (e *Engine) ClassifyIntent(ctx context.Context, message string) (llm.IntentResult, error) {
	return e.client.ClassifyIntent(ctx, message)
}
