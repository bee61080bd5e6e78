package chat

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/historia-ai/historia/internal/llm"
	"github.com/historia-ai/historia/internal/memory"
	"github.com/historia-ai/historia/internal/metrics"
	"github.com/historia-ai/historia/internal/retrieval"
)

type stubSearcher struct {
	snippets  []retrieval.Snippet
	err       error
	lastQuery string
}

func (s *stubSearcher) Search(_ context.Context, query string, _ int) ([]retrieval.Snippet, error) {
	s.lastQuery = query
	if s.err != nil {
		return nil, s.err
	}
	return s.snippets, nil
}

func (s *stubSearcher) Index(context.Context, []retrieval.Chunk) error { return nil }
func (s *stubSearcher) Clear(context.Context) error                    { return nil }
func (s *stubSearcher) Stats(context.Context) (retrieval.Stats, error) {
	return retrieval.Stats{}, nil
}

type stubClient struct {
	generate      func(grounding, systemPrompt string) (string, error)
	intent        llm.IntentResult
	safety        llm.SafetyResult
	summary       string
	summaryErr    error
	lastGrounding string
	lastPrompt    string
}

func (c *stubClient) Generate(_ context.Context, _ []llm.Message, grounding, systemPrompt string) (string, error) {
	c.lastGrounding = grounding
	c.lastPrompt = systemPrompt
	if c.generate != nil {
		return c.generate(grounding, systemPrompt)
	}
	return "stub answer.", nil
}

func (c *stubClient) ClassifyIntent(context.Context, string) (llm.IntentResult, error) {
	return c.intent, nil
}

func (c *stubClient) Summarize(context.Context, []llm.Message) (string, error) {
	if c.summaryErr != nil {
		return "", c.summaryErr
	}
	return c.summary, nil
}

func (c *stubClient) CheckSafety(context.Context, string) (llm.SafetyResult, error) {
	return c.safety, nil
}

func safeClient() *stubClient {
	return &stubClient{
		intent: llm.IntentResult{Intent: llm.IntentQuestion, Confidence: 0.9, Entities: []string{}},
		safety: llm.SafetyResult{IsSafe: true, Confidence: 0.9},
	}
}

func newTestEngine(client llm.Client, searcher retrieval.Searcher) (*Engine, *memory.InMemoryStore, *metrics.Aggregator) {
	store := memory.NewInMemoryStore(time.Hour)
	agg := metrics.NewAggregator(nil)
	return NewEngine(store, searcher, client, agg, nil, 6, 3), store, agg
}

func TestProcessMessageDefaultPath(t *testing.T) {
	client := safeClient()
	searcher := &stubSearcher{snippets: []retrieval.Snippet{
		{Text: "The Revolution began in 1910.", Score: 0.8},
		{Text: "Madero called for rebellion.", Score: 0.5},
	}}
	client.generate = func(grounding, _ string) (string, error) {
		if !strings.Contains(grounding, "The Revolution began in 1910.") {
			t.Fatalf("grounding missing retrieved text: %q", grounding)
		}
		return "It began in 1910.", nil
	}

	engine, store, agg := newTestEngine(client, searcher)
	res := engine.ProcessMessage(context.Background(), "", "When did the revolution start?")

	if res.ConversationID == "" {
		t.Fatalf("no conversation id assigned")
	}
	if res.ResponseID == "" {
		t.Fatalf("no response id assigned")
	}
	if res.Response != "It began in 1910." {
		t.Fatalf("Response = %q", res.Response)
	}
	if len(res.ToolsUsed) != 1 || res.ToolsUsed[0] != "document_search" {
		t.Fatalf("ToolsUsed = %v", res.ToolsUsed)
	}
	if res.Confidence != 0.9 {
		t.Fatalf("Confidence = %v, want 0.9", res.Confidence)
	}
	if len(res.Sources) != 0 {
		t.Fatalf("Sources = %v, want empty", res.Sources)
	}

	turns, err := store.Turns(context.Background(), res.ConversationID)
	if err != nil || len(turns) != 2 {
		t.Fatalf("turns = %v (err %v), want user+assistant", turns, err)
	}
	if turns[0].Role != memory.RoleUser || turns[1].Role != memory.RoleAssistant {
		t.Fatalf("turn roles = %s/%s", turns[0].Role, turns[1].Role)
	}

	sys := agg.SystemSnapshot()
	if sys.TotalQueries != 1 || sys.TotalErrors != 0 {
		t.Fatalf("aggregator snapshot = %+v", sys)
	}
}

func TestProcessMessageUnsafeContent(t *testing.T) {
	client := safeClient()
	client.safety = llm.SafetyResult{IsSafe: false, Confidence: 0.9, Flags: []string{"harmful_content"}}

	engine, store, _ := newTestEngine(client, &stubSearcher{})
	res := engine.ProcessMessage(context.Background(), "conv-1", "something harmful")

	if res.Response != "No puedo procesar este mensaje ya que puede contener contenido inapropiado." {
		t.Fatalf("Response = %q", res.Response)
	}
	if len(res.ToolsUsed) != 1 || res.ToolsUsed[0] != "content_safety_check" {
		t.Fatalf("ToolsUsed = %v", res.ToolsUsed)
	}
	if res.Confidence != 0.0 {
		t.Fatalf("Confidence = %v, want 0.0", res.Confidence)
	}

	turns, _ := store.Turns(context.Background(), "conv-1")
	if len(turns) != 2 {
		t.Fatalf("expected refusal to be persisted, got %d turns", len(turns))
	}
}

func TestProcessMessageEscalationReuse(t *testing.T) {
	client := safeClient()
	client.intent = llm.IntentResult{Intent: llm.IntentEscalation, Confidence: 0.9, Entities: []string{}}

	engine, store, _ := newTestEngine(client, &stubSearcher{})
	first := engine.ProcessMessage(context.Background(), "conv-esc", "I need a human agent")

	if !strings.HasPrefix(first.Response, "Entiendo que podrías necesitar asistencia humana.") {
		t.Fatalf("first escalation response = %q", first.Response)
	}
	if !strings.Contains(first.Response, "Conversation escalated successfully. Escalation ID: ") {
		t.Fatalf("first escalation response missing id: %q", first.Response)
	}
	if len(first.ToolsUsed) != 1 || first.ToolsUsed[0] != "human_escalation" {
		t.Fatalf("ToolsUsed = %v", first.ToolsUsed)
	}

	idPattern := regexp.MustCompile(`Escalation ID: ([a-f0-9\-]+)`)
	m := idPattern.FindStringSubmatch(first.Response)
	if m == nil {
		t.Fatalf("no escalation id in %q", first.Response)
	}
	escalationID := m[1]

	if _, ok := store.Preferences(context.Background(), "escalation:"+escalationID); !ok {
		t.Fatalf("escalation record not stored")
	}

	turns, _ := store.Turns(context.Background(), "conv-esc")
	if len(turns) != 3 || turns[0].Role != memory.RoleSystem {
		t.Fatalf("expected system marker + user + assistant, got %v", turns)
	}

	second := engine.ProcessMessage(context.Background(), "conv-esc", "escalate again please")
	if !strings.HasPrefix(second.Response, "Ya existe un caso de escalamiento para esta conversación.") {
		t.Fatalf("second escalation response = %q", second.Response)
	}
	if m2 := idPattern.FindStringSubmatch(second.Response); m2 == nil || m2[1] != escalationID {
		t.Fatalf("escalation id not reused: %q", second.Response)
	}
}

func TestProcessMessageSummaryBranches(t *testing.T) {
	client := safeClient()
	client.intent = llm.IntentResult{Intent: llm.IntentSummaryRequest, Confidence: 0.8, Entities: []string{}}
	client.summary = "Questions about 1910."

	engine, store, _ := newTestEngine(client, &stubSearcher{})
	ctx := context.Background()

	res := engine.ProcessMessage(ctx, "conv-empty", "summarize this")
	if res.Response != "No conversation found to summarize." {
		t.Fatalf("empty conversation summary = %q", res.Response)
	}
	if len(res.ToolsUsed) != 1 || res.ToolsUsed[0] != "conversation_summary" {
		t.Fatalf("ToolsUsed = %v", res.ToolsUsed)
	}

	if err := store.AppendTurn(ctx, "conv-sum", memory.Turn{Role: memory.RoleUser, Content: "Who was Madero?"}); err != nil {
		t.Fatalf("seed turn: %v", err)
	}
	res = engine.ProcessMessage(ctx, "conv-sum", "give me a summary")
	if res.Response != "Conversation summary generated: Questions about 1910." {
		t.Fatalf("generated summary = %q", res.Response)
	}
	if stored, ok, _ := store.Summary(ctx, "conv-sum"); !ok || stored != "Questions about 1910." {
		t.Fatalf("summary not cached: %q %v", stored, ok)
	}

	res = engine.ProcessMessage(ctx, "conv-sum", "summary again")
	if res.Response != "Existing summary: Questions about 1910." {
		t.Fatalf("existing summary = %q", res.Response)
	}
}

func TestProcessMessageOffTopicOverride(t *testing.T) {
	client := safeClient()
	client.intent = llm.IntentResult{Intent: llm.IntentOffTopic, Confidence: 0.6, Entities: []string{}}
	client.generate = func(string, string) (string, error) {
		return "I don't have enough information to answer that.", nil
	}

	engine, _, _ := newTestEngine(client, &stubSearcher{})
	res := engine.ProcessMessage(context.Background(), "conv-ot", "what about football?")

	if !strings.HasPrefix(res.Response, "Solo puedo responder preguntas sobre la Revolución Mexicana") {
		t.Fatalf("off-topic response = %q", res.Response)
	}
	if len(res.ToolsUsed) != 0 {
		t.Fatalf("ToolsUsed = %v, want empty", res.ToolsUsed)
	}
}

func TestProcessMessageOffTopicGroundedAnswerKept(t *testing.T) {
	client := safeClient()
	client.intent = llm.IntentResult{Intent: llm.IntentOffTopic, Confidence: 0.6, Entities: []string{}}
	client.generate = func(string, string) (string, error) {
		return "That relates to the Revolution through Villa's campaigns.", nil
	}

	engine, _, _ := newTestEngine(client, &stubSearcher{snippets: []retrieval.Snippet{{Text: "Villa led the División del Norte."}}})
	res := engine.ProcessMessage(context.Background(), "conv-ot2", "tell me about horses")

	if res.Response != "That relates to the Revolution through Villa's campaigns." {
		t.Fatalf("Response = %q", res.Response)
	}
	if len(res.ToolsUsed) != 1 || res.ToolsUsed[0] != "document_search" {
		t.Fatalf("ToolsUsed = %v", res.ToolsUsed)
	}
}

func TestProcessMessageRetrievalFailureFallback(t *testing.T) {
	client := safeClient()
	client.generate = func(grounding, _ string) (string, error) {
		if grounding != "No relevant documents found." {
			t.Fatalf("grounding = %q", grounding)
		}
		return "Answer without documents.", nil
	}

	engine, _, _ := newTestEngine(client, &stubSearcher{err: errors.New("index offline")})
	res := engine.ProcessMessage(context.Background(), "conv-rf", "when did it start?")

	if res.Response != "Answer without documents." {
		t.Fatalf("Response = %q", res.Response)
	}
	if len(res.ToolsUsed) != 0 {
		t.Fatalf("ToolsUsed = %v, want empty after search failure", res.ToolsUsed)
	}
}

func TestProcessMessageGenerationFailure(t *testing.T) {
	client := safeClient()
	client.generate = func(string, string) (string, error) {
		return "", errors.New("model unavailable")
	}

	engine, store, agg := newTestEngine(client, &stubSearcher{})
	res := engine.ProcessMessage(context.Background(), "conv-err", "when did it start?")

	if !strings.HasPrefix(res.Response, "Ocurrió un error al procesar tu mensaje:") {
		t.Fatalf("Response = %q", res.Response)
	}
	if res.Confidence != 0.0 || len(res.ToolsUsed) != 0 {
		t.Fatalf("error result = %+v", res)
	}

	turns, _ := store.Turns(context.Background(), "conv-err")
	if len(turns) != 2 {
		t.Fatalf("error path should still persist %d turns", len(turns))
	}

	sys := agg.SystemSnapshot()
	if sys.TotalErrors != 1 {
		t.Fatalf("TotalErrors = %d, want 1", sys.TotalErrors)
	}
}

func TestProcessMessageRedactsPII(t *testing.T) {
	client := safeClient()
	engine, store, _ := newTestEngine(client, &stubSearcher{snippets: []retrieval.Snippet{{Text: "Some context."}}})

	res := engine.ProcessMessage(context.Background(), "conv-pii", "contact me at juan@example.com about Villa")
	turns, _ := store.Turns(context.Background(), res.ConversationID)
	if len(turns) != 2 {
		t.Fatalf("turns = %d", len(turns))
	}
	if strings.Contains(turns[0].Content, "juan@example.com") {
		t.Fatalf("email not redacted: %q", turns[0].Content)
	}
	if !turns[0].PIIRedacted {
		t.Fatalf("PIIRedacted flag not set")
	}
}

func TestTranscriptWindow(t *testing.T) {
	turns := []memory.Turn{}
	for i := 0; i < 8; i++ {
		role := memory.RoleUser
		if i%2 == 1 {
			role = memory.RoleAssistant
		}
		turns = append(turns, memory.Turn{Role: role, Content: strings.Repeat("x", i+1)})
	}

	out := transcript(turns, 6)
	lines := strings.Split(out, "\n")
	if len(lines) != 6 {
		t.Fatalf("transcript lines = %d, want 6", len(lines))
	}
	if !strings.HasPrefix(lines[0], "Usuario: ") {
		t.Fatalf("first line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[5], "Asistente: ") {
		t.Fatalf("last line = %q", lines[5])
	}
}
