// Package httpapi exposes the chat pipeline, conversation store, and
// metrics aggregator over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/historia-ai/historia/internal/chat"
	"github.com/historia-ai/historia/internal/config"
	"github.com/historia-ai/historia/internal/ingest"
	"github.com/historia-ai/historia/internal/llm"
	"github.com/historia-ai/historia/internal/memory"
	"github.com/historia-ai/historia/internal/metrics"
	"github.com/historia-ai/historia/internal/observability"
	"github.com/historia-ai/historia/internal/retrieval"
)

const apiVersion = "1.0.0"

type Server struct {
	cfg       config.Config
	engine    *chat.Engine
	store     memory.Store
	retriever retrieval.Searcher
	client    llm.Client
	agg       *metrics.Aggregator
	metrics   *observability.Metrics
	upgrader  websocket.Upgrader
}

func New(cfg config.Config, engine *chat.Engine, store memory.Store, retriever retrieval.Searcher, client llm.Client, agg *metrics.Aggregator, obs *observability.Metrics) *Server {
	return &Server{
		cfg:       cfg,
		engine:    engine,
		store:     store,
		retriever: retriever,
		client:    client,
		agg:       agg,
		metrics:   obs,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browser clients unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Get("/chat/ws", s.handleChatWS)

		r.Get("/conversations", s.handleListConversations)
		r.Get("/conversation/{id}/history", s.handleConversationHistory)
		r.Delete("/conversation/{id}", s.handleDeleteConversation)
		r.Post("/conversation/{id}/summary", s.handleConversationSummary)
		r.Post("/intent/classify", s.handleClassifyIntent)
		r.Post("/escalate", s.handleEscalate)

		r.Route("/metrics", func(r chi.Router) {
			r.Post("/rating", s.handleUserRating)
			r.Get("/system", s.handleSystemMetrics)
			r.Get("/conversation/{id}", s.handleConversationMetrics)
			r.Get("/conversations", s.handleAllConversationMetrics)
			r.Get("/response/{id}", s.handleResponseMetrics)
			r.Get("/recent", s.handleRecentMetrics)
			r.Post("/export", s.handleExportMetrics)
			r.Delete("/clear", s.handleClearMetrics)
		})

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", s.handleAddDocument)
			r.Get("/search", s.handleSearchDocuments)
			r.Get("/stats", s.handleDocumentStats)
			r.Delete("/clear", s.handleClearDocuments)
		})

		r.Get("/health", s.handleHealth)
	})

	return r
}

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	// Accepted for wire compatibility. Tool use is decided by the intent
	// branch, not the caller.
	UseTools *bool `json:"use_tools,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "empty_message", "message is required")
		return
	}

	result := s.engine.ProcessMessage(r.Context(), req.ConversationID, req.Message)
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))

		if strings.TrimSpace(req.Message) == "" {
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(map[string]any{"error": "message is required", "code": "empty_message"}); err != nil {
				return
			}
			continue
		}

		result := s.engine.ProcessMessage(ctx, req.ConversationID, req.Message)
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(result); err != nil {
			return
		}
	}
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	infos, err := s.store.ListConversations(r.Context(), 10)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}
	if infos == nil {
		infos = []memory.ConversationInfo{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"conversations": infos})
}

func (s *Server) handleConversationHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	turns, err := s.engine.History(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "history_failed", err.Error())
		return
	}
	if turns == nil {
		turns = []memory.Turn{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"conversation_id": id,
		"messages":        turns,
	})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := s.engine.DeleteConversation(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "delete_failed", err.Error())
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "conversation_not_found", "Conversation not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": "Conversation deleted successfully"})
}

func (s *Server) handleConversationSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	summary, err := s.engine.Summarize(r.Context(), id)
	if err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			respondError(w, http.StatusNotFound, "conversation_not_found", "Conversation not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "summary_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"conversation_id": id,
		"summary":         summary,
		"key_topics":      []string{"Mexican Revolution", "Historical figures", "Events"},
		"created_at":      time.Now().UTC(),
	})
}

func (s *Server) handleClassifyIntent(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "empty_message", "message is required")
		return
	}

	result, err := s.engine.ClassifyIntent(r.Context(), req.Message)
	if err != nil {
		// The classifier falls back to a default verdict on provider
		// failure; surface the fallback, not a 500.
		log.Printf("httpapi: classify intent: %v", err)
	}
	respondJSON(w, http.StatusOK, result)
}

type escalateRequest struct {
	ConversationID string `json:"conversation_id"`
	Reason         string `json:"reason"`
	Priority       string `json:"priority"`
}

func (s *Server) handleEscalate(w http.ResponseWriter, r *http.Request) {
	var req escalateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.ConversationID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "conversation_id is required")
		return
	}

	escalationID := uuid.NewString()
	record := map[string]any{
		"escalation_id":   escalationID,
		"conversation_id": req.ConversationID,
		"reason":          req.Reason,
		"priority":        req.Priority,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
		"status":          "pending",
	}
	if err := s.store.StorePreferences(r.Context(), "escalation:"+escalationID, record); err != nil {
		respondError(w, http.StatusInternalServerError, "escalation_failed", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"escalation_id": escalationID,
		"status":        "escalated",
		"message":       "Conversation escalated successfully",
	})
}

type ratingRequest struct {
	ResponseID string `json:"response_id"`
	Rating     string `json:"rating"`
}

func (s *Server) handleUserRating(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Rating != metrics.RatingLike && req.Rating != metrics.RatingDislike {
		respondError(w, http.StatusBadRequest, "invalid_rating", "rating must be 'like' or 'dislike'")
		return
	}

	if !s.agg.RecordUserRating(req.ResponseID, req.Rating) {
		respondError(w, http.StatusNotFound, "response_not_found", "Response not found")
		return
	}
	if s.metrics != nil {
		s.metrics.RatingEvents.WithLabelValues(req.Rating).Inc()
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Rating recorded successfully",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleSystemMetrics(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.agg.SystemSnapshot())
}

func (s *Server) handleConversationMetrics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cm, ok := s.agg.ConversationByID(id)
	if !ok {
		respondError(w, http.StatusNotFound, "conversation_not_found", "Conversation not found")
		return
	}
	respondJSON(w, http.StatusOK, cm)
}

func (s *Server) handleAllConversationMetrics(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.agg.AllConversations())
}

func (s *Server) handleResponseMetrics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rm, ok := s.agg.ResponseByID(id)
	if !ok {
		respondError(w, http.StatusNotFound, "response_not_found", "Response not found")
		return
	}
	respondJSON(w, http.StatusOK, rm)
}

func (s *Server) handleRecentMetrics(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := strings.TrimSpace(r.URL.Query().Get("hours")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondError(w, http.StatusBadRequest, "invalid_hours", "hours must be a non-negative integer")
			return
		}
		hours = parsed
	}
	respondJSON(w, http.StatusOK, s.agg.Recent(hours))
}

func (s *Server) handleExportMetrics(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.agg.ExportAll())
}

func (s *Server) handleClearMetrics(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := strings.TrimSpace(r.URL.Query().Get("days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondError(w, http.StatusBadRequest, "invalid_days", "days must be a non-negative integer")
			return
		}
		days = parsed
	}

	s.agg.ClearOld(days)

	message := fmt.Sprintf("Cleared metrics older than %d days", days)
	if days == 0 {
		message = "Cleared all metrics"
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	var doc retrieval.Document
	if err := decodeJSON(r, &doc); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(doc.Text) == "" {
		respondError(w, http.StatusBadRequest, "empty_document", "text is required")
		return
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	chunks, err := ingest.IndexDocument(r.Context(), s.retriever, doc)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "index_failed", err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.DocumentsAdded.Inc()
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"document_id":    doc.ID,
		"title":          doc.Title,
		"chunks_created": chunks,
		"status":         "indexed",
	})
}

const searchContentLimit = 500

func (s *Server) handleSearchDocuments(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		respondError(w, http.StatusBadRequest, "empty_query", "query is required")
		return
	}
	k := 3
	if raw := strings.TrimSpace(r.URL.Query().Get("k")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_k", "k must be a positive integer")
			return
		}
		k = parsed
	}

	snippets, err := s.retriever.Search(r.Context(), query, k)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "search_failed", err.Error())
		return
	}

	documents := make([]map[string]any, 0, len(snippets))
	for i, snippet := range snippets {
		content := snippet.Text
		if len(content) > searchContentLimit {
			content = content[:searchContentLimit] + "..."
		}
		documents = append(documents, map[string]any{
			"id":       i + 1,
			"content":  content,
			"metadata": snippet.Metadata,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"query":         query,
		"results_count": len(snippets),
		"documents":     documents,
	})
}

func (s *Server) handleDocumentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.retriever.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "stats_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleClearDocuments(w http.ResponseWriter, r *http.Request) {
	if err := s.retriever.Clear(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "clear_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": "All documents cleared successfully"})
}

// handleHealth probes every component. The llm probe issues a tiny real
// generation so a misconfigured provider shows up here and not on the
// first user message.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{}

	memHealth := s.store.Health(r.Context())
	components["memory"] = memHealth.Status

	if _, err := s.retriever.Stats(r.Context()); err != nil {
		components["retrieval"] = "unhealthy"
	} else {
		components["retrieval"] = "healthy"
	}

	if _, err := s.client.Generate(r.Context(), []llm.Message{{Role: "user", Content: "Hello"}}, "", "You are a test assistant. Respond with 'OK'."); err != nil {
		components["llm"] = "unhealthy"
	} else {
		components["llm"] = "healthy"
	}

	status := "healthy"
	for _, c := range components {
		if c != "healthy" {
			status = "unhealthy"
			break
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    apiVersion,
		"timestamp":  time.Now().UTC(),
		"components": components,
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
