package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/historia-ai/historia/internal/chat"
	"github.com/historia-ai/historia/internal/config"
	"github.com/historia-ai/historia/internal/httpapi"
	"github.com/historia-ai/historia/internal/ingest"
	"github.com/historia-ai/historia/internal/llm"
	"github.com/historia-ai/historia/internal/memory"
	"github.com/historia-ai/historia/internal/metrics"
	"github.com/historia-ai/historia/internal/observability"
	"github.com/historia-ai/historia/internal/retrieval"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	obs := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := memory.NewStore(ctx, cfg.RedisURL, cfg.DatabaseURL, cfg.ConversationTTL)
	if err != nil {
		log.Fatalf("conversation store init failed: %v", err)
	}
	defer store.Close()

	retriever, err := retrieval.NewSearcher(retrieval.Config{
		Mode:             cfg.RetrieverMode,
		QdrantURL:        cfg.QdrantURL,
		QdrantAPIKey:     cfg.QdrantAPIKey,
		QdrantCollection: cfg.QdrantCollection,
		EmbedderURL:      cfg.EmbedderURL,
		EmbedderAPIKey:   cfg.EmbedderAPIKey,
		EmbedderModel:    cfg.EmbedderModel,
		Timeout:          cfg.LLMTimeout,
	})
	if err != nil {
		log.Fatalf("retriever init failed: %v", err)
	}

	client, err := llm.NewClient(llm.Config{
		Mode:    cfg.LLMMode,
		URL:     cfg.LLMURL,
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
		Timeout: cfg.LLMTimeout,
	})
	if err != nil {
		log.Fatalf("llm client init failed: %v", err)
	}

	if cfg.CorpusPath != "" {
		chunks, err := ingest.Seed(ctx, retriever, cfg.CorpusPath)
		if err != nil {
			log.Fatalf("corpus seeding failed: %v", err)
		}
		log.Printf("corpus seeded from %s (%d chunks)", cfg.CorpusPath, chunks)
	}

	agg := metrics.NewAggregator(metrics.NewKeywordScorer(metrics.DefaultReferenceCases()))
	engine := chat.NewEngine(store, retriever, client, agg, obs, cfg.HistoryWindow, cfg.RetrievalTopK)

	api := httpapi.New(cfg, engine, store, retriever, client, agg, obs)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	switch s := store.(type) {
	case *memory.InMemoryStore:
		s.StartJanitor(runCtx, time.Minute)
	case *memory.PostgresStore:
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-runCtx.Done():
					return
				case <-ticker.C:
					if err := s.PruneExpired(runCtx); err != nil {
						log.Printf("prune expired conversations: %v", err)
					}
				}
			}
		}()
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
