package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Aggregator keeps rolling per-conversation and system-wide response
// statistics. A single mutex guards every read and write, so each public
// method is atomic with respect to every other.
type Aggregator struct {
	mu            sync.Mutex
	responses     []ResponseMetric
	conversations map[string]*ConversationMetric
	scorer        AccuracyScorer
}

func NewAggregator(scorer AccuracyScorer) *Aggregator {
	if scorer == nil {
		scorer = NewKeywordScorer(nil)
	}
	return &Aggregator{
		conversations: make(map[string]*ConversationMetric),
		scorer:        scorer,
	}
}

// RecordRequest captures the inputs for one processed message.
type RecordRequest struct {
	ConversationID  string
	Query           string
	Response        string
	ResponseTime    float64
	ConfidenceScore float64
	ToolsUsed       []string
	SourcesCount    int
	ErrorOccurred   bool
	ErrorMessage    string
}

// RecordResponse appends a ResponseMetric and updates the owning
// conversation's rolling view. It always succeeds and returns the new
// response id.
func (a *Aggregator) RecordResponse(req RecordRequest) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	tools := make([]string, len(req.ToolsUsed))
	copy(tools, req.ToolsUsed)

	rm := ResponseMetric{
		ResponseID:      uuid.NewString(),
		ConversationID:  req.ConversationID,
		Query:           req.Query,
		Response:        req.Response,
		ResponseTime:    req.ResponseTime,
		ConfidenceScore: req.ConfidenceScore,
		ToolsUsed:       tools,
		SourcesCount:    req.SourcesCount,
		Timestamp:       time.Now().UTC(),
		ErrorOccurred:   req.ErrorOccurred,
		ErrorMessage:    req.ErrorMessage,
	}
	a.responses = append(a.responses, rm)

	cm := a.conversationLocked(req.ConversationID)
	cm.TotalMessages++
	if cm.TotalMessages > 0 {
		cm.FollowUpQuestions = cm.TotalMessages - 1
	}
	for _, tool := range rm.ToolsUsed {
		cm.ToolsUsageCount[tool]++
	}
	a.refreshConversationLocked(cm)

	return rm.ResponseID
}

// RecordUserRating attaches a rating to an existing response and re-derives
// the conversation counters. Returns false when the response id is unknown.
func (a *Aggregator) RecordUserRating(responseID, rating string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.responses {
		rm := &a.responses[i]
		if rm.ResponseID != responseID {
			continue
		}

		cm := a.conversationLocked(rm.ConversationID)
		// A repeated rating replaces the previous one so the counters keep
		// matching the response rows.
		switch rm.UserRating {
		case RatingLike:
			cm.TotalLikes--
		case RatingDislike:
			cm.TotalDislikes--
		}
		rm.UserRating = rating
		switch rating {
		case RatingLike:
			cm.TotalLikes++
		case RatingDislike:
			cm.TotalDislikes++
		}
		a.refreshConversationLocked(cm)
		return true
	}
	return false
}

// ResponseAccuracy grades a query/response pair with the configured scorer.
func (a *Aggregator) ResponseAccuracy(query, response string) float64 {
	return a.scorer.Score(query, response)
}

// SystemSnapshot computes the on-demand system-wide view. All-zero when
// nothing has been recorded yet.
func (a *Aggregator) SystemSnapshot() SystemMetric {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.systemSnapshotLocked()
}

func (a *Aggregator) systemSnapshotLocked() SystemMetric {
	now := time.Now().UTC()
	if len(a.responses) == 0 {
		return SystemMetric{ToolEffectiveness: map[string]float64{}, Timestamp: now}
	}

	totalQueries := len(a.responses)
	var totalErrors int
	var totalTime float64
	var rated, likes int
	toolRated := make(map[string]int)
	toolLiked := make(map[string]int)

	for _, rm := range a.responses {
		if rm.ErrorOccurred {
			totalErrors++
		}
		totalTime += rm.ResponseTime
		if rm.UserRating != "" {
			rated++
			if rm.UserRating == RatingLike {
				likes++
			}
			for _, tool := range rm.ToolsUsed {
				toolRated[tool]++
				if rm.UserRating == RatingLike {
					toolLiked[tool]++
				}
			}
		}
	}

	likePercentage := 0.0
	if rated > 0 {
		likePercentage = float64(likes) / float64(rated) * 100
	}

	toolEffectiveness := make(map[string]float64, len(toolRated))
	for tool, count := range toolRated {
		toolEffectiveness[tool] = float64(toolLiked[tool]) / float64(count) * 100
	}

	retentionRate := 0.0
	if len(a.conversations) > 0 {
		withFollowUps := 0
		for _, cm := range a.conversations {
			if cm.FollowUpQuestions > 0 {
				withFollowUps++
			}
		}
		retentionRate = float64(withFollowUps) / float64(len(a.conversations)) * 100
	}

	return SystemMetric{
		TotalQueries:              totalQueries,
		TotalErrors:               totalErrors,
		AverageResponseTime:       totalTime / float64(totalQueries),
		LikePercentage:            likePercentage,
		ToolEffectiveness:         toolEffectiveness,
		ErrorRate:                 float64(totalErrors) / float64(totalQueries) * 100,
		ConversationRetentionRate: retentionRate,
		Timestamp:                 now,
	}
}

// ConversationByID returns the rolling view for one conversation.
func (a *Aggregator) ConversationByID(conversationID string) (ConversationMetric, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cm, ok := a.conversations[conversationID]
	if !ok {
		return ConversationMetric{}, false
	}
	return cloneConversation(cm), true
}

// AllConversations returns every conversation's rolling view, oldest first.
func (a *Aggregator) AllConversations() []ConversationMetric {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ConversationMetric, 0, len(a.conversations))
	for _, cm := range a.conversations {
		out = append(out, cloneConversation(cm))
	}
	sortConversations(out)
	return out
}

// ResponseByID returns one response record.
func (a *Aggregator) ResponseByID(responseID string) (ResponseMetric, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, rm := range a.responses {
		if rm.ResponseID == responseID {
			return rm, true
		}
	}
	return ResponseMetric{}, false
}

// Recent returns all responses recorded within the last given hours, in
// recording order.
func (a *Aggregator) Recent(hours int) []ResponseMetric {
	a.mu.Lock()
	defer a.mu.Unlock()
	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	out := make([]ResponseMetric, 0, len(a.responses))
	for _, rm := range a.responses {
		if !rm.Timestamp.Before(cutoff) {
			out = append(out, rm)
		}
	}
	return out
}

// ClearOld prunes by age. Zero days clears everything. The response and
// conversation prunes are independent: a conversation row can outlive its
// response rows and vice versa.
func (a *Aggregator) ClearOld(days int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if days == 0 {
		a.responses = nil
		a.conversations = make(map[string]*ConversationMetric)
		return
	}

	cutoff := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	kept := a.responses[:0]
	for _, rm := range a.responses {
		if !rm.Timestamp.Before(cutoff) {
			kept = append(kept, rm)
		}
	}
	a.responses = kept

	for id, cm := range a.conversations {
		if cm.LastActivity.Before(cutoff) {
			delete(a.conversations, id)
		}
	}
}

// ExportAll produces the full dump for offline analysis.
func (a *Aggregator) ExportAll() Export {
	a.mu.Lock()
	defer a.mu.Unlock()

	conversations := make([]ConversationMetric, 0, len(a.conversations))
	for _, cm := range a.conversations {
		conversations = append(conversations, cloneConversation(cm))
	}
	sortConversations(conversations)

	responses := make([]ResponseMetric, len(a.responses))
	copy(responses, a.responses)

	return Export{
		SystemMetrics:       a.systemSnapshotLocked(),
		ConversationMetrics: conversations,
		ResponseMetrics:     responses,
		ExportTimestamp:     time.Now().UTC(),
	}
}

func (a *Aggregator) conversationLocked(conversationID string) *ConversationMetric {
	cm, ok := a.conversations[conversationID]
	if !ok {
		now := time.Now().UTC()
		cm = &ConversationMetric{
			ConversationID:  conversationID,
			ToolsUsageCount: make(map[string]int),
			CreatedAt:       now,
			LastActivity:    now,
		}
		a.conversations[conversationID] = cm
	}
	return cm
}

// refreshConversationLocked re-derives the fields that depend on the
// conversation's response rows.
func (a *Aggregator) refreshConversationLocked(cm *ConversationMetric) {
	cm.LastActivity = time.Now().UTC()
	var total float64
	var count int
	for _, rm := range a.responses {
		if rm.ConversationID != cm.ConversationID {
			continue
		}
		total += rm.ResponseTime
		count++
	}
	if count > 0 {
		cm.AverageResponseTime = total / float64(count)
	}
}

func cloneConversation(cm *ConversationMetric) ConversationMetric {
	out := *cm
	out.ToolsUsageCount = make(map[string]int, len(cm.ToolsUsageCount))
	for k, v := range cm.ToolsUsageCount {
		out.ToolsUsageCount[k] = v
	}
	return out
}

func sortConversations(list []ConversationMetric) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}
