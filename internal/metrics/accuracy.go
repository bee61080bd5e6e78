package metrics

import "strings"

// AccuracyScorer grades a response against a query for offline evaluation.
// It is pluggable so the reference table can be swapped without touching the
// aggregator.
type AccuracyScorer interface {
	Score(query, response string) float64
}

// ReferenceCase is one known query with its expected answer substring and
// the keywords that identify both the query and plausible partial answers.
type ReferenceCase struct {
	Query          string
	ExpectedAnswer string
	Keywords       []string
}

// KeywordScorer grades against an ordered table of reference cases. The
// first case whose keywords intersect the query decides the grade: 1.0 for
// the expected answer substring, 0.7 for any keyword hit in the response,
// 0.3 otherwise. Queries matching no case score a neutral 0.5.
type KeywordScorer struct {
	cases []ReferenceCase
}

func NewKeywordScorer(cases []ReferenceCase) *KeywordScorer {
	if cases == nil {
		cases = DefaultReferenceCases()
	}
	return &KeywordScorer{cases: cases}
}

func (s *KeywordScorer) Score(query, response string) float64 {
	queryLower := strings.ToLower(query)
	responseLower := strings.ToLower(response)

	for _, c := range s.cases {
		if !containsAnyKeyword(queryLower, c.Keywords) {
			continue
		}
		if strings.Contains(responseLower, strings.ToLower(c.ExpectedAnswer)) {
			return 1.0
		}
		if containsAnyKeyword(responseLower, c.Keywords) {
			return 0.7
		}
		return 0.3
	}
	return 0.5
}

func containsAnyKeyword(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// DefaultReferenceCases is the built-in evaluation table for the Mexican
// Revolution corpus.
func DefaultReferenceCases() []ReferenceCase {
	return []ReferenceCase{
		{
			Query:          "When did the Mexican Revolution start?",
			ExpectedAnswer: "1910",
			Keywords:       []string{"1910", "revolution", "start", "begin"},
		},
		{
			Query:          "Who was Pancho Villa?",
			ExpectedAnswer: "revolutionary leader",
			Keywords:       []string{"revolutionary", "leader", "general", "dorado"},
		},
		{
			Query:          "What was Emiliano Zapata known for?",
			ExpectedAnswer: "land reform",
			Keywords:       []string{"land", "reform", "agrarian", "peasant"},
		},
	}
}
