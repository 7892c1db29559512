package faq

import "time"

// RouteDecision is the verdict of the topic classifier.
type RouteDecision int

const (
	// InDomain questions continue to similarity matching.
	InDomain RouteDecision = iota
	// OffTopic questions are answered with the compliance message.
	OffTopic
)

func (d RouteDecision) String() string {
	if d == OffTopic {
		return "off_topic"
	}
	return "in_domain"
}

// Source tags which terminal path produced an answer.
type Source string

const (
	SourceLocal     Source = "local"
	SourceGenerated Source = "generated"
	SourceOffTopic  Source = "off_topic"
)

// NoMatchedQuestion is reported when no stored question was reused.
const NoMatchedQuestion = "N/A"

// Entry is a stored question/answer pair. Embedding is nil until computed.
type Entry struct {
	ID        int64
	Question  string
	Answer    string
	Embedding []float32
	Partition string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasEmbedding reports whether the entry can take part in matching.
func (e Entry) HasEmbedding() bool {
	return len(e.Embedding) > 0
}

// MatchResult is the best candidate for a query. A nil Candidate with a zero
// Score means the corpus held nothing to compare against.
type MatchResult struct {
	Candidate *Entry
	Score     float64
}

// HasCandidate reports whether a comparison was actually performed.
func (m MatchResult) HasCandidate() bool {
	return m.Candidate != nil
}

// Request is a single question submitted to the pipeline.
type Request struct {
	Question  string
	Partition string
}

// AnswerEnvelope is the externally visible result of the pipeline.
type AnswerEnvelope struct {
	Source          Source   `json:"source"`
	MatchedQuestion string   `json:"matched_question"`
	Answer          string   `json:"answer"`
	SimilarityScore *float64 `json:"similarity_score"`
}
