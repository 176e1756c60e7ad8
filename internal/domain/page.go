package domain

// ScoringMethod records which subsystem produced a page score.
type ScoringMethod string

const (
	ScoredByRules ScoringMethod = "rules"
	ScoredByAI    ScoringMethod = "ai"
)

// Page is one discovered URL flowing through scoring and fingerprinting.
type Page struct {
	URL           string        `json:"url"`
	Title         string        `json:"title,omitempty"`
	Category      string        `json:"category,omitempty"`
	Score         float64       `json:"score"`
	ScoringMethod ScoringMethod `json:"scoring_method"`
	AIConfidence  float64       `json:"ai_confidence,omitempty"`
	AIReasoning   string        `json:"ai_reasoning,omitempty"`
}

// Fingerprint is the content signature the fingerprint service computes per page.
type Fingerprint struct {
	URL    string `json:"url"`
	Digest string `json:"digest"`
}
