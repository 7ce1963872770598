package model

import "time"

// RankWeights are the tunable coefficients of the composite rank.
// They must sum to 1.0.
type RankWeights struct {
	Quality    float64 `yaml:"quality" json:"quality"`
	Learning   float64 `yaml:"learning" json:"learning"`
	Complexity float64 `yaml:"complexity" json:"complexity"`
	Emotional  float64 `yaml:"emotional" json:"emotional"`
}

// DefaultRankWeights are the historical defaults. Treated as
// configuration, not a constant of the system.
func DefaultRankWeights() RankWeights {
	return RankWeights{Quality: 0.4, Learning: 0.3, Complexity: 0.2, Emotional: 0.1}
}

// Sum returns the total of all four weights.
func (w RankWeights) Sum() float64 {
	return w.Quality + w.Learning + w.Complexity + w.Emotional
}

// IndexEntry is the searchable summary derived from one episode.
// The entry references the episode by id; it never owns it.
type IndexEntry struct {
	EpisodeID    string    `json:"episode_id"`
	Title        string    `json:"title"`
	Summary      string    `json:"summary"`
	InvokeKeys   []string  `json:"invoke_keys"`
	QualityLevel int       `json:"quality_level"` // ordinal 1..5
	Learning     float64   `json:"learning_value"`
	Complexity   float64   `json:"complexity_score"`
	Emotional    float64   `json:"emotional_significance"`
	Composite    float64   `json:"composite_rank"`
	IndexedAt    time.Time `json:"indexed_at"`
}

// ComputeComposite evaluates the weighted rank for the entry's component
// scores. QualityLevel is mapped from its 1..5 ordinal onto [0,1].
func (e *IndexEntry) ComputeComposite(w RankWeights) float64 {
	q := float64(e.QualityLevel-1) / 4.0
	return w.Quality*q + w.Learning*e.Learning + w.Complexity*e.Complexity + w.Emotional*e.Emotional
}
