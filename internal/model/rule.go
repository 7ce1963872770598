package model

import "time"

// RuleVariant tags how a contextual rule was derived.
type RuleVariant string

const (
	// VariantMemoryMatch means the rule came from retrieved episodes
	// or core principles scoring above the confidence threshold.
	VariantMemoryMatch RuleVariant = "memory_match"
	// VariantTopicInference means no memory matched and the rule was
	// inferred from the prompt's own topics and intent.
	VariantTopicInference RuleVariant = "topic_inference"
	// VariantGenericFallback is the last resort when neither memory
	// nor topic inference produced anything usable.
	VariantGenericFallback RuleVariant = "generic_fallback"
)

// RuleState is the lifecycle state of a contextual rule.
// Transitions: inactive -> active -> expired. Nothing else.
type RuleState string

const (
	RuleInactive RuleState = "inactive"
	RuleActive   RuleState = "active"
	RuleExpired  RuleState = "expired"
)

// ContextualRule is an ephemeral, scoped instruction derived for a
// single query/response cycle. It is never persisted as authoritative
// state. Every rule that constrains response style carries a turn TTL
// and a violation limit; reaching either expires it unconditionally.
type ContextualRule struct {
	ID            string      `json:"id"`
	Text          string      `json:"text"`
	Sources       []string    `json:"sources,omitempty"` // episode ids or core item ids
	Score         float64     `json:"score"`
	Variant       RuleVariant `json:"variant"`
	State         RuleState   `json:"state"`
	TTLTurns      int         `json:"ttl_turns"`
	TurnsLeft     int         `json:"turns_left"`
	ExpiresAt     *time.Time  `json:"expires_at,omitempty"`
	MaxViolations int         `json:"max_violations"`
	Violations    int         `json:"violations"`
}
