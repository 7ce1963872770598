// Package synth converts ranked retrieval results into ephemeral,
// scoped contextual rules for response generation.
package synth

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mnemo-ai/mnemo/internal/config"
	"github.com/mnemo-ai/mnemo/internal/model"
	"github.com/mnemo-ai/mnemo/internal/relevance"
	"github.com/mnemo-ai/mnemo/internal/token"
)

// taskVerbs trigger the task-intent rule during topic inference.
var taskVerbs = map[string]bool{
	"build": true, "create": true, "debug": true, "explain": true,
	"find": true, "fix": true, "help": true, "implement": true,
	"make": true, "review": true, "show": true, "summarize": true,
	"translate": true, "write": true,
}

// Synthesizer derives contextual rules per query cycle and tracks the
// active set across turns. Rules live only in memory; expiry is
// enforced here regardless of whether any caller clears them.
type Synthesizer struct {
	cfg config.Rules
	log *zap.Logger
	now func() time.Time

	mu     sync.Mutex
	active []*model.ContextualRule
	seq    int
}

// New creates a Synthesizer.
func New(cfg config.Rules, log *zap.Logger) *Synthesizer {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.DefaultTTLTurns <= 0 {
		cfg.DefaultTTLTurns = 3
	}
	if cfg.DefaultMaxViolations <= 0 {
		cfg.DefaultMaxViolations = 2
	}
	if cfg.MaxRules <= 0 {
		cfg.MaxRules = 5
	}
	return &Synthesizer{cfg: cfg, log: log, now: time.Now}
}

// Synthesize builds the ordered rule set for one prompt. Variant
// selection is driven by match confidence: memory-match when retrieval
// scored above the threshold, topic inference from the prompt itself
// otherwise, and a generic fallback only when the prompt yields
// nothing at all. The produced rules replace the expired portion of
// the active set and are returned highest relevance first.
func (s *Synthesizer) Synthesize(prompt string, matches []relevance.Match, window []model.Turn) []model.ContextualRule {
	confidence := 0.0
	if len(matches) > 0 {
		confidence = matches[0].Score
	}

	var rules []*model.ContextualRule
	switch {
	case confidence >= s.cfg.MemoryMatchThreshold:
		rules = s.fromMemory(matches)
	default:
		rules = s.fromTopics(prompt, window)
	}
	if len(rules) == 0 {
		rules = s.generic()
	}
	if len(rules) > s.cfg.MaxRules {
		rules = rules[:s.cfg.MaxRules]
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()
	for _, r := range rules {
		// inactive -> active: the prompt itself is the trigger match.
		r.State = model.RuleActive
		s.active = append(s.active, r)
	}

	out := make([]model.ContextualRule, len(rules))
	for i, r := range rules {
		out[i] = *r
	}
	return out
}

// fromMemory renders retrieved episodes and principles into rules.
func (s *Synthesizer) fromMemory(matches []relevance.Match) []*model.ContextualRule {
	var rules []*model.ContextualRule
	for _, m := range matches {
		switch m.Kind {
		case relevance.TargetPrinciple:
			for _, rt := range m.Principle.Rules {
				rules = append(rules, s.newRule(rt, model.VariantMemoryMatch, m.Score, m.Principle.ID))
			}
			if len(m.Principle.Rules) == 0 && m.Principle.Description != "" {
				rules = append(rules, s.newRule(m.Principle.Description, model.VariantMemoryMatch, m.Score, m.Principle.ID))
			}
		case relevance.TargetEpisode:
			text := fmt.Sprintf("Recall a past conversation (%s): %s", m.Episode.Title, m.Episode.Summary)
			rules = append(rules, s.newRule(text, model.VariantMemoryMatch, m.Score, m.Episode.EpisodeID))
		}
	}
	return rules
}

// fromTopics derives content-based rules from the prompt and the
// recent conversation window when retrieval came back empty. This is
// deliberately not a fixed boilerplate: the rules are built from what
// the prompt actually says.
func (s *Synthesizer) fromTopics(prompt string, window []model.Turn) []*model.ContextualRule {
	var rules []*model.ContextualRule

	topics := token.Keywords(prompt, 4)
	if len(topics) == 0 && len(window) > 0 {
		var recent []string
		for _, t := range window {
			recent = append(recent, t.Text)
		}
		topics = token.Keywords(strings.Join(recent, "\n"), 4)
	}
	if len(topics) > 0 {
		text := "Stay focused on the current topics: " + strings.Join(topics, ", ") + "."
		rules = append(rules, s.newRule(text, model.VariantTopicInference, 0.5, ""))
	}

	switch {
	case strings.Contains(prompt, "?"):
		rules = append(rules, s.newRule(
			"The user is asking a question; answer it directly before adding detail.",
			model.VariantTopicInference, 0.4, ""))
	case hasTaskVerb(prompt):
		rules = append(rules, s.newRule(
			"The user wants something done; lead with the result, keep commentary short.",
			model.VariantTopicInference, 0.4, ""))
	}

	return rules
}

// generic is the last-resort variant for prompts with no usable content.
func (s *Synthesizer) generic() []*model.ContextualRule {
	return []*model.ContextualRule{
		s.newRule("No relevant memory found; respond from general knowledge and say so if asked.",
			model.VariantGenericFallback, 0.1, ""),
	}
}

func (s *Synthesizer) newRule(text string, variant model.RuleVariant, score float64, source string) *model.ContextualRule {
	s.mu.Lock()
	s.seq++
	id := fmt.Sprintf("rule-%d", s.seq)
	s.mu.Unlock()

	exp := s.now().Add(time.Duration(s.cfg.DefaultTTLTurns) * 10 * time.Minute)
	r := &model.ContextualRule{
		ID:            id,
		Text:          text,
		Score:         score,
		Variant:       variant,
		State:         model.RuleInactive,
		TTLTurns:      s.cfg.DefaultTTLTurns,
		TurnsLeft:     s.cfg.DefaultTTLTurns,
		ExpiresAt:     &exp,
		MaxViolations: s.cfg.DefaultMaxViolations,
	}
	if source != "" {
		r.Sources = []string{source}
	}
	return r
}

// ObserveTurn advances turn-based TTLs. A rule whose turn budget or
// wall clock runs out expires here, with no caller intervention.
func (s *Synthesizer) ObserveTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.active {
		if r.State != model.RuleActive {
			continue
		}
		r.TurnsLeft--
		if r.TurnsLeft < 0 {
			r.TurnsLeft = 0
		}
		if r.TurnsLeft == 0 {
			s.expireLocked(r, "ttl")
		}
	}
	s.pruneLocked()
}

// RecordViolation counts a response that broke the rule. Hitting the
// limit expires the rule so a transient instruction can never lock in.
func (s *Synthesizer) RecordViolation(ruleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.active {
		if r.ID != ruleID || r.State != model.RuleActive {
			continue
		}
		r.Violations++
		if r.Violations >= r.MaxViolations {
			s.expireLocked(r, "violations")
		}
		return
	}
}

// ActiveRules returns the current active set, expired rules pruned.
func (s *Synthesizer) ActiveRules() []model.ContextualRule {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()
	out := make([]model.ContextualRule, 0, len(s.active))
	for _, r := range s.active {
		out = append(out, *r)
	}
	return out
}

// Reset discards the whole active set (new session).
func (s *Synthesizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = nil
}

// expireLocked transitions active -> expired. No other transition out
// of active exists.
func (s *Synthesizer) expireLocked(r *model.ContextualRule, reason string) {
	r.State = model.RuleExpired
	s.log.Debug("rule expired", zap.String("id", r.ID), zap.String("reason", reason))
}

// pruneLocked removes expired rules and enforces wall-clock expiry.
func (s *Synthesizer) pruneLocked() {
	now := s.now()
	kept := s.active[:0]
	for _, r := range s.active {
		if r.State == model.RuleActive && r.ExpiresAt != nil && now.After(*r.ExpiresAt) {
			s.expireLocked(r, "wall_clock")
		}
		if r.State == model.RuleExpired {
			continue
		}
		kept = append(kept, r)
	}
	s.active = kept
}

func hasTaskVerb(prompt string) bool {
	for _, t := range token.Tokenize(prompt) {
		if taskVerbs[t] {
			return true
		}
	}
	return false
}
