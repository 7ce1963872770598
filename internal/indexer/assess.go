package indexer

import (
	"math"
	"strings"

	"github.com/mnemo-ai/mnemo/internal/model"
	"github.com/mnemo-ai/mnemo/internal/token"
)

// techTerms mark technical/domain content. Matching any of these, or a
// token containing digits, counts toward the complexity signal.
var techTerms = map[string]bool{
	"algorithm": true, "api": true, "bug": true, "code": true, "compile": true,
	"config": true, "database": true, "debug": true, "deploy": true, "error": true,
	"function": true, "index": true, "kernel": true, "latency": true, "library": true,
	"memory": true, "network": true, "parse": true, "protocol": true, "query": true,
	"server": true, "sql": true, "stack": true, "test": true, "thread": true,
	"token": true, "variable": true, "version": true,
}

// emotionTerms mark emotionally loaded content.
var emotionTerms = map[string]bool{
	"amazing": true, "angry": true, "awful": true, "excited": true, "frustrated": true,
	"glad": true, "great": true, "happy": true, "hate": true, "love": true,
	"sad": true, "scared": true, "sorry": true, "terrible": true, "thank": true,
	"thanks": true, "upset": true, "wonderful": true, "worried": true,
}

// Assessment holds the four component scores of an episode.
type Assessment struct {
	QualityLevel int     // ordinal 1..5
	Learning     float64 // [0,1]
	Complexity   float64 // [0,1]
	Emotional    float64 // [0,1]
}

// Assess derives component scores from episode features: turn count,
// lexical variety, technical term presence, and sentiment intensity.
// It is a pure function; the same episode always scores the same.
func Assess(ep *model.Episode) Assessment {
	text := ep.Text()
	tokens := token.Tokenize(text)

	total := len(tokens)
	unique := make(map[string]bool, total)
	techCount := 0
	emotionCount := 0
	for _, t := range tokens {
		unique[t] = true
		if techTerms[t] || strings.ContainsAny(t, "0123456789") {
			techCount++
		}
		if emotionTerms[t] {
			emotionCount++
		}
	}

	variety := 0.0
	if total > 0 {
		variety = float64(len(unique)) / float64(total)
	}

	depth := clamp01(float64(len(ep.Turns)) / 12.0)
	substance := clamp01(float64(total) / 300.0)

	complexity := 0.0
	if total > 0 {
		complexity = clamp01(3.0*float64(techCount)/float64(total) + 0.3*variety)
	}

	questions := float64(strings.Count(text, "?"))
	learning := clamp01(0.5*complexity + 0.5*clamp01(questions/float64(max(len(ep.Turns), 1))))

	exclaims := float64(strings.Count(text, "!"))
	emotional := 0.0
	if total > 0 {
		emotional = clamp01(4.0*float64(emotionCount)/float64(total) + clamp01(exclaims/10.0)*0.3)
	}

	// Quality: conversation depth plus lexical substance, onto 1..5.
	q := 0.4*depth + 0.3*substance + 0.3*variety
	level := 1 + int(math.Floor(q*4.999))
	if level > 5 {
		level = 5
	}

	return Assessment{
		QualityLevel: level,
		Learning:     round3(learning),
		Complexity:   round3(complexity),
		Emotional:    round3(emotional),
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
