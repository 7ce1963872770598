// Package model defines the core memory data types.
package model

import "time"

// Speaker tags a conversation turn with its originator.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
	SpeakerSystem    Speaker = "system"
)

// Turn is a single utterance within a conversation session.
type Turn struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// SessionMeta describes the session an episode was captured from.
type SessionMeta struct {
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	TurnCount int       `json:"turn_count"`
}

// Episode is one finalized, immutable conversation session record.
// It is created at session end and never mutated afterward; retention
// eviction may remove it, nothing may edit it.
type Episode struct {
	ID        string      `json:"id"`
	Turns     []Turn      `json:"turns"`
	Meta      SessionMeta `json:"meta"`
	CreatedAt time.Time   `json:"created_at"`
}

// Text returns the concatenated turn text, one turn per line,
// prefixed with the speaker tag. Used for summarization and indexing.
func (e *Episode) Text() string {
	n := 0
	for _, t := range e.Turns {
		n += len(t.Speaker) + len(t.Text) + 3
	}
	buf := make([]byte, 0, n)
	for i, t := range e.Turns {
		if i > 0 {
			buf = append(buf, '\n')
		}
		buf = append(buf, string(t.Speaker)...)
		buf = append(buf, ':', ' ')
		buf = append(buf, t.Text...)
	}
	return string(buf)
}

// ValidSpeakers are the allowed turn speaker tags.
var ValidSpeakers = map[Speaker]bool{
	SpeakerUser:      true,
	SpeakerAssistant: true,
	SpeakerSystem:    true,
}
