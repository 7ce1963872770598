package model

import (
	"strings"
	"time"
)

// Category classifies a core memory item.
type Category string

const (
	CategoryConstitutional Category = "constitutional"
	CategoryIdentity       Category = "identity"
	CategoryCapability     Category = "capability"
	CategoryPreference     Category = "preference"
)

// ValidCategories are the allowed core memory categories.
var ValidCategories = map[Category]bool{
	CategoryConstitutional: true,
	CategoryIdentity:       true,
	CategoryCapability:     true,
	CategoryPreference:     true,
}

// CoreItem is a long-lived fact or principle. At most one item exists
// per (category, normalized name); re-learning updates in place.
type CoreItem struct {
	ID          string    `json:"id"`
	Category    Category  `json:"category"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Rules       []string  `json:"rules"`
	Priority    int       `json:"priority"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

/// NormalizeName canonicalizes an item name for dedup lookup:
// lowercase, trimmed, inner whitespace collapsed to single spaces.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
