package models

import "fmt"

// ExplanationStyle selects the register of the generated explanation.
type ExplanationStyle string

const (
	StyleTechnical   ExplanationStyle = "TECHNICAL"
	StyleSimplified  ExplanationStyle = "SIMPLIFIED"
	StyleEducational ExplanationStyle = "EDUCATIONAL"
	StyleBrief       ExplanationStyle = "BRIEF"
)

// ParseExplanationStyle validates a style string, defaulting empty to SIMPLIFIED.
func ParseExplanationStyle(s string) (ExplanationStyle, error) {
	switch ExplanationStyle(s) {
	case StyleTechnical, StyleSimplified, StyleEducational, StyleBrief:
		return ExplanationStyle(s), nil
	case "":
		return StyleSimplified, nil
	}
	return "", fmt.Errorf("unknown explanation style %q", s)
}

// Explanation is the natural-language description of an executed statement.
type Explanation struct {
	Text               string           `json:"text"`
	Style              ExplanationStyle `json:"style"`
	ReferencedConcepts []string         `json:"referenced_concepts,omitempty"`
}
