// Package models defines the domain types shared across the query pipeline.
package models

// Operation classifies what a question is asking the database to do.
type Operation string

const (
	OpRead      Operation = "READ"
	OpAggregate Operation = "AGGREGATE"
	OpInsert    Operation = "INSERT"
	OpUpdate    Operation = "UPDATE"
	OpDelete    Operation = "DELETE"
	OpDDL       Operation = "DDL"
	OpUnknown   Operation = "UNKNOWN"
)

// IsDestructive reports whether the operation can modify or remove data.
func (o Operation) IsDestructive() bool {
	switch o {
	case OpUpdate, OpDelete, OpDDL:
		return true
	}
	return false
}

// MentionKind distinguishes what part of the schema (or query) a mention refers to.
type MentionKind string

const (
	MentionTable     MentionKind = "table"
	MentionColumn    MentionKind = "column"
	MentionValue     MentionKind = "value"
	MentionCondition MentionKind = "condition"
	MentionUnknown   MentionKind = "unknown"
)

// EntityMention is a free-form term the intent classifier extracted from the question.
type EntityMention struct {
	Text       string      `json:"text"`
	Kind       MentionKind `json:"kind"`
	Confidence float64     `json:"confidence"`
}

// Condition is a filter the classifier extracted from the question,
// e.g. {Subject: "state", Operator: "=", Value: "New York"}.
type Condition struct {
	Subject  string `json:"subject"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// Intent is the structured interpretation of one question. It is produced once
// per turn by the intent classifier and read-only afterward.
type Intent struct {
	Operation      Operation       `json:"operation"`
	Mentions       []EntityMention `json:"mentions,omitempty"`
	Conditions     []Condition     `json:"conditions,omitempty"`
	Confidence     float64         `json:"confidence"`
	Ambiguous      bool            `json:"ambiguous"`
	Clarifications []string        `json:"clarifications,omitempty"`
}

// MentionTexts returns the raw mention strings in order.
func (i *Intent) MentionTexts() []string {
	out := make([]string, 0, len(i.Mentions))
	for _, m := range i.Mentions {
		out = append(out, m.Text)
	}
	return out
}
