package pipeline

import (
	"fmt"
	"strings"

	"github.com/queryloom/queryloom/pkg/models"
)

const intentSystemPrompt = `You are the intent-classification stage of a natural-language-to-SQL pipeline.
Extract structured intent from a user question about a relational database.
Respond with a single JSON object and nothing else:
{
  "operation": "READ" | "AGGREGATE" | "INSERT" | "UPDATE" | "DELETE" | "DDL" | "UNKNOWN",
  "mentions": [{"text": "...", "kind": "table" | "column" | "value" | "condition", "confidence": 0.0-1.0}],
  "conditions": [{"subject": "...", "operator": "...", "value": "..."}],
  "confidence": 0.0-1.0,
  "ambiguous": true | false,
  "clarifications": ["..."]
}
Mark the question ambiguous and propose clarification questions when you cannot
determine what data is being asked for. Never invent table or column names.`

const constructSystemPrompt = `You are the SQL-construction stage of a natural-language-to-SQL pipeline.
Produce one parameterized SQL statement for the given intent and schema bindings.
Rules, in order of importance:
1. Every value derived from user text MUST appear as a {{name}} placeholder with
   its value in "parameters". Never inline a user-supplied literal in the SQL.
2. Reference only the tables and columns listed in the bindings.
3. Use the join edges provided; do not invent join conditions.
4. Emit a single statement with no trailing semicolon.
Respond with a single JSON object and nothing else:
{
  "sql": "SELECT ... WHERE col = {{p1}}",
  "parameters": {"p1": "value"},
  "confidence": 0.0-1.0,
  "alternatives": ["..."],
  "warnings": ["..."],
  "referenced_tables": ["..."],
  "referenced_columns": ["table.column"]
}`

const explainSystemPrompt = `You are the explanation stage of a natural-language-to-SQL pipeline.
Describe what the executed SQL did and what the result contains, in the requested
style. Only reference values actually present in the result summary; never
fabricate data. Respond with a single JSON object and nothing else:
{
  "text": "...",
  "referenced_concepts": ["..."],
  "suggested_followups": ["..."]
}`

// styleInstructions maps each explanation style to its register.
var styleInstructions = map[models.ExplanationStyle]string{
	models.StyleTechnical:   "Technical: name the SQL clauses and operators used, assume SQL literacy.",
	models.StyleSimplified:  "Simplified: plain language, no SQL terminology, two or three sentences.",
	models.StyleEducational: "Educational: explain the SQL step by step so a learner could reproduce it.",
	models.StyleBrief:       "Brief: one sentence.",
}

// buildSchemaContext renders the snapshot's tables for a prompt. When the
// filter is non-empty only the named tables are included.
func buildSchemaContext(snapshot *models.SchemaSnapshot, only []string) string {
	keep := make(map[string]bool, len(only))
	for _, t := range only {
		keep[strings.ToLower(t)] = true
	}

	var b strings.Builder
	b.WriteString("## Schema\n\n")
	for _, table := range snapshot.Tables {
		if len(keep) > 0 && !keep[strings.ToLower(table.Name)] {
			continue
		}
		fmt.Fprintf(&b, "### %s", table.Name)
		if table.RowCount > 0 {
			fmt.Fprintf(&b, " (~%d rows)", table.RowCount)
		}
		b.WriteString("\n")
		for _, col := range table.Columns {
			fmt.Fprintf(&b, "- %s %s", col.Name, col.DataType)
			if col.PrimaryKey {
				b.WriteString(" PRIMARY KEY")
			}
			if !col.Nullable {
				b.WriteString(" NOT NULL")
			}
			if col.ForeignKey != nil {
				fmt.Fprintf(&b, " REFERENCES %s.%s", col.ForeignKey.Table, col.ForeignKey.Column)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// BuildIntentPrompt renders the classification prompt, including prior turns
// so elliptical follow-ups resolve against earlier bindings.
func BuildIntentPrompt(question string, history []*models.ConversationTurn) string {
	var b strings.Builder

	if len(history) > 0 {
		b.WriteString("## Conversation so far\n\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "Q: %s\n", turn.Question)
			if turn.Intent != nil {
				fmt.Fprintf(&b, "   operation: %s\n", turn.Intent.Operation)
			}
			for _, m := range turn.Mappings {
				if !m.Resolved() {
					continue
				}
				if m.Column != "" {
					fmt.Fprintf(&b, "   %q -> %s.%s\n", m.Mention, m.Table, m.Column)
				} else {
					fmt.Fprintf(&b, "   %q -> %s\n", m.Mention, m.Table)
				}
			}
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Question\n\n%s\n", question)
	return b.String()
}

// BuildConstructPrompt renders the SQL-construction prompt.
func BuildConstructPrompt(intent *models.Intent, mappings []models.EntityMapping, snapshot *models.SchemaSnapshot, joins []JoinEdge, joinable bool) string {
	var b strings.Builder

	tables := models.ResolvedTables(mappings)
	b.WriteString(buildSchemaContext(snapshot, tables))

	fmt.Fprintf(&b, "## Intent\n\noperation: %s\n", intent.Operation)
	for _, c := range intent.Conditions {
		fmt.Fprintf(&b, "condition: %s %s %s\n", c.Subject, c.Operator, c.Value)
	}
	b.WriteString("\n## Bindings\n\n")
	for _, m := range mappings {
		if !m.Resolved() {
			fmt.Fprintf(&b, "- %q: unresolved\n", m.Mention)
			continue
		}
		if m.Column != "" {
			fmt.Fprintf(&b, "- %q -> column %s.%s\n", m.Mention, m.Table, m.Column)
		} else {
			fmt.Fprintf(&b, "- %q -> table %s\n", m.Mention, m.Table)
		}
	}

	if len(joins) > 0 {
		b.WriteString("\n## Join edges\n\n")
		for _, j := range joins {
			fmt.Fprintf(&b, "- %s.%s = %s.%s\n", j.SourceTable, j.SourceColumn, j.TargetTable, j.TargetColumn)
		}
	} else if !joinable {
		b.WriteString("\nNo relationship path connects the referenced tables. Emit a structural warning and query a single table.\n")
	}

	fmt.Fprintf(&b, "\nDialect: %s\n", snapshot.Dialect)
	return b.String()
}

// BuildExplainPrompt renders the explanation prompt. The summary is nil when
// the caller asked for SQL without execution.
func BuildExplainPrompt(sqlText string, mappings []models.EntityMapping, summary *models.ExecutionSummary, style models.ExplanationStyle) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Statement\n\n%s\n", sqlText)

	var assumed []string
	for _, m := range mappings {
		if m.Strategy == models.MatchFuzzy || m.Strategy == models.MatchSynonym {
			assumed = append(assumed, fmt.Sprintf("%q was taken to mean %s", m.Mention, bindingName(m)))
		}
		if !m.Resolved() {
			assumed = append(assumed, fmt.Sprintf("%q could not be matched to the schema", m.Mention))
		}
	}
	if len(assumed) > 0 {
		b.WriteString("\n## Assumptions to surface\n\n")
		for _, a := range assumed {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}

	if summary != nil {
		fmt.Fprintf(&b, "\n## Result summary\n\nstatus: %s, rows: %d", summary.Status, summary.RowCount)
		if summary.Truncated {
			b.WriteString(" (truncated)")
		}
		b.WriteString("\n")
		if len(summary.Columns) > 0 {
			fmt.Fprintf(&b, "columns: %s\n", strings.Join(summary.Columns, ", "))
		}
		for _, row := range summary.SampleRows {
			fmt.Fprintf(&b, "sample: %v\n", row)
		}
		if summary.ErrorMessage != "" {
			fmt.Fprintf(&b, "error: %s\n", summary.ErrorMessage)
		}
	} else {
		b.WriteString("\nThe statement was not executed; explain what it would do.\n")
	}

	fmt.Fprintf(&b, "\nStyle: %s\n", styleInstructions[style])
	return b.String()
}

func bindingName(m models.EntityMapping) string {
	if m.Column != "" {
		return m.Table + "." + m.Column
	}
	return m.Table
}
