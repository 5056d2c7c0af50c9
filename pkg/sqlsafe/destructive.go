package sqlsafe

import (
	"strings"

	"github.com/queryloom/queryloom/pkg/models"
)

// ClassifyStatement returns the operation a statement performs, judged by its
// leading keyword. WITH-prefixed statements are classified by the statement
// that follows the CTE list.
func ClassifyStatement(sqlQuery string) models.Operation {
	keyword := leadingKeyword(sqlQuery)

	switch keyword {
	case "select":
		return models.OpRead
	case "insert":
		return models.OpInsert
	case "update":
		return models.OpUpdate
	case "delete", "truncate":
		return models.OpDelete
	case "create", "alter", "drop":
		return models.OpDDL
	default:
		return models.OpUnknown
	}
}

// leadingKeyword finds the first meaningful keyword, skipping a WITH clause
// by tracking paren depth until the CTE list ends.
func leadingKeyword(sqlQuery string) string {
	masked := strings.ToLower(maskStringLiterals(sqlQuery))
	fields := tokenize(masked)
	if len(fields) == 0 {
		return ""
	}

	if fields[0] != "with" {
		return fields[0]
	}

	// Skip tokens until paren depth returns to zero and the next token is a
	// statement keyword rather than another CTE name.
	depth := 0
	for _, tok := range fields[1:] {
		switch {
		case tok == "(":
			depth++
		case tok == ")":
			depth--
		case depth == 0:
			switch tok {
			case "select", "insert", "update", "delete":
				return tok
			}
		}
	}

	return "with"
}

// tokenize splits masked SQL into lowercase word and paren tokens.
func tokenize(s string) []string {
	var tokens []string
	var word []byte

	flush := func() {
		if len(word) > 0 {
			tokens = append(tokens, string(word))
			word = word[:0]
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '(' || c == ')':
			flush()
			tokens = append(tokens, string(c))
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == ',':
			flush()
		default:
			word = append(word, c)
		}
	}
	flush()

	return tokens
}
