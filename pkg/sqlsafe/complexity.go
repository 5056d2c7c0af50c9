package sqlsafe

import (
	"regexp"
	"strings"
)

// ComplexityBudget caps how elaborate a single statement may be.
type ComplexityBudget struct {
	MaxJoins         int
	MaxSubqueryDepth int
}

// DefaultComplexityBudget returns the limits applied when none are configured.
func DefaultComplexityBudget() ComplexityBudget {
	return ComplexityBudget{
		MaxJoins:         8,
		MaxSubqueryDepth: 3,
	}
}

var joinPattern = regexp.MustCompile(`(?i)\bjoin\b`)

// CountJoins returns the number of JOIN keywords outside string literals.
func CountJoins(sqlQuery string) int {
	return len(joinPattern.FindAllString(maskStringLiterals(sqlQuery), -1))
}

// MaxSubqueryDepth returns the deepest nesting of a SELECT inside
// parentheses. A flat statement has depth zero.
func MaxSubqueryDepth(sqlQuery string) int {
	masked := strings.ToLower(maskStringLiterals(sqlQuery))

	depth := 0
	maxDepth := 0
	// Stack of whether each open paren introduced a subquery.
	var stack []bool

	for i := 0; i < len(masked); i++ {
		switch masked[i] {
		case '(':
			isSub := strings.HasPrefix(strings.TrimLeft(masked[i+1:], " \t\n\r"), "select")
			stack = append(stack, isSub)
			if isSub {
				depth++
				if depth > maxDepth {
					maxDepth = depth
				}
			}
		case ')':
			if n := len(stack); n > 0 {
				if stack[n-1] {
					depth--
				}
				stack = stack[:n-1]
			}
		}
	}

	return maxDepth
}

// maskStringLiterals replaces the contents of single-quoted literals with
// spaces so keyword scans cannot match inside them.
func maskStringLiterals(sqlQuery string) string {
	out := []byte(sqlQuery)
	inString := false

	for i := 0; i < len(out); i++ {
		if out[i] == '\'' {
			if inString && i+1 < len(out) && out[i+1] == '\'' {
				out[i+1] = ' '
				i++
				continue
			}
			inString = !inString
			continue
		}
		if inString {
			out[i] = ' '
		}
	}

	return string(out)
}
