package sqlsafe

import (
	"fmt"
	"regexp"

	"github.com/queryloom/queryloom/pkg/models"
)

// parameterRegex matches {{parameter_name}} placeholders in SQL templates.
// Parameter names must start with a letter or underscore, followed by any
// number of alphanumeric characters or underscores.
var parameterRegex = regexp.MustCompile(`\{\{([a-zA-Z_]\w*)\}\}`)

// ExtractParameters finds all {{param}} placeholders in SQL and returns a
// deduplicated list of parameter names in order of first appearance.
func ExtractParameters(sqlQuery string) []string {
	matches := parameterRegex.FindAllStringSubmatch(sqlQuery, -1)
	seen := make(map[string]bool)
	var params []string

	for _, match := range matches {
		name := match[1]
		if !seen[name] {
			seen[name] = true
			params = append(params, name)
		}
	}

	return params
}

// ValidateParameterValues checks that the placeholders in SQL and the
// supplied value map match exactly: every {{param}} has a value and every
// value is used.
func ValidateParameterValues(sqlQuery string, values map[string]any) error {
	extracted := ExtractParameters(sqlQuery)

	extractedSet := make(map[string]bool)
	for _, name := range extracted {
		extractedSet[name] = true
	}

	for _, name := range extracted {
		if _, ok := values[name]; !ok {
			return fmt.Errorf("parameter {{%s}} used in SQL but no value supplied", name)
		}
	}

	for name := range values {
		if !extractedSet[name] {
			return fmt.Errorf("parameter %q has a value but is not used in SQL", name)
		}
	}

	return nil
}

// SubstituteParameters replaces {{param}} placeholders with the dialect's
// bind syntax and returns the prepared SQL plus ordered values for binding.
//
// For postgres and mssql the same parameter name reuses one positional slot
// ($1 / @p1). For sqlite each occurrence binds a fresh "?" and the value is
// repeated in the ordered slice.
func SubstituteParameters(sqlQuery string, values map[string]any, dialect string) (string, []any, error) {
	if err := ValidateParameterValues(sqlQuery, values); err != nil {
		return "", nil, err
	}

	var ordered []any
	positions := make(map[string]int)
	next := 1

	result := parameterRegex.ReplaceAllStringFunc(sqlQuery, func(match string) string {
		name := parameterRegex.FindStringSubmatch(match)[1]

		if dialect == models.DialectSQLite {
			ordered = append(ordered, values[name])
			return "?"
		}

		pos, exists := positions[name]
		if !exists {
			pos = next
			next++
			positions[name] = pos
			ordered = append(ordered, values[name])
		}

		if dialect == models.DialectMSSQL {
			return fmt.Sprintf("@p%d", pos)
		}
		return fmt.Sprintf("$%d", pos)
	})

	return result, ordered, nil
}

// FindParametersInStringLiterals checks for {{param}} placeholders that
// appear inside single-quoted string literals. A placeholder inside a string
// would survive substitution as literal text instead of a bind parameter.
func FindParametersInStringLiterals(sqlQuery string) []string {
	var problems []string
	seen := make(map[string]bool)

	inString := false
	stringStart := 0
	i := 0

	for i < len(sqlQuery) {
		ch := sqlQuery[i]

		if ch == '\'' {
			if inString {
				// Skip SQL doubled quote ('').
				if i+1 < len(sqlQuery) && sqlQuery[i+1] == '\'' {
					i += 2
					continue
				}
				stringContent := sqlQuery[stringStart+1 : i]
				for _, match := range parameterRegex.FindAllStringSubmatch(stringContent, -1) {
					name := match[1]
					if !seen[name] {
						seen[name] = true
						problems = append(problems, name)
					}
				}
				inString = false
			} else {
				inString = true
				stringStart = i
			}
		}
		i++
	}

	return problems
}
