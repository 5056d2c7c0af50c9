package sqlsafe

// FindInlineStringLiterals returns the contents of single-quoted string
// literals in the SQL. Constructed statements bind every user-derived value
// through {{param}} placeholders, so an inline string literal means a value
// bypassed parameterization.
//
// Numeric literals (LIMIT 100, OFFSET 0) are legitimate and not reported.
func FindInlineStringLiterals(sqlQuery string) []string {
	var literals []string

	inString := false
	var current []byte

	for i := 0; i < len(sqlQuery); i++ {
		ch := sqlQuery[i]

		if ch != '\'' {
			if inString {
				current = append(current, ch)
			}
			continue
		}

		if !inString {
			inString = true
			current = current[:0]
			continue
		}

		// Doubled quote is an escaped quote inside the literal.
		if i+1 < len(sqlQuery) && sqlQuery[i+1] == '\'' {
			current = append(current, '\'')
			i++
			continue
		}

		literals = append(literals, string(current))
		inString = false
	}

	return literals
}
