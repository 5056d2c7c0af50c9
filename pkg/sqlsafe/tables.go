package sqlsafe

import (
	"regexp"
	"strings"
)

// tableClausePattern matches the keywords that introduce a table reference.
// A parenthesis after the keyword means a derived table, which the identifier
// class deliberately does not match.
var tableClausePattern = regexp.MustCompile(`(?i)\b(?:from|join|into|update)\s+([a-zA-Z_][\w.]*)`)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][\w.]*`)

// ReferencedTables extracts the table names a statement reads or writes.
// String literals are masked first so keywords inside them are ignored.
// Names are reported lowercased, deduplicated, in order of first appearance.
func ReferencedTables(sqlQuery string) []string {
	masked := maskStringLiterals(sqlQuery)

	seen := make(map[string]struct{})
	var tables []string
	add := func(name string) {
		name = strings.ToLower(name)
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		tables = append(tables, name)
	}

	for _, loc := range tableClausePattern.FindAllStringSubmatchIndex(masked, -1) {
		add(masked[loc[2]:loc[3]])

		// A FROM clause may list several comma-separated tables. Walk past
		// the optional alias after each name and keep consuming while the
		// next token is a comma followed by another identifier.
		rest := masked[loc[3]:]
		for {
			rest = skipAlias(strings.TrimLeft(rest, " \t\n\r"))
			rest = strings.TrimLeft(rest, " \t\n\r")
			if !strings.HasPrefix(rest, ",") {
				break
			}
			rest = strings.TrimLeft(rest[1:], " \t\n\r")
			name := identifierPattern.FindString(rest)
			if name == "" {
				break
			}
			add(name)
			rest = rest[len(name):]
		}
	}

	return tables
}

// skipAlias consumes an optional "AS alias" or bare alias following a table
// name, returning the remainder. Clause keywords are not aliases.
func skipAlias(s string) string {
	word := identifierPattern.FindString(s)
	if word == "" {
		return s
	}
	switch strings.ToLower(word) {
	case "where", "join", "inner", "left", "right", "full", "cross", "on",
		"group", "order", "having", "limit", "union", "set", "values", "select":
		return s
	case "as":
		rest := strings.TrimLeft(s[len(word):], " \t\n\r")
		if alias := identifierPattern.FindString(rest); alias != "" {
			return rest[len(alias):]
		}
		return rest
	}
	return s[len(word):]
}
