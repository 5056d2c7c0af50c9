// Package resolver maps free-form entity mentions from a question onto
// concrete tables and columns of a schema snapshot.
package resolver

import (
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/queryloom/queryloom/pkg/models"
)

// Config tunes the resolution strategies.
type Config struct {
	// FuzzyThreshold is the minimum normalized similarity for a fuzzy match.
	FuzzyThreshold float64
	// Synonyms maps a normalized mention to a schema target, either "table"
	// or "table.column".
	Synonyms map[string]string
}

// DefaultConfig returns the resolver defaults.
func DefaultConfig() Config {
	return Config{FuzzyThreshold: 0.75}
}

// Resolver resolves entity mentions with a fixed strategy ladder:
// exact match, then the synonym dictionary, then bounded fuzzy matching.
type Resolver struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a Resolver.
func New(cfg Config, logger *zap.Logger) *Resolver {
	if cfg.FuzzyThreshold <= 0 {
		cfg.FuzzyThreshold = DefaultConfig().FuzzyThreshold
	}
	return &Resolver{cfg: cfg, logger: logger.Named("resolver")}
}

// candidate is one schema target a mention can resolve to.
type candidate struct {
	table  string
	column string // empty for table candidates
	norm   string // normalized comparison key
}

// Resolve maps every mention onto a schema target. Mentions that match
// nothing come back with StrategyUnresolved so the caller can decide whether
// the turn can proceed.
func (r *Resolver) Resolve(intent *models.Intent, snapshot *models.SchemaSnapshot) []models.EntityMapping {
	candidates := buildCandidates(snapshot)

	mappings := make([]models.EntityMapping, 0, len(intent.Mentions))
	resolvedTables := make(map[string]bool)

	for _, mention := range intent.Mentions {
		if mention.Kind == models.MentionValue || mention.Kind == models.MentionCondition {
			// Values and conditions bind as parameters, not schema targets.
			continue
		}

		m := r.resolveOne(mention, candidates, resolvedTables)
		if m.Resolved() {
			resolvedTables[m.Table] = true
		}
		mappings = append(mappings, m)
	}

	return mappings
}

func (r *Resolver) resolveOne(mention models.EntityMention, candidates []candidate, resolvedTables map[string]bool) models.EntityMapping {
	norm := normalize(mention.Text)
	mapping := models.EntityMapping{Mention: mention.Text, Strategy: models.MatchUnresolved}

	// Exact match on the normalized name.
	if best, ok := pickBest(candidates, resolvedTables, func(c candidate) bool {
		return c.norm == norm
	}); ok {
		mapping.Table = best.table
		mapping.Column = best.column
		mapping.Strategy = models.MatchExact
		mapping.Similarity = 1
		return mapping
	}

	// Synonym dictionary.
	if target, ok := r.cfg.Synonyms[norm]; ok {
		table, column, _ := strings.Cut(target, ".")
		if best, found := pickBest(candidates, resolvedTables, func(c candidate) bool {
			return strings.EqualFold(c.table, table) && strings.EqualFold(c.column, column)
		}); found {
			mapping.Table = best.table
			mapping.Column = best.column
			mapping.Strategy = models.MatchSynonym
			mapping.Similarity = 1
			return mapping
		}
	}

	// Bounded fuzzy match.
	bestScore := 0.0
	var fuzzy []candidate
	for _, c := range candidates {
		score := similarity(norm, c.norm)
		if score < r.cfg.FuzzyThreshold {
			continue
		}
		switch {
		case score > bestScore:
			bestScore = score
			fuzzy = fuzzy[:0]
			fuzzy = append(fuzzy, c)
		case score == bestScore:
			fuzzy = append(fuzzy, c)
		}
	}
	if len(fuzzy) > 0 {
		best, _ := pickBest(fuzzy, resolvedTables, func(candidate) bool { return true })
		mapping.Table = best.table
		mapping.Column = best.column
		mapping.Strategy = models.MatchFuzzy
		mapping.Similarity = bestScore
		r.logger.Debug("fuzzy resolution",
			zap.String("mention", mention.Text),
			zap.String("table", best.table),
			zap.String("column", best.column),
			zap.Float64("similarity", bestScore))
		return mapping
	}

	return mapping
}

// pickBest filters candidates and breaks ties deterministically: prefer
// targets in tables earlier mentions already resolved to, then lexicographic
// order on table then column.
func pickBest(candidates []candidate, resolvedTables map[string]bool, keep func(candidate) bool) (candidate, bool) {
	var kept []candidate
	for _, c := range candidates {
		if keep(c) {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return candidate{}, false
	}

	sort.Slice(kept, func(i, j int) bool {
		li, lj := resolvedTables[kept[i].table], resolvedTables[kept[j].table]
		if li != lj {
			return li
		}
		if kept[i].table != kept[j].table {
			return kept[i].table < kept[j].table
		}
		return kept[i].column < kept[j].column
	})

	return kept[0], true
}

func buildCandidates(snapshot *models.SchemaSnapshot) []candidate {
	var out []candidate
	for _, t := range snapshot.Tables {
		out = append(out, candidate{table: t.Name, norm: normalize(t.Name)})
		for _, c := range t.Columns {
			out = append(out, candidate{table: t.Name, column: c.Name, norm: normalize(c.Name)})
		}
	}
	return out
}

// normalize lowercases, replaces underscores with spaces, and singularizes
// the final word so "Customers" and "customer" compare equal.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", " ")

	words := strings.Fields(s)
	if len(words) == 0 {
		return ""
	}
	words[len(words)-1] = inflection.Singular(words[len(words)-1])
	return strings.Join(words, " ")
}
