// Package pipeline drives a question through the query-resolution chain:
// intent classification, entity resolution, SQL construction, safety
// validation, execution, and explanation.
package pipeline

import (
	"sort"
	"strings"

	"github.com/queryloom/queryloom/pkg/models"
)

// JoinEdge is one join the constructed statement should use.
type JoinEdge struct {
	SourceTable  string
	SourceColumn string
	TargetTable  string
	TargetColumn string
}

// JoinPath finds the join edges connecting all referenced tables by walking
// the snapshot's relationship set breadth-first from the first table. Edges
// are traversable in either direction. The second return is false when no
// path connects every table; callers should surface a structural warning
// rather than guess.
func JoinPath(snapshot *models.SchemaSnapshot, tables []string) ([]JoinEdge, bool) {
	if len(tables) < 2 {
		return nil, true
	}

	adjacency := make(map[string][]models.Relationship)
	for _, rel := range snapshot.Relationships {
		src := strings.ToLower(rel.SourceTable)
		dst := strings.ToLower(rel.TargetTable)
		adjacency[src] = append(adjacency[src], rel)
		adjacency[dst] = append(adjacency[dst], rel)
	}
	// Deterministic traversal order regardless of reflection order.
	for _, rels := range adjacency {
		sort.Slice(rels, func(i, j int) bool {
			if rels[i].SourceTable != rels[j].SourceTable {
				return rels[i].SourceTable < rels[j].SourceTable
			}
			return rels[i].TargetTable < rels[j].TargetTable
		})
	}

	want := make(map[string]bool, len(tables))
	for _, t := range tables {
		want[strings.ToLower(t)] = true
	}

	start := strings.ToLower(tables[0])
	visited := map[string]bool{start: true}
	parentEdge := make(map[string]models.Relationship)
	queue := []string{start}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, rel := range adjacency[current] {
			next := strings.ToLower(rel.TargetTable)
			if next == current {
				next = strings.ToLower(rel.SourceTable)
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			parentEdge[next] = rel
			queue = append(queue, next)
		}
	}

	var edges []JoinEdge
	seen := make(map[models.Relationship]bool)
	for table := range want {
		if table == start {
			continue
		}
		if !visited[table] {
			return nil, false
		}
		// Walk back to the start collecting the path edges.
		for at := table; at != start; {
			rel := parentEdge[at]
			if !seen[rel] {
				seen[rel] = true
				edges = append(edges, JoinEdge{
					SourceTable:  rel.SourceTable,
					SourceColumn: rel.SourceColumn,
					TargetTable:  rel.TargetTable,
					TargetColumn: rel.TargetColumn,
				})
			}
			if strings.EqualFold(rel.SourceTable, at) {
				at = strings.ToLower(rel.TargetTable)
			} else {
				at = strings.ToLower(rel.SourceTable)
			}
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].SourceTable != edges[j].SourceTable {
			return edges[i].SourceTable < edges[j].SourceTable
		}
		return edges[i].TargetTable < edges[j].TargetTable
	})
	return edges, true
}
