package metrics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"qametrics/internal/azure"
)

// FlattenAreaTree walks the area classification tree depth-first, pre-order,
// emitting one record per node. The id is the node identifier when present,
// otherwise the full backslash-joined path. Every node is visited exactly
// once.
func FlattenAreaTree(root azure.ClassificationNode) []AreaPath {
	var paths []AreaPath

	var traverse func(node azure.ClassificationNode, parentPath string)
	traverse = func(node azure.ClassificationNode, parentPath string) {
		fullPath := node.Name
		if parentPath != "" {
			fullPath = parentPath + `\` + node.Name
		}

		id := node.Identifier
		if id == "" {
			id = fullPath
		}
		paths = append(paths, AreaPath{ID: id, Name: fullPath})

		for _, child := range node.Children {
			traverse(child, fullPath)
		}
	}

	traverse(root, "")
	return paths
}

// AllAreaPaths fetches and flattens the project's area tree.
func (e *Engine) AllAreaPaths(ctx context.Context) ([]AreaPath, error) {
	root, err := e.Gateway.GetClassificationNodes(ctx, azure.NodeKindAreas, 10)
	if err != nil {
		return nil, fmt.Errorf("fetch area nodes: %w", err)
	}
	return FlattenAreaTree(root), nil
}

// PastSprints resolves the most recent n completed sprints using the
// configured client strategy.
func (e *Engine) PastSprints(ctx context.Context, areaPaths []string, n int) ([]Sprint, error) {
	switch e.Strategy {
	case StrategyClassificationNodes:
		return e.pastSprintsByClassificationNodes(ctx, areaPaths, n, time.Now())
	default:
		return e.pastSprintsByTeamSettings(ctx, n)
	}
}

// pastSprintsByTeamSettings selects from the single project-level iteration
// list: past time frame, both dates present, newest start first, first n.
// The result is shared across all area paths in the request.
func (e *Engine) pastSprintsByTeamSettings(ctx context.Context, n int) ([]Sprint, error) {
	iterations, err := e.Gateway.GetTeamIterations(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch team iterations: %w", err)
	}

	var past []Sprint
	for _, it := range iterations {
		if it.Attributes.TimeFrame != "past" {
			continue
		}
		start, startOK := parseSprintDate(it.Attributes.StartDate)
		finish, finishOK := parseSprintDate(it.Attributes.FinishDate)
		if !startOK || !finishOK {
			continue
		}
		past = append(past, Sprint{
			Name:          it.Name,
			IterationPath: it.Path,
			StartDate:     start,
			FinishDate:    finish,
			TimeFrame:     it.Attributes.TimeFrame,
		})
	}

	sort.Slice(past, func(i, j int) bool {
		return past[i].StartDate.After(past[j].StartDate)
	})
	if len(past) > n {
		past = past[:n]
	}
	return past, nil
}

// pastSprintsByClassificationNodes resolves sprints per team from the
// depth-3 iteration tree: for each requested area path, the root child whose
// name matches the trailing team segment (case-insensitive) contributes its
// finished children, newest first, capped at n per team. The result is the
// deduplicated union across teams. Teams without a matching node are skipped.
func (e *Engine) pastSprintsByClassificationNodes(ctx context.Context, areaPaths []string, n int, now time.Time) ([]Sprint, error) {
	tree, err := e.Gateway.GetClassificationNodes(ctx, azure.NodeKindIterations, 3)
	if err != nil {
		return nil, fmt.Errorf("fetch iteration nodes: %w", err)
	}

	seen := make(map[string]bool)
	var union []Sprint

	for _, areaPath := range areaPaths {
		teamName := trailingSegment(areaPath)
		if teamName == "" {
			continue
		}

		node, ok := findTeamNode(tree.Children, teamName)
		if !ok {
			log.Warn().Str("team", teamName).Msg("No iteration node matches team, skipping")
			continue
		}

		teamIterationRoot := teamIterationPath(node.Path)

		var teamSprints []Sprint
		for _, child := range node.Children {
			if child.Attributes == nil {
				continue
			}
			start, startOK := parseSprintDate(child.Attributes.StartDate)
			finish, finishOK := parseSprintDate(child.Attributes.FinishDate)
			if !startOK || !finishOK || !finish.Before(now) {
				continue
			}
			teamSprints = append(teamSprints, Sprint{
				Name:          child.Name,
				IterationPath: teamIterationRoot + `\` + child.Name,
				StartDate:     start,
				FinishDate:    finish,
				TimeFrame:     child.Attributes.TimeFrame,
			})
		}

		sort.Slice(teamSprints, func(i, j int) bool {
			return teamSprints[i].StartDate.After(teamSprints[j].StartDate)
		})
		if len(teamSprints) > n {
			teamSprints = teamSprints[:n]
		}

		for _, s := range teamSprints {
			if seen[s.IterationPath] {
				continue
			}
			seen[s.IterationPath] = true
			union = append(union, s)
		}
	}

	sort.Slice(union, func(i, j int) bool {
		return union[i].StartDate.After(union[j].StartDate)
	})
	return union, nil
}

// trailingSegment extracts the team name from an area path like
// "Project\Team".
func trailingSegment(areaPath string) string {
	parts := strings.Split(areaPath, `\`)
	return parts[len(parts)-1]
}

func findTeamNode(children []azure.ClassificationNode, teamName string) (azure.ClassificationNode, bool) {
	for _, node := range children {
		if strings.EqualFold(node.Name, teamName) {
			return node, true
		}
	}
	return azure.ClassificationNode{}, false
}

// teamIterationPath turns a structure path like "\Project\Iteration\Team"
// into the iteration root "Project\Team" used to address sprints in queries.
func teamIterationPath(nodePath string) string {
	p := strings.Replace(nodePath, `\Iteration`, "", 1)
	return strings.TrimPrefix(p, `\`)
}

func parseSprintDate(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	t, err := azure.ParseTime(raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
