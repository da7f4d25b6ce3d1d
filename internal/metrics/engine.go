// Package metrics is the aggregation core: it resolves organizational
// hierarchy, classifies fetched work items, and rolls counts and rates up
// through the item, group, and overall levels.
package metrics

import (
	"qametrics/internal/azure"
)

// Engine carries the request-independent collaborators of the aggregation
// core. All report state is local to each call; nothing here is mutated after
// construction, so a single Engine is shared across concurrent requests.
type Engine struct {
	Gateway  azure.Client
	Fields   FieldConfig
	Project  string
	Strategy ClientStrategy

	// RunWindowDays bounds the recent-run history consulted by usage
	// lookups.
	RunWindowDays int
}

// NewEngine wires an engine with defaults applied.
func NewEngine(gw azure.Client, fields FieldConfig, project string, strategy ClientStrategy, runWindowDays int) *Engine {
	if runWindowDays <= 0 {
		runWindowDays = 30
	}
	return &Engine{
		Gateway:       gw,
		Fields:        fields,
		Project:       project,
		Strategy:      strategy,
		RunWindowDays: runWindowDays,
	}
}
