package metrics

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"qametrics/internal/azure"
)

// TestPlansByAreaPaths lists the test plans of each requested area, newest
// first. Areas owning no plan still get a row with an empty list.
func (e *Engine) TestPlansByAreaPaths(ctx context.Context, areaPaths []string) ([]TeamTestPlans, error) {
	out := make([]TeamTestPlans, 0, len(areaPaths))
	if len(areaPaths) == 0 {
		return out, nil
	}

	query := azure.NewWiql(e.Project).
		WorkItemType("Test Plan").
		AreaPathIn(areaPaths).
		OrderByDesc("System.CreatedDate").
		Build()
	ids, err := e.Gateway.QueryWorkItemIDs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query test plans: %w", err)
	}

	items, err := e.fetchWorkItemsChunked(ctx, ids, []string{fieldTitle, fieldAreaPath})
	if err != nil {
		return nil, err
	}

	// Grouping is by exact area path match, so the query order inside each
	// group is recovered from the original id order.
	byID := make(map[int]azure.WorkItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	for _, area := range areaPaths {
		team := TeamTestPlans{Team: area, TestPlans: []TestPlan{}}
		for _, id := range ids {
			item, ok := byID[id]
			if !ok || item.StringField(fieldAreaPath) != area {
				continue
			}
			team.TestPlans = append(team.TestPlans, TestPlan{ID: id, Name: item.StringField(fieldTitle)})
		}
		team.TotalTestPlans = len(team.TestPlans)
		out = append(out, team)
	}
	return out, nil
}

// NewAutomationsForPlans builds the standalone new-automations report: the
// windowed automation transitions of each plan plus their sum.
func (e *Engine) NewAutomationsForPlans(ctx context.Context, plans []TestPlan, window DateWindow) (*NewAutomationsReport, error) {
	rows := make([]PlanNewAutomated, len(plans))

	g, gctx := errgroup.WithContext(ctx)
	for i, plan := range plans {
		g.Go(func() error {
			data, err := e.NewAutomatedInPlan(gctx, plan.ID, window)
			if err != nil {
				return fmt.Errorf("new automations for plan %d: %w", plan.ID, err)
			}
			rows[i] = PlanNewAutomated{PlanID: plan.ID, PlanName: plan.Name, NewAutomatedTests: *data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &NewAutomationsReport{Plans: rows}
	for _, row := range rows {
		report.OverallNewAutomatedTests += row.NewAutomatedTests.Count
	}
	return report, nil
}
