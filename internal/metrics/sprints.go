package metrics

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"qametrics/internal/azure"
)

// noPlanSentinel marks a sprint for which no test plan exists in the area.
const noPlanSentinel = "No Plan"

// sprintPlanMetrics resolves the test plan of one area+sprint and rolls up
// its execution metrics. The most recently changed plan wins when several
// plans sit on the same iteration.
func (e *Engine) sprintPlanMetrics(ctx context.Context, areaPath string, sprint Sprint) (SprintMetrics, error) {
	query := azure.NewWiql(e.Project).
		WorkItemType("Test Plan").
		AreaPathUnder(areaPath).
		IterationPath(sprint.IterationPath).
		OrderByDesc("System.ChangedDate").
		Build()
	ids, err := e.Gateway.QueryWorkItemIDs(ctx, query)
	if err != nil {
		return SprintMetrics{}, fmt.Errorf("query test plan for %q sprint %q: %w", areaPath, sprint.Name, err)
	}
	if len(ids) == 0 {
		return SprintMetrics{SprintName: sprint.Name, PlanName: noPlanSentinel}, nil
	}

	planID := ids[0]
	items, err := e.Gateway.GetWorkItems(ctx, []int{planID}, []string{fieldTitle})
	if err != nil {
		return SprintMetrics{}, fmt.Errorf("fetch test plan %d: %w", planID, err)
	}
	if len(items) == 0 {
		return SprintMetrics{}, fmt.Errorf("test plan %d not found", planID)
	}
	plan := TestPlan{ID: planID, Name: items[0].StringField(fieldTitle)}

	report, err := e.AutomationMetricsForPlans(ctx, []TestPlan{plan}, nil)
	if err != nil {
		return SprintMetrics{}, err
	}

	o := report.Overall
	return SprintMetrics{
		SprintName:                sprint.Name,
		PlanName:                  plan.Name,
		TotalTestCases:            o.Total,
		TotalTestCasesBeExecuted:  o.TotalToBeExecuted,
		TotalTestCasesExecuted:    o.TotalToBeExecuted - o.TotalNotExecuted,
		TotalTestCasesNotExecuted: o.TotalNotExecuted,
		PassRate:                  o.PassRate,
		ExecutionCoverage:         o.ExecutionCoverage,
		ManualTests:               o.Manual,
		AutomatedTests:            o.Automated,
	}, nil
}

// mergeWeighted folds sprint metrics into one row. Rates are weighted by each
// row's to-be-executed total, so a ten-point plan cannot drown a
// thousand-point one.
func mergeWeighted(name string, rows []SprintMetrics) SprintMetrics {
	merged := SprintMetrics{SprintName: name}
	var passWeighted, coverageWeighted float64

	for _, r := range rows {
		merged.TotalTestCases += r.TotalTestCases
		merged.TotalTestCasesBeExecuted += r.TotalTestCasesBeExecuted
		merged.TotalTestCasesExecuted += r.TotalTestCasesExecuted
		merged.TotalTestCasesNotExecuted += r.TotalTestCasesNotExecuted
		merged.ManualTests += r.ManualTests
		merged.AutomatedTests += r.AutomatedTests
		passWeighted += r.PassRate * float64(r.TotalTestCasesBeExecuted)
		coverageWeighted += r.ExecutionCoverage * float64(r.TotalTestCasesBeExecuted)
	}
	if merged.TotalTestCasesBeExecuted > 0 {
		merged.PassRate = round2(passWeighted / float64(merged.TotalTestCasesBeExecuted))
		merged.ExecutionCoverage = round2(coverageWeighted / float64(merged.TotalTestCasesBeExecuted))
	}
	return merged
}

// SprintTestMetrics builds the per-sprint execution report over the last n
// sprints of the given area paths.
func (e *Engine) SprintTestMetrics(ctx context.Context, areaPaths []string, numSprints int) (*SprintTestReport, error) {
	report := &SprintTestReport{
		Teams:          []TeamSprintMetrics{},
		SprintsOverall: []SprintMetrics{},
		Overall:        SprintMetrics{SprintName: "Overall"},
	}
	if len(areaPaths) == 0 {
		return report, nil
	}

	sprints, err := e.PastSprints(ctx, areaPaths, numSprints)
	if err != nil {
		return nil, err
	}

	cells := make([]SprintMetrics, len(areaPaths)*len(sprints))
	g, gctx := errgroup.WithContext(ctx)
	for ai, area := range areaPaths {
		for si, sprint := range sprints {
			idx := ai*len(sprints) + si
			g.Go(func() error {
				m, err := e.sprintPlanMetrics(gctx, area, sprint)
				if err != nil {
					return err
				}
				cells[idx] = m
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for ai, area := range areaPaths {
		team := TeamSprintMetrics{AreaPath: area, Sprints: []SprintMetrics{}}
		for si := range sprints {
			team.Sprints = append(team.Sprints, cells[ai*len(sprints)+si])
		}
		report.Teams = append(report.Teams, team)
	}

	var all []SprintMetrics
	for si, sprint := range sprints {
		rows := make([]SprintMetrics, 0, len(areaPaths))
		for ai := range areaPaths {
			rows = append(rows, cells[ai*len(sprints)+si])
		}
		report.SprintsOverall = append(report.SprintsOverall, mergeWeighted(sprint.Name, rows))
		all = append(all, rows...)
	}

	report.Overall = mergeWeighted("Overall", all)
	return report, nil
}
