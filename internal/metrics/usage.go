package metrics

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"qametrics/internal/azure"
)

// TestCaseUsage splits the given test cases by whether they appear in any run
// of the recent execution window. Input order is preserved in both halves.
func (e *Engine) TestCaseUsage(ctx context.Context, cases []TestCaseInfo) (*UsageReport, error) {
	runs, err := e.Gateway.GetRecentTestRuns(ctx, e.RunWindowDays)
	if err != nil {
		return nil, fmt.Errorf("fetch recent test runs: %w", err)
	}

	runCaseIDs := make([][]int, len(runs))
	g, gctx := errgroup.WithContext(ctx)
	for i, run := range runs {
		g.Go(func() error {
			results, err := e.Gateway.GetTestResultsByRun(gctx, run.ID)
			if err != nil {
				return fmt.Errorf("fetch results for run %d: %w", run.ID, err)
			}
			ids := make([]int, 0, len(results))
			for _, r := range results {
				if id, ok := r.TestCaseID(); ok {
					ids = append(ids, id)
				}
			}
			runCaseIDs[i] = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	used := make(map[int]bool)
	for _, ids := range runCaseIDs {
		for _, id := range ids {
			used[id] = true
		}
	}

	report := &UsageReport{Used: []TestCaseInfo{}, Unused: []TestCaseInfo{}}
	for _, tc := range cases {
		if used[tc.ID] {
			report.Used = append(report.Used, tc)
		} else {
			report.Unused = append(report.Unused, tc)
		}
	}
	report.Overall = UsageSummary{
		TotalUsed:   len(report.Used),
		TotalUnused: len(report.Unused),
		Total:       len(cases),
	}
	return report, nil
}

// ReadyTestCases lists every non-closed test case of the given areas with its
// effective automation status, plus per-area and overall coverage rollups.
func (e *Engine) ReadyTestCases(ctx context.Context, areaPaths []string) (*ReadyTestCasesReport, error) {
	areaItems := make([][]azure.WorkItem, len(areaPaths))

	g, gctx := errgroup.WithContext(ctx)
	for i, area := range areaPaths {
		g.Go(func() error {
			query := azure.NewWiql(e.Project).
				WorkItemType("Test Case").
				AreaPathUnder(area).
				StateNot("Closed").
				Build()
			ids, err := e.Gateway.QueryWorkItemIDs(gctx, query)
			if err != nil {
				return fmt.Errorf("query ready test cases for %q: %w", area, err)
			}
			items, err := e.fetchWorkItemsChunked(gctx, ids, []string{
				fieldTitle,
				fieldState,
				fieldAreaPath,
				e.Fields.AutomationStatus,
				e.Fields.CustomAutomationStatus,
			})
			if err != nil {
				return err
			}
			areaItems[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &ReadyTestCasesReport{
		TestCases:     []ReadyTestCase{},
		OverallByTeam: []AreaAutomationSummary{},
	}
	for i, area := range areaPaths {
		summary := AreaAutomationSummary{AreaPath: area}
		for _, item := range areaItems[i] {
			status := e.Fields.EffectiveStatus(item)
			report.TestCases = append(report.TestCases, ReadyTestCase{
				ID:               item.ID,
				Title:            item.StringField(fieldTitle),
				State:            item.StringField(fieldState),
				AreaPath:         item.StringField(fieldAreaPath),
				AutomationStatus: status.String(),
			})
			if status == StatusAutomated {
				summary.Automated++
			} else {
				summary.Manual++
			}
		}
		summary.Total = summary.Automated + summary.Manual
		summary.AutomationCoverage = round2(ratio100(summary.Automated, summary.Total))
		report.OverallByTeam = append(report.OverallByTeam, summary)

		report.Overall.Automated += summary.Automated
		report.Overall.Manual += summary.Manual
	}
	report.Overall.Total = report.Overall.Automated + report.Overall.Manual
	report.Overall.AutomationCoverage = round2(ratio100(report.Overall.Automated, report.Overall.Total))
	return report, nil
}
