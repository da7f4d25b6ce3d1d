package metrics

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"qametrics/internal/azure"
)

// planCases is the discovery result for one plan: every test case reachable
// through its suites, suite duplicates included.
type planCases struct {
	plan    TestPlan
	caseIDs []int
}

// discoverPlanCases enumerates suite membership for every plan concurrently.
// Each goroutine owns its result slot, so no accumulator is shared.
func (e *Engine) discoverPlanCases(ctx context.Context, plans []TestPlan) ([]planCases, error) {
	results := make([]planCases, len(plans))

	g, gctx := errgroup.WithContext(ctx)
	for i, plan := range plans {
		g.Go(func() error {
			suites, err := e.Gateway.GetPlanSuites(gctx, plan.ID)
			if err != nil {
				return fmt.Errorf("fetch suites for plan %d: %w", plan.ID, err)
			}

			suiteCases := make([][]int, len(suites))
			sg, sctx := errgroup.WithContext(gctx)
			for j, suite := range suites {
				sg.Go(func() error {
					cases, err := e.Gateway.GetSuiteTestCases(sctx, plan.ID, suite.ID)
					if err != nil {
						return fmt.Errorf("fetch test cases for plan %d suite %d: %w", plan.ID, suite.ID, err)
					}
					ids := make([]int, 0, len(cases))
					for _, tc := range cases {
						if id, ok := tc.WorkItemID(); ok {
							ids = append(ids, id)
						}
					}
					suiteCases[j] = ids
					return nil
				})
			}
			if err := sg.Wait(); err != nil {
				return err
			}

			var all []int
			for _, ids := range suiteCases {
				all = append(all, ids...)
			}
			results[i] = planCases{plan: plan, caseIDs: all}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// planOutcomes collects one outcome per test point across all suites of a
// plan.
func (e *Engine) planOutcomes(ctx context.Context, planID int) ([]string, error) {
	suites, err := e.Gateway.GetPlanSuites(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("fetch suites for plan %d: %w", planID, err)
	}

	suiteOutcomes := make([][]string, len(suites))
	g, gctx := errgroup.WithContext(ctx)
	for i, suite := range suites {
		g.Go(func() error {
			points, err := e.Gateway.GetSuiteTestPoints(gctx, planID, suite.ID)
			if err != nil {
				return fmt.Errorf("fetch test points for plan %d suite %d: %w", planID, suite.ID, err)
			}
			outcomes := make([]string, len(points))
			for j, p := range points {
				outcomes[j] = p.Outcome
			}
			suiteOutcomes[i] = outcomes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var outcomes []string
	for _, o := range suiteOutcomes {
		outcomes = append(outcomes, o...)
	}
	return outcomes, nil
}

const outcomeUnspecified = "Unspecified"

// AutomationMetricsForPlans computes the plan-centric automation report. A
// test case shared by several plans counts once in each, but only once per
// plan. When a window is supplied the report also carries the new-automated
// delta and growth; without one those fields are omitted entirely.
func (e *Engine) AutomationMetricsForPlans(ctx context.Context, plans []TestPlan, window *DateWindow) (*AutomationMetricsReport, error) {
	discovered, err := e.discoverPlanCases(ctx, plans)
	if err != nil {
		return nil, err
	}

	// Pass 1 setup: membership multimap plus a deterministic case order.
	caseToPlans := make(map[int][]int)
	var allCaseIDs []int
	for _, pc := range discovered {
		for _, id := range pc.caseIDs {
			if !containsInt(caseToPlans[id], pc.plan.ID) {
				if len(caseToPlans[id]) == 0 {
					allCaseIDs = append(allCaseIDs, id)
				}
				caseToPlans[id] = append(caseToPlans[id], pc.plan.ID)
			}
		}
	}

	if len(allCaseIDs) == 0 {
		return &AutomationMetricsReport{Overall: emptyOverall(), Plans: []PlanMetrics{}}, nil
	}

	fields := []string{
		e.Fields.CustomAutomationStatus,
		e.Fields.AutomationStatus,
		e.Fields.TestingType,
		e.Fields.AutomationTools,
	}
	items, err := e.fetchWorkItemsChunked(ctx, allCaseIDs, fields)
	if err != nil {
		return nil, err
	}
	itemByID := make(map[int]azure.WorkItem, len(items))
	for _, item := range items {
		itemByID[item.ID] = item
	}

	// Pass 1+2: classify each case once, then tally it into the overall
	// accumulators and into every owning plan.
	overall := emptyOverall()
	accums := make(map[int]*PlanMetrics)
	planOrder := make([]int, 0, len(plans))
	planAutomatedIDs := make(map[int][]int)

	for _, id := range allCaseIDs {
		item, ok := itemByID[id]
		if !ok {
			continue
		}

		status := e.Fields.EffectiveStatus(item)
		category := fieldOrDefault(item, e.Fields.TestingType, "Uncategorized")
		tool := fieldOrDefault(item, e.Fields.AutomationTools, "UnknownTool")
		link := e.Gateway.WorkItemURL(id)

		if status == StatusAutomated {
			overall.Automated++
			overall.Links.Automated = append(overall.Links.Automated, link)
		} else {
			overall.Manual++
			overall.Links.Manual = append(overall.Links.Manual, link)
		}
		overall.Categories = upsertCategory(overall.Categories, category, status)
		overall.Tools = upsertTool(overall.Tools, tool)

		for _, planID := range caseToPlans[id] {
			pm, ok := accums[planID]
			if !ok {
				pm = emptyPlan(planID, planName(plans, planID))
				accums[planID] = pm
				planOrder = append(planOrder, planID)
			}

			if status == StatusAutomated {
				pm.Automated++
				pm.Links.Automated = append(pm.Links.Automated, link)
				planAutomatedIDs[planID] = append(planAutomatedIDs[planID], id)
			} else {
				pm.Manual++
				pm.Links.Manual = append(pm.Links.Manual, link)
			}
			pm.Categories = upsertCategory(pm.Categories, category, status)
			pm.Tools = upsertTool(pm.Tools, tool)
		}
	}

	// Pass 2 continued: execution outcomes per plan, fanned out with each
	// goroutine finalizing only its own plan accumulator.
	g, gctx := errgroup.WithContext(ctx)
	for _, planID := range planOrder {
		pm := accums[planID]
		g.Go(func() error {
			pm.Total = pm.Manual + pm.Automated
			pm.AutomationCoverage = coverageString(pm.Automated, pm.Total)

			outcomes, err := e.planOutcomes(gctx, pm.PlanID)
			if err != nil {
				return err
			}

			var passed, notExecuted int
			for _, o := range outcomes {
				switch {
				case o == outcomeUnspecified:
					notExecuted++
				case o == "Passed":
					passed++
				}
			}
			executed := len(outcomes) - notExecuted

			pm.TotalToBeExecuted = len(outcomes)
			pm.TotalNotExecuted = notExecuted
			pm.ExecutionCoverage = round2(ratio100(executed, len(outcomes)))
			pm.PassRate = round2(ratio100(passed, executed))

			if window != nil {
				data, err := e.newAutomatedFromIDs(gctx, planAutomatedIDs[pm.PlanID], *window)
				if err != nil {
					return err
				}
				pm.NewAutomated = data
				growth := 0.0
				if pm.Automated > 0 {
					growth = round2(ratio100(data.Count, pm.Total))
				}
				pm.AutomationGrowth = &growth
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Pass 3: exact sums plus the unweighted mean of per-plan rates. Every
	// plan contributes equally to the overall rates regardless of size.
	report := &AutomationMetricsReport{Plans: make([]PlanMetrics, 0, len(planOrder))}
	var passSum, coverageSum float64
	newAutomatedTotal := 0
	var newAutomatedLinks []string

	for _, planID := range planOrder {
		pm := accums[planID]
		overall.TotalToBeExecuted += pm.TotalToBeExecuted
		overall.TotalNotExecuted += pm.TotalNotExecuted
		passSum += pm.PassRate
		coverageSum += pm.ExecutionCoverage
		if pm.NewAutomated != nil {
			newAutomatedTotal += pm.NewAutomated.Count
			newAutomatedLinks = append(newAutomatedLinks, pm.NewAutomated.Links...)
		}
		report.Plans = append(report.Plans, *pm)
	}

	overall.Total = overall.Manual + overall.Automated
	overall.AutomationCoverage = coverageString(overall.Automated, overall.Total)
	if n := len(planOrder); n > 0 {
		overall.PassRate = round2(passSum / float64(n))
		overall.ExecutionCoverage = round2(coverageSum / float64(n))
	}

	if window != nil {
		if newAutomatedLinks == nil {
			newAutomatedLinks = []string{}
		}
		overall.NewAutomated = &NewAutomatedData{Count: newAutomatedTotal, Links: newAutomatedLinks}
		growth := 0.0
		if newAutomatedTotal > 0 {
			growth = round2(ratio100(newAutomatedTotal, overall.Total))
		}
		overall.AutomationGrowth = &growth
	}

	report.Overall = overall
	return report, nil
}

// CoveragePerSuite computes the automation split per suite of each plan. A
// test case that already appeared in an earlier suite of the same plan is
// skipped, so plan totals never double-count shared cases.
func (e *Engine) CoveragePerSuite(ctx context.Context, plans []TestPlan) ([]PlanSuiteCoverage, error) {
	coverage := make([]PlanSuiteCoverage, 0, len(plans))

	for _, plan := range plans {
		suites, err := e.Gateway.GetPlanSuites(ctx, plan.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch suites for plan %d: %w", plan.ID, err)
		}

		pc := PlanSuiteCoverage{PlanID: plan.ID, PlanName: plan.Name, Suites: []SuiteCoverage{}}
		seen := make(map[int]bool)

		for _, suite := range suites {
			cases, err := e.Gateway.GetSuiteTestCases(ctx, plan.ID, suite.ID)
			if err != nil {
				return nil, fmt.Errorf("fetch test cases for plan %d suite %d: %w", plan.ID, suite.ID, err)
			}

			var newIDs []int
			for _, tc := range cases {
				if id, ok := tc.WorkItemID(); ok && !seen[id] {
					newIDs = append(newIDs, id)
				}
			}
			if len(newIDs) == 0 {
				continue
			}

			items, err := e.fetchWorkItemsChunked(ctx, newIDs, []string{
				e.Fields.AutomationStatus,
				e.Fields.CustomAutomationStatus,
			})
			if err != nil {
				return nil, err
			}

			sc := SuiteCoverage{SuiteID: suite.ID, SuiteName: suite.Name}
			for _, item := range items {
				seen[item.ID] = true
				if e.Fields.EffectiveStatus(item) == StatusAutomated {
					sc.Automated++
				} else {
					sc.Manual++
				}
			}
			sc.Total = sc.Manual + sc.Automated
			sc.AutomationCoverage = round2(ratio100(sc.Automated, sc.Total))

			pc.Suites = append(pc.Suites, sc)
			pc.TotalManual += sc.Manual
			pc.TotalAutomated += sc.Automated
		}

		pc.TotalTests = pc.TotalManual + pc.TotalAutomated
		pc.TotalCoverage = round2(ratio100(pc.TotalAutomated, pc.TotalTests))
		coverage = append(coverage, pc)
	}

	return coverage, nil
}

// NewAutomatedInPlan discovers a plan's test cases, keeps the currently
// automated ones, and counts those whose status transitioned into Automated
// within the window. Used by the standalone new-automations report.
func (e *Engine) NewAutomatedInPlan(ctx context.Context, planID int, window DateWindow) (*NewAutomatedData, error) {
	discovered, err := e.discoverPlanCases(ctx, []TestPlan{{ID: planID}})
	if err != nil {
		return nil, err
	}

	items, err := e.fetchWorkItemsChunked(ctx, discovered[0].caseIDs, []string{
		e.Fields.AutomationStatus,
		e.Fields.CustomAutomationStatus,
	})
	if err != nil {
		return nil, err
	}

	var automatedIDs []int
	for _, item := range items {
		if e.Fields.EffectiveStatus(item) == StatusAutomated {
			automatedIDs = append(automatedIDs, item.ID)
		}
	}

	return e.newAutomatedFromIDs(ctx, automatedIDs, window)
}

// newAutomatedFromIDs scans the revision history of already-automated test
// cases for a Manual-to-Automated flip whose change date falls inside the
// window.
func (e *Engine) newAutomatedFromIDs(ctx context.Context, automatedIDs []int, window DateWindow) (*NewAutomatedData, error) {
	type revResult struct {
		id    int
		isNew bool
	}

	results := make([]revResult, len(automatedIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range automatedIDs {
		g.Go(func() error {
			revisions, err := e.Gateway.GetWorkItemRevisions(gctx, id)
			if err != nil {
				return fmt.Errorf("fetch revisions for test case %d: %w", id, err)
			}
			results[i] = revResult{id: id, isNew: e.transitionedInWindow(revisions, window)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	data := &NewAutomatedData{Links: []string{}}
	for _, r := range results {
		if r.isNew {
			data.Count++
			data.Links = append(data.Links, e.Gateway.WorkItemURL(r.id))
		}
	}
	return data, nil
}

func (e *Engine) transitionedInWindow(revisions []azure.WorkItem, window DateWindow) bool {
	for i := 1; i < len(revisions); i++ {
		prev := e.Fields.EffectiveStatus(revisions[i-1])
		curr := e.Fields.EffectiveStatus(revisions[i])
		changedAt, ok := revisions[i].TimeField("System.ChangedDate")
		if !ok {
			continue
		}
		if prev != StatusAutomated && curr == StatusAutomated &&
			!changedAt.Before(window.Start) && !changedAt.After(window.End) {
			return true
		}
	}
	return false
}

func emptyOverall() OverallMetrics {
	return OverallMetrics{
		AutomationCoverage: "0.00",
		Categories:         []CategoryBreakdown{},
		Tools:              []ToolBreakdown{},
		Links:              LinkSet{Manual: []string{}, Automated: []string{}},
	}
}

func emptyPlan(id int, name string) *PlanMetrics {
	return &PlanMetrics{
		PlanID:             id,
		PlanName:           name,
		AutomationCoverage: "0.00",
		Categories:         []CategoryBreakdown{},
		Tools:              []ToolBreakdown{},
		Links:              LinkSet{Manual: []string{}, Automated: []string{}},
	}
}

func planName(plans []TestPlan, id int) string {
	for _, p := range plans {
		if p.ID == id {
			return p.Name
		}
	}
	return ""
}

func fieldOrDefault(item azure.WorkItem, field, fallback string) string {
	if v := item.StringField(field); v != "" {
		return v
	}
	return fallback
}

func coverageString(automated, total int) string {
	if total == 0 {
		return "0.00"
	}
	return formatRate(ratio100(automated, total))
}

func upsertCategory(categories []CategoryBreakdown, name string, status AutomationStatus) []CategoryBreakdown {
	for i := range categories {
		if categories[i].Name == name {
			if status == StatusAutomated {
				categories[i].Automated++
			} else {
				categories[i].Manual++
			}
			return categories
		}
	}
	c := CategoryBreakdown{Name: name}
	if status == StatusAutomated {
		c.Automated = 1
	} else {
		c.Manual = 1
	}
	return append(categories, c)
}

func upsertTool(tools []ToolBreakdown, name string) []ToolBreakdown {
	for i := range tools {
		if tools[i].Name == name {
			tools[i].Total++
			return tools
		}
	}
	return append(tools, ToolBreakdown{Name: name, Total: 1})
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
