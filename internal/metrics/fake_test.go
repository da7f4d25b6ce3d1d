package metrics

import (
	"context"
	"fmt"
	"strings"

	"qametrics/internal/azure"
)

// fakeGateway is an in-memory azure.Client. Queries route on WIQL substrings;
// when several keys match, the longest one wins, so tests can discriminate
// between queries that differ only in one condition, like the iteration path.
type fakeGateway struct {
	queries     map[string][]int
	items       map[int]azure.WorkItem
	revisions   map[int][]azure.WorkItem
	areaTree    azure.ClassificationNode
	iterTree    azure.ClassificationNode
	iterations  []azure.Iteration
	planSuites  map[int][]azure.TestSuite
	suiteCases  map[string][]azure.SuiteTestCase
	suitePoints map[string][]azure.TestPoint
	runs        []azure.TestRun
	runResults  map[int][]azure.TestResult
}

func suiteKey(planID, suiteID int) string {
	return fmt.Sprintf("%d/%d", planID, suiteID)
}

func (f *fakeGateway) QueryWorkItemIDs(_ context.Context, wiql string) ([]int, error) {
	var bestKey string
	found := false
	for key := range f.queries {
		if strings.Contains(wiql, key) && len(key) > len(bestKey) {
			bestKey = key
			found = true
		}
	}
	if !found {
		return nil, nil
	}
	return f.queries[bestKey], nil
}

func (f *fakeGateway) lookup(ids []int) []azure.WorkItem {
	out := make([]azure.WorkItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := f.items[id]; ok {
			out = append(out, item)
		}
	}
	return out
}

func (f *fakeGateway) GetWorkItemsBatch(_ context.Context, ids []int, _ []string) ([]azure.WorkItem, error) {
	return f.lookup(ids), nil
}

func (f *fakeGateway) GetWorkItems(_ context.Context, ids []int, _ []string) ([]azure.WorkItem, error) {
	return f.lookup(ids), nil
}

func (f *fakeGateway) GetWorkItemRevisions(_ context.Context, id int) ([]azure.WorkItem, error) {
	return f.revisions[id], nil
}

func (f *fakeGateway) GetClassificationNodes(_ context.Context, kind azure.NodeKind, _ int) (azure.ClassificationNode, error) {
	if kind == azure.NodeKindIterations {
		return f.iterTree, nil
	}
	return f.areaTree, nil
}

func (f *fakeGateway) GetTeamIterations(_ context.Context) ([]azure.Iteration, error) {
	return f.iterations, nil
}

func (f *fakeGateway) GetPlanSuites(_ context.Context, planID int) ([]azure.TestSuite, error) {
	return f.planSuites[planID], nil
}

func (f *fakeGateway) GetSuiteTestCases(_ context.Context, planID, suiteID int) ([]azure.SuiteTestCase, error) {
	return f.suiteCases[suiteKey(planID, suiteID)], nil
}

func (f *fakeGateway) GetSuiteTestPoints(_ context.Context, planID, suiteID int) ([]azure.TestPoint, error) {
	return f.suitePoints[suiteKey(planID, suiteID)], nil
}

func (f *fakeGateway) GetRecentTestRuns(_ context.Context, _ int) ([]azure.TestRun, error) {
	return f.runs, nil
}

func (f *fakeGateway) GetTestResultsByRun(_ context.Context, runID int) ([]azure.TestResult, error) {
	return f.runResults[runID], nil
}

func (f *fakeGateway) WorkItemURL(id int) string {
	return fmt.Sprintf("https://dev.azure.com/acme/Phoenix/_workitems/edit/%d", id)
}

// caseRef builds a suite membership record the way the tracker returns it,
// with a stringly-typed id.
func caseRef(id int) azure.SuiteTestCase {
	var c azure.SuiteTestCase
	c.TestCase.ID = fmt.Sprintf("%d", id)
	return c
}

func workItem(id int, fields map[string]any) azure.WorkItem {
	return azure.WorkItem{ID: id, Fields: fields}
}

func testFields() FieldConfig {
	return FieldConfig{
		AutomationStatus:       "Microsoft.VSTS.TCM.AutomationStatus",
		CustomAutomationStatus: "Custom.AutomationStatus",
		TestingType:            "Custom.TestingType",
		AutomationTools:        "Custom.AutomationTool",
		Severity:               "Microsoft.VSTS.Common.Severity",
		Environment:            "Custom.Environment",
		ProductionLabel:        "PROD",
	}
}

func newTestEngine(gw azure.Client) *Engine {
	return NewEngine(gw, testFields(), "Phoenix", StrategyTeamSettings, 30)
}
