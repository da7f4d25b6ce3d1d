package azure

import (
	"strconv"
	"time"
)

// WiqlResponse is the top-level container for a WIQL query result.
type WiqlResponse struct {
	WorkItems []WorkItemRef `json:"workItems"`
}

// WorkItemRef is the id-only reference WIQL returns.
type WorkItemRef struct {
	ID int `json:"id"`
}

// WorkItem is a read-only snapshot of a tracker item. Fields is keyed by the
// reference names requested in the fetch (e.g. "System.Title").
type WorkItem struct {
	ID     int            `json:"id"`
	Fields map[string]any `json:"fields"`
}

// StringField returns the named field as a trimmed-type string, "" when the
// field is absent, null, or not a string.
func (w WorkItem) StringField(name string) string {
	if v, ok := w.Fields[name].(string); ok {
		return v
	}
	return ""
}

// TimeField parses the named field as a tracker timestamp. The second return
// is false when the field is absent or unparseable.
func (w WorkItem) TimeField(name string) (time.Time, bool) {
	raw := w.StringField(name)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := ParseTime(raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// WorkItemsResponse wraps both the batch and the ids-list endpoints.
type WorkItemsResponse struct {
	Count int        `json:"count"`
	Value []WorkItem `json:"value"`
}

// ClassificationNode is a node of the recursive area/iteration tree.
type ClassificationNode struct {
	Name       string               `json:"name"`
	Identifier string               `json:"identifier,omitempty"`
	Path       string               `json:"path,omitempty"`
	Attributes *NodeAttributes      `json:"attributes,omitempty"`
	Children   []ClassificationNode `json:"children,omitempty"`
}

// NodeAttributes carries sprint dates on iteration nodes.
type NodeAttributes struct {
	StartDate  string `json:"startDate,omitempty"`
	FinishDate string `json:"finishDate,omitempty"`
	TimeFrame  string `json:"timeFrame,omitempty"`
}

// IterationsResponse is the team-settings iteration list.
type IterationsResponse struct {
	Count int         `json:"count"`
	Value []Iteration `json:"value"`
}

// Iteration is a single team-settings iteration.
type Iteration struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Path       string              `json:"path"`
	Attributes IterationAttributes `json:"attributes"`
}

// IterationAttributes holds sprint boundary dates and the time-frame tag
// ("past", "current" or "future").
type IterationAttributes struct {
	StartDate  string `json:"startDate,omitempty"`
	FinishDate string `json:"finishDate,omitempty"`
	TimeFrame  string `json:"timeFrame,omitempty"`
}

// TestSuite is a suite inside a test plan.
type TestSuite struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type testSuitesResponse struct {
	Value []TestSuite `json:"value"`
}

// SuiteTestCase is the suite-membership record of a test case. Azure returns
// the work item id as a string here.
type SuiteTestCase struct {
	TestCase struct {
		ID string `json:"id"`
	} `json:"testCase"`
}

// WorkItemID converts the embedded string id to a numeric work item id.
func (s SuiteTestCase) WorkItemID() (int, bool) {
	id, err := strconv.Atoi(s.TestCase.ID)
	if err != nil {
		return 0, false
	}
	return id, true
}

type suiteTestCasesResponse struct {
	Value []SuiteTestCase `json:"value"`
}

// TestPoint is one execution slot of a test case within a suite.
type TestPoint struct {
	ID      int    `json:"id"`
	Outcome string `json:"outcome"`
}

type testPointsResponse struct {
	Value []TestPoint `json:"value"`
}

// TestRun is a recently executed run.
type TestRun struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type testRunsResponse struct {
	Value []TestRun `json:"value"`
}

// TestResult links a run result back to its test case.
type TestResult struct {
	TestCase struct {
		ID string `json:"id"`
	} `json:"testCase"`
	TestCaseTitle string `json:"testCaseTitle"`
}

// TestCaseID converts the embedded string id; false when absent or malformed.
func (r TestResult) TestCaseID() (int, bool) {
	id, err := strconv.Atoi(r.TestCase.ID)
	if err != nil {
		return 0, false
	}
	return id, true
}

type testResultsResponse struct {
	Value []TestResult `json:"value"`
}

// tracker timestamp layouts, most specific first.
var timeLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime parses the tracker's timestamp formats.
func ParseTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
