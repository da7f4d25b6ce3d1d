package metrics

import (
	"fmt"
	"math"
	"time"
)

// ChunkSize is the hard cap of the tracker's batch endpoint. Not tunable.
const ChunkSize = 200

// agingThresholdDays is the cutoff above which a closed bug counts as aged.
const agingThresholdDays = 7

// AutomationStatus is the effective classification of a test case.
type AutomationStatus int

const (
	StatusManual AutomationStatus = iota
	StatusAutomated
)

func (s AutomationStatus) String() string {
	if s == StatusAutomated {
		return "Automated"
	}
	return "Manual"
}

// ClientStrategy selects how past sprints are resolved for a client.
type ClientStrategy int

const (
	// StrategyTeamSettings resolves one project-wide iteration list.
	StrategyTeamSettings ClientStrategy = iota
	// StrategyClassificationNodes resolves sprints per team from the
	// iteration classification tree.
	StrategyClassificationNodes
)

// ParseStrategy maps a configured client id to a strategy. Unknown ids fall
// back to the team-settings strategy.
func ParseStrategy(clientID string) ClientStrategy {
	if clientID == "client-classification" {
		return StrategyClassificationNodes
	}
	return StrategyTeamSettings
}

// AreaPath is one node of the flattened area tree.
type AreaPath struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Sprint is a resolved time-boxed iteration. Request-scoped, never persisted.
type Sprint struct {
	Name          string    `json:"name"`
	IterationPath string    `json:"iterationPath"`
	StartDate     time.Time `json:"startDate"`
	FinishDate    time.Time `json:"finishDate"`
	TimeFrame     string    `json:"timeFrame,omitempty"`
}

// TestPlan identifies a plan by tracker id and title.
type TestPlan struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// TeamTestPlans lists the plans owned by one requested area path.
type TeamTestPlans struct {
	Team           string     `json:"team"`
	TotalTestPlans int        `json:"totalTestPlans"`
	TestPlans      []TestPlan `json:"testplans"`
}

// DateWindow bounds the new-automation delta computation.
type DateWindow struct {
	Start time.Time
	End   time.Time
}

// LinkSet splits item links by effective status.
type LinkSet struct {
	Manual    []string `json:"manual"`
	Automated []string `json:"automated"`
}

// CategoryBreakdown is the per-testing-type manual/automated split.
type CategoryBreakdown struct {
	Name      string `json:"name"`
	Manual    int    `json:"manual"`
	Automated int    `json:"automated"`
}

// ToolBreakdown counts items per automation tool.
type ToolBreakdown struct {
	Name  string `json:"name"`
	Total int    `json:"total"`
}

// NewAutomatedData is the date-windowed automation delta.
type NewAutomatedData struct {
	Count int      `json:"count"`
	Links []string `json:"links"`
}

// PlanMetrics is the per-plan automation rollup. Total is always
// Manual + Automated.
type PlanMetrics struct {
	PlanID             int                 `json:"planId"`
	PlanName           string              `json:"planName"`
	Manual             int                 `json:"manual"`
	Automated          int                 `json:"automated"`
	Total              int                 `json:"total"`
	TotalToBeExecuted  int                 `json:"totalToBeExecuted"`
	TotalNotExecuted   int                 `json:"totalNotExecuted"`
	AutomationCoverage string              `json:"automationCoverage"`
	PassRate           float64             `json:"passRate"`
	ExecutionCoverage  float64             `json:"executionCoverage"`
	NewAutomated       *NewAutomatedData   `json:"newAutomated,omitempty"`
	AutomationGrowth   *float64            `json:"automationGrowth,omitempty"`
	Categories         []CategoryBreakdown `json:"categories"`
	Tools              []ToolBreakdown     `json:"tools"`
	Links              LinkSet             `json:"links"`
}

// OverallMetrics is the cross-plan rollup. Counts, breakdowns and links are
// exact sums; PassRate and ExecutionCoverage are the unweighted mean of the
// per-plan rates.
type OverallMetrics struct {
	Manual             int                 `json:"manual"`
	Automated          int                 `json:"automated"`
	Total              int                 `json:"total"`
	TotalToBeExecuted  int                 `json:"totalToBeExecuted"`
	TotalNotExecuted   int                 `json:"totalNotExecuted"`
	AutomationCoverage string              `json:"automationCoverage"`
	PassRate           float64             `json:"passRate"`
	ExecutionCoverage  float64             `json:"executionCoverage"`
	NewAutomated       *NewAutomatedData   `json:"newAutomated,omitempty"`
	AutomationGrowth   *float64            `json:"automationGrowth,omitempty"`
	Categories         []CategoryBreakdown `json:"categories"`
	Tools              []ToolBreakdown     `json:"tools"`
	Links              LinkSet             `json:"links"`
}

// AutomationMetricsReport is the plan-centric report shape.
type AutomationMetricsReport struct {
	Overall OverallMetrics `json:"overall"`
	Plans   []PlanMetrics  `json:"plans"`
}

// SuiteCoverage is the per-suite automation split.
type SuiteCoverage struct {
	SuiteID            int     `json:"suiteId"`
	SuiteName          string  `json:"suiteName"`
	Manual             int     `json:"manual"`
	Automated          int     `json:"automated"`
	Total              int     `json:"total"`
	AutomationCoverage float64 `json:"automationCoverage"`
}

// PlanSuiteCoverage is the plan rollup of its suites, deduplicated across
// suites sharing test cases.
type PlanSuiteCoverage struct {
	PlanID         int             `json:"planId"`
	PlanName       string          `json:"planName"`
	TotalManual    int             `json:"totalManual"`
	TotalAutomated int             `json:"totalAutomated"`
	TotalTests     int             `json:"totalTests"`
	TotalCoverage  float64         `json:"totalCoverage"`
	Suites         []SuiteCoverage `json:"suites"`
}

// PlanNewAutomated is one row of the standalone new-automations report.
type PlanNewAutomated struct {
	PlanID            int              `json:"planId"`
	PlanName          string           `json:"planName"`
	NewAutomatedTests NewAutomatedData `json:"newAutomatedTests"`
}

// NewAutomationsReport sums windowed automation transitions across plans.
type NewAutomationsReport struct {
	Plans                    []PlanNewAutomated `json:"plans"`
	OverallNewAutomatedTests int                `json:"overallNewAutomatedTests"`
}

// SprintHeader echoes the sprint identity on bug reports.
type SprintHeader struct {
	Name          string    `json:"name"`
	IterationPath string    `json:"iterationPath"`
	StartDate     time.Time `json:"startDate"`
	FinishDate    time.Time `json:"finishDate"`
}

// BugCount pairs a tally with the contributing item links.
type BugCount struct {
	Total    int      `json:"total"`
	BugLinks []string `json:"bugLinks"`
}

// OpenClosedMetric is the opened/closed/still-open triple for one group.
type OpenClosedMetric struct {
	Opened    BugCount `json:"opened"`
	Closed    BugCount `json:"closed"`
	StillOpen string   `json:"stillOpen"`
}

// SeverityAging is one normalized-severity aging bucket.
type SeverityAging struct {
	Severity    string `json:"severity"`
	Count       int    `json:"count"`
	AverageDays string `json:"averageDays"`
}

// BugAging is the aging rollup for one group. AverageDays is nil when the
// group closed no bugs.
type BugAging struct {
	AverageDays              *string         `json:"averageDays"`
	AgingAboveThresholdLinks []string        `json:"agingAboveThresholdLinks"`
	BugAgingBySeverity       []SeverityAging `json:"bugAgingBySeverity"`
}

// SprintBugMetric is the per-sprint (or per-team-per-sprint) bug rollup.
type SprintBugMetric struct {
	Sprint                 SprintHeader     `json:"sprint"`
	OpenAndClosedBugMetric OpenClosedMetric `json:"openAndClosedBugMetric"`
	BugAging               BugAging         `json:"bugAging"`
}

// TeamBugMetrics nests the sprint rollups of one area path.
type TeamBugMetrics struct {
	AreaPath string            `json:"areaPath"`
	Sprints  []SprintBugMetric `json:"sprints"`
}

// OverallBugMetric is the cross-team cross-sprint bug rollup.
type OverallBugMetric struct {
	OpenAndClosedBugMetric OpenClosedMetric `json:"openAndClosedBugMetric"`
	BugAging               BugAging         `json:"bugAging"`
}

// SprintBugReport is the teams/sprintOveralls/overall bug report shape.
type SprintBugReport struct {
	Teams          []TeamBugMetrics  `json:"teams"`
	SprintOveralls []SprintBugMetric `json:"sprintOveralls"`
	Overall        OverallBugMetric  `json:"overall"`
}

// BugDetail resolves a report link back to item facts. AgingInDays is -1 for
// bugs that are still open.
type BugDetail struct {
	ID          int    `json:"id"`
	Link        string `json:"link"`
	Title       string `json:"title"`
	Severity    string `json:"severity"`
	AgingInDays int    `json:"agingInDays"`
}

// SeverityCount is a severity tally inside an environment bucket.
type SeverityCount struct {
	Severity string `json:"severity"`
	Total    int    `json:"total"`
	Rate     string `json:"rate,omitempty"`
}

// EnvBucket groups closed bugs by reported environment.
type EnvBucket struct {
	Environment string          `json:"environment"`
	Total       int             `json:"total"`
	Severities  []SeverityCount `json:"severities"`
}

// TeamLeakage is one area-path row of the fixed-window leakage report.
type TeamLeakage struct {
	AreaPath      string      `json:"areaPath"`
	TimeRange     string      `json:"timeRange"`
	BugLeakagePct string      `json:"bugLeakagePct"`
	Environments  []EnvBucket `json:"environments"`
}

// WindowLeakage is the cross-team rollup of one trailing window.
type WindowLeakage struct {
	TimeRange     string      `json:"timeRange"`
	BugLeakagePct string      `json:"bugLeakagePct"`
	Environments  []EnvBucket `json:"environments"`
}

// LeakageBreakdownReport covers the fixed 30/60/90/180 day windows.
type LeakageBreakdownReport struct {
	Teams   []TeamLeakage   `json:"teams"`
	Overall []WindowLeakage `json:"overall"`
}

// SprintTeamLeakage is one area+sprint row of the sprint-based leakage report.
type SprintTeamLeakage struct {
	AreaPath      string      `json:"areaPath"`
	Sprint        string      `json:"sprint"`
	TotalBugs     int         `json:"totalBugs"`
	BugLeakagePct string      `json:"bugLeakagePct"`
	Environments  []EnvBucket `json:"environments"`
}

// SprintLeakageRollup aggregates one sprint name across teams.
type SprintLeakageRollup struct {
	Sprint        string      `json:"sprint"`
	TotalBugs     int         `json:"totalBugs"`
	Prod          int         `json:"prod"`
	PreProd       int         `json:"preProd"`
	BugLeakagePct string      `json:"bugLeakagePct"`
	Environments  []EnvBucket `json:"environments"`
}

// SeverityDistribution splits one severity between prod and non-prod.
type SeverityDistribution struct {
	Severity     string `json:"severity"`
	TotalProd    int    `json:"totalProd"`
	TotalNonProd int    `json:"totalNonProd"`
	ProdPct      string `json:"prodPct"`
	NonProdPct   string `json:"nonProdPct"`
}

// OverallSeverity is the severity-centric view over all discovered sprints.
type OverallSeverity struct {
	Total             int                    `json:"total"`
	Severities        []SeverityCount        `json:"severities"`
	DistributionByEnv []SeverityDistribution `json:"distributionByEnv"`
}

// LeakageBySprintReport is the sprint-based leakage report shape.
type LeakageBySprintReport struct {
	Teams           []SprintTeamLeakage   `json:"teams"`
	SprintOverall   []SprintLeakageRollup `json:"sprintOverall"`
	Overall         []EnvBucket           `json:"overall"`
	OverallSeverity OverallSeverity       `json:"overallSeverity"`
}

// SprintMetrics is the per-sprint test execution summary.
type SprintMetrics struct {
	SprintName                string  `json:"sprintName"`
	PlanName                  string  `json:"planName"`
	TotalTestCases            int     `json:"totalTestCases"`
	TotalTestCasesBeExecuted  int     `json:"totalTestCasesBeExecuted"`
	TotalTestCasesExecuted    int     `json:"totalTestCasesExecuted"`
	TotalTestCasesNotExecuted int     `json:"totalTestCasesNotExecuted"`
	PassRate                  float64 `json:"passRate"`
	ExecutionCoverage         float64 `json:"executionCoverage"`
	ManualTests               int     `json:"manualTests"`
	AutomatedTests            int     `json:"automatedTests"`
}

// TeamSprintMetrics nests the sprint summaries of one area path.
type TeamSprintMetrics struct {
	AreaPath string          `json:"areaPath"`
	Sprints  []SprintMetrics `json:"sprints"`
}

// SprintTestReport is the teams/sprintsOverall/overall execution report.
// SprintsOverall rates are count-weighted by to-be-executed totals, as is the
// final Overall.
type SprintTestReport struct {
	Teams          []TeamSprintMetrics `json:"teams"`
	SprintsOverall []SprintMetrics     `json:"sprintsOverall"`
	Overall        SprintMetrics       `json:"overall"`
}

// TestCaseInfo identifies a test case for usage lookups.
type TestCaseInfo struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

// UsageSummary totals the used/unused split.
type UsageSummary struct {
	TotalUsed   int `json:"totalUsed"`
	TotalUnused int `json:"totalUnused"`
	Total       int `json:"total"`
}

// UsageReport splits test cases by appearance in recent run history.
type UsageReport struct {
	Used    []TestCaseInfo `json:"used"`
	Unused  []TestCaseInfo `json:"unused"`
	Overall UsageSummary   `json:"overall"`
}

// ReadyTestCase is a non-closed test case with its effective status.
type ReadyTestCase struct {
	ID               int    `json:"id"`
	Title            string `json:"title"`
	State            string `json:"state"`
	AreaPath         string `json:"areaPath"`
	AutomationStatus string `json:"automationStatus"`
}

// AreaAutomationSummary is the per-area automation rollup of ready cases.
type AreaAutomationSummary struct {
	AreaPath           string  `json:"areaPath"`
	Total              int     `json:"total"`
	Automated          int     `json:"automated"`
	Manual             int     `json:"manual"`
	AutomationCoverage float64 `json:"automationCoverage"`
}

// ReadyTestCasesReport lists ready cases plus per-area and overall rollups.
type ReadyTestCasesReport struct {
	TestCases []ReadyTestCase `json:"testCases"`
	Overall   struct {
		Total              int     `json:"total"`
		Automated          int     `json:"automated"`
		Manual             int     `json:"manual"`
		AutomationCoverage float64 `json:"automationCoverage"`
	} `json:"overall"`
	OverallByTeam []AreaAutomationSummary `json:"overallByTeam"`
}

// round2 rounds to two decimal places, matching the report's display
// precision for rate fields.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ratio100 is num/den*100, zero when den is zero.
func ratio100(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den) * 100
}

// formatPct renders a rate the way link-bearing reports expect ("12.34%").
func formatPct(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

// formatRate renders a rate without the percent sign ("12.34").
func formatRate(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
