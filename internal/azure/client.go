package azure

import (
	"context"
	"time"
)

// Client is the interface for reading from the Azure DevOps tracker. All
// methods are idempotent reads; retries and backoff live behind this boundary,
// callers treat a returned error as fatal for the request.
type Client interface {
	QueryWorkItemIDs(ctx context.Context, wiql string) ([]int, error)
	GetWorkItemsBatch(ctx context.Context, ids []int, fields []string) ([]WorkItem, error)
	GetWorkItems(ctx context.Context, ids []int, fields []string) ([]WorkItem, error)
	GetWorkItemRevisions(ctx context.Context, id int) ([]WorkItem, error)
	GetClassificationNodes(ctx context.Context, kind NodeKind, depth int) (ClassificationNode, error)
	GetTeamIterations(ctx context.Context) ([]Iteration, error)
	GetPlanSuites(ctx context.Context, planID int) ([]TestSuite, error)
	GetSuiteTestCases(ctx context.Context, planID, suiteID int) ([]SuiteTestCase, error)
	GetSuiteTestPoints(ctx context.Context, planID, suiteID int) ([]TestPoint, error)
	GetRecentTestRuns(ctx context.Context, windowDays int) ([]TestRun, error)
	GetTestResultsByRun(ctx context.Context, runID int) ([]TestResult, error)

	WorkItemURL(id int) string
}

// NodeKind selects a classification tree.
type NodeKind string

const (
	NodeKindAreas      NodeKind = "areas"
	NodeKindIterations NodeKind = "iterations"
)

// Config holds the connection settings for the tracker.
type Config struct {
	Organization        string
	Project             string
	PersonalAccessToken string
	APIVersion          string

	// Transport settings. MaxSockets caps the keep-alive pool; the
	// aggregation layer relies on this as its only concurrency limit.
	Timeout    time.Duration
	MaxSockets int
	Retries    int
}

// NewClient creates a tracker client for the given configuration.
func NewClient(cfg Config) Client {
	return newRESTClient(cfg)
}
