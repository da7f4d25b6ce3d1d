package metrics

import (
	"context"
	"testing"

	"qametrics/internal/azure"
)

func pastSprintIterations() []azure.Iteration {
	return []azure.Iteration{
		{
			ID:   "it-1",
			Name: "Sprint 1",
			Path: `Phoenix\Sprint 1`,
			Attributes: azure.IterationAttributes{
				StartDate:  "2026-01-01T00:00:00Z",
				FinishDate: "2026-01-14T00:00:00Z",
				TimeFrame:  "past",
			},
		},
		{
			ID:   "it-2",
			Name: "Sprint 2",
			Path: `Phoenix\Sprint 2`,
			Attributes: azure.IterationAttributes{
				StartDate:  "2026-01-15T00:00:00Z",
				FinishDate: "2026-01-28T00:00:00Z",
				TimeFrame:  "current",
			},
		},
	}
}

func TestBugMetricsBySprints(t *testing.T) {
	gw := &fakeGateway{
		iterations: pastSprintIterations(),
		queries: map[string][]int{
			`[System.IterationPath] UNDER 'Phoenix\Sprint 1'`: {301, 302, 303, 304, 305, 306},
		},
		items: map[int]azure.WorkItem{
			// aged 8 days, above the threshold
			301: workItem(301, map[string]any{
				"System.CreatedDate":               "2026-01-01T00:00:00Z",
				"Microsoft.VSTS.Common.ClosedDate": "2026-01-09T00:00:00Z",
				"Microsoft.VSTS.Common.Severity":   "Alta",
			}),
			// aged exactly 7 days, at the threshold
			302: workItem(302, map[string]any{
				"System.CreatedDate":               "2026-01-01T00:00:00Z",
				"Microsoft.VSTS.Common.ClosedDate": "2026-01-08T00:00:00Z",
				"Microsoft.VSTS.Common.Severity":   "Alta",
			}),
			// still open: opened only
			303: workItem(303, map[string]any{
				"System.CreatedDate": "2026-01-05T00:00:00Z",
			}),
			304: workItem(304, map[string]any{
				"System.CreatedDate": "2026-01-10T00:00:00Z",
			}),
			// created late on the sprint's final day: still opened here
			305: workItem(305, map[string]any{
				"System.CreatedDate": "2026-01-14T20:00:00Z",
			}),
			// closed after the sprint ended, without a usable created date:
			// counts as closed, no aging
			306: workItem(306, map[string]any{
				"Microsoft.VSTS.Common.ClosedDate": "2026-01-20T00:00:00Z",
				"Microsoft.VSTS.Common.Severity":   "Baixa",
			}),
		},
	}
	e := newTestEngine(gw)

	report, err := e.BugMetricsBySprints(context.Background(), []string{`Phoenix\Alpha`}, 5)
	if err != nil {
		t.Fatalf("BugMetricsBySprints: %v", err)
	}

	if len(report.Teams) != 1 || len(report.Teams[0].Sprints) != 1 {
		t.Fatalf("got %d teams, want 1 with 1 sprint", len(report.Teams))
	}

	sprint := report.Teams[0].Sprints[0]
	if sprint.Sprint.Name != "Sprint 1" {
		t.Errorf("sprint name = %q, want Sprint 1 (current sprint must be excluded)", sprint.Sprint.Name)
	}

	oc := sprint.OpenAndClosedBugMetric
	if oc.Opened.Total != 5 || oc.Closed.Total != 3 {
		t.Errorf("opened/closed = %d/%d, want 5/3", oc.Opened.Total, oc.Closed.Total)
	}
	if oc.StillOpen != "40.00%" {
		t.Errorf("stillOpen = %q, want \"40.00%%\"", oc.StillOpen)
	}

	aging := sprint.BugAging
	if aging.AverageDays == nil || *aging.AverageDays != "7.50" {
		t.Errorf("averageDays = %v, want \"7.50\"", aging.AverageDays)
	}
	if len(aging.AgingAboveThresholdLinks) != 1 {
		t.Errorf("above-threshold links = %v, want exactly the 8-day bug", aging.AgingAboveThresholdLinks)
	}
	if len(aging.BugAgingBySeverity) != 1 {
		t.Fatalf("severity buckets = %+v, want one High bucket", aging.BugAgingBySeverity)
	}
	bucket := aging.BugAgingBySeverity[0]
	if bucket.Severity != SeverityHigh || bucket.Count != 2 || bucket.AverageDays != "7.50" {
		t.Errorf("bucket = %+v, want High/2/\"7.50\"", bucket)
	}

	// With a single team the sprint overall and the report overall mirror
	// the team cell.
	if got := report.SprintOveralls[0].OpenAndClosedBugMetric.Opened.Total; got != 5 {
		t.Errorf("sprint overall opened = %d, want 5", got)
	}
	if got := report.Overall.OpenAndClosedBugMetric.StillOpen; got != "40.00%" {
		t.Errorf("overall stillOpen = %q, want \"40.00%%\"", got)
	}
}

func TestBugMetricsBySprints_StillOpenClamped(t *testing.T) {
	items := map[int]azure.WorkItem{
		// opened and closed within the sprint
		401: workItem(401, map[string]any{
			"System.CreatedDate":               "2026-01-02T00:00:00Z",
			"Microsoft.VSTS.Common.ClosedDate": "2026-01-05T00:00:00Z",
		}),
		402: workItem(402, map[string]any{
			"System.CreatedDate":               "2026-01-03T00:00:00Z",
			"Microsoft.VSTS.Common.ClosedDate": "2026-01-06T00:00:00Z",
		}),
	}
	// carried over from before the sprint, closed during it: closed only
	for id := 403; id <= 405; id++ {
		items[id] = workItem(id, map[string]any{
			"System.CreatedDate":               "2025-12-01T00:00:00Z",
			"Microsoft.VSTS.Common.ClosedDate": "2026-01-04T00:00:00Z",
		})
	}
	gw := &fakeGateway{
		iterations: pastSprintIterations(),
		queries: map[string][]int{
			`[System.IterationPath] UNDER 'Phoenix\Sprint 1'`: {401, 402, 403, 404, 405},
		},
		items: items,
	}
	e := newTestEngine(gw)

	report, err := e.BugMetricsBySprints(context.Background(), []string{`Phoenix\Alpha`}, 1)
	if err != nil {
		t.Fatalf("BugMetricsBySprints: %v", err)
	}

	oc := report.Teams[0].Sprints[0].OpenAndClosedBugMetric
	if oc.Opened.Total != 2 || oc.Closed.Total != 5 {
		t.Fatalf("opened/closed = %d/%d, want 2/5", oc.Opened.Total, oc.Closed.Total)
	}
	if oc.StillOpen != "0.00%" {
		t.Errorf("stillOpen = %q, want clamped \"0.00%%\"", oc.StillOpen)
	}
}

func TestBugMetricsBySprints_ScopedToSprintIteration(t *testing.T) {
	gw := &fakeGateway{
		iterations: []azure.Iteration{
			{Name: "Sprint 1", Path: `Phoenix\Sprint 1`, Attributes: azure.IterationAttributes{
				StartDate: "2026-01-01T00:00:00Z", FinishDate: "2026-01-14T00:00:00Z", TimeFrame: "past",
			}},
			{Name: "Sprint 2", Path: `Phoenix\Sprint 2`, Attributes: azure.IterationAttributes{
				StartDate: "2026-01-15T00:00:00Z", FinishDate: "2026-01-28T00:00:00Z", TimeFrame: "past",
			}},
			{Name: "Sprint 3", Path: `Phoenix\Sprint 3`, Attributes: azure.IterationAttributes{
				StartDate: "2026-01-29T00:00:00Z", FinishDate: "2026-02-11T00:00:00Z", TimeFrame: "current",
			}},
		},
		queries: map[string][]int{
			`[System.IterationPath] UNDER 'Phoenix\Sprint 2'`: {501},
		},
		items: map[int]azure.WorkItem{
			501: workItem(501, map[string]any{
				"System.CreatedDate":               "2026-01-16T00:00:00Z",
				"Microsoft.VSTS.Common.ClosedDate": "2026-01-20T00:00:00Z",
				"Microsoft.VSTS.Common.Severity":   "Alta",
			}),
		},
	}
	e := newTestEngine(gw)

	report, err := e.BugMetricsBySprints(context.Background(), []string{`Phoenix\Alpha`}, 5)
	if err != nil {
		t.Fatalf("BugMetricsBySprints: %v", err)
	}

	sprints := report.Teams[0].Sprints
	if len(sprints) != 2 {
		t.Fatalf("got %d sprints, want 2", len(sprints))
	}
	// newest first
	s2, s1 := sprints[0], sprints[1]
	if s2.Sprint.Name != "Sprint 2" || s1.Sprint.Name != "Sprint 1" {
		t.Fatalf("sprint order = %q, %q, want Sprint 2 then Sprint 1", s2.Sprint.Name, s1.Sprint.Name)
	}

	if got := s2.OpenAndClosedBugMetric; got.Opened.Total != 1 || got.Closed.Total != 1 {
		t.Errorf("Sprint 2 opened/closed = %d/%d, want 1/1", got.Opened.Total, got.Closed.Total)
	}
	// a bug belonging to Sprint 2 must not leak into Sprint 1, even though
	// its close date falls after Sprint 1's start
	if got := s1.OpenAndClosedBugMetric; got.Opened.Total != 0 || got.Closed.Total != 0 {
		t.Errorf("Sprint 1 opened/closed = %d/%d, want 0/0", got.Opened.Total, got.Closed.Total)
	}
	if got := report.Overall.OpenAndClosedBugMetric.Closed.Total; got != 1 {
		t.Errorf("overall closed = %d, want 1", got)
	}
}

func TestBugMetricsBySprints_NoAreaPaths(t *testing.T) {
	e := newTestEngine(&fakeGateway{})

	report, err := e.BugMetricsBySprints(context.Background(), nil, 3)
	if err != nil {
		t.Fatalf("BugMetricsBySprints: %v", err)
	}
	if len(report.Teams) != 0 || len(report.SprintOveralls) != 0 {
		t.Errorf("got %d teams, %d sprint overalls, want empty report", len(report.Teams), len(report.SprintOveralls))
	}
	if report.Overall.BugAging.AverageDays != nil {
		t.Errorf("overall averageDays = %v, want nil", report.Overall.BugAging.AverageDays)
	}
	if report.Overall.OpenAndClosedBugMetric.StillOpen != "0.00%" {
		t.Errorf("overall stillOpen = %q, want \"0.00%%\"", report.Overall.OpenAndClosedBugMetric.StillOpen)
	}
}

func TestBugDetailsFromLinks(t *testing.T) {
	gw := &fakeGateway{
		items: map[int]azure.WorkItem{
			301: workItem(301, map[string]any{
				"System.Title":                     "Checkout fails",
				"System.CreatedDate":               "2026-01-01T00:00:00Z",
				"Microsoft.VSTS.Common.ClosedDate": "2026-01-09T00:00:00Z",
				"Microsoft.VSTS.Common.Severity":   "Alta",
			}),
			401: workItem(401, map[string]any{
				"System.Title":       "Slow search",
				"System.CreatedDate": "2026-01-03T00:00:00Z",
			}),
		},
	}
	e := newTestEngine(gw)

	links := []string{
		gw.WorkItemURL(301),
		"https://example.com/not-a-work-item",
		gw.WorkItemURL(401),
		gw.WorkItemURL(301), // duplicate, resolved once
	}
	details, err := e.BugDetailsFromLinks(context.Background(), links)
	if err != nil {
		t.Fatalf("BugDetailsFromLinks: %v", err)
	}

	if len(details) != 2 {
		t.Fatalf("got %d details, want 2", len(details))
	}
	if details[0].ID != 301 || details[1].ID != 401 {
		t.Errorf("order = %d, %d, want input order 301, 401", details[0].ID, details[1].ID)
	}
	if details[0].AgingInDays != 8 {
		t.Errorf("closed bug aging = %d, want 8", details[0].AgingInDays)
	}
	if details[0].Severity != SeverityHigh {
		t.Errorf("severity = %q, want normalized %q", details[0].Severity, SeverityHigh)
	}
	if details[1].AgingInDays != -1 {
		t.Errorf("open bug aging = %d, want -1", details[1].AgingInDays)
	}
}

func TestAgingDays_RoundsUp(t *testing.T) {
	created, _ := azure.ParseTime("2026-01-01T08:00:00Z")

	tests := []struct {
		closed string
		want   int
	}{
		{"2026-01-01T09:00:00Z", 1}, // one hour still ages a day
		{"2026-01-02T08:00:00Z", 1},
		{"2026-01-02T08:00:01Z", 2},
		{"2026-01-09T08:00:00Z", 8},
	}
	for _, tt := range tests {
		closed, _ := azure.ParseTime(tt.closed)
		if got := agingDays(created, closed); got != tt.want {
			t.Errorf("agingDays(closed %s) = %d, want %d", tt.closed, got, tt.want)
		}
	}
}
