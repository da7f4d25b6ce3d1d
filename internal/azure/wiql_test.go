package azure

import (
	"strings"
	"testing"
	"time"
)

func TestWiqlBuild(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2026, 1, 14, 0, 0, 0, 0, time.UTC)

	got := NewWiql("Phoenix").
		WorkItemType("Bug").
		AreaPathUnder(`Phoenix\Alpha`).
		ClosedBetween(since, until).
		Build()

	want := `SELECT [System.Id] FROM WorkItems WHERE [System.TeamProject] = 'Phoenix'` +
		` AND [System.WorkItemType] = 'Bug'` +
		` AND [System.AreaPath] UNDER 'Phoenix\Alpha'` +
		` AND [Microsoft.VSTS.Common.ClosedDate] >= '2026-01-01'` +
		` AND [Microsoft.VSTS.Common.ClosedDate] <= '2026-01-14'`
	if got != want {
		t.Errorf("Build =\n%s\nwant\n%s", got, want)
	}
}

func TestWiqlEscapesQuotes(t *testing.T) {
	got := NewWiql("").WorkItemType("O'Brien's Type").Build()
	if !strings.Contains(got, "'O''Brien''s Type'") {
		t.Errorf("quotes not escaped: %s", got)
	}
}

func TestWiqlAreaPathIn(t *testing.T) {
	got := NewWiql("").AreaPathIn([]string{` Phoenix\Alpha `, `Phoenix\Beta`}).Build()
	want := `SELECT [System.Id] FROM WorkItems WHERE [System.AreaPath] IN ('Phoenix\Alpha','Phoenix\Beta')`
	if got != want {
		t.Errorf("Build = %s, want %s", got, want)
	}
}

func TestWiqlOrderBy(t *testing.T) {
	got := NewWiql("Phoenix").WorkItemType("Test Plan").OrderByDesc("System.CreatedDate").Build()
	if !strings.HasSuffix(got, "ORDER BY [System.CreatedDate] DESC") {
		t.Errorf("missing order clause: %s", got)
	}
}

func TestParseWorkItemURL(t *testing.T) {
	tests := []struct {
		link   string
		wantID int
		wantOK bool
	}{
		{"https://dev.azure.com/acme/Phoenix/_workitems/edit/4211", 4211, true},
		{"https://dev.azure.com/acme/Phoenix/_workitems/edit/4211?tab=history", 4211, true},
		{"https://dev.azure.com/acme/Phoenix/_workitems/4211", 0, false},
		{"not a link", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		id, ok := ParseWorkItemURL(tt.link)
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("ParseWorkItemURL(%q) = %d, %v, want %d, %v", tt.link, id, ok, tt.wantID, tt.wantOK)
		}
	}
}

func TestParseTime(t *testing.T) {
	tests := []string{
		"2026-01-09T14:30:00Z",
		"2026-01-09T14:30:00.123Z",
		"2026-01-09T14:30:00",
		"2026-01-09",
	}
	for _, raw := range tests {
		parsed, err := ParseTime(raw)
		if err != nil {
			t.Errorf("ParseTime(%q): %v", raw, err)
			continue
		}
		if parsed.Year() != 2026 || parsed.Month() != time.January || parsed.Day() != 9 {
			t.Errorf("ParseTime(%q) = %v, wrong date", raw, parsed)
		}
	}

	if _, err := ParseTime("not a date"); err == nil {
		t.Error("ParseTime accepted garbage")
	}
}

func TestSuiteTestCaseWorkItemID(t *testing.T) {
	var c SuiteTestCase
	c.TestCase.ID = "123"
	if id, ok := c.WorkItemID(); !ok || id != 123 {
		t.Errorf("WorkItemID = %d, %v, want 123, true", id, ok)
	}

	c.TestCase.ID = "abc"
	if _, ok := c.WorkItemID(); ok {
		t.Error("WorkItemID accepted a non-numeric id")
	}
}
