package azure

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Wiql builds a work item query from structured filters. Values are quoted
// with single quotes escaped, matching the tracker's query grammar.
type Wiql struct {
	conditions []string
	orderBy    string
}

// NewWiql starts a query scoped to the given team project.
func NewWiql(project string) *Wiql {
	q := &Wiql{}
	if project != "" {
		q.conditions = append(q.conditions, fmt.Sprintf("[System.TeamProject] = '%s'", escapeWiql(project)))
	}
	return q
}

func (q *Wiql) WorkItemType(t string) *Wiql {
	q.conditions = append(q.conditions, fmt.Sprintf("[System.WorkItemType] = '%s'", escapeWiql(t)))
	return q
}

func (q *Wiql) AreaPathUnder(path string) *Wiql {
	q.conditions = append(q.conditions, fmt.Sprintf("[System.AreaPath] UNDER '%s'", escapeWiql(path)))
	return q
}

func (q *Wiql) AreaPathIn(paths []string) *Wiql {
	quoted := make([]string, len(paths))
	for i, p := range paths {
		quoted[i] = "'" + escapeWiql(strings.TrimSpace(p)) + "'"
	}
	q.conditions = append(q.conditions, fmt.Sprintf("[System.AreaPath] IN (%s)", strings.Join(quoted, ",")))
	return q
}

func (q *Wiql) IterationPathUnder(path string) *Wiql {
	q.conditions = append(q.conditions, fmt.Sprintf("[System.IterationPath] UNDER '%s'", escapeWiql(path)))
	return q
}

func (q *Wiql) IterationPath(path string) *Wiql {
	q.conditions = append(q.conditions, fmt.Sprintf("[System.IterationPath] = '%s'", escapeWiql(path)))
	return q
}

func (q *Wiql) StateNot(state string) *Wiql {
	q.conditions = append(q.conditions, fmt.Sprintf("[System.State] <> '%s'", escapeWiql(state)))
	return q
}

// ClosedBetween restricts the closed date to [since, until], date precision,
// so the whole final day is included.
func (q *Wiql) ClosedBetween(since, until time.Time) *Wiql {
	q.conditions = append(q.conditions,
		fmt.Sprintf("[Microsoft.VSTS.Common.ClosedDate] >= '%s'", since.Format("2006-01-02")),
		fmt.Sprintf("[Microsoft.VSTS.Common.ClosedDate] <= '%s'", until.Format("2006-01-02")))
	return q
}

func (q *Wiql) OrderByDesc(field string) *Wiql {
	q.orderBy = fmt.Sprintf("ORDER BY [%s] DESC", field)
	return q
}

// Build renders the final query selecting [System.Id].
func (q *Wiql) Build() string {
	var sb strings.Builder
	sb.WriteString("SELECT [System.Id] FROM WorkItems")
	if len(q.conditions) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(q.conditions, " AND "))
	}
	if q.orderBy != "" {
		sb.WriteString(" ")
		sb.WriteString(q.orderBy)
	}
	return sb.String()
}

func escapeWiql(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

var workItemLinkRe = regexp.MustCompile(`/edit/(\d+)`)

// ParseWorkItemURL extracts the work item id from an edit link produced by
// WorkItemURL. Returns false for links in any other shape.
func ParseWorkItemURL(link string) (int, bool) {
	m := workItemLinkRe.FindStringSubmatch(link)
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return id, true
}
