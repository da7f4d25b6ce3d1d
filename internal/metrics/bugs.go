package metrics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"qametrics/internal/azure"
)

const (
	fieldCreatedDate = "System.CreatedDate"
	fieldClosedDate  = "Microsoft.VSTS.Common.ClosedDate"
	fieldTitle       = "System.Title"
	fieldState       = "System.State"
	fieldAreaPath    = "System.AreaPath"
)

// bugAccum gathers the opened/closed/aging facts of one group. Groups merge
// upward: area+sprint cells into sprint overalls, and everything into the
// report overall.
type bugAccum struct {
	openedLinks []string
	closedLinks []string
	agingSum    int
	agingCount  int
	aboveLinks  []string
	sevSum      map[string]int
	sevCount    map[string]int
}

func newBugAccum() *bugAccum {
	return &bugAccum{sevSum: map[string]int{}, sevCount: map[string]int{}}
}

func (a *bugAccum) addAging(days int, severity, link string) {
	a.agingSum += days
	a.agingCount++
	a.sevSum[severity] += days
	a.sevCount[severity]++
	if days > agingThresholdDays {
		a.aboveLinks = append(a.aboveLinks, link)
	}
}

func (a *bugAccum) merge(b *bugAccum) {
	a.openedLinks = append(a.openedLinks, b.openedLinks...)
	a.closedLinks = append(a.closedLinks, b.closedLinks...)
	a.agingSum += b.agingSum
	a.agingCount += b.agingCount
	a.aboveLinks = append(a.aboveLinks, b.aboveLinks...)
	for sev, sum := range b.sevSum {
		a.sevSum[sev] += sum
	}
	for sev, count := range b.sevCount {
		a.sevCount[sev] += count
	}
}

// metrics finalizes the accumulator into the report shapes. StillOpen never
// goes negative even when a sprint closes more bugs than it opened.
func (a *bugAccum) metrics() (OpenClosedMetric, BugAging) {
	opened := len(a.openedLinks)
	closed := len(a.closedLinks)

	stillOpen := 0.0
	if opened > 0 {
		stillOpen = math.Max(0, ratio100(opened-closed, opened))
	}
	oc := OpenClosedMetric{
		Opened:    BugCount{Total: opened, BugLinks: emptyIfNil(a.openedLinks)},
		Closed:    BugCount{Total: closed, BugLinks: emptyIfNil(a.closedLinks)},
		StillOpen: formatPct(round2(stillOpen)),
	}

	aging := BugAging{
		AgingAboveThresholdLinks: emptyIfNil(a.aboveLinks),
		BugAgingBySeverity:       []SeverityAging{},
	}
	if a.agingCount > 0 {
		avg := formatRate(float64(a.agingSum) / float64(a.agingCount))
		aging.AverageDays = &avg
	}
	severities := make([]string, 0, len(a.sevCount))
	for sev := range a.sevCount {
		severities = append(severities, sev)
	}
	sort.Strings(severities)
	for _, sev := range severities {
		aging.BugAgingBySeverity = append(aging.BugAgingBySeverity, SeverityAging{
			Severity:    sev,
			Count:       a.sevCount[sev],
			AverageDays: formatRate(float64(a.sevSum[sev]) / float64(a.sevCount[sev])),
		})
	}
	return oc, aging
}

// agingDays is the bug lifetime in whole days, rounded up so a same-day close
// still ages at least within its calendar day fraction.
func agingDays(created, closed time.Time) int {
	return int(math.Ceil(closed.Sub(created).Hours() / 24))
}

// sprintBugAccum queries one area+sprint cell. Membership comes from the
// sprint's iteration path; opened and closed are then classified by date in
// memory. Opened is bounded by the sprint dates; closed is open-ended past
// the sprint start, so a late closure of a sprint bug still counts here.
func (e *Engine) sprintBugAccum(ctx context.Context, areaPath string, sprint Sprint) (*bugAccum, error) {
	acc := newBugAccum()

	query := azure.NewWiql(e.Project).
		WorkItemType("Bug").
		AreaPathUnder(areaPath).
		IterationPathUnder(sprint.IterationPath).
		Build()
	ids, err := e.Gateway.QueryWorkItemIDs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query bugs for %q sprint %q: %w", areaPath, sprint.Name, err)
	}

	items, err := e.fetchWorkItemsChunked(ctx, ids, []string{fieldCreatedDate, fieldClosedDate, e.Fields.Severity})
	if err != nil {
		return nil, err
	}
	sprintEnd := endOfDay(sprint.FinishDate)
	for _, item := range items {
		link := e.Gateway.WorkItemURL(item.ID)

		created, okCreated := item.TimeField(fieldCreatedDate)
		if okCreated && !created.Before(sprint.StartDate) && !created.After(sprintEnd) {
			acc.openedLinks = append(acc.openedLinks, link)
		}

		closed, okClosed := item.TimeField(fieldClosedDate)
		if !okClosed || closed.Before(sprint.StartDate) {
			continue
		}
		acc.closedLinks = append(acc.closedLinks, link)
		if okCreated {
			acc.addAging(agingDays(created, closed), e.Fields.ItemSeverity(item), link)
		}
	}
	return acc, nil
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

// BugMetricsBySprints builds the opened/closed/aging report over the last n
// sprints of the given area paths. Cells are queried concurrently; each
// goroutine owns its slot and merging happens afterwards on one goroutine.
func (e *Engine) BugMetricsBySprints(ctx context.Context, areaPaths []string, numSprints int) (*SprintBugReport, error) {
	report := &SprintBugReport{
		Teams:          []TeamBugMetrics{},
		SprintOveralls: []SprintBugMetric{},
	}
	if len(areaPaths) == 0 {
		report.Overall.OpenAndClosedBugMetric, report.Overall.BugAging = newBugAccum().metrics()
		return report, nil
	}

	sprints, err := e.PastSprints(ctx, areaPaths, numSprints)
	if err != nil {
		return nil, err
	}

	cells := make([]*bugAccum, len(areaPaths)*len(sprints))
	g, gctx := errgroup.WithContext(ctx)
	for ai, area := range areaPaths {
		for si, sprint := range sprints {
			idx := ai*len(sprints) + si
			g.Go(func() error {
				acc, err := e.sprintBugAccum(gctx, area, sprint)
				if err != nil {
					return err
				}
				cells[idx] = acc
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	overall := newBugAccum()
	for ai, area := range areaPaths {
		team := TeamBugMetrics{AreaPath: area, Sprints: []SprintBugMetric{}}
		for si, sprint := range sprints {
			acc := cells[ai*len(sprints)+si]
			metric := SprintBugMetric{Sprint: sprintHeader(sprint)}
			metric.OpenAndClosedBugMetric, metric.BugAging = acc.metrics()
			team.Sprints = append(team.Sprints, metric)
		}
		report.Teams = append(report.Teams, team)
	}

	for si, sprint := range sprints {
		merged := newBugAccum()
		for ai := range areaPaths {
			merged.merge(cells[ai*len(sprints)+si])
		}
		metric := SprintBugMetric{Sprint: sprintHeader(sprint)}
		metric.OpenAndClosedBugMetric, metric.BugAging = merged.metrics()
		report.SprintOveralls = append(report.SprintOveralls, metric)
		overall.merge(merged)
	}

	report.Overall.OpenAndClosedBugMetric, report.Overall.BugAging = overall.metrics()
	return report, nil
}

// BugDetailsFromLinks resolves report links back to item facts, preserving
// the input order. Links that do not carry a work item id are dropped.
func (e *Engine) BugDetailsFromLinks(ctx context.Context, links []string) ([]BugDetail, error) {
	linkByID := make(map[int]string, len(links))
	var ids []int
	for _, link := range links {
		id, ok := azure.ParseWorkItemURL(link)
		if !ok {
			continue
		}
		if _, seen := linkByID[id]; !seen {
			ids = append(ids, id)
		}
		linkByID[id] = link
	}

	items, err := e.fetchWorkItemsChunked(ctx, ids, []string{fieldTitle, fieldCreatedDate, fieldClosedDate, e.Fields.Severity})
	if err != nil {
		return nil, err
	}
	itemByID := make(map[int]azure.WorkItem, len(items))
	for _, item := range items {
		itemByID[item.ID] = item
	}

	details := make([]BugDetail, 0, len(ids))
	for _, id := range ids {
		item, ok := itemByID[id]
		if !ok {
			continue
		}
		detail := BugDetail{
			ID:          id,
			Link:        linkByID[id],
			Title:       item.StringField(fieldTitle),
			Severity:    e.Fields.ItemSeverity(item),
			AgingInDays: -1,
		}
		created, okCreated := item.TimeField(fieldCreatedDate)
		closed, okClosed := item.TimeField(fieldClosedDate)
		if okCreated && okClosed {
			detail.AgingInDays = agingDays(created, closed)
		}
		details = append(details, detail)
	}
	return details, nil
}

func sprintHeader(s Sprint) SprintHeader {
	return SprintHeader{
		Name:          s.Name,
		IterationPath: s.IterationPath,
		StartDate:     s.StartDate,
		FinishDate:    s.FinishDate,
	}
}

func emptyIfNil(links []string) []string {
	if links == nil {
		return []string{}
	}
	return links
}
