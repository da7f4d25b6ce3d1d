package metrics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"qametrics/internal/azure"
)

// leakageWindows are the trailing windows of the fixed-range leakage report,
// each computed independently from now.
var leakageWindows = []int{30, 60, 90, 180}

// envAccum tallies one environment bucket and its severity split.
type envAccum struct {
	total int
	sev   map[string]int
}

// leakAccum tallies one leakage group: a timeRange cell, a sprint cell, or a
// whole-report rollup.
type leakAccum struct {
	total int
	prod  int
	env   map[string]*envAccum
}

func newLeakAccum() *leakAccum {
	return &leakAccum{env: map[string]*envAccum{}}
}

func (a *leakAccum) add(env, severity string, isProd bool) {
	a.total++
	if isProd {
		a.prod++
	}
	bucket, ok := a.env[env]
	if !ok {
		bucket = &envAccum{sev: map[string]int{}}
		a.env[env] = bucket
	}
	bucket.total++
	bucket.sev[severity]++
}

func (a *leakAccum) merge(b *leakAccum) {
	a.total += b.total
	a.prod += b.prod
	for env, src := range b.env {
		bucket, ok := a.env[env]
		if !ok {
			bucket = &envAccum{sev: map[string]int{}}
			a.env[env] = bucket
		}
		bucket.total += src.total
		for sev, n := range src.sev {
			bucket.sev[sev] += n
		}
	}
}

func (a *leakAccum) leakagePct() string {
	return formatPct(round2(ratio100(a.prod, a.total)))
}

// buckets renders the environment buckets sorted alphabetically, severities
// sorted within each. withRates additionally carries each severity's share of
// its bucket.
func (a *leakAccum) buckets(withRates bool) []EnvBucket {
	envs := make([]string, 0, len(a.env))
	for env := range a.env {
		envs = append(envs, env)
	}
	sort.Strings(envs)

	out := make([]EnvBucket, 0, len(envs))
	for _, env := range envs {
		src := a.env[env]
		bucket := EnvBucket{Environment: env, Total: src.total, Severities: []SeverityCount{}}

		sevs := make([]string, 0, len(src.sev))
		for sev := range src.sev {
			sevs = append(sevs, sev)
		}
		sort.Strings(sevs)
		for _, sev := range sevs {
			sc := SeverityCount{Severity: sev, Total: src.sev[sev]}
			if withRates {
				sc.Rate = formatPct(round2(ratio100(src.sev[sev], src.total)))
			}
			bucket.Severities = append(bucket.Severities, sc)
		}
		out = append(out, bucket)
	}
	return out
}

// leakAccumForQuery runs a closed-bug query and tallies environment and
// severity for every hit.
func (e *Engine) leakAccumForQuery(ctx context.Context, query string) (*leakAccum, error) {
	ids, err := e.Gateway.QueryWorkItemIDs(ctx, query)
	if err != nil {
		return nil, err
	}
	items, err := e.fetchWorkItemsChunked(ctx, ids, []string{e.Fields.Environment, e.Fields.Severity})
	if err != nil {
		return nil, err
	}

	acc := newLeakAccum()
	for _, item := range items {
		env := e.Fields.ItemEnvironment(item)
		acc.add(env, e.Fields.ItemSeverity(item), e.Fields.IsProduction(env))
	}
	return acc, nil
}

// BugLeakageBreakdown computes production leakage over the fixed trailing
// windows, one row per area per window plus a merged rollup per window.
func (e *Engine) BugLeakageBreakdown(ctx context.Context, areaPaths []string) (*LeakageBreakdownReport, error) {
	now := time.Now()
	cells := make([]*leakAccum, len(areaPaths)*len(leakageWindows))

	g, gctx := errgroup.WithContext(ctx)
	for ai, area := range areaPaths {
		for wi, days := range leakageWindows {
			idx := ai*len(leakageWindows) + wi
			g.Go(func() error {
				query := azure.NewWiql(e.Project).
					WorkItemType("Bug").
					AreaPathUnder(area).
					ClosedBetween(now.AddDate(0, 0, -days), now).
					Build()
				acc, err := e.leakAccumForQuery(gctx, query)
				if err != nil {
					return fmt.Errorf("leakage for %q over %d days: %w", area, days, err)
				}
				cells[idx] = acc
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &LeakageBreakdownReport{Teams: []TeamLeakage{}, Overall: []WindowLeakage{}}
	for ai, area := range areaPaths {
		for wi, days := range leakageWindows {
			acc := cells[ai*len(leakageWindows)+wi]
			report.Teams = append(report.Teams, TeamLeakage{
				AreaPath:      area,
				TimeRange:     windowLabel(days),
				BugLeakagePct: acc.leakagePct(),
				Environments:  acc.buckets(false),
			})
		}
	}
	for wi, days := range leakageWindows {
		merged := newLeakAccum()
		for ai := range areaPaths {
			merged.merge(cells[ai*len(leakageWindows)+wi])
		}
		report.Overall = append(report.Overall, WindowLeakage{
			TimeRange:     windowLabel(days),
			BugLeakagePct: merged.leakagePct(),
			Environments:  merged.buckets(false),
		})
	}
	return report, nil
}

func windowLabel(days int) string {
	return fmt.Sprintf("%dd", days)
}

// BugLeakageBySprint computes leakage per area over the last n sprints,
// grouping bugs by their exact iteration path.
func (e *Engine) BugLeakageBySprint(ctx context.Context, areaPaths []string, numSprints int) (*LeakageBySprintReport, error) {
	report := &LeakageBySprintReport{
		Teams:         []SprintTeamLeakage{},
		SprintOverall: []SprintLeakageRollup{},
		Overall:       []EnvBucket{},
		OverallSeverity: OverallSeverity{
			Severities:        []SeverityCount{},
			DistributionByEnv: []SeverityDistribution{},
		},
	}
	if len(areaPaths) == 0 {
		return report, nil
	}

	sprints, err := e.PastSprints(ctx, areaPaths, numSprints)
	if err != nil {
		return nil, err
	}

	type cell struct {
		acc     *leakAccum
		prodSev map[string]int
		nonProd map[string]int
	}
	cells := make([]*cell, len(areaPaths)*len(sprints))

	g, gctx := errgroup.WithContext(ctx)
	for ai, area := range areaPaths {
		for si, sprint := range sprints {
			idx := ai*len(sprints) + si
			g.Go(func() error {
				query := azure.NewWiql(e.Project).
					WorkItemType("Bug").
					AreaPathUnder(area).
					IterationPath(sprint.IterationPath).
					Build()
				ids, err := e.Gateway.QueryWorkItemIDs(gctx, query)
				if err != nil {
					return fmt.Errorf("leakage for %q sprint %q: %w", area, sprint.Name, err)
				}
				items, err := e.fetchWorkItemsChunked(gctx, ids, []string{e.Fields.Environment, e.Fields.Severity})
				if err != nil {
					return err
				}

				c := &cell{acc: newLeakAccum(), prodSev: map[string]int{}, nonProd: map[string]int{}}
				for _, item := range items {
					env := e.Fields.ItemEnvironment(item)
					sev := e.Fields.ItemSeverity(item)
					isProd := e.Fields.IsProduction(env)
					c.acc.add(env, sev, isProd)
					if isProd {
						c.prodSev[sev]++
					} else {
						c.nonProd[sev]++
					}
				}
				cells[idx] = c
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for ai, area := range areaPaths {
		for si, sprint := range sprints {
			c := cells[ai*len(sprints)+si]
			report.Teams = append(report.Teams, SprintTeamLeakage{
				AreaPath:      area,
				Sprint:        sprint.Name,
				TotalBugs:     c.acc.total,
				BugLeakagePct: c.acc.leakagePct(),
				Environments:  c.acc.buckets(false),
			})
		}
	}

	overall := newLeakAccum()
	prodSev := map[string]int{}
	nonProdSev := map[string]int{}

	for si, sprint := range sprints {
		merged := newLeakAccum()
		for ai := range areaPaths {
			c := cells[ai*len(sprints)+si]
			merged.merge(c.acc)
			for sev, n := range c.prodSev {
				prodSev[sev] += n
			}
			for sev, n := range c.nonProd {
				nonProdSev[sev] += n
			}
		}
		report.SprintOverall = append(report.SprintOverall, SprintLeakageRollup{
			Sprint:        sprint.Name,
			TotalBugs:     merged.total,
			Prod:          merged.prod,
			PreProd:       merged.total - merged.prod,
			BugLeakagePct: merged.leakagePct(),
			Environments:  merged.buckets(false),
		})
		overall.merge(merged)
	}
	sort.Slice(report.SprintOverall, func(i, j int) bool {
		return report.SprintOverall[i].Sprint < report.SprintOverall[j].Sprint
	})

	report.Overall = overall.buckets(true)
	report.OverallSeverity = severityOverview(overall, prodSev, nonProdSev)
	return report, nil
}

// severityOverview builds the severity-centric view: totals with their share
// of all bugs, plus the prod/non-prod split per severity.
func severityOverview(overall *leakAccum, prodSev, nonProdSev map[string]int) OverallSeverity {
	totals := map[string]int{}
	for sev, n := range prodSev {
		totals[sev] += n
	}
	for sev, n := range nonProdSev {
		totals[sev] += n
	}

	sevs := make([]string, 0, len(totals))
	for sev := range totals {
		sevs = append(sevs, sev)
	}
	sort.Strings(sevs)

	out := OverallSeverity{
		Total:             overall.total,
		Severities:        []SeverityCount{},
		DistributionByEnv: []SeverityDistribution{},
	}
	for _, sev := range sevs {
		out.Severities = append(out.Severities, SeverityCount{
			Severity: sev,
			Total:    totals[sev],
			Rate:     formatPct(round2(ratio100(totals[sev], overall.total))),
		})
		out.DistributionByEnv = append(out.DistributionByEnv, SeverityDistribution{
			Severity:     sev,
			TotalProd:    prodSev[sev],
			TotalNonProd: nonProdSev[sev],
			ProdPct:      formatPct(round2(ratio100(prodSev[sev], totals[sev]))),
			NonProdPct:   formatPct(round2(ratio100(nonProdSev[sev], totals[sev]))),
		})
	}
	return out
}
